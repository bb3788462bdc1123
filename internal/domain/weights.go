package domain

// WeightConfig holds every tunable number and keyword list used to score inputs.
// It is loaded once when an engine is built and never changed afterwards.
type WeightConfig struct {
	Channels   map[Channel]ChannelWeights `yaml:"channels" json:"channels"`
	Extraction ExtractionConfig           `yaml:"extraction" json:"extraction"`
}

// ChannelWeights configures aggregation and per-signal scoring for one channel.
type ChannelWeights struct {
	BaselineConfidence  float64                 `yaml:"baseline_confidence" json:"baselineConfidence"`
	ConfidenceIncrement float64                 `yaml:"confidence_increment" json:"confidenceIncrement"`
	MaxConfidence       float64                 `yaml:"max_confidence" json:"maxConfidence"`
	Signals             map[string]SignalWeight `yaml:"signals" json:"signals"`
}

// SignalWeight configures how one signal maps to a sub-score and how much
// that sub-score counts in the channel's aggregate.
type SignalWeight struct {
	// Weight in the aggregate mean, in [0,1].
	Weight float64 `yaml:"weight" json:"weight"`

	// Count signals: min(count * PerKeywordWeight, ScoreCap).
	PerKeywordWeight float64 `yaml:"per_keyword_weight,omitempty" json:"perKeywordWeight,omitempty"`
	ScoreCap         float64 `yaml:"score_cap,omitempty" json:"scoreCap,omitempty"`

	// Flag, number and reputation signals score FixedScore when triggered.
	FixedScore float64 `yaml:"fixed_score,omitempty" json:"fixedScore,omitempty"`

	// Number signals trigger when value < Threshold.
	Threshold float64 `yaml:"threshold,omitempty" json:"threshold,omitempty"`

	// Class signals look their class up here; missing classes score 0.
	ClassScores map[string]float64 `yaml:"class_scores,omitempty" json:"classScores,omitempty"`

	// Label is the indicator text for flag, number and reputation signals.
	Label string `yaml:"label,omitempty" json:"label,omitempty"`

	// Keywords matched by keyword-driven extractors, in match order.
	Keywords []string `yaml:"keywords,omitempty" json:"keywords,omitempty"`

	// Expression is an optional CEL expression that replaces the built-in mapping.
	Expression string `yaml:"expression,omitempty" json:"expression,omitempty"`

	// Supporting signals count only when another signal of the channel contributes.
	Supporting bool `yaml:"supporting,omitempty" json:"supporting,omitempty"`
}

// ExtractionConfig holds the lists and thresholds extractors consult
// that are not tied to a single signal weight.
type ExtractionConfig struct {
	HighRiskTLDs        []string            `yaml:"high_risk_tlds" json:"highRiskTlds"`
	MediumRiskTLDs      []string            `yaml:"medium_risk_tlds" json:"mediumRiskTlds"`
	URLShorteners       []string            `yaml:"url_shorteners" json:"urlShorteners"`
	ProtectedBrands     []string            `yaml:"protected_brands" json:"protectedBrands"`
	FreemailDomains     []string            `yaml:"freemail_domains" json:"freemailDomains"`
	SpeechRateThreshold float64             `yaml:"speech_rate_threshold" json:"speechRateThreshold"`
	DefaultSpeechRate   float64             `yaml:"default_speech_rate" json:"defaultSpeechRate"`
	DeepfakeThreshold   float64             `yaml:"deepfake_threshold" json:"deepfakeThreshold"`
	SyntheticVoiceTypes []string            `yaml:"synthetic_voice_types" json:"syntheticVoiceTypes"`
	TacticKeywords      map[string][]string `yaml:"tactic_keywords" json:"tacticKeywords"`
}

// Signal returns the weight entry for a signal on a channel.
func (c WeightConfig) Signal(ch Channel, name string) (SignalWeight, bool) {
	cw, ok := c.Channels[ch]
	if !ok {
		return SignalWeight{}, false
	}
	sw, ok := cw.Signals[name]
	return sw, ok
}
