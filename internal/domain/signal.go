package domain

// SignalKind describes the shape of a signal's value.
type SignalKind string

const (
	KindText       SignalKind = "text"
	KindCount      SignalKind = "count"
	KindFlag       SignalKind = "flag"
	KindNumber     SignalKind = "number"
	KindClass      SignalKind = "class"
	KindReputation SignalKind = "reputation"
)

// Signal names. Names are shared across channels where the meaning is the same.
const (
	SignalDomain                 = "domain"
	SignalDomainAgeDays          = "domain_age_days"
	SignalRedirectCount          = "redirect_count"
	SignalIsPunycode             = "is_punycode"
	SignalTLDRiskClass           = "tld_risk_class"
	SignalBrandLookalike         = "brand_lookalike"
	SignalSuspiciousPathKeywords = "suspicious_path_keywords"
	SignalDomainReputation       = "domain_reputation"
	SignalURLReputation          = "url_reputation"

	SignalSender                 = "sender"
	SignalSubject                = "subject"
	SignalUrgencyKeywordHits     = "urgency_keyword_hits"
	SignalGenericGreetingPresent = "generic_greeting_present"
	SignalEmbeddedURLs           = "embedded_urls"
	SignalReplyToMismatch        = "reply_to_mismatch"
	SignalAuthFailures           = "auth_failures"
	SignalSenderReputation       = "sender_reputation"
	SignalRawHeaders             = "raw_headers"

	SignalImpersonatedBrands    = "impersonated_brands"
	SignalSensitiveInfoRequests = "sensitive_info_requests"

	SignalScamKeywordHits          = "scam_keyword_hits"
	SignalStressFlags              = "stress_flags"
	SignalImpersonatedEntities     = "impersonated_entities"
	SignalSocialEngineeringTactics = "social_engineering_tactics"
	SignalSyntheticVoice           = "synthetic_voice"
	SignalAudioFeatures            = "audio_features"
	SignalVoiceAnalysis            = "voice_analysis"
)

// Stress flags raised from audio measurements, in emission order.
const (
	StressHighFrequencyVariance    = "high_frequency_variance"
	StressRapidSpeechRate          = "rapid_speech_rate"
	StressArtificialNoise          = "artificial_noise"
	StressVoiceDeepfakeProbability = "voice_deepfake_probability"
)

// SocialEngineeringTactics is the closed set of tactics detected in call
// transcripts, in emission order.
var SocialEngineeringTactics = []string{
	"urgency_creation",
	"authority_exploitation",
	"fear_induction",
	"reciprocity",
	"secrecy_request",
}

// scoredSignals lists, per channel, every signal that must have a weight.
// Informational text signals and extraction diagnostics are not scored.
var scoredSignals = map[Channel][]string{
	ChannelURL: {
		SignalDomainAgeDays,
		SignalRedirectCount,
		SignalIsPunycode,
		SignalTLDRiskClass,
		SignalBrandLookalike,
		SignalSuspiciousPathKeywords,
		SignalDomainReputation,
		SignalURLReputation,
	},
	ChannelEmail: {
		SignalUrgencyKeywordHits,
		SignalGenericGreetingPresent,
		SignalEmbeddedURLs,
		SignalReplyToMismatch,
		SignalAuthFailures,
		SignalSenderReputation,
	},
	ChannelSMS: {
		SignalUrgencyKeywordHits,
		SignalImpersonatedBrands,
		SignalSensitiveInfoRequests,
		SignalEmbeddedURLs,
		SignalSenderReputation,
	},
	ChannelVoice: {
		SignalScamKeywordHits,
		SignalStressFlags,
		SignalImpersonatedEntities,
		SignalSocialEngineeringTactics,
		SignalSyntheticVoice,
	},
}

// ScoredSignals returns the names of the signals a channel scores.
func ScoredSignals(ch Channel) []string {
	return append([]string(nil), scoredSignals[ch]...)
}

// Signal is one named observation extracted from a raw input.
type Signal struct {
	Name string     `json:"name"`
	Kind SignalKind `json:"kind"`

	// Hits holds matched keywords, URLs or flag names in order of detection.
	Hits []string `json:"hits,omitempty"`

	Text  string  `json:"text,omitempty"`
	Flag  bool    `json:"flag,omitempty"`
	Value float64 `json:"value,omitempty"`
	Class string  `json:"class,omitempty"`

	// Unknown marks a value that could not be determined, e.g. a lookup timeout.
	Unknown bool `json:"unknown,omitempty"`

	// Failed marks a sub-field that could not be parsed.
	Failed bool   `json:"failed,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Count returns the number of hits.
func (s Signal) Count() int {
	return len(s.Hits)
}

// EvaluatedSignal is a signal paired with its risk contribution.
type EvaluatedSignal struct {
	Signal     Signal   `json:"signal"`
	SubScore   float64  `json:"subScore"`
	Indicators []string `json:"indicators,omitempty"`

	// Degraded is set when the indicators are diagnostics rather than evidence.
	Degraded bool `json:"degraded,omitempty"`
}

// Contributes reports whether the signal added risk.
func (e EvaluatedSignal) Contributes() bool {
	return e.SubScore > 0
}
