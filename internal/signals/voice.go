package signals

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// VoiceExtractor extracts vishing signals from a call transcript and audio measurements.
type VoiceExtractor struct {
	scam        []string
	entities    []string
	tactics     map[string][]string
	speechRate  float64
	defaultRate float64
	deepfake    float64
	synthetic   []string
}

// NewVoiceExtractor builds a voice extractor from a weight configuration.
func NewVoiceExtractor(cfg domain.WeightConfig) *VoiceExtractor {
	ex := cfg.Extraction
	return &VoiceExtractor{
		scam:        keywordsFor(cfg, domain.ChannelVoice, domain.SignalScamKeywordHits),
		entities:    keywordsFor(cfg, domain.ChannelVoice, domain.SignalImpersonatedEntities),
		tactics:     ex.TacticKeywords,
		speechRate:  ex.SpeechRateThreshold,
		defaultRate: ex.DefaultSpeechRate,
		deepfake:    ex.DeepfakeThreshold,
		synthetic:   lowerAll(ex.SyntheticVoiceTypes),
	}
}

// Channel implements Extractor.
func (x *VoiceExtractor) Channel() domain.Channel {
	return domain.ChannelVoice
}

// Extract implements Extractor.
func (x *VoiceExtractor) Extract(_ context.Context, in domain.RawInput) []domain.Signal {
	features := fields{values: in.AudioFeatures}
	stress := x.stressFlags(&features)

	analysis := fields{values: in.VoiceAnalysis}
	voiceType, _ := analysis.str("voice_type")
	voiceType = strings.ToLower(strings.TrimSpace(voiceType))
	synthetic := voiceType != "" && slices.Contains(x.synthetic, voiceType)
	if !synthetic {
		voiceType = ""
	}

	sigs := []domain.Signal{
		countSignal(domain.SignalScamKeywordHits, matchKeywords(in.Text, x.scam)),
		countSignal(domain.SignalStressFlags, stress),
	}
	if len(features.problems) > 0 {
		sigs = append(sigs, failedSignal(domain.SignalAudioFeatures, strings.Join(features.problems, "; ")))
	}
	sigs = append(sigs,
		countSignal(domain.SignalImpersonatedEntities, matchKeywords(in.Text, x.entities)),
		countSignal(domain.SignalSocialEngineeringTactics, x.detectTactics(in.Text)),
	)
	if len(analysis.problems) > 0 {
		sigs = append(sigs, failedSignal(domain.SignalVoiceAnalysis, strings.Join(analysis.problems, "; ")))
	}
	sigs = append(sigs, flagSignal(domain.SignalSyntheticVoice, synthetic, voiceType))
	return sigs
}

func (x *VoiceExtractor) stressFlags(f *fields) []string {
	var flags []string

	if v, ok := f.boolean("has_unusual_frequency"); ok && v {
		flags = append(flags, domain.StressHighFrequencyVariance)
	}

	rate := x.defaultRate
	if v, ok := f.number("speech_rate"); ok {
		rate = v
	}
	if rate > x.speechRate {
		flags = append(flags, domain.StressRapidSpeechRate)
	}

	if v, ok := f.boolean("has_background_noise"); ok && v {
		flags = append(flags, domain.StressArtificialNoise)
	}
	if v, ok := f.number("deepfake_score"); ok && v >= x.deepfake && v > 0 {
		flags = append(flags, domain.StressVoiceDeepfakeProbability)
	}
	return flags
}

func (x *VoiceExtractor) detectTactics(transcript string) []string {
	var found []string
	for _, tactic := range domain.SocialEngineeringTactics {
		if len(matchKeywords(transcript, x.tactics[tactic])) > 0 {
			found = append(found, tactic)
		}
	}
	return found
}

// fields reads loosely typed measurements and records values of the wrong type.
type fields struct {
	values   map[string]any
	problems []string
}

func (f *fields) boolean(key string) (bool, bool) {
	raw, ok := f.values[key]
	if !ok || raw == nil {
		return false, false
	}
	if v, ok := raw.(bool); ok {
		return v, true
	}
	f.mistyped(key, "boolean", raw)
	return false, false
}

func (f *fields) number(key string) (float64, bool) {
	raw, ok := f.values[key]
	if !ok || raw == nil {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		if n, err := v.Float64(); err == nil {
			return n, true
		}
	}
	f.mistyped(key, "number", raw)
	return 0, false
}

func (f *fields) str(key string) (string, bool) {
	raw, ok := f.values[key]
	if !ok || raw == nil {
		return "", false
	}
	if v, ok := raw.(string); ok {
		return v, true
	}
	f.mistyped(key, "string", raw)
	return "", false
}

func (f *fields) mistyped(key, want string, got any) {
	f.problems = append(f.problems, fmt.Sprintf("%s: expected %s, got %T", key, want, got))
}
