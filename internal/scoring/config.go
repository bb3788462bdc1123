// Package scoring loads, defaults and validates weight configurations.
package scoring

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// ErrConfiguration is returned when a weight configuration cannot be used.
var ErrConfiguration = errors.New("configuration error")

// LoadWeightConfig reads a YAML weight configuration.
// Channels absent from the file keep their built-in weights; a channel that is
// present replaces the built-in one and must therefore be complete.
// Extraction lists left empty in the file keep their built-in values.
// An empty path returns the defaults.
func LoadWeightConfig(path string) (domain.WeightConfig, error) {
	if path == "" {
		return DefaultWeightConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return domain.WeightConfig{}, fmt.Errorf("failed to read weight config: %w", err)
	}
	return ParseWeightConfig(data)
}

// ParseWeightConfig decodes YAML weight configuration bytes, applies defaults and validates.
func ParseWeightConfig(data []byte) (domain.WeightConfig, error) {
	var cfg domain.WeightConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return domain.WeightConfig{}, fmt.Errorf("%w: invalid yaml: %v", ErrConfiguration, err)
	}

	applyDefaults(&cfg)

	if err := Validate(cfg); err != nil {
		return domain.WeightConfig{}, err
	}
	return cfg, nil
}

// MarshalWeightConfig renders cfg as YAML.
func MarshalWeightConfig(cfg domain.WeightConfig) ([]byte, error) {
	return yaml.Marshal(cfg)
}

func applyDefaults(cfg *domain.WeightConfig) {
	def := DefaultWeightConfig()

	if cfg.Channels == nil {
		cfg.Channels = map[domain.Channel]domain.ChannelWeights{}
	}
	for _, ch := range domain.Channels() {
		if _, ok := cfg.Channels[ch]; !ok {
			cfg.Channels[ch] = def.Channels[ch]
		}
	}

	ex := &cfg.Extraction
	if len(ex.HighRiskTLDs) == 0 {
		ex.HighRiskTLDs = def.Extraction.HighRiskTLDs
	}
	if len(ex.MediumRiskTLDs) == 0 {
		ex.MediumRiskTLDs = def.Extraction.MediumRiskTLDs
	}
	if len(ex.URLShorteners) == 0 {
		ex.URLShorteners = def.Extraction.URLShorteners
	}
	if len(ex.ProtectedBrands) == 0 {
		ex.ProtectedBrands = def.Extraction.ProtectedBrands
	}
	if len(ex.FreemailDomains) == 0 {
		ex.FreemailDomains = def.Extraction.FreemailDomains
	}
	if ex.SpeechRateThreshold == 0 {
		ex.SpeechRateThreshold = def.Extraction.SpeechRateThreshold
	}
	if ex.DefaultSpeechRate == 0 {
		ex.DefaultSpeechRate = def.Extraction.DefaultSpeechRate
	}
	if ex.DeepfakeThreshold == 0 {
		ex.DeepfakeThreshold = def.Extraction.DeepfakeThreshold
	}
	if len(ex.SyntheticVoiceTypes) == 0 {
		ex.SyntheticVoiceTypes = def.Extraction.SyntheticVoiceTypes
	}
	if len(ex.TacticKeywords) == 0 {
		ex.TacticKeywords = def.Extraction.TacticKeywords
	}
}

// Validate checks that every channel has a complete, in-range set of weights.
// All errors wrap ErrConfiguration.
func Validate(cfg domain.WeightConfig) error {
	for _, ch := range domain.Channels() {
		cw, ok := cfg.Channels[ch]
		if !ok {
			return fmt.Errorf("%w: channel %q has no weights", ErrConfiguration, ch)
		}
		if err := validateChannel(ch, cw); err != nil {
			return err
		}
	}
	for ch := range cfg.Channels {
		if !ch.Valid() {
			return fmt.Errorf("%w: unknown channel %q", ErrConfiguration, ch)
		}
	}

	ex := cfg.Extraction
	if ex.SpeechRateThreshold <= 0 {
		return fmt.Errorf("%w: speech_rate_threshold must be positive", ErrConfiguration)
	}
	if !unit(ex.DeepfakeThreshold) {
		return fmt.Errorf("%w: deepfake_threshold must be within [0,1]", ErrConfiguration)
	}
	for tactic := range ex.TacticKeywords {
		if !slices.Contains(domain.SocialEngineeringTactics, tactic) {
			return fmt.Errorf("%w: unknown social engineering tactic %q", ErrConfiguration, tactic)
		}
	}
	return nil
}

func validateChannel(ch domain.Channel, cw domain.ChannelWeights) error {
	if !unit(cw.BaselineConfidence) || !unit(cw.MaxConfidence) || !unit(cw.ConfidenceIncrement) {
		return fmt.Errorf("%w: %s confidence settings must be within [0,1]", ErrConfiguration, ch)
	}
	if cw.MaxConfidence < cw.BaselineConfidence {
		return fmt.Errorf("%w: %s max_confidence is below baseline_confidence", ErrConfiguration, ch)
	}

	scored := make(map[string]bool)
	for _, name := range domain.ScoredSignals(ch) {
		scored[name] = true
		sw, ok := cw.Signals[name]
		if !ok {
			return fmt.Errorf("%w: %s signal %q has no weight", ErrConfiguration, ch, name)
		}
		if err := validateSignal(ch, name, sw); err != nil {
			return err
		}
	}
	for name := range cw.Signals {
		if !scored[name] {
			return fmt.Errorf("%w: %s signal %q is not scored on this channel", ErrConfiguration, ch, name)
		}
	}
	return nil
}

func validateSignal(ch domain.Channel, name string, sw domain.SignalWeight) error {
	if !unit(sw.Weight) {
		return fmt.Errorf("%w: %s signal %q weight %v is outside [0,1]", ErrConfiguration, ch, name, sw.Weight)
	}
	if !unit(sw.PerKeywordWeight) || !unit(sw.ScoreCap) || !unit(sw.FixedScore) {
		return fmt.Errorf("%w: %s signal %q scores must be within [0,1]", ErrConfiguration, ch, name)
	}
	for class, score := range sw.ClassScores {
		if !unit(score) {
			return fmt.Errorf("%w: %s signal %q class %q score is outside [0,1]", ErrConfiguration, ch, name, class)
		}
	}
	if sw.Threshold < 0 {
		return fmt.Errorf("%w: %s signal %q threshold must not be negative", ErrConfiguration, ch, name)
	}
	return nil
}

func unit(v float64) bool {
	return v >= 0 && v <= 1
}
