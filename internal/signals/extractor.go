// Package signals turns raw inputs into named, typed signals.
//
// Extractors never fail: fields that cannot be parsed produce a signal marked
// Failed with a reason, and lookups that time out produce Unknown signals.
// Emission order is fixed per channel and is the order indicators appear in a verdict.
package signals

import (
	"context"
	"fmt"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// Extractor turns one channel's raw input into signals.
type Extractor interface {
	Channel() domain.Channel
	Extract(ctx context.Context, in domain.RawInput) []domain.Signal
}

// New returns the extractor for a channel.
func New(ch domain.Channel, cfg domain.WeightConfig, lookups Lookups) (Extractor, error) {
	switch ch {
	case domain.ChannelURL:
		return NewURLExtractor(cfg, lookups), nil
	case domain.ChannelEmail:
		return NewEmailExtractor(cfg, lookups), nil
	case domain.ChannelSMS:
		return NewSMSExtractor(cfg, lookups), nil
	case domain.ChannelVoice:
		return NewVoiceExtractor(cfg), nil
	default:
		return nil, fmt.Errorf("no extractor for channel %q", ch)
	}
}

func keywordsFor(cfg domain.WeightConfig, ch domain.Channel, name string) []string {
	sw, _ := cfg.Signal(ch, name)
	return sw.Keywords
}

func textSignal(name, text string) domain.Signal {
	return domain.Signal{Name: name, Kind: domain.KindText, Text: text}
}

func countSignal(name string, hits []string) domain.Signal {
	return domain.Signal{Name: name, Kind: domain.KindCount, Hits: hits}
}

func flagSignal(name string, flag bool, text string) domain.Signal {
	return domain.Signal{Name: name, Kind: domain.KindFlag, Flag: flag, Text: text}
}

func failedSignal(name, reason string) domain.Signal {
	return domain.Signal{Name: name, Kind: domain.KindText, Failed: true, Reason: reason}
}
