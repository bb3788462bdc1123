package signals

import (
	"context"
	"regexp"
	"strings"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// SMSExtractor extracts smishing signals from a text message.
type SMSExtractor struct {
	lookups    Lookups
	urgency    []string
	brands     []string
	sensitive  []string
	shorteners *regexp.Regexp
}

// NewSMSExtractor builds an SMS extractor from a weight configuration.
func NewSMSExtractor(cfg domain.WeightConfig, lookups Lookups) *SMSExtractor {
	return &SMSExtractor{
		lookups:    lookups,
		urgency:    keywordsFor(cfg, domain.ChannelSMS, domain.SignalUrgencyKeywordHits),
		brands:     keywordsFor(cfg, domain.ChannelSMS, domain.SignalImpersonatedBrands),
		sensitive:  keywordsFor(cfg, domain.ChannelSMS, domain.SignalSensitiveInfoRequests),
		shorteners: shortenerPattern(cfg.Extraction.URLShorteners),
	}
}

// Channel implements Extractor.
func (x *SMSExtractor) Channel() domain.Channel {
	return domain.ChannelSMS
}

// Extract implements Extractor.
func (x *SMSExtractor) Extract(ctx context.Context, in domain.RawInput) []domain.Signal {
	sigs := []domain.Signal{
		countSignal(domain.SignalUrgencyKeywordHits, matchKeywords(in.Text, x.urgency)),
		countSignal(domain.SignalImpersonatedBrands, matchKeywords(in.Text, x.brands)),
		countSignal(domain.SignalSensitiveInfoRequests, matchKeywords(in.Text, x.sensitive)),
		countSignal(domain.SignalEmbeddedURLs, findLinks(in.Text, x.shorteners)),
	}

	if sig, ok := x.lookups.reputation(ctx, domain.SignalSenderReputation, domain.IndicatorPhone, normalizeSender(in.Sender)); ok {
		sigs = append(sigs, sig)
	}
	return sigs
}

// normalizeSender strips formatting from phone numbers and upper-cases
// alphanumeric sender IDs.
func normalizeSender(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		if r >= 'a' && r <= 'z' {
			return r - 'a' + 'A'
		}
		return r
	}, strings.TrimSpace(s))
}
