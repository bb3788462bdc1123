// Package verdict assembles the final, explainable verdict.
package verdict

import (
	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/risk"
)

var recommendations = map[domain.Channel]map[domain.RiskLevel]string{
	domain.ChannelURL: {
		domain.RiskDangerous:  "Do not open this link or enter any credentials. Report it as phishing.",
		domain.RiskSuspicious: "Verify the site independently before entering any information.",
		domain.RiskSafe:       "Appears legitimate",
	},
	domain.ChannelEmail: {
		domain.RiskDangerous:  "Do not click links or open attachments. Report this email as phishing and delete it.",
		domain.RiskSuspicious: "Verify sender identity before clicking links",
		domain.RiskSafe:       "Appears legitimate",
	},
	domain.ChannelSMS: {
		domain.RiskDangerous:  "Do not click links or provide information",
		domain.RiskSuspicious: "Do not click links or provide information",
		domain.RiskSafe:       "Appears legitimate",
	},
	domain.ChannelVoice: {
		domain.RiskDangerous:  "This is a vishing scam. Do not share OTP, bank details, or personal information. Hang up immediately and call your bank using the official number from their website.",
		domain.RiskSuspicious: "This call has suspicious indicators. Verify caller identity independently before sharing any sensitive information.",
		domain.RiskSafe:       "This call appears to be legitimate, but always verify unexpected requests independently.",
	},
}

var fallback = map[domain.RiskLevel]string{
	domain.RiskDangerous:  "High risk. Do not act on this message.",
	domain.RiskSuspicious: "Proceed with caution and verify independently.",
	domain.RiskSafe:       "Appears legitimate",
}

// Recommendation returns the advice text for a channel and level.
// Every channel and level pair has an entry.
func Recommendation(ch domain.Channel, level domain.RiskLevel) string {
	if byLevel, ok := recommendations[ch]; ok {
		if text, ok := byLevel[level]; ok {
			return text
		}
	}
	return fallback[level]
}

// Build assembles a verdict. Indicators keep the order they were supplied in.
func Build(ch domain.Channel, a risk.Assessment, indicators []string) domain.Verdict {
	out := make([]string, len(indicators))
	copy(out, indicators)

	return domain.Verdict{
		RiskScore:      a.Score,
		RiskLevel:      a.Level,
		Confidence:     a.Confidence,
		Indicators:     out,
		Recommendation: Recommendation(ch, a.Level),
		Channel:        ch,
	}
}
