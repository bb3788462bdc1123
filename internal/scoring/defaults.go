package scoring

import (
	"github.com/opensource-finance/sentinel/internal/domain"
)

// DefaultWeightConfig returns the built-in weights. Every weight is 1.0 so the
// aggregate is the plain mean of contributing sub-scores; sub-score constants
// follow the long-standing per-signal heuristics.
func DefaultWeightConfig() domain.WeightConfig {
	return domain.WeightConfig{
		Channels: map[domain.Channel]domain.ChannelWeights{
			domain.ChannelURL:   defaultURLWeights(),
			domain.ChannelEmail: defaultEmailWeights(),
			domain.ChannelSMS:   defaultSMSWeights(),
			domain.ChannelVoice: defaultVoiceWeights(),
		},
		Extraction: defaultExtraction(),
	}
}

func defaultURLWeights() domain.ChannelWeights {
	return domain.ChannelWeights{
		BaselineConfidence:  0.70,
		ConfidenceIncrement: 0.05,
		MaxConfidence:       0.95,
		Signals: map[string]domain.SignalWeight{
			domain.SignalDomainAgeDays: {
				Weight:     1.0,
				Threshold:  30,
				FixedScore: 0.7,
				Label:      "Newly registered domain",
			},
			domain.SignalRedirectCount: {
				Weight:           1.0,
				PerKeywordWeight: 0.3,
				ScoreCap:         0.9,
			},
			domain.SignalIsPunycode: {
				Weight:     1.0,
				FixedScore: 0.7,
				Label:      "Punycode (IDN) domain",
			},
			domain.SignalTLDRiskClass: {
				Weight:      1.0,
				ClassScores: map[string]float64{"high": 0.8, "medium": 0.4},
				Label:       "Risky top-level domain",
			},
			domain.SignalBrandLookalike: {
				Weight:     1.0,
				FixedScore: 0.8,
				Label:      "Lookalike of a protected brand",
			},
			domain.SignalSuspiciousPathKeywords: {
				Weight:           1.0,
				PerKeywordWeight: 0.25,
				ScoreCap:         0.75,
				Supporting:       true,
				Keywords: []string{
					"login", "signin", "verify", "secure", "account", "update",
					"confirm", "password", "banking", "wallet", "webscr",
				},
			},
			domain.SignalDomainReputation: {
				Weight:     1.0,
				FixedScore: 0.9,
				Label:      "Known malicious domain",
			},
			domain.SignalURLReputation: {
				Weight:     1.0,
				FixedScore: 0.9,
				Label:      "Known malicious URL",
			},
		},
	}
}

func defaultEmailWeights() domain.ChannelWeights {
	return domain.ChannelWeights{
		BaselineConfidence:  0.75,
		ConfidenceIncrement: 0.04,
		MaxConfidence:       0.97,
		Signals: map[string]domain.SignalWeight{
			domain.SignalUrgencyKeywordHits: {
				Weight:           1.0,
				PerKeywordWeight: 0.2,
				ScoreCap:         1.0,
				Keywords: []string{
					"urgent", "immediate", "act now", "verify", "confirm",
					"update", "expire", "expired", "suspended", "locked",
					"action required", "click here", "limited time",
				},
			},
			domain.SignalGenericGreetingPresent: {
				Weight:     1.0,
				FixedScore: 0.4,
				Label:      "Generic greeting detected",
				Keywords:   []string{"dear user", "dear customer", "dear valued customer", "hello"},
			},
			domain.SignalEmbeddedURLs: {
				Weight:           1.0,
				PerKeywordWeight: 0.2,
				ScoreCap:         0.2,
			},
			domain.SignalReplyToMismatch: {
				Weight:     1.0,
				FixedScore: 0.6,
				Label:      "Reply-To address differs from sender",
			},
			domain.SignalAuthFailures: {
				Weight:           1.0,
				PerKeywordWeight: 0.4,
				ScoreCap:         0.8,
			},
			domain.SignalSenderReputation: {
				Weight:     1.0,
				FixedScore: 0.9,
				Label:      "Known malicious sender",
			},
		},
	}
}

func defaultSMSWeights() domain.ChannelWeights {
	return domain.ChannelWeights{
		BaselineConfidence:  0.75,
		ConfidenceIncrement: 0.04,
		MaxConfidence:       0.98,
		Signals: map[string]domain.SignalWeight{
			domain.SignalUrgencyKeywordHits: {
				Weight:           1.0,
				PerKeywordWeight: 0.25,
				ScoreCap:         1.0,
				Keywords: []string{
					"urgent", "verify", "confirm", "update", "act now",
					"limited time", "expires", "immediate", "click here",
					"secure", "access", "blocked", "suspend",
				},
			},
			domain.SignalImpersonatedBrands: {
				Weight:           1.0,
				PerKeywordWeight: 0.6,
				ScoreCap:         0.6,
				Keywords: []string{
					"bank", "paypal", "amazon", "apple", "google", "microsoft",
					"instagram", "whatsapp", "sbi", "icici", "hdfc", "axis",
					"paytm", "google pay", "upi",
				},
			},
			domain.SignalSensitiveInfoRequests: {
				Weight:           1.0,
				PerKeywordWeight: 0.8,
				ScoreCap:         0.8,
				Keywords: []string{
					"password", "otp", "pin", "cvv", "account", "login",
					"verify", "confirm", "update details", "kyc", "aadhar",
					"pan", "bank account", "card number",
				},
			},
			domain.SignalEmbeddedURLs: {
				Weight:           1.0,
				PerKeywordWeight: 0.3,
				ScoreCap:         0.3,
			},
			domain.SignalSenderReputation: {
				Weight:     1.0,
				FixedScore: 0.9,
				Label:      "Known malicious sender",
			},
		},
	}
}

func defaultVoiceWeights() domain.ChannelWeights {
	return domain.ChannelWeights{
		BaselineConfidence:  0.70,
		ConfidenceIncrement: 0.05,
		MaxConfidence:       0.95,
		Signals: map[string]domain.SignalWeight{
			domain.SignalScamKeywordHits: {
				Weight:           1.0,
				PerKeywordWeight: 0.15,
				ScoreCap:         0.9,
				Keywords: []string{
					"verify", "confirm", "urgent", "account", "block", "suspend",
					"expire", "update", "kyc", "aadhar", "pan", "password",
					"otp", "pin", "cvv", "bank", "security", "fraud",
					"immediately", "action required", "click", "link", "payment",
				},
			},
			domain.SignalStressFlags: {
				Weight:           1.0,
				PerKeywordWeight: 0.25,
				ScoreCap:         0.95,
			},
			domain.SignalImpersonatedEntities: {
				Weight:           1.0,
				PerKeywordWeight: 0.7,
				ScoreCap:         0.7,
				Keywords: []string{
					"sbi", "icici", "hdfc", "axis", "bank", "government",
					"police", "tax", "authority", "paypal", "amazon", "google",
					"apple", "executive", "manager", "officer", "agent",
					"compliance", "verification", "security team",
				},
			},
			domain.SignalSocialEngineeringTactics: {
				Weight:           1.0,
				PerKeywordWeight: 0.2,
				ScoreCap:         0.85,
			},
			domain.SignalSyntheticVoice: {
				Weight:     1.0,
				FixedScore: 0.8,
				Label:      "Synthetic voice detected",
			},
		},
	}
}

func defaultExtraction() domain.ExtractionConfig {
	return domain.ExtractionConfig{
		HighRiskTLDs:   []string{"tk", "ml", "ga", "cf", "gq", "xyz", "top", "zip", "mov", "click"},
		MediumRiskTLDs: []string{"info", "biz", "online", "site", "live", "shop", "icu", "buzz"},
		URLShorteners:  []string{"bit.ly", "tinyurl.com", "goo.gl", "t.co", "is.gd", "ow.ly", "cutt.ly"},
		ProtectedBrands: []string{
			"paypal", "amazon", "apple", "google", "microsoft", "netflix",
			"facebook", "instagram", "whatsapp", "sbi", "icici", "hdfc",
			"axisbank", "paytm",
		},
		FreemailDomains:     []string{"gmail.com", "yahoo.com", "hotmail.com", "outlook.com", "aol.com"},
		SpeechRateThreshold: 180,
		DefaultSpeechRate:   150,
		DeepfakeThreshold:   0.5,
		SyntheticVoiceTypes: []string{"ai-generated", "synthetic", "cloned", "tts", "deepfake"},
		TacticKeywords: map[string][]string{
			"urgency_creation":       {"urgent", "immediate", "now", "quickly"},
			"authority_exploitation": {"bank", "government", "authority", "officer"},
			"fear_induction":         {"block", "suspend", "close", "freeze", "fraud"},
			"reciprocity":            {"help", "assist", "protect", "save"},
			"secrecy_request":        {"secret", "confidential", "don't tell", "between us"},
		},
	}
}
