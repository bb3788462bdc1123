// Package risk aggregates evaluated signals into a risk score, level and confidence.
package risk

import (
	"math"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// Level thresholds on the 0..1 scale. They are part of the verdict contract.
const (
	DangerousThreshold  = 0.7
	SuspiciousThreshold = 0.4
)

// Assessment is the aggregate outcome for one input.
type Assessment struct {
	Score         float64 // 0..100
	Level         domain.RiskLevel
	Confidence    float64 // 0..1
	Contributing  int     // signals with a positive sub-score
	Corroborating int     // non-diagnostic indicators
}

// Aggregator combines sub-scores using per-channel weights.
type Aggregator struct {
	channels map[domain.Channel]domain.ChannelWeights
}

// NewAggregator creates an aggregator from a weight configuration.
func NewAggregator(cfg domain.WeightConfig) *Aggregator {
	return &Aggregator{channels: cfg.Channels}
}

// Aggregate computes the weighted mean of contributing sub-scores.
// Signals that contributed nothing are left out of the mean rather than
// counted as zero, so checks that do not apply to an input do not dilute it.
func (a *Aggregator) Aggregate(ch domain.Channel, evaluated []domain.EvaluatedSignal) Assessment {
	cw := a.channels[ch]

	var sum, totalWeight float64
	out := Assessment{}

	for _, ev := range evaluated {
		if !ev.Degraded {
			out.Corroborating += len(ev.Indicators)
		}
		if !ev.Contributes() {
			continue
		}
		out.Contributing++

		weight := cw.Signals[ev.Signal.Name].Weight
		sum += clamp01(ev.SubScore) * weight
		totalWeight += weight
	}

	if totalWeight > 0 {
		out.Score = round(100 * sum / totalWeight)
	}
	out.Score = math.Max(0, math.Min(100, out.Score))
	out.Level = LevelFor(out.Score)
	out.Confidence = confidence(cw, out.Corroborating)
	return out
}

// Corroborate clears supporting signals in place when no other signal of
// the channel contributed, so they cannot carry a verdict on their own.
func (a *Aggregator) Corroborate(ch domain.Channel, evaluated []domain.EvaluatedSignal) {
	cw := a.channels[ch]
	for _, ev := range evaluated {
		if ev.Contributes() && !cw.Signals[ev.Signal.Name].Supporting {
			return
		}
	}
	for i, ev := range evaluated {
		if ev.Contributes() && cw.Signals[ev.Signal.Name].Supporting {
			evaluated[i].SubScore = 0
			evaluated[i].Indicators = nil
		}
	}
}

// LevelFor maps a 0..100 risk score to a risk level.
func LevelFor(score float64) domain.RiskLevel {
	switch r := score / 100; {
	case r >= DangerousThreshold:
		return domain.RiskDangerous
	case r >= SuspiciousThreshold:
		return domain.RiskSuspicious
	default:
		return domain.RiskSafe
	}
}

func confidence(cw domain.ChannelWeights, corroborating int) float64 {
	c := cw.BaselineConfidence + cw.ConfidenceIncrement*float64(corroborating)
	if c > cw.MaxConfidence {
		c = cw.MaxConfidence
	}
	return clamp01(round(c))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// round trims floating point noise, e.g. (0.6+0.8)/2 lands on 0.7.
func round(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
