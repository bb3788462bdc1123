// Package engine runs the analysis pipeline: extract signals, evaluate them,
// aggregate the sub-scores and build a verdict.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/risk"
	"github.com/opensource-finance/sentinel/internal/rules"
	"github.com/opensource-finance/sentinel/internal/scoring"
	"github.com/opensource-finance/sentinel/internal/signals"
	"github.com/opensource-finance/sentinel/internal/verdict"
)

const tracerName = "github.com/opensource-finance/sentinel/engine"

// Options configures the external capabilities of an engine.
type Options struct {
	// Store answers reputation queries. Nil disables reputation signals.
	Store domain.ThreatIndicatorStore

	// Ages answers domain age queries. Nil leaves domain age unknown.
	Ages domain.DomainAgeSource

	// LookupTimeout bounds each external query. Zero uses signals.DefaultLookupTimeout.
	LookupTimeout time.Duration
}

type pipeline struct {
	extractor signals.Extractor
	evaluator *rules.Evaluator
}

// Engine scores inputs on every channel. It holds no per-call state and is
// safe for concurrent use.
type Engine struct {
	pipelines  map[domain.Channel]pipeline
	aggregator *risk.Aggregator
	tracer     trace.Tracer
}

// New validates the weights and builds an engine. A configuration that cannot
// score every known signal is rejected with scoring.ErrConfiguration.
func New(cfg domain.WeightConfig, opts Options) (*Engine, error) {
	if err := scoring.Validate(cfg); err != nil {
		return nil, err
	}

	lookups := signals.Lookups{
		Store:   opts.Store,
		Ages:    opts.Ages,
		Timeout: opts.LookupTimeout,
	}

	e := &Engine{
		pipelines:  make(map[domain.Channel]pipeline),
		aggregator: risk.NewAggregator(cfg),
		tracer:     otel.Tracer(tracerName),
	}

	for _, ch := range domain.Channels() {
		extractor, err := signals.New(ch, cfg, lookups)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", scoring.ErrConfiguration, err)
		}
		evaluator, err := rules.NewEvaluator(ch, cfg.Channels[ch])
		if err != nil {
			return nil, err
		}
		e.pipelines[ch] = pipeline{extractor: extractor, evaluator: evaluator}
	}

	return e, nil
}

// AnalyzeURL scores a URL.
func (e *Engine) AnalyzeURL(ctx context.Context, url string) domain.Verdict {
	return e.Analyze(ctx, domain.NewURLInput(url))
}

// AnalyzeEmail scores an email. rawHeaders may be empty.
func (e *Engine) AnalyzeEmail(ctx context.Context, sender, subject, body, rawHeaders string) domain.Verdict {
	return e.Analyze(ctx, domain.NewEmailInput(sender, subject, body, rawHeaders))
}

// AnalyzeSMS scores a text message. sender may be empty.
func (e *Engine) AnalyzeSMS(ctx context.Context, content, sender string) domain.Verdict {
	return e.Analyze(ctx, domain.NewSMSInput(content, sender))
}

// AnalyzeVoice scores a call transcript with optional audio features and voice analysis.
func (e *Engine) AnalyzeVoice(ctx context.Context, durationSeconds float64, transcript string, audioFeatures, voiceAnalysis map[string]any) domain.Verdict {
	return e.Analyze(ctx, domain.NewVoiceInput(durationSeconds, transcript, audioFeatures, voiceAnalysis))
}

// Analyze scores any raw input.
func (e *Engine) Analyze(ctx context.Context, in domain.RawInput) domain.Verdict {
	return e.Explain(ctx, in).Verdict
}

// Explanation is a verdict together with every evaluated signal behind it.
type Explanation struct {
	Verdict domain.Verdict           `json:"verdict"`
	Signals []domain.EvaluatedSignal `json:"signals"`
}

// Explain scores an input and returns the evaluated signals as well as the verdict.
// Inputs on an unknown channel score as SAFE with no indicators.
func (e *Engine) Explain(ctx context.Context, in domain.RawInput) Explanation {
	ctx, span := e.tracer.Start(ctx, "engine.analyze",
		trace.WithAttributes(attribute.String("sentinel.channel", string(in.Channel))),
	)
	defer span.End()

	p, ok := e.pipelines[in.Channel]
	if !ok {
		slog.Warn("analysis requested for unknown channel", "channel", in.Channel)
		return Explanation{Verdict: verdict.Build(in.Channel, risk.Assessment{Level: domain.RiskSafe}, nil)}
	}

	extracted := p.extractor.Extract(ctx, in)

	evaluated := make([]domain.EvaluatedSignal, 0, len(extracted))
	for _, sig := range extracted {
		ev := p.evaluator.Evaluate(sig)
		if ev.Degraded {
			slog.Debug("signal degraded",
				"channel", in.Channel,
				"signal", sig.Name,
				"reason", sig.Reason,
			)
		}
		evaluated = append(evaluated, ev)
	}
	e.aggregator.Corroborate(in.Channel, evaluated)

	var indicators []string
	for _, ev := range evaluated {
		indicators = append(indicators, ev.Indicators...)
	}

	assessment := e.aggregator.Aggregate(in.Channel, evaluated)
	v := verdict.Build(in.Channel, assessment, indicators)

	span.SetAttributes(
		attribute.String("sentinel.risk_level", string(v.RiskLevel)),
		attribute.Float64("sentinel.risk_score", v.RiskScore),
		attribute.Int("sentinel.indicators", len(v.Indicators)),
	)

	return Explanation{Verdict: v, Signals: evaluated}
}
