// Package rules maps extracted signals to sub-scores and human readable indicators.
package rules

import (
	"fmt"
	"math"
	"sort"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/scoring"
)

// Indicator texts for degraded signals.
const (
	IndicatorReputationUnavailable = "reputation lookup unavailable"
	indicatorExtractionFailed      = "extraction failed"
)

// Evaluator scores the signals of one channel. It is immutable after
// construction and safe for concurrent use.
type Evaluator struct {
	channel  domain.Channel
	weights  map[string]domain.SignalWeight
	programs map[string]cel.Program
}

// NewEvaluator builds an evaluator for a channel and compiles any CEL
// expressions in its weights. Compile failures wrap scoring.ErrConfiguration.
func NewEvaluator(ch domain.Channel, cw domain.ChannelWeights) (*Evaluator, error) {
	e := &Evaluator{
		channel:  ch,
		weights:  make(map[string]domain.SignalWeight, len(cw.Signals)),
		programs: make(map[string]cel.Program),
	}

	env, err := newEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	// Compile in name order so the first reported error is stable.
	names := make([]string, 0, len(cw.Signals))
	for name := range cw.Signals {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		sw := cw.Signals[name]
		e.weights[name] = sw
		if sw.Expression == "" {
			continue
		}
		program, err := compile(env, sw.Expression)
		if err != nil {
			return nil, fmt.Errorf("%w: %s signal %q: %v", scoring.ErrConfiguration, ch, name, err)
		}
		e.programs[name] = program
	}

	return e, nil
}

// Channel returns the channel this evaluator scores.
func (e *Evaluator) Channel() domain.Channel {
	return e.channel
}

// Weight returns the aggregate weight for a signal; unknown signals weigh nothing.
func (e *Evaluator) Weight(name string) float64 {
	return e.weights[name].Weight
}

// Evaluate scores one signal. It has no side effects.
func (e *Evaluator) Evaluate(sig domain.Signal) domain.EvaluatedSignal {
	out := domain.EvaluatedSignal{Signal: sig}

	if sig.Failed {
		out.Degraded = true
		out.Indicators = []string{fmt.Sprintf("%s: %s: %s", indicatorExtractionFailed, sig.Name, sig.Reason)}
		return out
	}
	if sig.Kind == domain.KindReputation && sig.Unknown {
		out.Degraded = true
		out.Indicators = []string{IndicatorReputationUnavailable}
		return out
	}

	sw, ok := e.weights[sig.Name]
	if !ok || sig.Kind == domain.KindText || sig.Unknown {
		return out
	}

	var score float64
	if program, ok := e.programs[sig.Name]; ok {
		score = evalExpression(program, sig)
	} else {
		score = builtinScore(sig, sw)
	}

	out.SubScore = clamp(score)
	if out.SubScore > 0 {
		out.Indicators = indicators(sig, sw)
	}
	return out
}

func builtinScore(sig domain.Signal, sw domain.SignalWeight) float64 {
	switch sig.Kind {
	case domain.KindCount:
		return math.Min(float64(sig.Count())*sw.PerKeywordWeight, sw.ScoreCap)
	case domain.KindFlag, domain.KindReputation:
		if sig.Flag {
			return sw.FixedScore
		}
	case domain.KindNumber:
		if sig.Value < sw.Threshold {
			return sw.FixedScore
		}
	case domain.KindClass:
		return sw.ClassScores[sig.Class]
	}
	return 0
}

// indicators builds the evidence strings for a contributing signal.
// Count signals report their hits; other kinds report the configured label.
func indicators(sig domain.Signal, sw domain.SignalWeight) []string {
	if sig.Kind == domain.KindCount && len(sig.Hits) > 0 {
		return append([]string(nil), sig.Hits...)
	}

	label := sw.Label
	if label == "" {
		label = sig.Name
	}
	if sig.Text != "" {
		label = fmt.Sprintf("%s (%s)", label, sig.Text)
	}
	return []string{label}
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func newEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("hits", cel.ListType(cel.StringType)),
		cel.Variable("count", cel.IntType),
		cel.Variable("value", cel.DoubleType),
		cel.Variable("flag", cel.BoolType),
		cel.Variable("class", cel.StringType),
		cel.Variable("text", cel.StringType),
	)
}

func compile(env *cel.Env, expr string) (cel.Program, error) {
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("expression must return bool, int, or double, got %s", outputType)
	}

	return env.Program(ast)
}

// evalExpression runs a compiled expression against a signal.
// Evaluation errors score zero.
func evalExpression(program cel.Program, sig domain.Signal) float64 {
	hits := sig.Hits
	if hits == nil {
		hits = []string{}
	}
	out, _, err := program.Eval(map[string]any{
		"hits":  hits,
		"count": int64(sig.Count()),
		"value": sig.Value,
		"flag":  sig.Flag,
		"class": sig.Class,
		"text":  sig.Text,
	})
	if err != nil {
		return 0
	}
	return toScore(out)
}

// toScore converts a CEL value to a numeric score.
func toScore(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1.0
		}
		return 0.0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0.0
	}
}
