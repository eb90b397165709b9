// Package sentiment turns completion-provider output into validated
// sentiment analyses.
package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"kapsentiment/internal/model"
	"kapsentiment/pkg/llm"
)

const (
	defaultConfidence = 0.5
	maxLoggedResponse = 500
)

// Analyzer wraps a completion provider.
//
// Analyze returns (nil, nil) when the model output is empty or cannot be
// parsed, and (nil, err) when the provider call fails or the parsed fields
// violate the domain rules. Callers count both as one failed item.
type Analyzer struct {
	completer llm.Completer
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Analyzer)

func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

func NewAnalyzer(completer llm.Completer, opts ...Option) *Analyzer {
	a := &Analyzer{
		completer: completer,
		logger:    slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze runs content through the provider. An empty prompt selects DefaultPrompt.
func (a *Analyzer) Analyze(ctx context.Context, content, prompt string) (*model.SentimentAnalysis, error) {
	if prompt == "" {
		prompt = DefaultPrompt
	}

	response, err := a.completer.Complete(ctx, content, prompt)
	if err != nil {
		return nil, fmt.Errorf("completion: %w", err)
	}
	if strings.TrimSpace(response) == "" {
		a.logger.Error("empty response from completion provider")
		return nil, nil
	}

	raw, ok := ExtractJSONObject(response)
	if !ok {
		a.logger.Error("no JSON object in completion response", "response", truncate(response, maxLoggedResponse))
		return nil, nil
	}

	var payload sentimentPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		a.logger.Error("failed to parse completion JSON", "error", err, "response", truncate(raw, maxLoggedResponse))
		return nil, nil
	}

	analysis, err := payload.toAnalysis(a.now())
	if err != nil {
		a.logger.Error("completion output violates sentiment rules", "error", err)
		return nil, err
	}
	return analysis, nil
}

type sentimentPayload struct {
	OverallSentiment *string         `json:"overall_sentiment"`
	Confidence       json.RawMessage `json:"confidence"`
	ImpactHorizon    *string         `json:"impact_horizon"`
	KeyDrivers       []string        `json:"key_drivers"`
	RiskFlags        []string        `json:"risk_flags"`
	ToneDescriptors  []string        `json:"tone_descriptors"`
	TargetAudience   *string         `json:"target_audience"`
	AnalysisText     string          `json:"analysis_text"`
}

func (p sentimentPayload) toAnalysis(now time.Time) (*model.SentimentAnalysis, error) {
	overall := model.SentimentNeutral
	if p.OverallSentiment != nil {
		parsed, err := model.ParseSentimentType(*p.OverallSentiment)
		if err != nil {
			return nil, err
		}
		overall = parsed
	}

	horizon := model.HorizonMediumTerm
	if p.ImpactHorizon != nil {
		parsed, err := model.ParseImpactHorizon(*p.ImpactHorizon)
		if err != nil {
			return nil, err
		}
		horizon = parsed
	}

	value, err := coerceConfidence(p.Confidence)
	if err != nil {
		return nil, err
	}
	confidence, err := model.NewConfidence(value)
	if err != nil {
		return nil, err
	}

	return model.NewSentimentAnalysis(model.SentimentParams{
		Overall:         overall,
		Confidence:      confidence,
		Horizon:         horizon,
		KeyDrivers:      p.KeyDrivers,
		RiskFlags:       p.RiskFlags,
		ToneDescriptors: p.ToneDescriptors,
		TargetAudience:  p.TargetAudience,
		AnalysisText:    p.AnalysisText,
		AnalyzedAt:      now,
	})
}

// coerceConfidence accepts a JSON number or a numeric string.
func coerceConfidence(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return defaultConfidence, nil
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("%w: %s", model.ErrConfidenceOutOfRange, raw)
	}

	switch t := v.(type) {
	case float64:
		return t, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", model.ErrConfidenceOutOfRange, t)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: unsupported value %s", model.ErrConfidenceOutOfRange, raw)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
