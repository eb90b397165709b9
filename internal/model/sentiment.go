package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type SentimentType string

const (
	SentimentPositive SentimentType = "positive"
	SentimentNeutral  SentimentType = "neutral"
	SentimentNegative SentimentType = "negative"
)

type ImpactHorizon string

const (
	HorizonShortTerm  ImpactHorizon = "short_term"
	HorizonMediumTerm ImpactHorizon = "medium_term"
	HorizonLongTerm   ImpactHorizon = "long_term"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

const (
	highConfidence = 0.7
	lowConfidence  = 0.5
)

var (
	ErrConfidenceOutOfRange = errors.New("confidence must be between 0.0 and 1.0")
	ErrEmptyAnalysisText    = errors.New("analysis text is required")
	ErrInvalidSentiment     = errors.New("invalid sentiment")
	ErrInvalidHorizon       = errors.New("invalid impact horizon")
)

// ParseSentimentType matches case-insensitively against the known sentiments.
func ParseSentimentType(s string) (SentimentType, error) {
	switch t := SentimentType(strings.ToLower(strings.TrimSpace(s))); t {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSentiment, s)
}

func ParseImpactHorizon(s string) (ImpactHorizon, error) {
	switch h := ImpactHorizon(strings.ToLower(strings.TrimSpace(s))); h {
	case HorizonShortTerm, HorizonMediumTerm, HorizonLongTerm:
		return h, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidHorizon, s)
}

// Confidence is a score in [0.0, 1.0].
type Confidence struct {
	value float64
}

func NewConfidence(v float64) (Confidence, error) {
	// NaN fails both comparisons, so it is rejected here too.
	if !(v >= 0.0 && v <= 1.0) {
		return Confidence{}, fmt.Errorf("%w, got %v", ErrConfidenceOutOfRange, v)
	}
	return Confidence{value: v}, nil
}

func (c Confidence) Value() float64 { return c.value }

func (c Confidence) IsHigh() bool { return c.value >= highConfidence }

// IsLow is not the complement of IsHigh: values in [0.5, 0.7) are neither.
func (c Confidence) IsLow() bool { return c.value < lowConfidence }

// SentimentAnalysis is an immutable judgement about one disclosure.
// List accessors return copies.
type SentimentAnalysis struct {
	overall         SentimentType
	confidence      Confidence
	horizon         ImpactHorizon
	keyDrivers      []string
	riskFlags       []string
	toneDescriptors []string
	targetAudience  *string
	text            string
	analyzedAt      time.Time
}

type SentimentParams struct {
	Overall         SentimentType
	Confidence      Confidence
	Horizon         ImpactHorizon
	KeyDrivers      []string
	RiskFlags       []string
	ToneDescriptors []string
	TargetAudience  *string
	AnalysisText    string
	AnalyzedAt      time.Time
}

func NewSentimentAnalysis(p SentimentParams) (*SentimentAnalysis, error) {
	overall, err := ParseSentimentType(string(p.Overall))
	if err != nil {
		return nil, err
	}
	horizon, err := ParseImpactHorizon(string(p.Horizon))
	if err != nil {
		return nil, err
	}
	if _, err := NewConfidence(p.Confidence.value); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.AnalysisText) == "" {
		return nil, ErrEmptyAnalysisText
	}

	analyzedAt := p.AnalyzedAt
	if analyzedAt.IsZero() {
		analyzedAt = time.Now().UTC()
	}

	var audience *string
	if p.TargetAudience != nil {
		a := *p.TargetAudience
		audience = &a
	}

	return &SentimentAnalysis{
		overall:         overall,
		confidence:      p.Confidence,
		horizon:         horizon,
		keyDrivers:      cloneStrings(p.KeyDrivers),
		riskFlags:       cloneStrings(p.RiskFlags),
		toneDescriptors: cloneStrings(p.ToneDescriptors),
		targetAudience:  audience,
		text:            p.AnalysisText,
		analyzedAt:      analyzedAt,
	}, nil
}

func (s *SentimentAnalysis) Overall() SentimentType    { return s.overall }
func (s *SentimentAnalysis) Confidence() Confidence    { return s.confidence }
func (s *SentimentAnalysis) Horizon() ImpactHorizon    { return s.horizon }
func (s *SentimentAnalysis) KeyDrivers() []string      { return cloneStrings(s.keyDrivers) }
func (s *SentimentAnalysis) RiskFlags() []string       { return cloneStrings(s.riskFlags) }
func (s *SentimentAnalysis) ToneDescriptors() []string { return cloneStrings(s.toneDescriptors) }
func (s *SentimentAnalysis) AnalysisText() string      { return s.text }
func (s *SentimentAnalysis) AnalyzedAt() time.Time     { return s.analyzedAt }

func (s *SentimentAnalysis) TargetAudience() (string, bool) {
	if s.targetAudience == nil {
		return "", false
	}
	return *s.targetAudience, true
}

func (s *SentimentAnalysis) IsPositive() bool { return s.overall == SentimentPositive }

func (s *SentimentAnalysis) IsNegative() bool { return s.overall == SentimentNegative }

// HasHighRisk is true for more than two risk flags. It deliberately does not
// agree with RiskLevel, which only reports "high" from four flags up.
func (s *SentimentAnalysis) HasHighRisk() bool { return len(s.riskFlags) > 2 }

func (s *SentimentAnalysis) RiskLevel() RiskLevel {
	switch n := len(s.riskFlags); {
	case n <= 1:
		return RiskLow
	case n <= 3:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// WithAnalyzedAt returns a copy stamped with t; stores use it to reflect the
// persisted timestamp.
func (s *SentimentAnalysis) WithAnalyzedAt(t time.Time) *SentimentAnalysis {
	c := *s
	c.analyzedAt = t
	return &c
}

type sentimentJSON struct {
	OverallSentiment SentimentType `json:"overall_sentiment"`
	Confidence       float64       `json:"confidence"`
	ImpactHorizon    ImpactHorizon `json:"impact_horizon"`
	KeyDrivers       []string      `json:"key_drivers"`
	RiskFlags        []string      `json:"risk_flags"`
	ToneDescriptors  []string      `json:"tone_descriptors"`
	TargetAudience   *string       `json:"target_audience"`
	AnalysisText     string        `json:"analysis_text"`
	RiskLevel        RiskLevel     `json:"risk_level"`
	AnalyzedAt       time.Time     `json:"analyzed_at"`
}

func (s *SentimentAnalysis) MarshalJSON() ([]byte, error) {
	return json.Marshal(sentimentJSON{
		OverallSentiment: s.overall,
		Confidence:       s.confidence.value,
		ImpactHorizon:    s.horizon,
		KeyDrivers:       nonNil(s.keyDrivers),
		RiskFlags:        nonNil(s.riskFlags),
		ToneDescriptors:  nonNil(s.toneDescriptors),
		TargetAudience:   s.targetAudience,
		AnalysisText:     s.text,
		RiskLevel:        s.RiskLevel(),
		AnalyzedAt:       s.analyzedAt,
	})
}

// DisclosureSentiment pairs a disclosure with its stored analysis.
type DisclosureSentiment struct {
	Disclosure Disclosure
	Sentiment  *SentimentAnalysis
}

func cloneStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
