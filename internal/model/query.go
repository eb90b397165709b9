package model

import "time"

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// DisclosureFilter narrows disclosure listings. Zero values mean "any".
type DisclosureFilter struct {
	CompanyCode string
	From        *time.Time
	To          *time.Time
	Limit       int
	Offset      int
}

type SentimentFilter struct {
	CompanyCode string
	Sentiment   SentimentType
	From        *time.Time
	To          *time.Time
	Limit       int
	Offset      int
}

// CandidateFilter selects disclosures to feed into a sentiment batch.
type CandidateFilter struct {
	Days           int
	CompanyCodes   []string
	ForceReanalyze bool
	Limit          int
}

type SentimentStats struct {
	Total             int                   `json:"total_analyses"`
	AverageConfidence float64               `json:"average_confidence"`
	Distribution      map[SentimentType]int `json:"sentiment_distribution"`
	LatestAnalysis    *time.Time            `json:"latest_analysis"`
}

// ClampLimit bounds a page size to [1, MaxLimit], defaulting to DefaultLimit.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
