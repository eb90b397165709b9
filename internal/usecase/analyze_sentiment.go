// Package usecase coordinates disclosure lookup, sentiment analysis and
// persistence for batches of disclosures.
package usecase

import (
	"context"
	"log/slog"
	"strings"

	"kapsentiment/internal/model"
)

type DisclosureFinder interface {
	FindByID(ctx context.Context, id int64) (*model.Disclosure, error)
}

type SentimentSaver interface {
	Save(ctx context.Context, disclosureID int64, analysis *model.SentimentAnalysis) error
}

// Analyzer returns nil without error when the model output was unusable.
type Analyzer interface {
	Analyze(ctx context.Context, content, prompt string) (*model.SentimentAnalysis, error)
}

// ProgressFunc is called after every processed item.
type ProgressFunc func(done, total int)

type ItemResult struct {
	DisclosureID int64                    `json:"disclosure_id"`
	CompanyCode  string                   `json:"company_code"`
	Title        string                   `json:"title"`
	Sentiment    *model.SentimentAnalysis `json:"sentiment"`
}

type Result struct {
	TotalAnalyzed int                         `json:"total_analyzed"`
	Successful    int                         `json:"successful"`
	Failed        int                         `json:"failed"`
	Results       []ItemResult                `json:"results"`
	FailedIDs     []int64                     `json:"failed_ids"`
	Counts        map[model.SentimentType]int `json:"sentiment_counts"`
}

type AnalyzeSentiment struct {
	disclosures DisclosureFinder
	sentiments  SentimentSaver
	analyzer    Analyzer
	logger      *slog.Logger
}

func NewAnalyzeSentiment(disclosures DisclosureFinder, sentiments SentimentSaver, analyzer Analyzer, logger *slog.Logger) *AnalyzeSentiment {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalyzeSentiment{
		disclosures: disclosures,
		sentiments:  sentiments,
		analyzer:    analyzer,
		logger:      logger,
	}
}

func (uc *AnalyzeSentiment) Execute(ctx context.Context, ids []int64, prompt string) (*Result, error) {
	return uc.ExecuteWithProgress(ctx, ids, prompt, nil)
}

// ExecuteWithProgress analyzes ids one at a time. A failing item is counted
// and logged; it never stops the batch. The context is checked between items:
// when it ends, the partial result is returned with ctx.Err() and
// TotalAnalyzed covers only the items that were attempted.
func (uc *AnalyzeSentiment) ExecuteWithProgress(ctx context.Context, ids []int64, prompt string, progress ProgressFunc) (*Result, error) {
	res := &Result{
		TotalAnalyzed: len(ids),
		Results:       []ItemResult{},
		FailedIDs:     []int64{},
		Counts: map[model.SentimentType]int{
			model.SentimentPositive: 0,
			model.SentimentNeutral:  0,
			model.SentimentNegative: 0,
		},
	}

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			res.TotalAnalyzed = i
			uc.logger.Warn("sentiment batch interrupted", "processed", i, "total", len(ids), "error", err)
			return res, err
		}

		item, ok := uc.analyzeOne(ctx, id, prompt)
		if ok {
			res.Successful++
			res.Results = append(res.Results, item)
			res.Counts[item.Sentiment.Overall()]++
		} else {
			res.Failed++
			res.FailedIDs = append(res.FailedIDs, id)
		}

		if progress != nil {
			progress(i+1, len(ids))
		}
	}

	uc.logger.Info("sentiment batch finished",
		"total", res.TotalAnalyzed,
		"successful", res.Successful,
		"failed", res.Failed)

	return res, nil
}

func (uc *AnalyzeSentiment) analyzeOne(ctx context.Context, id int64, prompt string) (item ItemResult, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			uc.logger.Error("panic while analyzing disclosure", "disclosure_id", id, "panic", r)
			ok = false
		}
	}()

	disclosure, err := uc.disclosures.FindByID(ctx, id)
	if err != nil {
		uc.logger.Error("failed to load disclosure", "disclosure_id", id, "error", err)
		return ItemResult{}, false
	}
	if disclosure == nil {
		uc.logger.Warn("disclosure not found", "disclosure_id", id)
		return ItemResult{}, false
	}

	content := disclosure.Content()
	if strings.TrimSpace(content) == "" {
		uc.logger.Warn("disclosure has no content", "disclosure_id", id)
		return ItemResult{}, false
	}

	analysis, err := uc.analyzer.Analyze(ctx, content, prompt)
	if err != nil {
		uc.logger.Error("sentiment analysis failed", "disclosure_id", id, "error", err)
		return ItemResult{}, false
	}
	if analysis == nil {
		uc.logger.Warn("no usable sentiment for disclosure", "disclosure_id", id)
		return ItemResult{}, false
	}

	if err := uc.sentiments.Save(ctx, id, analysis); err != nil {
		uc.logger.Error("failed to save sentiment", "disclosure_id", id, "error", err)
		return ItemResult{}, false
	}

	return ItemResult{
		DisclosureID: id,
		CompanyCode:  disclosure.CompanyCode,
		Title:        disclosure.Title,
		Sentiment:    analysis,
	}, true
}
