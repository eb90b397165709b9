package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"kapsentiment/internal/jobs"
	"kapsentiment/internal/model"
	"kapsentiment/internal/usecase"
)

// maxSyncBatch is the largest batch analyzed inside the request; larger
// batches must be submitted as jobs.
const maxSyncBatch = 20

type SentimentStore interface {
	Find(ctx context.Context, f model.SentimentFilter) ([]model.DisclosureSentiment, error)
	Stats(ctx context.Context) (*model.SentimentStats, error)
}

type CandidateFinder interface {
	FindCandidates(ctx context.Context, f model.CandidateFilter) ([]int64, error)
}

type BatchAnalyzer interface {
	ExecuteWithProgress(ctx context.Context, ids []int64, prompt string, progress usecase.ProgressFunc) (*usecase.Result, error)
}

// Notifier is told about finished background batches.
type Notifier interface {
	SentimentComplete(ctx context.Context, total, positive, neutral, negative int) bool
	Failure(ctx context.Context, scope, errMsg string) bool
}

type SentimentHandler struct {
	sentiments SentimentStore
	candidates CandidateFinder
	analyzer   BatchAnalyzer
	jobs       *jobs.Registry
	notifier   Notifier
}

func NewSentimentHandler(sentiments SentimentStore, candidates CandidateFinder, analyzer BatchAnalyzer, registry *jobs.Registry, notifier Notifier) *SentimentHandler {
	return &SentimentHandler{
		sentiments: sentiments,
		candidates: candidates,
		analyzer:   analyzer,
		jobs:       registry,
		notifier:   notifier,
	}
}

func (h *SentimentHandler) GetSentiments(c *gin.Context) {
	from, ok := getQueryDate("from", c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid from date"})
		return
	}
	to, ok := getQueryDate("to", c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid to date"})
		return
	}

	filter := model.SentimentFilter{
		CompanyCode: strings.ToUpper(c.Query("company_code")),
		From:        from,
		To:          to,
		Limit:       getQueryLimit(c),
		Offset:      getQueryOffset(c),
	}

	if raw := c.Query("sentiment"); raw != "" {
		sentiment, err := model.ParseSentimentType(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid sentiment"})
			return
		}
		filter.Sentiment = sentiment
	}

	items, err := h.sentiments.Find(c.Request.Context(), filter)
	if err != nil {
		slog.Error("error fetching sentiments", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	res := SentimentsResponse{
		Items:  make([]SentimentItemResponse, 0, len(items)),
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}
	for _, item := range items {
		res.Items = append(res.Items, toSentimentItemResponse(item))
	}

	c.JSON(http.StatusOK, res)
}

func (h *SentimentHandler) GetOverview(c *gin.Context) {
	stats, err := h.sentiments.Stats(c.Request.Context())
	if err != nil {
		slog.Error("error fetching sentiment stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// Analyze runs a batch inline, or as a background job when async is set or
// the batch is too large for one request.
func (h *SentimentHandler) Analyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if len(req.DisclosureIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "disclosure_ids is required"})
		return
	}

	if req.Async || len(req.DisclosureIDs) > maxSyncBatch {
		h.submit(c, model.JobTypeSentimentBatch, req.DisclosureIDs, req.CustomPrompt, map[string]any{
			"disclosure_ids": req.DisclosureIDs,
		})
		return
	}

	res, err := h.analyzer.ExecuteWithProgress(c.Request.Context(), req.DisclosureIDs, req.CustomPrompt, nil)
	if err != nil {
		slog.Error("sentiment analysis interrupted", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Analysis interrupted"})
		return
	}

	c.JSON(http.StatusOK, res)
}

// AnalyzeRecent queues a job over disclosures that still lack a sentiment.
func (h *SentimentHandler) AnalyzeRecent(c *gin.Context) {
	req := AnalyzeRecentRequest{Days: 7, Limit: model.MaxLimit}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
	}

	if req.Days < 1 || req.Days > 365 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "days must be between 1 and 365"})
		return
	}

	codes := make([]string, 0, len(req.CompanyCodes))
	for _, code := range req.CompanyCodes {
		if code = strings.ToUpper(strings.TrimSpace(code)); code != "" {
			codes = append(codes, code)
		}
	}

	filter := model.CandidateFilter{
		Days:           req.Days,
		CompanyCodes:   codes,
		ForceReanalyze: req.ForceReanalyze,
		Limit:          req.Limit,
	}

	ids, err := h.candidates.FindCandidates(c.Request.Context(), filter)
	if err != nil {
		slog.Error("error finding disclosures to analyze", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if len(ids) == 0 {
		c.JSON(http.StatusOK, gin.H{"message": "No disclosures to analyze", "total": 0})
		return
	}

	h.submit(c, model.JobTypeSentimentRecent, ids, req.CustomPrompt, map[string]any{
		"days":            req.Days,
		"company_codes":   codes,
		"force_reanalyze": req.ForceReanalyze,
		"count":           len(ids),
	})
}

func (h *SentimentHandler) submit(c *gin.Context, jobType string, ids []int64, prompt string, params map[string]any) {
	job, err := h.jobs.Submit(jobType, params, h.batchTask(ids, prompt))
	if err != nil {
		slog.Error("error starting job", "job_type", jobType, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not start job"})
		return
	}

	c.JSON(http.StatusAccepted, JobAcceptedResponse{
		JobID:   job.JobID,
		Status:  job.Status,
		Total:   len(ids),
		Message: "Sentiment analysis started",
	})
}

func (h *SentimentHandler) batchTask(ids []int64, prompt string) jobs.Task {
	return func(ctx context.Context, report func(done, total int)) (any, error) {
		report(0, len(ids))

		res, err := h.analyzer.ExecuteWithProgress(ctx, ids, prompt, usecase.ProgressFunc(report))
		if err != nil {
			if h.notifier != nil && !errors.Is(err, context.Canceled) {
				h.notifier.Failure(context.Background(), "sentiment analysis", err.Error())
			}
			return res, err
		}

		if h.notifier != nil {
			h.notifier.SentimentComplete(context.Background(),
				res.TotalAnalyzed,
				res.Counts[model.SentimentPositive],
				res.Counts[model.SentimentNeutral],
				res.Counts[model.SentimentNegative])
		}
		return res, nil
	}
}
