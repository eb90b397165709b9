package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"kapsentiment/internal/model"
)

type DisclosureStore interface {
	Find(ctx context.Context, f model.DisclosureFilter) ([]model.Disclosure, error)
	Count(ctx context.Context, f model.DisclosureFilter) (int, error)
	FindByID(ctx context.Context, id int64) (*model.Disclosure, error)
}

type SentimentLookup interface {
	FindByDisclosureID(ctx context.Context, disclosureID int64) (*model.SentimentAnalysis, error)
}

type DisclosureHandler struct {
	disclosures DisclosureStore
	sentiments  SentimentLookup
}

func NewDisclosureHandler(disclosures DisclosureStore, sentiments SentimentLookup) *DisclosureHandler {
	return &DisclosureHandler{disclosures: disclosures, sentiments: sentiments}
}

func (h *DisclosureHandler) GetDisclosures(c *gin.Context) {
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

	filter := model.DisclosureFilter{
		CompanyCode: strings.ToUpper(c.Query("company_code")),
		From:        from,
		To:          to,
		Limit:       getQueryLimit(c),
		Offset:      getQueryOffset(c),
	}

	disclosures, err := h.disclosures.Find(c.Request.Context(), filter)
	if err != nil {
		slog.Error("error fetching disclosures", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	total, err := h.disclosures.Count(c.Request.Context(), filter)
	if err != nil {
		slog.Error("error counting disclosures", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	res := DisclosuresResponse{
		Disclosures: make([]DisclosureResponse, 0, len(disclosures)),
		Total:       total,
		Limit:       filter.Limit,
		Offset:      filter.Offset,
	}
	for _, d := range disclosures {
		res.Disclosures = append(res.Disclosures, toDisclosureResponse(d))
	}

	c.JSON(http.StatusOK, res)
}

func (h *DisclosureHandler) GetDisclosure(c *gin.Context) {
	id := c.Param("id")

	disclosureID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		slog.Error("invalid disclosure id", "id", id, "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid disclosure id"})
		return
	}

	disclosure, err := h.disclosures.FindByID(c.Request.Context(), disclosureID)
	if err != nil {
		slog.Error("error fetching disclosure", "error", err, "disclosure_id", disclosureID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if disclosure == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Disclosure not found"})
		return
	}

	sentiment, err := h.sentiments.FindByDisclosureID(c.Request.Context(), disclosureID)
	if err != nil {
		slog.Error("error fetching sentiment", "error", err, "disclosure_id", disclosureID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	res := toDisclosureResponse(*disclosure)
	res.Sentiment = sentiment

	c.JSON(http.StatusOK, res)
}

func (h *DisclosureHandler) GetHealth(c *gin.Context) {
	_, err := h.disclosures.Count(c.Request.Context(), model.DisclosureFilter{})
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": "disconnected",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"database": "connected",
	})
}
