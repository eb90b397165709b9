package handler

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"kapsentiment/internal/model"
)

func getQueryInt(name string, defaultValue int, c *gin.Context) int {
	paramLimit := c.Query(name)

	if paramLimit == "" {
		return defaultValue
	}

	parsedValue, err := strconv.Atoi(paramLimit)
	if err != nil {
		slog.Warn("invalid query parameter, using default", "param", name, "value", paramLimit, "error", err)
		return defaultValue
	}

	return parsedValue
}

func getQueryLimit(c *gin.Context) int {
	limit := getQueryInt("limit", model.DefaultLimit, c)
	if limit < 1 {
		slog.Warn("invalid query parameter, using default", "param", "limit", "value", limit, "default", model.DefaultLimit)
		return model.DefaultLimit
	}

	if limit > model.MaxLimit {
		slog.Warn("query parameter exceeds max, clamping", "param", "limit", "value", limit, "max", model.MaxLimit)
		return model.MaxLimit
	}

	return limit
}

func getQueryOffset(c *gin.Context) int {
	offset := getQueryInt("offset", 0, c)
	if offset < 0 {
		slog.Warn("invalid query parameter, using default", "param", "offset", "value", offset, "default", 0)
		return 0
	}
	return offset
}

// getQueryDate accepts YYYY-MM-DD or RFC3339. A malformed value is reported
// as ok=false so the caller can answer 400.
func getQueryDate(name string, c *gin.Context) (t *time.Time, ok bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}

	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return &parsed, true
		}
	}

	slog.Warn("invalid date query parameter", "param", name, "value", raw)
	return nil, false
}

func formatTime(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
