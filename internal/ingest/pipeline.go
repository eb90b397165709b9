// Package ingest turns raw connector output into persisted disclosures.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"kapsentiment/internal/model"
	"kapsentiment/pkg/extract"
	"kapsentiment/pkg/source"
)

// maxAttachmentChars bounds the attachment text kept on a disclosure.
const maxAttachmentChars = 20000

type DisclosureSaver interface {
	Save(ctx context.Context, d *model.Disclosure) (bool, error)
}

type TextFetcher interface {
	FetchText(ctx context.Context, url string) extract.Result
}

// Stats summarizes one connector run. IDs holds newly inserted disclosures.
type Stats struct {
	Source  string  `json:"source"`
	Fetched int     `json:"fetched"`
	Saved   int     `json:"saved"`
	Skipped int     `json:"skipped"`
	Errors  int     `json:"errors"`
	IDs     []int64 `json:"ids"`
}

type Pipeline struct {
	saver   DisclosureSaver
	fetcher TextFetcher
	logger  *slog.Logger
	now     func() time.Time
}

// NewPipeline builds a pipeline. fetcher may be nil, in which case
// attachments are not downloaded.
func NewPipeline(saver DisclosureSaver, fetcher TextFetcher, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		saver:   saver,
		fetcher: fetcher,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Run fetches up to limit items from c and saves each one. A failing item
// is counted and skipped; only a failing connector returns an error.
func (p *Pipeline) Run(ctx context.Context, c source.Connector, limit int) (Stats, error) {
	stats := Stats{Source: c.Name()}

	raw, err := c.Fetch(ctx, limit)
	stats.Fetched = len(raw)
	if err != nil && len(raw) == 0 {
		return stats, fmt.Errorf("fetch %s: %w", c.Name(), err)
	}
	if err != nil {
		p.logger.Warn("connector returned partial results", "source", stats.Source, "fetched", len(raw), "error", err)
	}

	for _, r := range raw {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}

		d, err := p.build(ctx, r)
		if err != nil {
			p.logger.Warn("invalid disclosure skipped", "source", stats.Source, "company_code", r.CompanyCode, "title", r.Title, "error", err)
			stats.Skipped++
			continue
		}

		inserted, err := p.saver.Save(ctx, d)
		if err != nil {
			p.logger.Error("error saving disclosure", "source", stats.Source, "company_code", d.CompanyCode, "error", err)
			stats.Errors++
			continue
		}

		if !inserted {
			p.logger.Info("duplicate disclosure updated", "source", stats.Source, "disclosure_id", d.ID)
			stats.Skipped++
			continue
		}

		stats.Saved++
		stats.IDs = append(stats.IDs, d.ID)
	}

	p.logger.Info("ingest complete",
		"source", stats.Source,
		"fetched", stats.Fetched,
		"saved", stats.Saved,
		"skipped", stats.Skipped,
		"errors", stats.Errors)

	return stats, nil
}

// RunAll runs every connector in turn. A connector failure is logged and
// recorded as a single error on that connector's stats.
func (p *Pipeline) RunAll(ctx context.Context, connectors []source.Connector, limit int) []Stats {
	all := make([]Stats, 0, len(connectors))
	for _, c := range connectors {
		stats, err := p.Run(ctx, c, limit)
		if err != nil {
			p.logger.Error("error running connector", "source", c.Name(), "error", err)
			stats.Errors++
		}
		all = append(all, stats)
		if ctx.Err() != nil {
			break
		}
	}
	return all
}

func (p *Pipeline) build(ctx context.Context, r source.RawDisclosure) (*model.Disclosure, error) {
	data := make(map[string]any, len(r.Data)+3)
	for k, v := range r.Data {
		data[k] = v
	}
	if r.Source != "" {
		data["source"] = r.Source
	}
	if r.ExternalID != "" {
		data["external_id"] = r.ExternalID
	}

	summary := r.Summary
	if r.AttachmentURL != "" {
		data["attachment_url"] = r.AttachmentURL
		if text := p.attachmentText(ctx, r.AttachmentURL); text != "" {
			data["attachment_text"] = text
			if summary == "" {
				summary = text
			}
		}
	}

	return model.NewDisclosure(model.DisclosureParams{
		CompanyCode:    strings.ToUpper(strings.TrimSpace(r.CompanyCode)),
		CompanyName:    r.CompanyName,
		DisclosureType: r.DisclosureType,
		DisclosureDate: r.PublishedAt,
		Title:          r.Title,
		Summary:        summary,
		Data:           data,
		CreatedAt:      p.now(),
	})
}

// attachmentText returns "" when the attachment could not be read.
func (p *Pipeline) attachmentText(ctx context.Context, url string) string {
	if p.fetcher == nil {
		return ""
	}
	res := p.fetcher.FetchText(ctx, url)
	if !res.OK() {
		p.logger.Warn("attachment skipped", "url", url, "attempts", res.Attempts, "error", res.Err)
		return ""
	}
	text := []rune(res.Text)
	if len(text) > maxAttachmentChars {
		text = text[:maxAttachmentChars]
	}
	return string(text)
}
