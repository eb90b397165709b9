package extract

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"kapsentiment/pkg/retry"
)

const (
	defaultUserAgent = "Mozilla/5.0 (compatible; KAPSentiment/1.0)"
	maxDocumentSize  = 50 * 1024 * 1024
)

// Document is a fetched resource before extraction.
type Document struct {
	URL         string
	ContentType string
	Body        []byte
}

// Result reports the outcome of a fetch-and-extract. A failed result carries
// Err instead of being returned as an error so callers can skip the item.
type Result struct {
	URL         string
	Text        string
	ContentType string
	Attempts    int
	Err         error
}

func (r Result) OK() bool { return r.Err == nil }

type Fetcher struct {
	httpClient *http.Client
	registry   *Registry
	retry      retry.Config
	userAgent  string
	logger     *slog.Logger
}

type Option func(*Fetcher)

func WithHTTPClient(hc *http.Client) Option {
	return func(f *Fetcher) { f.httpClient = hc }
}

func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) { f.logger = logger }
}

func NewFetcher(registry *Registry, cfg retry.Config, timeout time.Duration, opts ...Option) *Fetcher {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	f := &Fetcher{
		httpClient: &http.Client{Timeout: timeout},
		registry:   registry,
		retry:      cfg,
		userAgent:  defaultUserAgent,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads url, retrying transient failures with backoff.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Document, int, error) {
	var doc *Document
	attempts, err := retry.Do(ctx, f.retry, f.logger, func(ctx context.Context) error {
		d, err := f.fetchOnce(ctx, url)
		if err != nil {
			return err
		}
		doc = d
		return nil
	})
	if err != nil {
		return nil, attempts, fmt.Errorf("fetch %s: %w", url, err)
	}
	return doc, attempts, nil
}

// FetchText downloads url and extracts its text using the strategy keyed by
// the response content type, falling back to the URL extension.
func (f *Fetcher) FetchText(ctx context.Context, url string) Result {
	res := Result{URL: url}

	doc, attempts, err := f.Fetch(ctx, url)
	res.Attempts = attempts
	if err != nil {
		f.logger.Error("document fetch failed", "url", url, "attempts", attempts, "error", err)
		res.Err = err
		return res
	}

	contentType := doc.ContentType
	if _, ok := f.registry.For(contentType); !ok {
		if ext := strings.TrimPrefix(path.Ext(urlPath(url)), "."); ext != "" {
			f.logger.Warn("unexpected content type, using url extension", "url", url, "content_type", contentType, "extension", ext)
			contentType = ext
		}
	}
	res.ContentType = contentType

	text, err := f.registry.Extract(contentType, doc.Body)
	if err != nil {
		f.logger.Error("text extraction failed", "url", url, "content_type", contentType, "error", err)
		res.Err = err
		return res
	}

	res.Text = text
	return res
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &Document{
		URL:         url,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// classifyStatus treats rate limiting and server errors as transient.
func classifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests, status >= 500:
		return fmt.Errorf("http status %d", status)
	default:
		return retry.Permanent(fmt.Errorf("http status %d", status))
	}
}

func urlPath(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	return raw
}
