package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"kapsentiment/pkg/retry"
)

// FeedConnector reads a JSON disclosure export over HTTP. The endpoint is
// expected to answer GET ?limit=N with {"disclosures": [...]}.
type FeedConnector struct {
	name       string
	endpoint   string
	apiKey     string
	httpClient *http.Client
	retry      retry.Config
	logger     *slog.Logger
}

type FeedOption func(*FeedConnector)

func WithFeedName(name string) FeedOption {
	return func(c *FeedConnector) { c.name = name }
}

func WithFeedHTTPClient(client *http.Client) FeedOption {
	return func(c *FeedConnector) { c.httpClient = client }
}

func WithFeedRetry(cfg retry.Config) FeedOption {
	return func(c *FeedConnector) { c.retry = cfg }
}

func NewFeedConnector(endpoint, apiKey string, opts ...FeedOption) *FeedConnector {
	c := &FeedConnector{
		name:       "KAP",
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retry:      retry.DefaultConfig(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *FeedConnector) Name() string {
	return c.name
}

func (c *FeedConnector) Fetch(ctx context.Context, limit int) ([]RawDisclosure, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("feed url: %w", err))
	}
	q := u.Query()
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	var raw feedResponse
	_, err = retry.Do(ctx, c.retry, c.logger.With("source", c.name), func(ctx context.Context) error {
		return c.get(ctx, u.String(), &raw)
	})
	if err != nil {
		return nil, fmt.Errorf("%s fetch: %w", strings.ToLower(c.name), err)
	}

	disclosures := make([]RawDisclosure, 0, len(raw.Disclosures))
	for _, item := range raw.Disclosures {
		disclosures = append(disclosures, RawDisclosure{
			Source:         c.name,
			ExternalID:     externalID(item.ID),
			CompanyCode:    strings.ToUpper(strings.TrimSpace(item.CompanyCode)),
			CompanyName:    strings.TrimSpace(item.CompanyName),
			DisclosureType: item.DisclosureType,
			PublishedAt:    ParseDate(item.PublishDate),
			Title:          strings.TrimSpace(item.Title),
			Summary:        strings.TrimSpace(item.Summary),
			AttachmentURL:  item.AttachmentURL,
			Data:           item.Data,
		})
		if limit > 0 && len(disclosures) == limit {
			break
		}
	}

	return disclosures, nil
}

func (c *FeedConnector) get(ctx context.Context, target string, out *feedResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status %d", resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return err
		}
		return retry.Permanent(err)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return retry.Permanent(fmt.Errorf("decode: %w", err))
	}
	return nil
}

type feedResponse struct {
	Disclosures []feedItem `json:"disclosures"`
}

type feedItem struct {
	ID             any            `json:"id"`
	CompanyCode    string         `json:"company_code"`
	CompanyName    string         `json:"company_name"`
	DisclosureType string         `json:"disclosure_type"`
	PublishDate    string         `json:"publish_date"`
	Title          string         `json:"title"`
	Summary        string         `json:"summary"`
	AttachmentURL  string         `json:"attachment_url"`
	Data           map[string]any `json:"data"`
}

// externalID renders numeric and string ids alike.
func externalID(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return fmt.Sprint(id)
	}
}
