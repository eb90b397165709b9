package source

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	finnhub "github.com/Finnhub-Stock-API/finnhub-go/v2"
)

const finnhubLookback = 7 * 24 * time.Hour

// FinnhubConnector turns company news for a fixed set of symbols into
// disclosures. Each symbol is queried for the last week.
type FinnhubConnector struct {
	client  *finnhub.DefaultApiService
	symbols []string
	now     func() time.Time
}

type FinnhubOption func(*finnhub.Configuration)

func WithFinnhubHTTPClient(client *http.Client) FinnhubOption {
	return func(cfg *finnhub.Configuration) { cfg.HTTPClient = client }
}

func NewFinnhubConnector(apiKey string, symbols []string, opts ...FinnhubOption) *FinnhubConnector {
	cfg := finnhub.NewConfiguration()
	cfg.AddDefaultHeader("X-Finnhub-Token", apiKey)
	for _, opt := range opts {
		opt(cfg)
	}
	client := finnhub.NewAPIClient(cfg).DefaultApi
	return &FinnhubConnector{
		client:  client,
		symbols: symbols,
		now:     time.Now,
	}
}

func (c *FinnhubConnector) Name() string {
	return "Finnhub"
}

func (c *FinnhubConnector) Fetch(ctx context.Context, limit int) ([]RawDisclosure, error) {
	to := c.now().UTC()
	from := to.Add(-finnhubLookback)

	var disclosures []RawDisclosure
	for _, symbol := range c.symbols {
		res, _, err := c.client.CompanyNews(ctx).
			Symbol(symbol).
			From(from.Format("2006-01-02")).
			To(to.Format("2006-01-02")).
			Execute()
		if err != nil {
			return disclosures, fmt.Errorf("finnhub company news %s: %w", symbol, err)
		}

		for _, news := range res {
			d := RawDisclosure{
				Source:         c.Name(),
				CompanyCode:    companyCode(symbol),
				CompanyName:    companyCode(symbol),
				DisclosureType: "news",
				Data:           map[string]any{},
			}

			if news.Id != nil {
				d.ExternalID = strconv.FormatInt(*news.Id, 10)
			}

			if news.Headline != nil {
				d.Title = *news.Headline
			}

			if news.Summary != nil {
				d.Summary = *news.Summary
			}

			if news.Url != nil {
				d.Data["url"] = *news.Url
			}

			if news.Datetime != nil {
				d.PublishedAt = time.Unix(*news.Datetime, 0).UTC()
			}

			if news.Source != nil {
				d.Data["publisher"] = *news.Source
			}

			disclosures = append(disclosures, d)
			if limit > 0 && len(disclosures) == limit {
				return disclosures, nil
			}
		}
	}

	return disclosures, nil
}

// companyCode strips an exchange suffix such as ".IS".
func companyCode(symbol string) string {
	code, _, _ := strings.Cut(strings.ToUpper(symbol), ".")
	return code
}
