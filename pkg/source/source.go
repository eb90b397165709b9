// Package source fetches raw disclosures from upstream publishers.
package source

import (
	"context"
	"strings"
	"time"
)

// RawDisclosure is an unvalidated disclosure as published upstream.
type RawDisclosure struct {
	Source         string
	ExternalID     string
	CompanyCode    string
	CompanyName    string
	DisclosureType string
	PublishedAt    time.Time
	Title          string
	Summary        string
	AttachmentURL  string
	Data           map[string]any
}

type Connector interface {
	Fetch(ctx context.Context, limit int) ([]RawDisclosure, error)
	Name() string
}

var istanbul = loadIstanbul()

func loadIstanbul() *time.Location {
	loc, err := time.LoadLocation("Europe/Istanbul")
	if err != nil {
		return time.FixedZone("TRT", 3*60*60)
	}
	return loc
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"02.01.2006 15:04:05",
	"02.01.2006 15:04",
	"02.01.2006",
	"02/01/2006",
	"2006-01-02",
	"02 01 2006",
}

// ParseDate accepts the date formats seen in KAP exports. Values without a
// zone are read as Istanbul time. The zero time is returned when nothing matches.
func ParseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, istanbul); err == nil {
			return t
		}
	}
	return time.Time{}
}
