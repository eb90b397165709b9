package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const MaxCompanyCodeLength = 10

var ErrInvalidCompanyCode = errors.New("invalid company code")

var financialKeywords = []string{"revenue", "gelir", "profit", "kar", "ebitda", "net"}

// Disclosure is a single regulatory filing published by a listed company.
// ID is zero until the disclosure has been persisted.
type Disclosure struct {
	ID             int64
	CompanyCode    string
	CompanyName    string
	DisclosureType string
	DisclosureDate time.Time
	Title          string
	Summary        string
	Data           map[string]any
	CreatedAt      time.Time
}

type DisclosureParams struct {
	ID             int64
	CompanyCode    string
	CompanyName    string
	DisclosureType string
	DisclosureDate time.Time
	Title          string
	Summary        string
	Data           map[string]any
	CreatedAt      time.Time
}

// NewDisclosure validates the company code and builds a Disclosure.
func NewDisclosure(p DisclosureParams) (*Disclosure, error) {
	if err := ValidateCompanyCode(p.CompanyCode); err != nil {
		return nil, err
	}

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	return &Disclosure{
		ID:             p.ID,
		CompanyCode:    p.CompanyCode,
		CompanyName:    p.CompanyName,
		DisclosureType: p.DisclosureType,
		DisclosureDate: p.DisclosureDate,
		Title:          p.Title,
		Summary:        p.Summary,
		Data:           p.Data,
		CreatedAt:      createdAt,
	}, nil
}

func ValidateCompanyCode(code string) error {
	if code == "" {
		return fmt.Errorf("%w: company code is required", ErrInvalidCompanyCode)
	}
	if utf8.RuneCountInString(code) > MaxCompanyCodeLength {
		return fmt.Errorf("%w: %q exceeds %d characters", ErrInvalidCompanyCode, code, MaxCompanyCodeLength)
	}
	return nil
}

// Content joins title, summary and payload into the text sent for analysis.
func (d *Disclosure) Content() string {
	var parts []string
	if d.Title != "" {
		parts = append(parts, "Başlık: "+d.Title)
	}
	if d.Summary != "" {
		parts = append(parts, "Özet: "+d.Summary)
	}
	if len(d.Data) > 0 {
		if raw, err := json.Marshal(d.Data); err == nil {
			parts = append(parts, "Veri: "+string(raw))
		}
	}
	return strings.Join(parts, "\n")
}

// IsRecent reports whether the disclosure date falls within the last days days of now.
// A disclosure without a date is never recent.
func (d *Disclosure) IsRecent(days int, now time.Time) bool {
	if d.DisclosureDate.IsZero() {
		return false
	}
	y, m, dd := now.AddDate(0, 0, -days).Date()
	cutoff := time.Date(y, m, dd, 0, 0, 0, 0, now.Location())
	return !d.DisclosureDate.Before(cutoff)
}

func (d *Disclosure) HasFinancialData() bool {
	if len(d.Data) == 0 {
		return false
	}
	raw, err := json.Marshal(d.Data)
	if err != nil {
		return false
	}
	lower := strings.ToLower(string(raw))
	for _, keyword := range financialKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}
