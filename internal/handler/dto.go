package handler

import (
	"kapsentiment/internal/model"
	"kapsentiment/internal/usecase"
)

type DisclosureResponse struct {
	ID               int64                    `json:"id"`
	CompanyCode      string                   `json:"company_code"`
	CompanyName      string                   `json:"company_name"`
	DisclosureType   string                   `json:"disclosure_type"`
	DisclosureDate   *string                  `json:"disclosure_date"`
	Title            string                   `json:"title"`
	Summary          string                   `json:"summary"`
	Data             map[string]any           `json:"data"`
	HasFinancialData bool                     `json:"has_financial_data"`
	CreatedAt        *string                  `json:"created_at"`
	Sentiment        *model.SentimentAnalysis `json:"sentiment,omitempty"`
}

type DisclosuresResponse struct {
	Disclosures []DisclosureResponse `json:"disclosures"`
	Total       int                  `json:"total"`
	Limit       int                  `json:"limit"`
	Offset      int                  `json:"offset"`
}

type SentimentItemResponse struct {
	DisclosureID   int64                    `json:"disclosure_id"`
	CompanyCode    string                   `json:"company_code"`
	CompanyName    string                   `json:"company_name"`
	DisclosureType string                   `json:"disclosure_type"`
	DisclosureDate *string                  `json:"disclosure_date"`
	Title          string                   `json:"title"`
	Sentiment      *model.SentimentAnalysis `json:"sentiment"`
}

type SentimentsResponse struct {
	Items  []SentimentItemResponse `json:"items"`
	Limit  int                     `json:"limit"`
	Offset int                     `json:"offset"`
}

type AnalyzeRequest struct {
	DisclosureIDs []int64 `json:"disclosure_ids"`
	CustomPrompt  string  `json:"custom_prompt"`
	Async         bool    `json:"async"`
}

type AnalyzeRecentRequest struct {
	Days           int      `json:"days"`
	CompanyCodes   []string `json:"company_codes"`
	ForceReanalyze bool     `json:"force_reanalyze"`
	Limit          int      `json:"limit"`
	CustomPrompt   string   `json:"custom_prompt"`
}

type AnalyzeResponse = usecase.Result

type JobAcceptedResponse struct {
	JobID   string          `json:"job_id"`
	Status  model.JobStatus `json:"status"`
	Total   int             `json:"total"`
	Message string          `json:"message"`
}

type JobsResponse struct {
	Jobs  []model.BatchJob `json:"jobs"`
	Total int              `json:"total"`
}

func toDisclosureResponse(d model.Disclosure) DisclosureResponse {
	data := d.Data
	if data == nil {
		data = map[string]any{}
	}
	return DisclosureResponse{
		ID:               d.ID,
		CompanyCode:      d.CompanyCode,
		CompanyName:      d.CompanyName,
		DisclosureType:   d.DisclosureType,
		DisclosureDate:   formatTime(d.DisclosureDate),
		Title:            d.Title,
		Summary:          d.Summary,
		Data:             data,
		HasFinancialData: d.HasFinancialData(),
		CreatedAt:        formatTime(d.CreatedAt),
	}
}

func toSentimentItemResponse(ds model.DisclosureSentiment) SentimentItemResponse {
	return SentimentItemResponse{
		DisclosureID:   ds.Disclosure.ID,
		CompanyCode:    ds.Disclosure.CompanyCode,
		CompanyName:    ds.Disclosure.CompanyName,
		DisclosureType: ds.Disclosure.DisclosureType,
		DisclosureDate: formatTime(ds.Disclosure.DisclosureDate),
		Title:          ds.Disclosure.Title,
		Sentiment:      ds.Sentiment,
	}
}
