package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"kapsentiment/internal/model"
)

const sentimentColumns = `s.overall_sentiment, s.confidence, s.impact_horizon, s.key_drivers, s.risk_flags,
	s.tone_descriptors, s.target_audience, s.analysis_text, s.analyzed_at`

type SentimentRepository struct {
	db *sql.DB
}

func NewSentimentRepository(db *sql.DB) *SentimentRepository {
	return &SentimentRepository{db: db}
}

// Save stores the analysis for a disclosure. An existing row for the same
// disclosure is overwritten and its analyzed_at refreshed.
func (r *SentimentRepository) Save(ctx context.Context, disclosureID int64, a *model.SentimentAnalysis) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var audience sql.NullString
	if v, ok := a.TargetAudience(); ok {
		audience = sql.NullString{String: v, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO disclosure_sentiment(disclosure_id, overall_sentiment, confidence, impact_horizon,
			key_drivers, risk_flags, tone_descriptors, target_audience, analysis_text, analyzed_at)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (disclosure_id) DO UPDATE SET
			overall_sentiment = EXCLUDED.overall_sentiment,
			confidence = EXCLUDED.confidence,
			impact_horizon = EXCLUDED.impact_horizon,
			key_drivers = EXCLUDED.key_drivers,
			risk_flags = EXCLUDED.risk_flags,
			tone_descriptors = EXCLUDED.tone_descriptors,
			target_audience = EXCLUDED.target_audience,
			analysis_text = EXCLUDED.analysis_text,
			analyzed_at = CURRENT_TIMESTAMP
	`, disclosureID, string(a.Overall()), a.Confidence().Value(), string(a.Horizon()),
		pq.Array(a.KeyDrivers()), pq.Array(a.RiskFlags()), pq.Array(a.ToneDescriptors()),
		audience, a.AnalysisText(), a.AnalyzedAt())
	if err != nil {
		return fmt.Errorf("upsert sentiment for disclosure %d: %w", disclosureID, err)
	}

	return tx.Commit()
}

func (r *SentimentRepository) FindByDisclosureID(ctx context.Context, disclosureID int64) (*model.SentimentAnalysis, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sentimentColumns+`
		FROM disclosure_sentiment s
		WHERE s.disclosure_id = $1
	`, disclosureID)

	var rec sentimentRecord
	err := row.Scan(rec.dest()...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec.analysis()
}

// Find joins disclosures with their analyses, newest disclosure first.
func (r *SentimentRepository) Find(ctx context.Context, f model.SentimentFilter) ([]model.DisclosureSentiment, error) {
	w := &where{}
	if f.CompanyCode != "" {
		w.add("d.company_code = ?", f.CompanyCode)
	}
	if f.Sentiment != "" {
		w.add("s.overall_sentiment = ?", string(f.Sentiment))
	}
	if f.From != nil {
		w.add("d.disclosure_date >= ?", *f.From)
	}
	if f.To != nil {
		w.add("d.disclosure_date <= ?", *f.To)
	}

	query := fmt.Sprintf(`
		SELECT %s, %s
		FROM disclosure_sentiment s
		JOIN disclosures d ON d.id = s.disclosure_id
		%s
		ORDER BY d.disclosure_date DESC NULLS LAST, d.id DESC
		LIMIT %s OFFSET %s
	`, disclosureColumns, sentimentColumns, w.String(), w.next(model.ClampLimit(f.Limit)), w.next(max(f.Offset, 0)))

	rows, err := r.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []model.DisclosureSentiment{}
	for rows.Next() {
		var rec sentimentRecord
		d, err := scanDisclosure(rows, rec.dest()...)
		if err != nil {
			return nil, err
		}
		a, err := rec.analysis()
		if err != nil {
			return nil, fmt.Errorf("disclosure %d: %w", d.ID, err)
		}
		results = append(results, model.DisclosureSentiment{Disclosure: *d, Sentiment: a})
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *SentimentRepository) CountBySentiment(ctx context.Context) (map[model.SentimentType]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT overall_sentiment, COUNT(*)
		FROM disclosure_sentiment
		GROUP BY overall_sentiment
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := emptyDistribution()
	for rows.Next() {
		var (
			sentiment string
			n         int
		)
		if err := rows.Scan(&sentiment, &n); err != nil {
			return nil, err
		}
		counts[model.SentimentType(sentiment)] = n
	}
	return counts, rows.Err()
}

func (r *SentimentRepository) Stats(ctx context.Context) (*model.SentimentStats, error) {
	var (
		stats  model.SentimentStats
		avg    sql.NullFloat64
		latest sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), AVG(confidence), MAX(analyzed_at)
		FROM disclosure_sentiment
	`).Scan(&stats.Total, &avg, &latest)
	if err != nil {
		return nil, err
	}

	stats.AverageConfidence = avg.Float64
	if latest.Valid {
		t := latest.Time
		stats.LatestAnalysis = &t
	}

	stats.Distribution, err = r.CountBySentiment(ctx)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// sentimentRecord is the flat row shape shared by both stores.
type sentimentRecord struct {
	Overall         string
	Confidence      float64
	Horizon         string
	KeyDrivers      []string
	RiskFlags       []string
	ToneDescriptors []string
	TargetAudience  sql.NullString
	AnalysisText    string
	AnalyzedAt      time.Time
}

func (r *sentimentRecord) dest() []any {
	return []any{&r.Overall, &r.Confidence, &r.Horizon, pq.Array(&r.KeyDrivers), pq.Array(&r.RiskFlags),
		pq.Array(&r.ToneDescriptors), &r.TargetAudience, &r.AnalysisText, &r.AnalyzedAt}
}

func (r *sentimentRecord) analysis() (*model.SentimentAnalysis, error) {
	overall, err := model.ParseSentimentType(r.Overall)
	if err != nil {
		return nil, err
	}
	horizon, err := model.ParseImpactHorizon(r.Horizon)
	if err != nil {
		return nil, err
	}
	confidence, err := model.NewConfidence(r.Confidence)
	if err != nil {
		return nil, err
	}

	var audience *string
	if r.TargetAudience.Valid {
		v := r.TargetAudience.String
		audience = &v
	}

	return model.NewSentimentAnalysis(model.SentimentParams{
		Overall:         overall,
		Confidence:      confidence,
		Horizon:         horizon,
		KeyDrivers:      r.KeyDrivers,
		RiskFlags:       r.RiskFlags,
		ToneDescriptors: r.ToneDescriptors,
		TargetAudience:  audience,
		AnalysisText:    r.AnalysisText,
		AnalyzedAt:      r.AnalyzedAt,
	})
}

func emptyDistribution() map[model.SentimentType]int {
	return map[model.SentimentType]int{
		model.SentimentPositive: 0,
		model.SentimentNeutral:  0,
		model.SentimentNegative: 0,
	}
}
