package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"kapsentiment/internal/model"
)

type disclosureRow struct {
	ID             int64      `gorm:"primaryKey"`
	CompanyCode    string     `gorm:"size:10;not null;uniqueIndex:idx_disclosure_identity,priority:1"`
	CompanyName    string     `gorm:"not null;default:''"`
	DisclosureType string     `gorm:"not null;default:''"`
	DisclosureDate *time.Time `gorm:"index;uniqueIndex:idx_disclosure_identity,priority:2"`
	Title          string     `gorm:"not null;default:'';uniqueIndex:idx_disclosure_identity,priority:3"`
	Summary        string     `gorm:"not null;default:''"`
	Data           datatypes.JSONMap
	CreatedAt      time.Time
}

func (disclosureRow) TableName() string { return "disclosures" }

type sentimentRow struct {
	ID               int64                       `gorm:"primaryKey"`
	DisclosureID     int64                       `gorm:"not null;uniqueIndex"`
	Disclosure       *disclosureRow              `gorm:"constraint:OnDelete:CASCADE"`
	OverallSentiment string                      `gorm:"size:10;not null;index"`
	Confidence       float64                     `gorm:"not null;check:chk_sentiment_confidence,confidence >= 0 AND confidence <= 1"`
	ImpactHorizon    string                      `gorm:"size:20;not null"`
	KeyDrivers       datatypes.JSONSlice[string] `gorm:"not null"`
	RiskFlags        datatypes.JSONSlice[string] `gorm:"not null"`
	ToneDescriptors  datatypes.JSONSlice[string] `gorm:"not null"`
	TargetAudience   *string
	AnalysisText     string    `gorm:"not null"`
	AnalyzedAt       time.Time `gorm:"not null"`
}

func (sentimentRow) TableName() string { return "disclosure_sentiment" }

// GormStore is the embedded alternative to the Postgres repositories. Its two
// halves satisfy the same contracts as DisclosureRepository and
// SentimentRepository.
type GormStore struct {
	Disclosures *GormDisclosureRepository
	Sentiments  *GormSentimentRepository
}

// NewGormStore migrates the schema and returns the store.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&disclosureRow{}, &sentimentRow{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	now := func() time.Time { return time.Now().UTC() }
	return &GormStore{
		Disclosures: &GormDisclosureRepository{db: db},
		Sentiments:  &GormSentimentRepository{db: db, now: now},
	}, nil
}

type GormDisclosureRepository struct {
	db *gorm.DB
}

func (r *GormDisclosureRepository) Save(ctx context.Context, d *model.Disclosure) (bool, error) {
	var inserted bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		inserted, err = saveDisclosureRow(tx, d)
		return err
	})
	return inserted, err
}

func (r *GormDisclosureRepository) SaveMany(ctx context.Context, ds []*model.Disclosure) (int, error) {
	inserted := 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, d := range ds {
			created, err := saveDisclosureRow(tx, d)
			if err != nil {
				return fmt.Errorf("save disclosure %s %q: %w", d.CompanyCode, d.Title, err)
			}
			if created {
				inserted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func saveDisclosureRow(tx *gorm.DB, d *model.Disclosure) (bool, error) {
	if err := model.ValidateCompanyCode(d.CompanyCode); err != nil {
		return false, err
	}
	row := toDisclosureRow(d)

	if d.ID != 0 {
		res := tx.Model(&disclosureRow{}).Where("id = ?", d.ID).Updates(mutableDisclosureFields(row, true))
		if res.Error != nil {
			return false, res.Error
		}
		if res.RowsAffected == 0 {
			return false, fmt.Errorf("disclosure %d does not exist", d.ID)
		}
		return false, nil
	}

	// NULL dates never match, as with the Postgres unique constraint.
	if row.DisclosureDate != nil {
		var existing disclosureRow
		err := tx.Where("company_code = ? AND disclosure_date = ? AND title = ?",
			row.CompanyCode, *row.DisclosureDate, row.Title).Take(&existing).Error
		switch {
		case err == nil:
			if err := tx.Model(&existing).Updates(mutableDisclosureFields(row, false)).Error; err != nil {
				return false, err
			}
			d.ID = existing.ID
			return false, nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return false, err
		}
	}

	if err := tx.Create(&row).Error; err != nil {
		return false, err
	}
	d.ID = row.ID
	return true, nil
}

func mutableDisclosureFields(row disclosureRow, identity bool) map[string]any {
	fields := map[string]any{
		"company_name":    row.CompanyName,
		"disclosure_type": row.DisclosureType,
		"summary":         row.Summary,
		"data":            row.Data,
	}
	if identity {
		fields["company_code"] = row.CompanyCode
		fields["disclosure_date"] = row.DisclosureDate
		fields["title"] = row.Title
	}
	return fields
}

func (r *GormDisclosureRepository) FindByID(ctx context.Context, id int64) (*model.Disclosure, error) {
	var row disclosureRow
	err := r.db.WithContext(ctx).Take(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	d := row.toModel()
	return &d, nil
}

func (r *GormDisclosureRepository) FindByCompanyCode(ctx context.Context, code string, limit int) ([]model.Disclosure, error) {
	return r.Find(ctx, model.DisclosureFilter{CompanyCode: code, Limit: limit})
}

func (r *GormDisclosureRepository) FindRecent(ctx context.Context, days, limit int) ([]model.Disclosure, error) {
	from := recentCutoff(days, time.Now().UTC())
	return r.Find(ctx, model.DisclosureFilter{From: &from, Limit: limit})
}

func (r *GormDisclosureRepository) Find(ctx context.Context, f model.DisclosureFilter) ([]model.Disclosure, error) {
	var rows []disclosureRow
	err := disclosureScope(r.db.WithContext(ctx).Model(&disclosureRow{}), f).
		Order("disclosure_date DESC").Order("id DESC").
		Limit(model.ClampLimit(f.Limit)).Offset(max(f.Offset, 0)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	disclosures := make([]model.Disclosure, 0, len(rows))
	for _, row := range rows {
		disclosures = append(disclosures, row.toModel())
	}
	return disclosures, nil
}

func (r *GormDisclosureRepository) Count(ctx context.Context, f model.DisclosureFilter) (int, error) {
	var total int64
	err := disclosureScope(r.db.WithContext(ctx).Model(&disclosureRow{}), f).Count(&total).Error
	return int(total), err
}

func (r *GormDisclosureRepository) FindCandidates(ctx context.Context, f model.CandidateFilter) ([]int64, error) {
	q := r.db.WithContext(ctx).Table("disclosures AS d").
		Joins("LEFT JOIN disclosure_sentiment s ON s.disclosure_id = d.id")
	if f.Days > 0 {
		q = q.Where("d.disclosure_date >= ?", recentCutoff(f.Days, time.Now().UTC()))
	}
	if len(f.CompanyCodes) > 0 {
		q = q.Where("d.company_code IN ?", f.CompanyCodes)
	}
	if !f.ForceReanalyze {
		q = q.Where("s.id IS NULL")
	}

	ids := []int64{}
	err := q.Order("d.disclosure_date DESC").Order("d.id DESC").
		Limit(model.ClampLimit(f.Limit)).
		Pluck("d.id", &ids).Error
	return ids, err
}

func disclosureScope(q *gorm.DB, f model.DisclosureFilter) *gorm.DB {
	if f.CompanyCode != "" {
		q = q.Where("company_code = ?", f.CompanyCode)
	}
	if f.From != nil {
		q = q.Where("disclosure_date >= ?", f.From.UTC())
	}
	if f.To != nil {
		q = q.Where("disclosure_date <= ?", f.To.UTC())
	}
	return q
}

type GormSentimentRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// Save upserts on disclosure_id, overwriting every mutable column and
// refreshing analyzed_at.
func (r *GormSentimentRepository) Save(ctx context.Context, disclosureID int64, a *model.SentimentAnalysis) error {
	row := toSentimentRow(disclosureID, a)

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "disclosure_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"overall_sentiment": row.OverallSentiment,
			"confidence":        row.Confidence,
			"impact_horizon":    row.ImpactHorizon,
			"key_drivers":       row.KeyDrivers,
			"risk_flags":        row.RiskFlags,
			"tone_descriptors":  row.ToneDescriptors,
			"target_audience":   row.TargetAudience,
			"analysis_text":     row.AnalysisText,
			"analyzed_at":       r.now(),
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert sentiment for disclosure %d: %w", disclosureID, err)
	}
	return nil
}

func (r *GormSentimentRepository) FindByDisclosureID(ctx context.Context, disclosureID int64) (*model.SentimentAnalysis, error) {
	var row sentimentRow
	err := r.db.WithContext(ctx).Where("disclosure_id = ?", disclosureID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.toModel()
}

func (r *GormSentimentRepository) Find(ctx context.Context, f model.SentimentFilter) ([]model.DisclosureSentiment, error) {
	q := r.db.WithContext(ctx).Model(&sentimentRow{}).
		Select("disclosure_sentiment.*").
		Joins("JOIN disclosures ON disclosures.id = disclosure_sentiment.disclosure_id").
		Preload("Disclosure")
	if f.CompanyCode != "" {
		q = q.Where("disclosures.company_code = ?", f.CompanyCode)
	}
	if f.Sentiment != "" {
		q = q.Where("disclosure_sentiment.overall_sentiment = ?", string(f.Sentiment))
	}
	if f.From != nil {
		q = q.Where("disclosures.disclosure_date >= ?", f.From.UTC())
	}
	if f.To != nil {
		q = q.Where("disclosures.disclosure_date <= ?", f.To.UTC())
	}

	var rows []sentimentRow
	err := q.Order("disclosures.disclosure_date DESC").Order("disclosures.id DESC").
		Limit(model.ClampLimit(f.Limit)).Offset(max(f.Offset, 0)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	results := make([]model.DisclosureSentiment, 0, len(rows))
	for _, row := range rows {
		a, err := row.toModel()
		if err != nil {
			return nil, fmt.Errorf("disclosure %d: %w", row.DisclosureID, err)
		}
		var d model.Disclosure
		if row.Disclosure != nil {
			d = row.Disclosure.toModel()
		}
		results = append(results, model.DisclosureSentiment{Disclosure: d, Sentiment: a})
	}
	return results, nil
}

func (r *GormSentimentRepository) CountBySentiment(ctx context.Context) (map[model.SentimentType]int, error) {
	var groups []struct {
		OverallSentiment string
		N                int
	}
	err := r.db.WithContext(ctx).Model(&sentimentRow{}).
		Select("overall_sentiment, COUNT(*) AS n").
		Group("overall_sentiment").
		Scan(&groups).Error
	if err != nil {
		return nil, err
	}

	counts := emptyDistribution()
	for _, g := range groups {
		counts[model.SentimentType(g.OverallSentiment)] = g.N
	}
	return counts, nil
}

func (r *GormSentimentRepository) Stats(ctx context.Context) (*model.SentimentStats, error) {
	db := r.db.WithContext(ctx)

	var total int64
	if err := db.Model(&sentimentRow{}).Count(&total).Error; err != nil {
		return nil, err
	}
	stats := &model.SentimentStats{Total: int(total)}

	var avg sql.NullFloat64
	if err := db.Model(&sentimentRow{}).Select("AVG(confidence)").Scan(&avg).Error; err != nil {
		return nil, err
	}
	stats.AverageConfidence = avg.Float64

	var latest sentimentRow
	err := db.Order("analyzed_at DESC").Take(&latest).Error
	switch {
	case err == nil:
		t := latest.AnalyzedAt
		stats.LatestAnalysis = &t
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	stats.Distribution, err = r.CountBySentiment(ctx)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func toDisclosureRow(d *model.Disclosure) disclosureRow {
	row := disclosureRow{
		ID:             d.ID,
		CompanyCode:    d.CompanyCode,
		CompanyName:    d.CompanyName,
		DisclosureType: d.DisclosureType,
		Title:          d.Title,
		Summary:        d.Summary,
		CreatedAt:      d.CreatedAt,
	}
	if !d.DisclosureDate.IsZero() {
		t := d.DisclosureDate.UTC()
		row.DisclosureDate = &t
	}
	if len(d.Data) > 0 {
		row.Data = datatypes.JSONMap(d.Data)
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	return row
}

func (row disclosureRow) toModel() model.Disclosure {
	d := model.Disclosure{
		ID:             row.ID,
		CompanyCode:    row.CompanyCode,
		CompanyName:    row.CompanyName,
		DisclosureType: row.DisclosureType,
		Title:          row.Title,
		Summary:        row.Summary,
		CreatedAt:      row.CreatedAt,
	}
	if row.DisclosureDate != nil {
		d.DisclosureDate = *row.DisclosureDate
	}
	if len(row.Data) > 0 {
		d.Data = plainJSON(row.Data)
	}
	return d
}

// plainJSON re-decodes a JSONMap, which scans numbers as json.Number, so
// payloads read back the same way from either store.
func plainJSON(m datatypes.JSONMap) map[string]any {
	raw, err := json.Marshal(m)
	if err != nil {
		return map[string]any(m)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any(m)
	}
	return out
}

func toSentimentRow(disclosureID int64, a *model.SentimentAnalysis) sentimentRow {
	row := sentimentRow{
		DisclosureID:     disclosureID,
		OverallSentiment: string(a.Overall()),
		Confidence:       a.Confidence().Value(),
		ImpactHorizon:    string(a.Horizon()),
		KeyDrivers:       datatypes.NewJSONSlice(a.KeyDrivers()),
		RiskFlags:        datatypes.NewJSONSlice(a.RiskFlags()),
		ToneDescriptors:  datatypes.NewJSONSlice(a.ToneDescriptors()),
		AnalysisText:     a.AnalysisText(),
		AnalyzedAt:       a.AnalyzedAt(),
	}
	if v, ok := a.TargetAudience(); ok {
		row.TargetAudience = &v
	}
	return row
}

func (row sentimentRow) toModel() (*model.SentimentAnalysis, error) {
	rec := sentimentRecord{
		Overall:         row.OverallSentiment,
		Confidence:      row.Confidence,
		Horizon:         row.ImpactHorizon,
		KeyDrivers:      []string(row.KeyDrivers),
		RiskFlags:       []string(row.RiskFlags),
		ToneDescriptors: []string(row.ToneDescriptors),
		AnalysisText:    row.AnalysisText,
		AnalyzedAt:      row.AnalyzedAt,
	}
	if row.TargetAudience != nil {
		rec.TargetAudience = sql.NullString{String: *row.TargetAudience, Valid: true}
	}
	return rec.analysis()
}
