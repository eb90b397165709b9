package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"kapsentiment/internal/model"
)

const disclosureColumns = `d.id, d.company_code, d.company_name, d.disclosure_type, d.disclosure_date,
	d.title, d.summary, d.data, d.created_at`

type DisclosureRepository struct {
	db *sql.DB
}

func NewDisclosureRepository(db *sql.DB) *DisclosureRepository {
	return &DisclosureRepository{db: db}
}

type execer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Save inserts a new disclosure or updates the one with d.ID. A disclosure
// without an id that matches an existing row on (company_code,
// disclosure_date, title) updates that row. d.ID is set on return and
// inserted reports whether a new row was created.
func (r *DisclosureRepository) Save(ctx context.Context, d *model.Disclosure) (bool, error) {
	return saveDisclosure(ctx, r.db, d)
}

// SaveMany saves all disclosures in one transaction.
func (r *DisclosureRepository) SaveMany(ctx context.Context, ds []*model.Disclosure) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	inserted := 0
	for _, d := range ds {
		created, err := saveDisclosure(ctx, tx, d)
		if err != nil {
			return 0, fmt.Errorf("save disclosure %s %q: %w", d.CompanyCode, d.Title, err)
		}
		if created {
			inserted++
		}
	}
	return inserted, tx.Commit()
}

func saveDisclosure(ctx context.Context, q execer, d *model.Disclosure) (bool, error) {
	if err := model.ValidateCompanyCode(d.CompanyCode); err != nil {
		return false, err
	}

	data, err := marshalData(d.Data)
	if err != nil {
		return false, err
	}
	date := nullTime(d.DisclosureDate)

	if d.ID != 0 {
		res, err := q.ExecContext(ctx, `
			UPDATE disclosures
			SET company_code = $2, company_name = $3, disclosure_type = $4, disclosure_date = $5,
				title = $6, summary = $7, data = $8
			WHERE id = $1
		`, d.ID, d.CompanyCode, d.CompanyName, d.DisclosureType, date, d.Title, d.Summary, data)
		if err != nil {
			return false, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return false, err
		}
		if n == 0 {
			return false, fmt.Errorf("disclosure %d does not exist", d.ID)
		}
		return false, nil
	}

	createdAt := d.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var inserted bool
	err = q.QueryRowContext(ctx, `
		INSERT INTO disclosures(company_code, company_name, disclosure_type, disclosure_date, title, summary, data, created_at)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (company_code, disclosure_date, title) DO UPDATE SET
			company_name = EXCLUDED.company_name,
			disclosure_type = EXCLUDED.disclosure_type,
			summary = EXCLUDED.summary,
			data = EXCLUDED.data
		RETURNING id, (xmax = 0)
	`, d.CompanyCode, d.CompanyName, d.DisclosureType, date, d.Title, d.Summary, data, createdAt).Scan(&d.ID, &inserted)
	if err != nil {
		return false, err
	}
	return inserted, nil
}

func (r *DisclosureRepository) FindByID(ctx context.Context, id int64) (*model.Disclosure, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+disclosureColumns+`
		FROM disclosures d
		WHERE d.id = $1
	`, id)

	d, err := scanDisclosure(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (r *DisclosureRepository) FindByCompanyCode(ctx context.Context, code string, limit int) ([]model.Disclosure, error) {
	return r.Find(ctx, model.DisclosureFilter{CompanyCode: code, Limit: limit})
}

// FindRecent returns disclosures dated within the last days days.
func (r *DisclosureRepository) FindRecent(ctx context.Context, days, limit int) ([]model.Disclosure, error) {
	from := recentCutoff(days, time.Now().UTC())
	return r.Find(ctx, model.DisclosureFilter{From: &from, Limit: limit})
}

// Find lists disclosures newest first.
func (r *DisclosureRepository) Find(ctx context.Context, f model.DisclosureFilter) ([]model.Disclosure, error) {
	w := disclosureWhere(f)
	query := fmt.Sprintf(`
		SELECT %s
		FROM disclosures d
		%s
		ORDER BY d.disclosure_date DESC NULLS LAST, d.id DESC
		LIMIT %s OFFSET %s
	`, disclosureColumns, w.String(), w.next(model.ClampLimit(f.Limit)), w.next(max(f.Offset, 0)))

	rows, err := r.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	disclosures := []model.Disclosure{}
	for rows.Next() {
		d, err := scanDisclosure(rows)
		if err != nil {
			return nil, err
		}
		disclosures = append(disclosures, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return disclosures, nil
}

func (r *DisclosureRepository) Count(ctx context.Context, f model.DisclosureFilter) (int, error) {
	w := disclosureWhere(f)
	var total int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM disclosures d `+w.String(), w.args...).Scan(&total)
	return total, err
}

// FindCandidates returns ids of recent disclosures that still need a
// sentiment analysis, or all recent ones when ForceReanalyze is set.
func (r *DisclosureRepository) FindCandidates(ctx context.Context, f model.CandidateFilter) ([]int64, error) {
	w := &where{}
	if f.Days > 0 {
		w.add("d.disclosure_date >= ?", recentCutoff(f.Days, time.Now().UTC()))
	}
	if len(f.CompanyCodes) > 0 {
		w.add("d.company_code = ANY(?)", pq.Array(f.CompanyCodes))
	}
	if !f.ForceReanalyze {
		w.add("s.id IS NULL")
	}

	query := fmt.Sprintf(`
		SELECT d.id
		FROM disclosures d
		LEFT JOIN disclosure_sentiment s ON s.disclosure_id = d.id
		%s
		ORDER BY d.disclosure_date DESC NULLS LAST, d.id DESC
		LIMIT %s
	`, w.String(), w.next(model.ClampLimit(f.Limit)))

	rows, err := r.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func disclosureWhere(f model.DisclosureFilter) *where {
	w := &where{}
	if f.CompanyCode != "" {
		w.add("d.company_code = ?", f.CompanyCode)
	}
	if f.From != nil {
		w.add("d.disclosure_date >= ?", *f.From)
	}
	if f.To != nil {
		w.add("d.disclosure_date <= ?", *f.To)
	}
	return w
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDisclosure(s scanner, extra ...any) (*model.Disclosure, error) {
	var (
		d    model.Disclosure
		date sql.NullTime
		data []byte
	)
	dest := append([]any{&d.ID, &d.CompanyCode, &d.CompanyName, &d.DisclosureType, &date,
		&d.Title, &d.Summary, &data, &d.CreatedAt}, extra...)
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}

	if date.Valid {
		d.DisclosureDate = date.Time
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &d.Data); err != nil {
			return nil, fmt.Errorf("decode disclosure %d data: %w", d.ID, err)
		}
	}
	return &d, nil
}

// marshalData returns nil for an empty payload so the column stays NULL.
func marshalData(data map[string]any) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// recentCutoff matches Disclosure.IsRecent: midnight days days before now.
func recentCutoff(days int, now time.Time) time.Time {
	y, m, d := now.AddDate(0, 0, -days).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}
