package repository

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kapsentiment/db"
	"kapsentiment/internal/model"
)

// fakeRow hands values to Scan in column order.
type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return errors.New("column count mismatch")
	}
	for i, v := range r.values {
		if v == nil {
			continue
		}
		reflect.ValueOf(dest[i]).Elem().Set(reflect.ValueOf(v))
	}
	return nil
}

func TestDisclosureWhere(t *testing.T) {
	from := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 5, 31, 0, 0, 0, 0, time.UTC)

	w := disclosureWhere(model.DisclosureFilter{CompanyCode: "THYAO", From: &from, To: &to})
	assert.Equal(t, "WHERE d.company_code = $1 AND d.disclosure_date >= $2 AND d.disclosure_date <= $3", w.String())
	assert.Equal(t, []any{"THYAO", from, to}, w.args)
	assert.Equal(t, "$4", w.next(20))

	assert.Equal(t, "", disclosureWhere(model.DisclosureFilter{}).String())
}

func TestScanDisclosure(t *testing.T) {
	date := time.Date(2026, 5, 20, 18, 45, 0, 0, time.UTC)
	created := time.Date(2026, 5, 20, 19, 0, 0, 0, time.UTC)

	d, err := scanDisclosure(fakeRow{values: []any{
		int64(42), "THYAO", "Türk Hava Yolları", "ODA", sql.NullTime{Time: date, Valid: true},
		"Yolcu Sayıları", "Mayıs trafik", []byte(`{"yolcu":7100000}`), created,
	}})
	require.NoError(t, err)
	assert.Equal(t, int64(42), d.ID)
	assert.Equal(t, "THYAO", d.CompanyCode)
	assert.True(t, d.DisclosureDate.Equal(date))
	assert.Equal(t, float64(7100000), d.Data["yolcu"])
	assert.True(t, d.CreatedAt.Equal(created))
}

func TestScanDisclosure_NullDateAndData(t *testing.T) {
	d, err := scanDisclosure(fakeRow{values: []any{
		int64(7), "GARAN", "", "", sql.NullTime{}, "Pay Geri Alım", "", nil, time.Now(),
	}})
	require.NoError(t, err)
	assert.True(t, d.DisclosureDate.IsZero())
	assert.Nil(t, d.Data)
}

func TestScanDisclosure_BadData(t *testing.T) {
	_, err := scanDisclosure(fakeRow{values: []any{
		int64(9), "ASELS", "", "", sql.NullTime{}, "x", "", []byte(`{`), time.Now(),
	}})
	assert.ErrorContains(t, err, "decode disclosure 9 data")
}

func TestScanDisclosure_ExtraColumns(t *testing.T) {
	var rec sentimentRecord
	analyzed := time.Date(2026, 5, 21, 9, 0, 0, 0, time.UTC)
	values := []any{
		int64(3), "EREGL", "", "", sql.NullTime{}, "Kapasite", "", nil, analyzed,
		"NEGATIVE", 0.35, "Long_Term", nil, nil, nil, sql.NullString{}, "zayıf talep", analyzed,
	}

	// nil leaves the pq array destinations untouched.
	dest := rec.dest()
	d, err := scanDisclosure(fakeRow{values: values}, dest...)
	require.NoError(t, err)
	assert.Equal(t, int64(3), d.ID)

	a, err := rec.analysis()
	require.NoError(t, err)
	assert.Equal(t, model.SentimentNegative, a.Overall())
	assert.Equal(t, model.HorizonLongTerm, a.Horizon())
	assert.Equal(t, 0.35, a.Confidence().Value())
	_, ok := a.TargetAudience()
	assert.False(t, ok)
	assert.Empty(t, a.KeyDrivers())
}

func TestSentimentRecord_InvalidValues(t *testing.T) {
	rec := sentimentRecord{Overall: "mixed", Confidence: 0.5, Horizon: "short_term", AnalysisText: "x"}
	_, err := rec.analysis()
	assert.ErrorIs(t, err, model.ErrInvalidSentiment)

	rec = sentimentRecord{Overall: "neutral", Confidence: 1.5, Horizon: "short_term", AnalysisText: "x"}
	_, err = rec.analysis()
	assert.ErrorIs(t, err, model.ErrConfidenceOutOfRange)
}

func TestMarshalData(t *testing.T) {
	v, err := marshalData(nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = marshalData(map[string]any{"net_kar": 1.5})
	require.NoError(t, err)
	assert.Equal(t, `{"net_kar":1.5}`, v)
}

func TestRecentCutoff(t *testing.T) {
	now := time.Date(2026, 6, 10, 15, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 6, 3, 0, 0, 0, 0, time.UTC), recentCutoff(7, now))
	assert.False(t, nullTime(time.Time{}).Valid)
	assert.True(t, nullTime(now).Valid)
}

// newPostgres connects to DATABASE_URL and skips when it is not set.
func newPostgres(t *testing.T) *sql.DB {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}

	pool, err := db.Connect(url, 2)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, db.Migrate(ctx, pool))
	return pool
}

func TestPostgresDisclosures_NaturalIdentityUpsert(t *testing.T) {
	pool := newPostgres(t)
	repo := NewDisclosureRepository(pool)
	ctx := context.Background()

	title := "Yatırım Kararı " + uuid.NewString()
	date := time.Date(2026, 5, 12, 9, 0, 0, 0, time.UTC)

	first := newDisclosure("TUPRS", title, date)
	inserted, err := repo.Save(ctx, first)
	require.NoError(t, err)
	assert.True(t, inserted)
	require.NotZero(t, first.ID)
	t.Cleanup(func() { pool.Exec(`DELETE FROM disclosures WHERE id = $1`, first.ID) })

	second := newDisclosure("TUPRS", title, date)
	second.Summary = "güncel özet"
	inserted, err = repo.Save(ctx, second)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, first.ID, second.ID)

	got, err := repo.FindByID(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "güncel özet", got.Summary)
	assert.Equal(t, 125.5, got.Data["net_kar"])

	n, err := repo.Count(ctx, model.DisclosureFilter{CompanyCode: "TUPRS", From: &date, To: &date})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)

	missing, err := repo.FindByID(ctx, -1)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPostgresSentiments_UpsertLaw(t *testing.T) {
	pool := newPostgres(t)
	disclosures := NewDisclosureRepository(pool)
	sentiments := NewSentimentRepository(pool)
	ctx := context.Background()

	d := newDisclosure("EREGL", "Kapasite Artışı "+uuid.NewString(), time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC))
	_, err := disclosures.Save(ctx, d)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Exec(`DELETE FROM disclosures WHERE id = $1`, d.ID) })

	require.NoError(t, sentiments.Save(ctx, d.ID, newAnalysis(t, model.SentimentPositive, 0.9, "ilk analiz")))
	require.NoError(t, sentiments.Save(ctx, d.ID, newAnalysis(t, model.SentimentNegative, 0.4, "ikinci analiz", "borç", "kur", "talep")))

	var rows int
	require.NoError(t, pool.QueryRow(`SELECT COUNT(*) FROM disclosure_sentiment WHERE disclosure_id = $1`, d.ID).Scan(&rows))
	assert.Equal(t, 1, rows)

	got, err := sentiments.FindByDisclosureID(ctx, d.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.SentimentNegative, got.Overall())
	assert.Equal(t, 0.4, got.Confidence().Value())
	assert.Equal(t, "ikinci analiz", got.AnalysisText())
	assert.Equal(t, []string{"borç", "kur", "talep"}, got.RiskFlags())

	candidates, err := disclosures.FindCandidates(ctx, model.CandidateFilter{CompanyCodes: []string{"EREGL"}, Limit: 1000})
	require.NoError(t, err)
	assert.NotContains(t, candidates, d.ID)

	joined, err := sentiments.Find(ctx, model.SentimentFilter{CompanyCode: "EREGL", Sentiment: model.SentimentNegative, Limit: 100})
	require.NoError(t, err)
	found := false
	for _, row := range joined {
		if row.Disclosure.ID == d.ID {
			found = true
		}
	}
	assert.True(t, found)
}
