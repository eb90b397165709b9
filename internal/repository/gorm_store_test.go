package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kapsentiment/db"
	"kapsentiment/internal/model"
)

func newTestStore(t *testing.T) (*GormStore, *fakeNow) {
	t.Helper()
	gdb, err := db.OpenSQLite(":memory:")
	require.NoError(t, err)

	store, err := NewGormStore(gdb)
	require.NoError(t, err)

	clock := &fakeNow{t: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	store.Sentiments.now = clock.Now

	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return store, clock
}

type fakeNow struct{ t time.Time }

func (f *fakeNow) Now() time.Time { return f.t }

func newDisclosure(code, title string, date time.Time) *model.Disclosure {
	return &model.Disclosure{
		CompanyCode:    code,
		CompanyName:    code + " A.Ş.",
		DisclosureType: "ODA",
		DisclosureDate: date,
		Title:          title,
		Summary:        "özet",
		Data:           map[string]any{"net_kar": 125.5},
	}
}

func newAnalysis(t *testing.T, overall model.SentimentType, confidence float64, text string, flags ...string) *model.SentimentAnalysis {
	t.Helper()
	c, err := model.NewConfidence(confidence)
	require.NoError(t, err)
	audience := "retail_investors"
	a, err := model.NewSentimentAnalysis(model.SentimentParams{
		Overall:         overall,
		Confidence:      c,
		Horizon:         model.HorizonLongTerm,
		KeyDrivers:      []string{"temettü"},
		RiskFlags:       flags,
		ToneDescriptors: []string{"iyimser"},
		TargetAudience:  &audience,
		AnalysisText:    text,
		AnalyzedAt:      time.Date(2026, 5, 30, 8, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return a
}

func TestGormDisclosures_SaveAndFind(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	date := time.Date(2026, 5, 20, 14, 30, 0, 0, time.UTC)

	d := newDisclosure("THYAO", "Kar Payı Dağıtımı", date)
	inserted, err := store.Disclosures.Save(ctx, d)
	require.NoError(t, err)
	assert.True(t, inserted)
	require.NotZero(t, d.ID)

	got, err := store.Disclosures.FindByID(ctx, d.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "THYAO", got.CompanyCode)
	assert.Equal(t, "Kar Payı Dağıtımı", got.Title)
	assert.True(t, got.DisclosureDate.Equal(date))
	assert.Equal(t, 125.5, got.Data["net_kar"])
	assert.True(t, got.HasFinancialData())

	missing, err := store.Disclosures.FindByID(ctx, 9999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGormDisclosures_NaturalIdentityUpsert(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	date := time.Date(2026, 5, 20, 14, 30, 0, 0, time.UTC)

	first := newDisclosure("GARAN", "Finansal Rapor", date)
	_, err := store.Disclosures.Save(ctx, first)
	require.NoError(t, err)

	again := newDisclosure("GARAN", "Finansal Rapor", date)
	again.Summary = "güncellenmiş özet"
	inserted, err := store.Disclosures.Save(ctx, again)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, first.ID, again.ID)

	total, err := store.Disclosures.Count(ctx, model.DisclosureFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	got, err := store.Disclosures.FindByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "güncellenmiş özet", got.Summary)
}

func TestGormDisclosures_UpdateByID(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	d := newDisclosure("ASELS", "Yeni İş İlişkisi", time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	_, err := store.Disclosures.Save(ctx, d)
	require.NoError(t, err)

	d.Title = "Yeni İş İlişkisi (Düzeltme)"
	inserted, err := store.Disclosures.Save(ctx, d)
	require.NoError(t, err)
	assert.False(t, inserted)

	got, err := store.Disclosures.FindByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "Yeni İş İlişkisi (Düzeltme)", got.Title)

	_, err = store.Disclosures.Save(ctx, &model.Disclosure{ID: 4242, CompanyCode: "ASELS"})
	assert.Error(t, err)
}

func TestGormDisclosures_RejectsInvalidCompanyCode(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Disclosures.Save(context.Background(), newDisclosure("TOOLONGCODE1", "x", time.Now()))
	assert.ErrorIs(t, err, model.ErrInvalidCompanyCode)
}

func TestGormDisclosures_SaveManyIsAtomic(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	date := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)

	_, err := store.Disclosures.SaveMany(ctx, []*model.Disclosure{
		newDisclosure("AKBNK", "a", date),
		newDisclosure("", "b", date),
	})
	require.Error(t, err)

	total, err := store.Disclosures.Count(ctx, model.DisclosureFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, total)

	n, err := store.Disclosures.SaveMany(ctx, []*model.Disclosure{
		newDisclosure("AKBNK", "a", date),
		newDisclosure("AKBNK", "b", date),
		newDisclosure("AKBNK", "a", date),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestGormDisclosures_Filters(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	old := newDisclosure("THYAO", "eski", now.AddDate(0, 0, -40))
	recent := newDisclosure("THYAO", "yeni", now.AddDate(0, 0, -1))
	other := newDisclosure("SISE", "başka", now.AddDate(0, 0, -2))
	for _, d := range []*model.Disclosure{old, recent, other} {
		_, err := store.Disclosures.Save(ctx, d)
		require.NoError(t, err)
	}

	byCode, err := store.Disclosures.FindByCompanyCode(ctx, "THYAO", 10)
	require.NoError(t, err)
	require.Len(t, byCode, 2)
	assert.Equal(t, recent.ID, byCode[0].ID)
	assert.Equal(t, old.ID, byCode[1].ID)

	latest, err := store.Disclosures.FindRecent(ctx, 7, 10)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, recent.ID, latest[0].ID)
	assert.Equal(t, other.ID, latest[1].ID)

	page, err := store.Disclosures.Find(ctx, model.DisclosureFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, other.ID, page[0].ID)

	to := now.AddDate(0, 0, -30)
	until, err := store.Disclosures.Count(ctx, model.DisclosureFilter{To: &to})
	require.NoError(t, err)
	assert.Equal(t, 1, until)
}

func TestGormSentiments_UpsertLaw(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	d := newDisclosure("EREGL", "Kapasite Artışı", time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC))
	_, err := store.Disclosures.Save(ctx, d)
	require.NoError(t, err)

	require.NoError(t, store.Sentiments.Save(ctx, d.ID, newAnalysis(t, model.SentimentPositive, 0.9, "ilk analiz")))
	require.NoError(t, store.Sentiments.Save(ctx, d.ID, newAnalysis(t, model.SentimentNegative, 0.4, "ikinci analiz", "borç", "kur", "talep")))

	var rows int64
	require.NoError(t, store.Sentiments.db.Model(&sentimentRow{}).Where("disclosure_id = ?", d.ID).Count(&rows).Error)
	assert.Equal(t, int64(1), rows)

	got, err := store.Sentiments.FindByDisclosureID(ctx, d.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.SentimentNegative, got.Overall())
	assert.Equal(t, 0.4, got.Confidence().Value())
	assert.Equal(t, "ikinci analiz", got.AnalysisText())
	assert.Equal(t, []string{"borç", "kur", "talep"}, got.RiskFlags())
	assert.True(t, got.HasHighRisk())
	assert.Equal(t, model.RiskMedium, got.RiskLevel())
	assert.True(t, got.AnalyzedAt().Equal(clock.Now()))

	audience, ok := got.TargetAudience()
	assert.True(t, ok)
	assert.Equal(t, "retail_investors", audience)
}

func TestGormSentiments_RequiresDisclosure(t *testing.T) {
	store, _ := newTestStore(t)

	err := store.Sentiments.Save(context.Background(), 777, newAnalysis(t, model.SentimentNeutral, 0.5, "yetim"))
	assert.Error(t, err)
}

func TestGormSentiments_CascadeDelete(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	d := newDisclosure("KCHOL", "Birleşme", time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC))
	_, err := store.Disclosures.Save(ctx, d)
	require.NoError(t, err)
	require.NoError(t, store.Sentiments.Save(ctx, d.ID, newAnalysis(t, model.SentimentPositive, 0.8, "olumlu")))

	require.NoError(t, store.Disclosures.db.Delete(&disclosureRow{}, d.ID).Error)

	got, err := store.Sentiments.FindByDisclosureID(ctx, d.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGormSentiments_FindJoinedAndStats(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	thy := newDisclosure("THYAO", "Yolcu Sayıları", time.Date(2026, 5, 15, 0, 0, 0, 0, time.UTC))
	thy2 := newDisclosure("THYAO", "Filo Genişlemesi", time.Date(2026, 5, 18, 0, 0, 0, 0, time.UTC))
	sise := newDisclosure("SISE", "Zarar Açıklaması", time.Date(2026, 5, 16, 0, 0, 0, 0, time.UTC))
	pending := newDisclosure("SISE", "Analizsiz", time.Date(2026, 5, 17, 0, 0, 0, 0, time.UTC))
	for _, d := range []*model.Disclosure{thy, thy2, sise, pending} {
		_, err := store.Disclosures.Save(ctx, d)
		require.NoError(t, err)
	}

	require.NoError(t, store.Sentiments.Save(ctx, thy.ID, newAnalysis(t, model.SentimentPositive, 0.8, "a")))
	require.NoError(t, store.Sentiments.Save(ctx, thy2.ID, newAnalysis(t, model.SentimentPositive, 0.6, "b")))
	require.NoError(t, store.Sentiments.Save(ctx, sise.ID, newAnalysis(t, model.SentimentNegative, 0.7, "c")))

	all, err := store.Sentiments.Find(ctx, model.SentimentFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, thy2.ID, all[0].Disclosure.ID)
	assert.Equal(t, "Filo Genişlemesi", all[0].Disclosure.Title)
	assert.Equal(t, sise.ID, all[1].Disclosure.ID)

	positiveThy, err := store.Sentiments.Find(ctx, model.SentimentFilter{CompanyCode: "THYAO", Sentiment: model.SentimentPositive})
	require.NoError(t, err)
	assert.Len(t, positiveThy, 2)

	from := time.Date(2026, 5, 16, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 5, 17, 0, 0, 0, 0, time.UTC)
	window, err := store.Sentiments.Find(ctx, model.SentimentFilter{From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, model.SentimentNegative, window[0].Sentiment.Overall())

	counts, err := store.Sentiments.CountBySentiment(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[model.SentimentType]int{
		model.SentimentPositive: 2,
		model.SentimentNeutral:  0,
		model.SentimentNegative: 1,
	}, counts)

	stats, err := store.Sentiments.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.InDelta(t, 0.7, stats.AverageConfidence, 1e-9)
	require.NotNil(t, stats.LatestAnalysis)
	assert.True(t, stats.LatestAnalysis.Equal(time.Date(2026, 5, 30, 8, 0, 0, 0, time.UTC)))
	_ = clock

	candidates, err := store.Disclosures.FindCandidates(ctx, model.CandidateFilter{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []int64{pending.ID}, candidates)

	forced, err := store.Disclosures.FindCandidates(ctx, model.CandidateFilter{CompanyCodes: []string{"SISE"}, ForceReanalyze: true, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []int64{pending.ID, sise.ID}, forced)
}

func TestStatsOnEmptyStore(t *testing.T) {
	store, _ := newTestStore(t)

	stats, err := store.Sentiments.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
	assert.Equal(t, 0.0, stats.AverageConfidence)
	assert.Nil(t, stats.LatestAnalysis)
}

func TestWhereBuilder(t *testing.T) {
	w := &where{}
	assert.Equal(t, "", w.String())

	w.add("d.company_code = ?", "THYAO")
	w.add("s.id IS NULL")
	w.add("d.disclosure_date BETWEEN ? AND ?", 1, 2)
	limit := w.next(10)

	assert.Equal(t, "WHERE d.company_code = $1 AND s.id IS NULL AND d.disclosure_date BETWEEN $2 AND $3", w.String())
	assert.Equal(t, "$4", limit)
	assert.Equal(t, []any{"THYAO", 1, 2, 10}, w.args)
}
