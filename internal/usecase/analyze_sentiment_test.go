package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/go-playground/assert/v2"

	"kapsentiment/internal/model"
)

type fakeDisclosures struct {
	byID map[int64]*model.Disclosure
	err  map[int64]error
}

func (f *fakeDisclosures) FindByID(_ context.Context, id int64) (*model.Disclosure, error) {
	if err, ok := f.err[id]; ok {
		return nil, err
	}
	return f.byID[id], nil
}

type fakeSaver struct {
	saved []int64
	err   error
}

func (f *fakeSaver) Save(_ context.Context, id int64, _ *model.SentimentAnalysis) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, id)
	return nil
}

type fakeAnalyzer struct {
	byContent map[string]*model.SentimentAnalysis
	errs      map[string]error
	panics    map[string]bool
	prompts   []string
}

func (f *fakeAnalyzer) Analyze(_ context.Context, content, prompt string) (*model.SentimentAnalysis, error) {
	f.prompts = append(f.prompts, prompt)
	if f.panics[content] {
		panic("analyzer exploded")
	}
	if err, ok := f.errs[content]; ok {
		return nil, err
	}
	return f.byContent[content], nil
}

func disclosure(id int64, title string) *model.Disclosure {
	return &model.Disclosure{ID: id, CompanyCode: "THYAO", Title: title}
}

func analysis(t *testing.T, overall model.SentimentType) *model.SentimentAnalysis {
	t.Helper()
	c, err := model.NewConfidence(0.8)
	assert.Equal(t, err, nil)
	a, err := model.NewSentimentAnalysis(model.SentimentParams{
		Overall:      overall,
		Confidence:   c,
		Horizon:      model.HorizonShortTerm,
		AnalysisText: "analiz",
	})
	assert.Equal(t, err, nil)
	return a
}

type fixture struct {
	disclosures *fakeDisclosures
	saver       *fakeSaver
	analyzer    *fakeAnalyzer
	uc          *AnalyzeSentiment
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		disclosures: &fakeDisclosures{
			byID: map[int64]*model.Disclosure{
				1: disclosure(1, "Temettü"),
				2: disclosure(2, "Zarar"),
				3: disclosure(3, "Belirsiz"),
				4: {ID: 4, CompanyCode: "BOS"},
				5: disclosure(5, "Genel Kurul"),
			},
			err: map[int64]error{},
		},
		saver: &fakeSaver{},
		analyzer: &fakeAnalyzer{
			byContent: map[string]*model.SentimentAnalysis{
				"Başlık: Temettü":     analysis(t, model.SentimentPositive),
				"Başlık: Zarar":       analysis(t, model.SentimentNegative),
				"Başlık: Genel Kurul": analysis(t, model.SentimentNeutral),
			},
			errs:   map[string]error{},
			panics: map[string]bool{},
		},
	}
	f.uc = NewAnalyzeSentiment(f.disclosures, f.saver, f.analyzer, nil)
	return f
}

func TestExecute_KnownDisclosure(t *testing.T) {
	f := newFixture(t)

	res, err := f.uc.Execute(context.Background(), []int64{1}, "")
	assert.Equal(t, err, nil)
	assert.Equal(t, res.TotalAnalyzed, 1)
	assert.Equal(t, res.Successful, 1)
	assert.Equal(t, res.Failed, 0)
	assert.Equal(t, f.saver.saved, []int64{1})
	assert.Equal(t, len(res.Results), 1)
	assert.Equal(t, res.Results[0].DisclosureID, int64(1))
	assert.Equal(t, res.Results[0].Sentiment.Overall(), model.SentimentPositive)
	assert.Equal(t, res.Counts[model.SentimentPositive], 1)
}

func TestExecute_MissingDisclosure(t *testing.T) {
	f := newFixture(t)

	res, err := f.uc.Execute(context.Background(), []int64{99}, "")
	assert.Equal(t, err, nil)
	assert.Equal(t, res.Successful, 0)
	assert.Equal(t, res.Failed, 1)
	assert.Equal(t, len(f.saver.saved), 0)
	assert.Equal(t, len(f.analyzer.prompts), 0)
	assert.Equal(t, res.FailedIDs, []int64{99})
}

func TestExecute_AnalyzerReturnsNone(t *testing.T) {
	f := newFixture(t)

	res, err := f.uc.Execute(context.Background(), []int64{3}, "")
	assert.Equal(t, err, nil)
	assert.Equal(t, res.Successful, 0)
	assert.Equal(t, res.Failed, 1)
	assert.Equal(t, len(f.saver.saved), 0)
}

func TestExecute_EmptyContent(t *testing.T) {
	f := newFixture(t)

	res, err := f.uc.Execute(context.Background(), []int64{4}, "")
	assert.Equal(t, err, nil)
	assert.Equal(t, res.Failed, 1)
	assert.Equal(t, len(f.analyzer.prompts), 0)
}

func TestExecute_PartialFailureIsolation(t *testing.T) {
	tests := []struct {
		name string
		ids  []int64
	}{
		{name: "failing first", ids: []int64{99, 1}},
		{name: "failing last", ids: []int64{1, 99}},
		{name: "analyzer none first", ids: []int64{3, 1}},
		{name: "analyzer none last", ids: []int64{1, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			res, err := f.uc.Execute(context.Background(), tt.ids, "")
			assert.Equal(t, err, nil)
			assert.Equal(t, res.TotalAnalyzed, 2)
			assert.Equal(t, res.Successful, 1)
			assert.Equal(t, res.Failed, 1)
			assert.Equal(t, f.saver.saved, []int64{1})
		})
	}
}

func TestExecute_ErrorsAreCountedNotPropagated(t *testing.T) {
	f := newFixture(t)
	f.disclosures.err[7] = errors.New("connection reset")
	f.analyzer.errs["Başlık: Zarar"] = model.ErrConfidenceOutOfRange
	f.analyzer.panics["Başlık: Genel Kurul"] = true

	res, err := f.uc.Execute(context.Background(), []int64{7, 2, 5, 1}, "")
	assert.Equal(t, err, nil)
	assert.Equal(t, res.TotalAnalyzed, 4)
	assert.Equal(t, res.Successful, 1)
	assert.Equal(t, res.Failed, 3)
	assert.Equal(t, res.FailedIDs, []int64{7, 2, 5})
}

func TestExecute_SaveFailureCountsAsFailed(t *testing.T) {
	f := newFixture(t)
	f.saver.err = errors.New("unique violation")

	res, err := f.uc.Execute(context.Background(), []int64{1, 2}, "")
	assert.Equal(t, err, nil)
	assert.Equal(t, res.Successful, 0)
	assert.Equal(t, res.Failed, 2)
}

func TestExecute_ForwardsPrompt(t *testing.T) {
	f := newFixture(t)

	_, err := f.uc.Execute(context.Background(), []int64{1, 2}, "özel")
	assert.Equal(t, err, nil)
	assert.Equal(t, f.analyzer.prompts, []string{"özel", "özel"})
}

func TestExecute_SentimentCounts(t *testing.T) {
	f := newFixture(t)

	res, err := f.uc.Execute(context.Background(), []int64{1, 2, 5, 3}, "")
	assert.Equal(t, err, nil)
	assert.Equal(t, res.Counts, map[model.SentimentType]int{
		model.SentimentPositive: 1,
		model.SentimentNeutral:  1,
		model.SentimentNegative: 1,
	})
}

func TestExecuteWithProgress(t *testing.T) {
	f := newFixture(t)

	var calls [][2]int
	_, err := f.uc.ExecuteWithProgress(context.Background(), []int64{1, 99, 2}, "", func(done, total int) {
		calls = append(calls, [2]int{done, total})
	})
	assert.Equal(t, err, nil)
	assert.Equal(t, calls, [][2]int{{1, 3}, {2, 3}, {3, 3}})
}

func TestExecute_StopsBetweenItemsWhenCancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	res, err := f.uc.ExecuteWithProgress(ctx, []int64{1, 2, 5}, "", func(done, total int) {
		if done == 1 {
			cancel()
		}
	})
	assert.Equal(t, errors.Is(err, context.Canceled), true)
	assert.Equal(t, res.TotalAnalyzed, 1)
	assert.Equal(t, res.Successful, 1)
	assert.Equal(t, f.saver.saved, []int64{1})
}
