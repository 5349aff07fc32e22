package hybrid

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/rallylog/internal/apperr"
	"github.com/starford/rallylog/internal/embedding"
	"github.com/starford/rallylog/internal/indexer"
	"github.com/starford/rallylog/internal/models"
	"github.com/starford/rallylog/internal/testutil"
	"github.com/starford/rallylog/internal/vectorindex"
)

var now = time.Date(2025, 1, 20, 12, 0, 0, 0, time.UTC)

type fixture struct {
	j       *testutil.Journal
	recent  models.Record // 2025-01-19, inside the comparison exclusion window
	serve   models.Record // 2025-01-10
	volley  models.Record // 2025-01-05, match
	oldFore models.Record // 2024-09-01
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	j := testutil.TestJournal(t, now)
	recs := j.Seed(t,
		models.Record{Date: testutil.Date(2025, 1, 19), Scene: "practice", Tags: []string{"serve"}, Body: "サーブのトスが安定した"},
		models.Record{Date: testutil.Date(2025, 1, 10), Scene: "practice", Tags: []string{"serve", "forehand"}, Body: "# Serve day\n\nserve toss fixed, serve felt smooth"},
		models.Record{Date: testutil.Date(2025, 1, 5), Scene: "match", Tags: []string{"volley"}, Body: "volley at the net was sharp, ズバッと決まった"},
		models.Record{Date: testutil.Date(2024, 9, 1), Scene: "practice", Body: "forehand felt ガツン and heavy"},
	)
	return &fixture{j: j, recent: recs[0], serve: recs[1], volley: recs[2], oldFore: recs[3]}
}

func (f *fixture) engine(opts ...Option) *Engine {
	base := []Option{WithClock(func() time.Time { return now }), WithLogger(testutil.QuietLogger())}
	return New(f.j.Index, append(base, opts...)...)
}

func hitIDs(r *Result) []string {
	ids := make([]string, len(r.Hits))
	for i, h := range r.Hits {
		ids[i] = h.Record.ID
	}
	return ids
}

func TestScore(t *testing.T) {
	rec := models.Record{
		ID:    "r",
		Date:  now.AddDate(0, 0, -10),
		Title: "Serve",
		Body:  "serve serve",
		Tags:  []string{"serve", "serve-toss", "volley"},
	}
	// title 10, body 5+1, two tags 3+3, recency 2
	assert.Equal(t, 24, Score(rec, []string{"serve"}, now))
	assert.Equal(t, 24, Score(rec, []string{"serve", "SERVE", " "}, now), "duplicate terms count once")
	assert.Equal(t, Score(rec, []string{"serve"}, now), Score(rec, []string{"serve"}, now))

	rec.Date = now.AddDate(0, 0, -60)
	assert.Equal(t, 23, Score(rec, []string{"serve"}, now))
	rec.Date = now.AddDate(0, 0, -200)
	assert.Equal(t, 22, Score(rec, []string{"serve"}, now))
	rec.Date = time.Time{}
	assert.Equal(t, 22, Score(rec, []string{"serve"}, now))
	assert.Equal(t, 0, Score(rec, []string{"smash"}, now))
}

func TestRankByScoreTiesByRecency(t *testing.T) {
	older := models.Record{ID: "a", Date: testutil.Date(2024, 1, 1), Body: "slice"}
	newer := models.Record{ID: "b", Date: testutil.Date(2024, 2, 1), Body: "slice"}
	hits := rankByScore([]models.Record{older, newer}, []string{"slice"}, now)
	require.Len(t, hits, 2)
	assert.Equal(t, "b", hits[0].Record.ID)
	assert.Equal(t, hits[0].Score, hits[1].Score)
}

func TestExpandTerms(t *testing.T) {
	got := ExpandTerms("サーブ")
	assert.Equal(t, "サーブ", got[0])
	assert.Contains(t, got, "serve")
	assert.Contains(t, got, "サービス")

	got = ExpandTerms("Serve")
	assert.Equal(t, []string{"Serve", "サーブ", "サービス"}, got)

	assert.Contains(t, ExpandTerms("シュッと振れた"), "滑らか")
	assert.Equal(t, []string{"footwork"}, ExpandTerms("footwork"))
	assert.Nil(t, ExpandTerms("  "))
	assert.Equal(t, ExpandTerms("ピタッ"), ExpandTerms("ピタッ"))
}

func TestNaiveKeywords(t *testing.T) {
	assert.Equal(t, []string{"サーブ", "serve", "toss"}, NaiveKeywords("How was my serve toss?"))
	assert.Len(t, NaiveKeywords("alpha beta gamma delta epsilon zeta eta"), MaxKeywords)
	assert.Empty(t, NaiveKeywords("a I ?"))
	assert.Contains(t, NaiveKeywords("今日はバシッと打てた"), "バシッ")
}

func TestSensationSearch(t *testing.T) {
	f := newFixture(t)
	res, err := f.engine().SensationSearch(context.Background(), "ズバッ", "", 5)
	require.NoError(t, err)
	assert.Equal(t, StatusMatched, res.Status)
	assert.Equal(t, SourceLexical, res.Source)
	assert.Equal(t, []string{f.volley.ID}, hitIDs(res))
	assert.Contains(t, res.Keywords, "鋭い")

	res, err = f.engine().SensationSearch(context.Background(), "ズバッ", "practice", 5)
	require.NoError(t, err)
	assert.Equal(t, StatusNoMatch, res.Status)

	_, err = f.engine().SensationSearch(context.Background(), " ", "", 5)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestRelatedForQuestion_Lexical(t *testing.T) {
	f := newFixture(t)
	res, err := f.engine().RelatedForQuestion(context.Background(), "serve toss", 5)
	require.NoError(t, err)
	assert.Equal(t, SourceLexical, res.Source)
	require.GreaterOrEqual(t, len(res.Hits), 2)
	assert.Equal(t, f.serve.ID, res.Hits[0].Record.ID)
	assert.Contains(t, hitIDs(res), f.recent.ID)
	assert.Greater(t, res.Hits[0].Score, res.Hits[1].Score)
}

func TestRelatedForQuestion_NoMatch(t *testing.T) {
	f := newFixture(t)
	res, err := f.engine().RelatedForQuestion(context.Background(), "dropshot", 5)
	require.NoError(t, err)
	assert.Equal(t, StatusNoMatch, res.Status)
	assert.NotNil(t, res.Hits)
	assert.Empty(t, res.Hits)
}

func TestRelatedForQuestion_Empty(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine().RelatedForQuestion(context.Background(), "", 5)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestSimilarForComparison_ExcludesRecent(t *testing.T) {
	f := newFixture(t)
	e := f.engine()

	res, err := e.SimilarForComparison(context.Background(), "serve toss", ComparisonOptions{})
	require.NoError(t, err)
	assert.NotContains(t, hitIDs(res), f.recent.ID)
	assert.Contains(t, hitIDs(res), f.serve.ID)

	res, err = e.SimilarForComparison(context.Background(), "serve toss", ComparisonOptions{ExcludeRecentDays: -1})
	require.NoError(t, err)
	assert.Contains(t, hitIDs(res), f.recent.ID)

	res, err = e.SimilarForComparison(context.Background(), "serve toss", ComparisonOptions{Scene: "match"})
	require.NoError(t, err)
	assert.Equal(t, StatusNoMatch, res.Status)
}

func TestSimilarForComparison_NoKeywordsUsesLookback(t *testing.T) {
	f := newFixture(t)
	res, err := f.engine().SimilarForComparison(context.Background(), "?!", ComparisonOptions{})
	require.NoError(t, err)
	assert.Equal(t, SourceLexical, res.Source)
	// Within 30 days but older than the 3-day exclusion.
	assert.ElementsMatch(t, []string{f.serve.ID, f.volley.ID}, hitIDs(res))
}

func TestRecentForContradiction(t *testing.T) {
	f := newFixture(t)
	e := f.engine()

	res, err := e.RecentForContradiction(context.Background(), 2, f.recent.ID)
	require.NoError(t, err)
	assert.Equal(t, SourceRecent, res.Source)
	assert.Equal(t, []string{f.serve.ID, f.volley.ID}, hitIDs(res))

	res, err = e.RecentForContradiction(context.Background(), 0, "")
	require.NoError(t, err)
	assert.Equal(t, []string{f.recent.ID, f.serve.ID, f.volley.ID, f.oldFore.ID}, hitIDs(res))
}

func TestRecentForContradiction_EmptyJournal(t *testing.T) {
	j := testutil.TestJournal(t, now)
	res, err := New(j.Index).RecentForContradiction(context.Background(), 5, "")
	require.NoError(t, err)
	assert.Equal(t, StatusNoMatch, res.Status)
}

func vectorFixture(t *testing.T) (*fixture, *vectorindex.Store, *embedding.Fake) {
	t.Helper()
	f := newFixture(t)
	idx := vectorindex.NewMemory(vectorindex.WithLogger(testutil.QuietLogger()))
	ctx := context.Background()
	add := func(rec models.Record, vec []float32) {
		require.NoError(t, idx.Add(ctx, rec.ID, vec, indexer.Metadata(rec), indexer.Document(rec)))
	}
	add(f.recent, []float32{1, 0})
	add(f.serve, []float32{0.9, 0.1})
	add(f.volley, []float32{0, 1})
	return f, idx, embedding.NewFake(2)
}

func TestRelatedForQuestion_Vector(t *testing.T) {
	f, idx, fake := vectorFixture(t)
	fake.Pin("net play", []float32{0, 1})

	res, err := f.engine(WithVectors(idx, fake)).RelatedForQuestion(context.Background(), "net play", 1)
	require.NoError(t, err)
	assert.Equal(t, SourceVector, res.Source)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, f.volley.ID, res.Hits[0].Record.ID)
	assert.Equal(t, f.volley.Body, res.Hits[0].Record.Body)
	assert.InDelta(t, 0, res.Hits[0].Distance, 1e-6)
}

func TestSimilarForComparison_VectorHonoursExclusionAndScene(t *testing.T) {
	f, idx, fake := vectorFixture(t)
	fake.Pin("toss", []float32{1, 0})
	e := f.engine(WithVectors(idx, fake))

	res, err := e.SimilarForComparison(context.Background(), "toss", ComparisonOptions{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, SourceVector, res.Source)
	assert.Equal(t, []string{f.serve.ID}, hitIDs(res))

	res, err = e.SimilarForComparison(context.Background(), "toss", ComparisonOptions{Scene: "match"})
	require.NoError(t, err)
	assert.Equal(t, SourceVector, res.Source)
	assert.Equal(t, []string{f.volley.ID}, hitIDs(res))
}

func TestSimilarForComparison_WidensPastRecentNeighbours(t *testing.T) {
	f, idx, fake := vectorFixture(t)
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, f.oldFore.ID, []float32{0.8, 0.2}, indexer.Metadata(f.oldFore), indexer.Document(f.oldFore)))
	for i := 1; i <= 7; i++ {
		rec := f.j.Seed(t, models.Record{Date: testutil.Date(2025, 1, 19), Scene: "practice", Body: fmt.Sprintf("toss drill %d", i)})[0]
		require.NoError(t, idx.Add(ctx, rec.ID, []float32{1, 0.01 * float32(i)}, indexer.Metadata(rec), indexer.Document(rec)))
	}
	fake.Pin("toss", []float32{1, 0})

	res, err := f.engine(WithVectors(idx, fake)).SimilarForComparison(ctx, "toss", ComparisonOptions{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, SourceVector, res.Source)
	assert.Equal(t, []string{f.serve.ID, f.oldFore.ID}, hitIDs(res))
}

func TestVectorFailureFallsBackToLexical(t *testing.T) {
	f, idx, fake := vectorFixture(t)
	fake.FailWith(func(string, int64) error { return errors.New("quota exceeded") })

	res, err := f.engine(WithVectors(idx, fake)).RelatedForQuestion(context.Background(), "volley", 5)
	require.NoError(t, err)
	assert.Equal(t, SourceLexical, res.Source)
	assert.Equal(t, []string{f.volley.ID}, hitIDs(res))
}

func TestEmptyVectorIndexFallsBackToLexical(t *testing.T) {
	f := newFixture(t)
	fake := embedding.NewFake(2)
	idx := vectorindex.NewMemory()

	res, err := f.engine(WithVectors(idx, fake)).RelatedForQuestion(context.Background(), "volley", 5)
	require.NoError(t, err)
	assert.Equal(t, SourceLexical, res.Source)
	assert.Zero(t, fake.Calls(), "no embedding call for an empty index")
}

func TestVectorHitWithoutFileIsRebuiltFromMetadata(t *testing.T) {
	f := newFixture(t)
	idx := vectorindex.NewMemory()
	md := map[string]string{
		indexer.MetaDate:  "2024-12-01",
		indexer.MetaScene: "school",
		indexer.MetaTags:  "slice,footwork",
		indexer.MetaPath:  "sessions/2024/12/gone.md",
	}
	require.NoError(t, idx.Add(context.Background(), "gone", []float32{1, 0}, md, "slice drill"))
	fake := embedding.NewFake(2)
	fake.Pin("slice", []float32{1, 0})

	res, err := f.engine(WithVectors(idx, fake)).RelatedForQuestion(context.Background(), "slice", 3)
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	rec := res.Hits[0].Record
	assert.Equal(t, "gone", rec.ID)
	assert.Equal(t, "2024-12-01", rec.DateString())
	assert.Equal(t, "school", rec.Scene)
	assert.Equal(t, []string{"slice", "footwork"}, rec.Tags)
	assert.Equal(t, "slice drill", rec.Body)
}

func TestKeywordExtractor(t *testing.T) {
	f := newFixture(t)

	ok := KeywordExtractorFunc(func(context.Context, string) ([]string, error) {
		return []string{"volley"}, nil
	})
	res, err := f.engine(WithKeywordExtractor(ok)).RelatedForQuestion(context.Background(), "what happened at the net?", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"volley"}, res.Keywords)
	assert.Equal(t, []string{f.volley.ID}, hitIDs(res))

	broken := KeywordExtractorFunc(func(context.Context, string) ([]string, error) {
		return nil, errors.New("model offline")
	})
	res, err = f.engine(WithKeywordExtractor(broken)).RelatedForQuestion(context.Background(), "volley", 5)
	require.NoError(t, err)
	assert.Equal(t, NaiveKeywords("volley"), res.Keywords)
	assert.Equal(t, []string{f.volley.ID}, hitIDs(res))
}
