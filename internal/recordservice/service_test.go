package recordservice

import (
	"context"
	"errors"
	"strings"
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

func setup(t *testing.T, fake *embedding.Fake) (*Service, *testutil.Journal, *vectorindex.Store) {
	t.Helper()
	j := testutil.TestJournal(t, now)
	idx := vectorindex.NewMemory(vectorindex.WithLogger(testutil.QuietLogger()))
	gen := embedding.NewGenerator(fake,
		embedding.WithLogger(testutil.QuietLogger()),
		embedding.WithRetry(1, 0),
		embedding.WithInterval(0))
	x := indexer.New(j.Store, gen, idx, testutil.QuietLogger())
	return NewService(j.Store, x, testutil.QuietLogger()), j, idx
}

func TestCreateEmbeds(t *testing.T) {
	svc, j, idx := setup(t, embedding.NewFake(4))
	ctx := context.Background()

	res, err := svc.Create(ctx, models.Record{Scene: "school", Tags: []string{"volley"}, Body: "split step timing"})
	require.NoError(t, err)
	assert.True(t, res.Embedded)
	assert.Equal(t, "school", res.Record.Scene)

	_, err = idx.Get(ctx, res.Record.ID)
	require.NoError(t, err)

	// The write is visible to the lexical index immediately.
	got, err := j.Index.Get(ctx, res.Record.ID)
	require.NoError(t, err)
	assert.Equal(t, "split step timing", got.Body)
}

func TestCreateSurvivesEmbeddingFailure(t *testing.T) {
	fake := embedding.NewFake(4)
	fake.FailWith(func(string, int64) error { return errors.New("offline") })
	svc, _, idx := setup(t, fake)
	ctx := context.Background()

	res, err := svc.Create(ctx, models.Record{Body: "serve only"})
	require.NoError(t, err)
	assert.False(t, res.Embedded)
	assert.NotEmpty(t, res.Record.ID)

	n, err := idx.Count(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCreateInvalid(t *testing.T) {
	svc, _, _ := setup(t, embedding.NewFake(4))
	_, err := svc.Create(context.Background(), models.Record{Body: "  "})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestAppendReembeds(t *testing.T) {
	svc, _, idx := setup(t, embedding.NewFake(4))
	ctx := context.Background()

	created, err := svc.Create(ctx, models.Record{Body: "forehand late"})
	require.NoError(t, err)

	res, err := svc.Append(ctx, created.Record.ID, "earlier unit turn fixed it", "Coach")
	require.NoError(t, err)
	assert.True(t, res.Embedded)
	assert.Contains(t, res.Record.Body, "[!tip] Coach")

	e, err := idx.Get(ctx, created.Record.ID)
	require.NoError(t, err)
	assert.True(t, strings.Contains(e.Document, "earlier unit turn"))
}

func TestAppendUnknownID(t *testing.T) {
	svc, _, _ := setup(t, embedding.NewFake(4))
	_, err := svc.Append(context.Background(), "2020-01-01-000000-practice", "text", "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestGet(t *testing.T) {
	svc, _, _ := setup(t, embedding.NewFake(4))
	ctx := context.Background()

	created, err := svc.Create(ctx, models.Record{Body: "drills"})
	require.NoError(t, err)

	got, err := svc.Get(ctx, created.Record.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Record.Path, got.Path)

	_, err = svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestWithoutIndexer(t *testing.T) {
	j := testutil.TestJournal(t, now)
	svc := NewService(j.Store, nil, nil)
	res, err := svc.Create(context.Background(), models.Record{Body: "no vectors"})
	require.NoError(t, err)
	assert.False(t, res.Embedded)
}
