package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/nhle/mailtriage/internal/store"
	"github.com/nhle/mailtriage/internal/testutil"
)

func TestSeenUnknownID(t *testing.T) {
	s := testutil.NewTestStore(t)

	seen, err := s.Seen(context.Background(), "<never@x>")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestMarkSeenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	require.NoError(t, s.MarkSeen(ctx, "<abc@x>"))
	require.NoError(t, s.MarkSeen(ctx, "<abc@x>"))

	seen, err := s.Seen(ctx, "<abc@x>")
	require.NoError(t, err)
	assert.True(t, seen)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, ok, err := s.ProcessedAt(ctx, "<abc@x>")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIDsAreExactMatch(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	require.NoError(t, s.MarkSeen(ctx, "<abc@x>"))

	for _, other := range []string{"abc@x", "<ABC@x>", "<abc@x> ", ""} {
		seen, err := s.Seen(ctx, other)
		require.NoError(t, err)
		assert.False(t, seen, "id %q", other)
	}
}

func TestMarkSeenSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.MarkSeen(ctx, "<persist@x>"))
	require.NoError(t, s.Close())

	s, err = store.NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	seen, err := s.Seen(ctx, "<persist@x>")
	require.NoError(t, err)
	assert.True(t, seen)

	v, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestSeenAfterClose(t *testing.T) {
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Seen(context.Background(), "<x@y>")
	assert.Error(t, err)
}

func TestMarkedIDsAreAlwaysSeen(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	rapid.Check(t, func(t *rapid.T) {
		ids := rapid.SliceOfN(rapid.StringMatching(`<[a-z0-9.$-]{1,24}@[a-z.]{1,12}>`), 1, 20).Draw(t, "ids")
		for _, id := range ids {
			if err := s.MarkSeen(ctx, id); err != nil {
				t.Fatalf("mark %q: %v", id, err)
			}
		}
		for _, id := range ids {
			seen, err := s.Seen(ctx, id)
			if err != nil {
				t.Fatalf("seen %q: %v", id, err)
			}
			if !seen {
				t.Fatalf("id %q not seen after mark", id)
			}
		}
	})
}
