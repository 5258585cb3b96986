package carddb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "corpus.db")

	store, err := OpenStore(path)
	require.NoError(t, err)
	defer store.Close()

	cards := []Card{
		NewCard("id-bolt", "Lightning Bolt"),
		NewCard("id-opt", "Opt"),
		NewCard("id-delver", "Delver of Secrets // Insectile Aberration"),
	}
	require.NoError(t, store.ReplaceAll(ctx, cards))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	loaded, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	// LoadAll orders by folded name.
	assert.Equal(t, "id-delver", loaded[0].ID)
	assert.Equal(t, "id-bolt", loaded[1].ID)
	assert.Equal(t, "id-opt", loaded[2].ID)
	assert.Equal(t, "Delver of Secrets", loaded[0].FrontFace)
}

func TestStoreReplaceAllSwapsContents(t *testing.T) {
	ctx := context.Background()
	store, err := OpenStore(filepath.Join(t.TempDir(), "corpus.db"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.ReplaceAll(ctx, []Card{NewCard("id-old", "Old Card")}))
	require.NoError(t, store.ReplaceAll(ctx, []Card{NewCard("id-new", "New Card")}))

	loaded, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "id-new", loaded[0].ID)
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "corpus.db")

	store, err := OpenStore(path)
	require.NoError(t, err)
	require.NoError(t, store.ReplaceAll(ctx, []Card{NewCard("id-bolt", "Lightning Bolt")}))
	require.NoError(t, store.Close())

	reopened, err := OpenStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	corpus := NewCorpus()
	n, err := LoadCorpus(ctx, reopened, corpus)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, corpus.Ready())

	card, ok := corpus.LookupExact("lightning bolt")
	require.True(t, ok)
	assert.Equal(t, "id-bolt", card.ID)
}

func TestStorePing(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), "corpus.db"))
	require.NoError(t, err)
	assert.NoError(t, store.Ping(context.Background()))
	require.NoError(t, store.Close())
}
