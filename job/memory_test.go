package job

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedClock lets expiry tests move time without sleeping.
type fixedClock struct{ t time.Time }

func (c *fixedClock) now() time.Time          { return c.t }
func (c *fixedClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClockedStore() (*memoryStore, *fixedClock) {
	clock := &fixedClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	s := NewMemoryStore().(*memoryStore)
	s.now = clock.now
	return s, clock
}

func TestMemoryStoreJobRoundTrip(t *testing.T) {
	s, _ := newClockedStore()
	ctx := context.Background()

	j := New("job-1", "fp-1", time.Now().UTC())
	j.State = StateProcessing
	j.Progress = 45
	j.Stage = "parse"
	require.NoError(t, s.SaveJob(ctx, j, time.Hour))

	got, err := s.LoadJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, j.ID, got.ID)
	assert.Equal(t, StateProcessing, got.State)
	assert.Equal(t, 45, got.Progress)
	assert.Equal(t, "parse", got.Stage)

	_, err = s.LoadJob(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreLoadReturnsSnapshot(t *testing.T) {
	s, _ := newClockedStore()
	ctx := context.Background()

	j := New("job-1", "fp-1", time.Now().UTC())
	require.NoError(t, s.SaveJob(ctx, j, time.Hour))

	first, err := s.LoadJob(ctx, "job-1")
	require.NoError(t, err)
	first.State = StateFailed
	first.Progress = 99

	second, err := s.LoadJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StateQueued, second.State, "mutating a loaded snapshot must not leak into the store")
	assert.Equal(t, 0, second.Progress)
}

func TestMemoryStoreJobExpiry(t *testing.T) {
	s, clock := newClockedStore()
	ctx := context.Background()

	require.NoError(t, s.SaveJob(ctx, New("job-1", "fp-1", clock.now()), time.Hour))

	clock.advance(59 * time.Minute)
	_, err := s.LoadJob(ctx, "job-1")
	require.NoError(t, err)

	clock.advance(2 * time.Minute)
	_, err = s.LoadJob(ctx, "job-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreClaimFirstWriterWins(t *testing.T) {
	s, _ := newClockedStore()
	ctx := context.Background()

	winner, won, err := s.ClaimFingerprint(ctx, "fp-1", "job-a", time.Hour)
	require.NoError(t, err)
	assert.True(t, won)
	assert.Equal(t, "job-a", winner)

	winner, won, err = s.ClaimFingerprint(ctx, "fp-1", "job-b", time.Hour)
	require.NoError(t, err)
	assert.False(t, won)
	assert.Equal(t, "job-a", winner, "loser must learn the established id")

	id, err := s.LookupFingerprint(ctx, "fp-1")
	require.NoError(t, err)
	assert.Equal(t, "job-a", id)
}

func TestMemoryStoreClaimExpiry(t *testing.T) {
	s, clock := newClockedStore()
	ctx := context.Background()

	_, won, err := s.ClaimFingerprint(ctx, "fp-1", "job-a", time.Hour)
	require.NoError(t, err)
	require.True(t, won)

	clock.advance(2 * time.Hour)
	_, err = s.LookupFingerprint(ctx, "fp-1")
	assert.ErrorIs(t, err, ErrNotFound)

	winner, won, err := s.ClaimFingerprint(ctx, "fp-1", "job-b", time.Hour)
	require.NoError(t, err)
	assert.True(t, won, "an expired claim must be reclaimable")
	assert.Equal(t, "job-b", winner)
}

func TestMemoryStoreReleaseRequiresOwner(t *testing.T) {
	s, _ := newClockedStore()
	ctx := context.Background()

	_, _, err := s.ClaimFingerprint(ctx, "fp-1", "job-a", time.Hour)
	require.NoError(t, err)

	// A stale worker naming the wrong id must not free the claim.
	require.NoError(t, s.ReleaseFingerprint(ctx, "fp-1", "job-b"))
	id, err := s.LookupFingerprint(ctx, "fp-1")
	require.NoError(t, err)
	assert.Equal(t, "job-a", id)

	require.NoError(t, s.ReleaseFingerprint(ctx, "fp-1", "job-a"))
	_, err = s.LookupFingerprint(ctx, "fp-1")
	assert.ErrorIs(t, err, ErrNotFound)
}
