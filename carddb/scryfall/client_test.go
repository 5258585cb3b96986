package scryfall

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		BaseURL:     srv.URL,
		Timeout:     2 * time.Second,
		MinInterval: time.Millisecond,
	})
}

func TestNamedFuzzy(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/cards/named", r.URL.Path)
		require.Equal(t, "lighming bolt", r.URL.Query().Get("fuzzy"))
		require.Empty(t, r.URL.Query().Get("exact"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"card","id":"p1","oracle_id":"o-bolt","name":"Lightning Bolt","lang":"en","set":"lea","collector_number":"161"}`))
	}))

	card, err := c.Named(context.Background(), "lighming bolt", true)
	require.NoError(t, err)
	assert.Equal(t, "o-bolt", card.ID)
	assert.Equal(t, "Lightning Bolt", card.Name)
	assert.Equal(t, "lightning bolt", card.NormName)
	assert.Equal(t, "LEA", card.SetCode)
}

func TestNamedNotFound(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"object":"error","code":"not_found"}`, http.StatusNotFound)
	}))

	_, err := c.Named(context.Background(), "definitely not a card", true)
	require.ErrorIs(t, err, ErrNotFound)
	// A miss is an answer, not an outage.
	assert.Equal(t, BreakerClosed, c.Breaker().State())
}

func TestAutocomplete(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/cards/autocomplete", r.URL.Path)
		require.Equal(t, "thali", r.URL.Query().Get("q"))
		w.Write([]byte(`{"object":"catalog","data":["Thalia, Guardian of Thraben","Thalia's Lancers"]}`))
	}))

	names, err := c.Autocomplete(context.Background(), "thali")
	require.NoError(t, err)
	assert.Equal(t, []string{"Thalia, Guardian of Thraben", "Thalia's Lancers"}, names)
}

func TestRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "upstream sad", http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"object":"card","id":"p1","oracle_id":"o-opt","name":"Opt"}`))
	}))

	card, err := c.Named(context.Background(), "opt", false)
	require.NoError(t, err)
	assert.Equal(t, "o-opt", card.ID)
	assert.EqualValues(t, 3, calls.Load())
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))

	ctx := context.Background()
	for i := 0; i < breakerThreshold; i++ {
		_, err := c.Named(ctx, "opt", true)
		require.Error(t, err)
		require.NotErrorIs(t, err, ErrUnavailable)
	}
	_, err := c.Named(ctx, "opt", true)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestNamedRespectsContext(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{}`))
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Named(ctx, "opt", true)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnavailable))
}
