// Package scryfall is the thin client for the hosted card database API used
// when offline resolution fails: single-card named lookups, name
// autocomplete, and bulk data downloads for corpus refreshes. All calls are
// globally rate-paced and guarded by a circuit breaker so a degraded API
// never stalls the scan pipeline.
package scryfall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/wudi/deckscan/carddb"
)

var (
	// ErrNotFound means the API had no card for the requested name.
	ErrNotFound = errors.New("scryfall: no matching card")
	// ErrUnavailable means the breaker is open and no call was attempted.
	ErrUnavailable = errors.New("scryfall: service unavailable")
)

const (
	defaultBaseURL     = "https://api.scryfall.com"
	defaultTimeout     = 5 * time.Second
	defaultMinInterval = 120 * time.Millisecond
	defaultUserAgent   = "deckscan/1.0"

	maxAttempts  = 3
	retryBackoff = 250 * time.Millisecond

	breakerThreshold = 5
	breakerCooldown  = 60 * time.Second
)

// Config tunes the client. Zero values take the defaults above.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	MinInterval time.Duration
	UserAgent   string
}

// Client is a rate-paced, breaker-guarded Scryfall API client. Safe for
// concurrent use.
type Client struct {
	base      string
	userAgent string
	httpc     *http.Client
	limiter   *rate.Limiter
	breaker   *Breaker
}

// New builds a client from cfg.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = defaultMinInterval
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	return &Client{
		base:      strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		httpc:     &http.Client{Timeout: cfg.Timeout},
		limiter:   rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		breaker:   NewBreaker(breakerThreshold, breakerCooldown),
	}
}

// Breaker exposes the client's circuit breaker for health reporting.
func (c *Client) Breaker() *Breaker { return c.breaker }

// apiCard mirrors the card fields the resolver needs from the API.
type apiCard struct {
	Object          string `json:"object"`
	ID              string `json:"id"`
	OracleID        string `json:"oracle_id"`
	Name            string `json:"name"`
	Lang            string `json:"lang"`
	Layout          string `json:"layout"`
	Set             string `json:"set"`
	CollectorNumber string `json:"collector_number"`
	CardFaces       []struct {
		Name string `json:"name"`
	} `json:"card_faces"`
}

type catalog struct {
	Object string   `json:"object"`
	Data   []string `json:"data"`
}

type bulkIndex struct {
	Data []struct {
		Type        string `json:"type"`
		DownloadURI string `json:"download_uri"`
	} `json:"data"`
}

// Named looks a card up by name. With fuzzy set the API tolerates small
// misspellings; otherwise the name must match exactly.
func (c *Client) Named(ctx context.Context, name string, fuzzy bool) (carddb.Card, error) {
	q := url.Values{}
	if fuzzy {
		q.Set("fuzzy", name)
	} else {
		q.Set("exact", name)
	}
	var ac apiCard
	if err := c.getJSON(ctx, "/cards/named?"+q.Encode(), &ac); err != nil {
		return carddb.Card{}, err
	}
	return toCard(ac), nil
}

// Autocomplete returns up to 20 card names completing the partial input.
func (c *Client) Autocomplete(ctx context.Context, partial string) ([]string, error) {
	q := url.Values{}
	q.Set("q", partial)
	var cat catalog
	if err := c.getJSON(ctx, "/cards/autocomplete?"+q.Encode(), &cat); err != nil {
		return nil, err
	}
	return cat.Data, nil
}

// BulkDownload streams the default-cards bulk file into w, for corpus
// refreshes. It returns the number of bytes copied.
func (c *Client) BulkDownload(ctx context.Context, w io.Writer) (int64, error) {
	var idx bulkIndex
	if err := c.getJSON(ctx, "/bulk-data", &idx); err != nil {
		return 0, err
	}
	uri := ""
	for _, d := range idx.Data {
		if d.Type == "default_cards" {
			uri = d.DownloadURI
			break
		}
	}
	if uri == "" {
		return 0, fmt.Errorf("scryfall: bulk index has no default_cards entry")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	// Bulk files run to hundreds of megabytes; the per-call timeout does
	// not apply.
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		return 0, fmt.Errorf("scryfall: download bulk data: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("scryfall: bulk download status %d", resp.StatusCode)
	}
	return io.Copy(w, resp.Body)
}

// getJSON performs a breaker-guarded, paced, retried GET against the API.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	if !c.breaker.Allow() {
		return ErrUnavailable
	}
	err := c.getJSONOnce(ctx, path, out)
	if errors.Is(err, ErrNotFound) || ctx.Err() != nil {
		// A miss is a valid answer, and a canceled caller says nothing
		// about the API's health. Neither moves the breaker.
		return err
	}
	c.breaker.Record(err)
	return err
}

func (c *Client) getJSONOnce(ctx context.Context, path string, out any) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := retryBackoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpc.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("scryfall: %w", err)
			continue
		}
		switch {
		case resp.StatusCode == http.StatusOK:
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			if err != nil {
				return fmt.Errorf("scryfall: decode response: %w", err)
			}
			return nil
		case resp.StatusCode == http.StatusNotFound:
			resp.Body.Close()
			return ErrNotFound
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			resp.Body.Close()
			lastErr = fmt.Errorf("scryfall: status %d", resp.StatusCode)
			continue
		default:
			resp.Body.Close()
			return fmt.Errorf("scryfall: status %d", resp.StatusCode)
		}
	}
	return lastErr
}

func toCard(ac apiCard) carddb.Card {
	id := ac.OracleID
	if id == "" {
		id = ac.ID
	}
	card := carddb.NewCard(id, ac.Name)
	card.SetCode = strings.ToUpper(ac.Set)
	card.CollectorNumber = ac.CollectorNumber
	card.Lang = ac.Lang
	if card.FrontFace == "" && len(ac.CardFaces) > 0 && strings.Contains(ac.Name, "//") {
		card.FrontFace = ac.CardFaces[0].Name
	}
	return card
}
