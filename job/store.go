package job

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound means the job or fingerprint entry does not exist or has
// expired.
var ErrNotFound = errors.New("job: not found")

// Store persists job records and the fingerprint index. Both expire: jobs
// after the result TTL, fingerprint claims after the longer idempotency TTL.
// A fingerprint claim that outlives its job acts as a tombstone; Submit
// detects the dangling claim and recomputes.
type Store interface {
	// SaveJob writes a consistent snapshot of the job.
	SaveJob(ctx context.Context, j *Job, ttl time.Duration) error
	// LoadJob returns a snapshot or ErrNotFound.
	LoadJob(ctx context.Context, id string) (*Job, error)
	// ClaimFingerprint associates fp with jobID unless a live claim
	// already exists. It returns the winning job id and whether this
	// call made the claim. The insert is first-writer-wins: two
	// concurrent submitters for the same bytes agree on one id.
	ClaimFingerprint(ctx context.Context, fp, jobID string, ttl time.Duration) (string, bool, error)
	// LookupFingerprint returns the claimed job id or ErrNotFound.
	LookupFingerprint(ctx context.Context, fp string) (string, error)
	// ReleaseFingerprint removes the claim only while it still names
	// jobID, so a slow worker cannot free a successor's claim.
	ReleaseFingerprint(ctx context.Context, fp, jobID string) error
	// Ping reports store reachability.
	Ping(ctx context.Context) error
	Close() error
}
