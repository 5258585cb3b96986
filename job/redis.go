package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	jobKeyPrefix = "deckscan:job:"
	fpKeyPrefix  = "deckscan:fp:"
)

// releaseScript deletes a fingerprint claim only while it still names the
// releasing job, the compare-and-delete half of the claim protocol.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// redisStore persists jobs and fingerprint claims in Redis, sharing them
// across processes. SETNX carries the first-writer-wins claim; TTLs are
// native key expirations.
type redisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects to the Redis instance at addr.
func NewRedisStore(addr string) Store {
	return &redisStore{rdb: redis.NewClient(&redis.Options{Addr: addr})}
}

func (s *redisStore) SaveJob(ctx context.Context, j *Job, ttl time.Duration) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	if err := s.rdb.Set(ctx, jobKeyPrefix+j.ID, data, ttl).Err(); err != nil {
		return fmt.Errorf("save job %s: %w", j.ID, err)
	}
	return nil
}

func (s *redisStore) LoadJob(ctx context.Context, id string) (*Job, error) {
	data, err := s.rdb.Get(ctx, jobKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &j, nil
}

func (s *redisStore) ClaimFingerprint(ctx context.Context, fp, jobID string, ttl time.Duration) (string, bool, error) {
	key := fpKeyPrefix + fp
	// The claim can expire between a losing SETNX and the follow-up GET,
	// so one retry covers the gap.
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := s.rdb.SetNX(ctx, key, jobID, ttl).Result()
		if err != nil {
			return "", false, fmt.Errorf("claim fingerprint: %w", err)
		}
		if ok {
			return jobID, true, nil
		}
		winner, err := s.rdb.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("read fingerprint claim: %w", err)
		}
		return winner, false, nil
	}
	return "", false, fmt.Errorf("claim fingerprint: raced with an expiring claim")
}

func (s *redisStore) LookupFingerprint(ctx context.Context, fp string) (string, error) {
	id, err := s.rdb.Get(ctx, fpKeyPrefix+fp).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup fingerprint: %w", err)
	}
	return id, nil
}

func (s *redisStore) ReleaseFingerprint(ctx context.Context, fp, jobID string) error {
	if err := releaseScript.Run(ctx, s.rdb, []string{fpKeyPrefix + fp}, jobID).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release fingerprint: %w", err)
	}
	return nil
}

func (s *redisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *redisStore) Close() error {
	return s.rdb.Close()
}
