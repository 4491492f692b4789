package draft

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each submission's drafts in one hash, field per question.
// Used by kiosk deployments where the exam device has a local Redis.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore creates a RedisStore. A positive ttl bounds how long drafts
// of an abandoned submission linger.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) Write(ctx context.Context, submissionID, questionID uuid.UUID, content string) error {
	k := key(submissionID)
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, k, questionID.String(), content)
	if s.ttl > 0 {
		pipe.Expire(ctx, k, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write draft: %w", err)
	}
	return nil
}

func (s *RedisStore) ReadAll(ctx context.Context, submissionID uuid.UUID) (map[uuid.UUID]string, error) {
	raw, err := s.rdb.HGetAll(ctx, key(submissionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read drafts: %w", err)
	}
	out := make(map[uuid.UUID]string, len(raw))
	for qid, content := range raw {
		id, err := uuid.Parse(qid)
		if err != nil {
			continue
		}
		out[id] = content
	}
	return out, nil
}

func (s *RedisStore) Clear(ctx context.Context, submissionID uuid.UUID) error {
	if err := s.rdb.Del(ctx, key(submissionID)).Err(); err != nil {
		return fmt.Errorf("clear drafts: %w", err)
	}
	return nil
}
