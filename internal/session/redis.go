package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	draftKeyPrefix = "repairdesk:draft:"
	batchKeyPrefix = "repairdesk:batch:"
)

// RedisStore keeps drafts as JSON values with a Redis TTL, so drafts survive
// restarts and expire without a sweeper.
type RedisStore struct {
	client   redis.Cmdable
	draftTTL time.Duration
	batchTTL time.Duration
}

// NewRedisStore creates a store over an existing client.
func NewRedisStore(client redis.Cmdable, draftTTL, batchTTL time.Duration) *RedisStore {
	return &RedisStore{client: client, draftTTL: draftTTL, batchTTL: batchTTL}
}

func draftKey(userID int64) string {
	return draftKeyPrefix + strconv.FormatInt(userID, 10)
}

func batchKey(batchID string) string {
	return batchKeyPrefix + batchID
}

func (s *RedisStore) Get(ctx context.Context, userID int64) (*Draft, error) {
	data, err := s.client.Get(ctx, draftKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load draft: %w", err)
	}
	var draft Draft
	if err := json.Unmarshal(data, &draft); err != nil {
		return nil, fmt.Errorf("decode draft: %w", err)
	}
	return &draft, nil
}

func (s *RedisStore) Put(ctx context.Context, userID int64, draft *Draft) error {
	draft.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	if err := s.client.Set(ctx, draftKey(userID), data, s.draftTTL).Err(); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, userID int64) error {
	return s.client.Del(ctx, draftKey(userID)).Err()
}

func (s *RedisStore) FirstSeenBatch(ctx context.Context, batchID string) (bool, error) {
	return s.client.SetNX(ctx, batchKey(batchID), 1, s.batchTTL).Result()
}
