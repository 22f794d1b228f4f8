package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Store persists opaque snapshot documents grouped under a store name.
type Store interface {
	Load(ctx context.Context, store, document string) ([]byte, bool, error)
	Save(ctx context.Context, store, document string, payload []byte) error
}

type redisStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SnapshotKey(store, document string) string
}

// RedisStore keeps documents as plain string values without expiry.
type RedisStore struct {
	client redisStore
	isNil  func(error) bool
}

// NewRedisStore builds a redis backed store. isNil recognises the client's
// missing-key error.
func NewRedisStore(client redisStore, isNil func(error) bool) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	if isNil == nil {
		return nil, errors.New("missing-key matcher required")
	}
	return &RedisStore{client: client, isNil: isNil}, nil
}

func (s *RedisStore) Load(ctx context.Context, store, document string) ([]byte, bool, error) {
	value, err := s.client.Get(ctx, s.client.SnapshotKey(store, document))
	if err != nil {
		if s.isNil(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load snapshot %s/%s: %w", store, document, err)
	}
	return []byte(value), true, nil
}

func (s *RedisStore) Save(ctx context.Context, store, document string, payload []byte) error {
	if err := s.client.Set(ctx, s.client.SnapshotKey(store, document), string(payload), 0); err != nil {
		return fmt.Errorf("save snapshot %s/%s: %w", store, document, err)
	}
	return nil
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]byte)}
}

func (s *MemoryStore) Load(_ context.Context, store, document string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	payload, ok := s.docs[store+"/"+document]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return out, true, nil
}

func (s *MemoryStore) Save(_ context.Context, store, document string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(payload))
	copy(cp, payload)
	s.docs[store+"/"+document] = cp
	return nil
}
