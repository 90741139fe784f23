package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/support-bot/internal/clock"
)

// StateKind is what the bot expects next from a chat participant.
type StateKind string

const (
	StateAwaitingReply   StateKind = "awaiting_reply"
	StateAwaitingAdminID StateKind = "awaiting_admin_id"
)

// State is a pending conversation step.
type State struct {
	Kind     StateKind `json:"kind"`
	TicketID int64     `json:"ticket_id,omitempty"`
}

// StateStore keeps conversation steps per identity. Get returns nil without
// error when nothing is pending.
type StateStore interface {
	Get(ctx context.Context, identity int64) (*State, error)
	Set(ctx context.Context, identity int64, state State) error
	Clear(ctx context.Context, identity int64) error
}

const statePrefix = "supportbot:state:"

// RedisStateStore shares conversation state between bot instances.
type RedisStateStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStateStore builds a store whose entries expire after ttl.
func NewRedisStateStore(client *redis.Client, ttl time.Duration) *RedisStateStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisStateStore{client: client, ttl: ttl}
}

func (s *RedisStateStore) Get(ctx context.Context, identity int64) (*State, error) {
	raw, err := s.client.Get(ctx, stateKey(identity)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}
	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return &state, nil
}

func (s *RedisStateStore) Set(ctx context.Context, identity int64, state State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, stateKey(identity), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

func (s *RedisStateStore) Clear(ctx context.Context, identity int64) error {
	if err := s.client.Del(ctx, stateKey(identity)).Err(); err != nil {
		return fmt.Errorf("clear state: %w", err)
	}
	return nil
}

func stateKey(identity int64) string {
	return fmt.Sprintf("%s%d", statePrefix, identity)
}

// MemoryStateStore is the single-instance fallback used without Redis.
type MemoryStateStore struct {
	mu      sync.Mutex
	clock   clock.Clock
	ttl     time.Duration
	entries map[int64]memoryState
}

type memoryState struct {
	state     State
	expiresAt time.Time
}

// NewMemoryStateStore builds an in-process store with the same expiry rules
// as the Redis one.
func NewMemoryStateStore(clk clock.Clock, ttl time.Duration) *MemoryStateStore {
	if clk == nil {
		clk = clock.System()
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &MemoryStateStore{clock: clk, ttl: ttl, entries: make(map[int64]memoryState)}
}

func (s *MemoryStateStore) Get(_ context.Context, identity int64) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[identity]
	if !ok {
		return nil, nil
	}
	if !s.clock.Now().Before(entry.expiresAt) {
		delete(s.entries, identity)
		return nil, nil
	}
	state := entry.state
	return &state, nil
}

func (s *MemoryStateStore) Set(_ context.Context, identity int64, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[identity] = memoryState{state: state, expiresAt: s.clock.Now().Add(s.ttl)}
	return nil
}

func (s *MemoryStateStore) Clear(_ context.Context, identity int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, identity)
	return nil
}
