package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/igolaizola/igotutor/pkg/memory"
	goredis "github.com/redis/go-redis/v9"
)

// KeyPrefix is prepended to session ids to build the list key.
const KeyPrefix = "sess:"

// Store keeps sessions in Redis lists, one JSON encoded message per element.
// Sessions are shared between instances and survive restarts as far as the
// Redis server persists them.
type Store struct {
	client  *goredis.Client
	timeout time.Duration
}

// New connects to the redis server at the given url (redis://...).
func New(ctx context.Context, u string, timeout time.Duration) (*Store, error) {
	opts, err := goredis.ParseURL(u)
	if err != nil {
		return nil, fmt.Errorf("redis: couldn't parse url: %w", err)
	}
	s := NewWithClient(goredis.NewClient(opts), timeout)
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		_ = s.client.Close()
		return nil, fmt.Errorf("redis: couldn't ping server: %w: %w", memory.ErrUnavailable, err)
	}
	return s, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *goredis.Client, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Store{
		client:  client,
		timeout: timeout,
	}
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func key(sessionID string) string {
	return KeyPrefix + memory.SessionID(sessionID)
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) Append(ctx context.Context, sessionID string, msgs ...memory.Message) (int, error) {
	if len(msgs) == 0 {
		ctx, cancel := s.withTimeout(ctx)
		defer cancel()
		n, err := s.client.LLen(ctx, key(sessionID)).Result()
		if err != nil {
			return 0, unavailable("couldn't get length", err)
		}
		return int(n), nil
	}
	values := make([]any, 0, len(msgs))
	for _, m := range msgs {
		js, err := json.Marshal(m)
		if err != nil {
			return 0, fmt.Errorf("redis: couldn't marshal message: %w", err)
		}
		values = append(values, string(js))
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	n, err := s.client.RPush(ctx, key(sessionID), values...).Result()
	if err != nil {
		return 0, unavailable("couldn't push messages", err)
	}
	return int(n), nil
}

func (s *Store) ReadAll(ctx context.Context, sessionID string) ([]memory.Message, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	raw, err := s.client.LRange(ctx, key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, unavailable("couldn't read messages", err)
	}
	msgs := make([]memory.Message, 0, len(raw))
	for _, r := range raw {
		var m memory.Message
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			return nil, fmt.Errorf("redis: couldn't unmarshal message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (s *Store) Trim(ctx context.Context, sessionID string, maxLen int) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var err error
	if maxLen <= 0 {
		err = s.client.Del(ctx, key(sessionID)).Err()
	} else {
		err = s.client.LTrim(ctx, key(sessionID), int64(-maxLen), -1).Err()
	}
	if err != nil {
		return unavailable("couldn't trim messages", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context, sessionID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.client.Del(ctx, key(sessionID)).Err(); err != nil {
		return unavailable("couldn't delete session", err)
	}
	return nil
}

func unavailable(msg string, err error) error {
	return fmt.Errorf("redis: %s: %w: %w", msg, memory.ErrUnavailable, err)
}
