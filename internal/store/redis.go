package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"threadpilot/internal/llm"
)

// RedisHistory stores each session's log as a redis list of JSON messages
// with a sliding TTL.
type RedisHistory struct {
	client *redis.Client
	// TTL refreshes on every append; idle sessions expire server-side.
	TTL time.Duration
	// MaxMessages caps the retained log per session. Zero means unlimited.
	MaxMessages int
}

func NewRedisHistory(redisURL string, ttl time.Duration, maxMessages int) (*RedisHistory, error) {
	url := strings.TrimSpace(redisURL)
	if url == "" {
		return nil, errors.New("redis url is required")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisHistory{client: client, TTL: ttl, MaxMessages: maxMessages}, nil
}

func historyKey(session string) string {
	return "bot:history:" + strings.TrimSpace(session)
}

func (s *RedisHistory) Load(ctx context.Context, session string) ([]llm.Message, error) {
	if s == nil || s.client == nil {
		return nil, nil
	}
	raw, err := s.client.LRange(ctx, historyKey(session), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load history for %s: %w", session, err)
	}
	messages := make([]llm.Message, 0, len(raw))
	for _, item := range raw {
		var msg llm.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			// Skip records written by incompatible versions.
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (s *RedisHistory) Append(ctx context.Context, session string, messages []llm.Message) error {
	if s == nil || s.client == nil || len(messages) == 0 {
		return nil
	}
	key := historyKey(session)
	values := make([]any, 0, len(messages))
	for _, msg := range messages {
		data, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		values = append(values, data)
	}

	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, values...)
	if s.MaxMessages > 0 {
		pipe.LTrim(ctx, key, int64(-s.MaxMessages), -1)
	}
	pipe.Expire(ctx, key, s.TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append history for %s: %w", session, err)
	}
	return nil
}

func (s *RedisHistory) Clear(ctx context.Context, session string) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Del(ctx, historyKey(session)).Err()
}

func (s *RedisHistory) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
