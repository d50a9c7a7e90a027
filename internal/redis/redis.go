// Package redis bootstraps the *redis.Client that internal/streamclient
// wraps. cmd/main.go opens one Service for the message queue
// (internal/queue) and a separate one for the event log (internal/eventlog).
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Service struct {
	client *redis.Client
}

func New(redisURL string) (*Service, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Service{client: client}, nil
}

func (s *Service) Close() error {
	return s.client.Close()
}

// Client returns the underlying Redis client.
func (s *Service) Client() *redis.Client {
	return s.client
}
