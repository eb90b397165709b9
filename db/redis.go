package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	AnalyzeQueueKey = "kapsentiment:queue:analyze"
	DeadLetterKey   = "kapsentiment:queue:failed"
)

// Queue is a Redis list used as a FIFO between the fetcher and the analyzer.
type Queue struct {
	client *redis.Client
}

// ConnectRedis accepts a redis:// URL or a bare host:port.
func ConnectRedis(ctx context.Context, redisURL string) (*Queue, error) {
	if redisURL == "" {
		return nil, errors.New("REDIS_URL environment variable is not set")
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		opt = &redis.Options{Addr: redisURL}
	}

	client := redis.NewClient(opt)
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Queue{client: client}, nil
}

func NewQueue(client *redis.Client) *Queue {
	return &Queue{client: client}
}

func (q *Queue) Close() error {
	return q.client.Close()
}

func (q *Queue) Push(ctx context.Context, queueKey string, data ...string) error {
	if len(data) == 0 {
		return nil
	}
	values := make([]any, len(data))
	for i, d := range data {
		values[i] = d
	}
	return q.client.LPush(ctx, queueKey, values...).Err()
}

// Pop blocks for up to timeout. It returns "" and no error when the queue stayed empty.
func (q *Queue) Pop(ctx context.Context, queueKey string, timeout time.Duration) (string, error) {
	result, err := q.client.BRPop(ctx, timeout, queueKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return result[1], nil
}

func (q *Queue) Len(ctx context.Context, queueKey string) (int64, error) {
	return q.client.LLen(ctx, queueKey).Result()
}

// Requeue returns items to the consuming end of the queue so that data[0] is
// popped next.
func (q *Queue) Requeue(ctx context.Context, queueKey string, data ...string) error {
	if len(data) == 0 {
		return nil
	}
	values := make([]any, 0, len(data))
	for i := len(data) - 1; i >= 0; i-- {
		values = append(values, data[i])
	}
	return q.client.RPush(ctx, queueKey, values...).Err()
}
