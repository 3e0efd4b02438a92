package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// RedisClient is a list-backed job queue. Producers LPUSH, workers BRPOP, so
// each queue is FIFO.
type RedisClient struct {
	client *redis.Client
}

// Connect parses a redis:// URL and checks the server is reachable
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// NewRedisClient wraps an existing connection
func NewRedisClient(client *redis.Client) *RedisClient {
	return &RedisClient{client: client}
}

// Close closes the Redis client
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// Enqueue adds a job to the queue
func (r *RedisClient) Enqueue(ctx context.Context, queueName string, payload interface{}, opts ...EnqueueOption) (string, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job payload: %w", err)
	}

	job := Job{
		ID:         uuid.New().String(),
		Queue:      queueName,
		Payload:    payloadBytes,
		MaxRetries: DefaultMaxRetries,
		CreatedAt:  time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&job)
	}

	if err := r.push(ctx, queueName, job); err != nil {
		return "", err
	}
	return job.ID, nil
}

// Dequeue blocks up to timeout for the next job. It returns nil, nil when the
// queue stayed empty.
func (r *RedisClient) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Job, error) {
	res, err := r.client.BRPop(ctx, timeout, queueName).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pop job: %w", err)
	}

	// res is [key, value]
	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// Fail records a failed attempt. The job goes back on its queue until it
// runs out of retries, then onto the queue's dead-letter list.
func (r *RedisClient) Fail(ctx context.Context, job *Job, cause error) error {
	job.Attempts++
	if cause != nil {
		job.LastError = cause.Error()
	}
	if job.Attempts <= job.MaxRetries {
		return r.push(ctx, job.Queue, *job)
	}
	return r.push(ctx, failedPrefix+job.Queue, *job)
}

// Len returns the number of jobs waiting on a queue
func (r *RedisClient) Len(ctx context.Context, queueName string) (int64, error) {
	return r.client.LLen(ctx, queueName).Result()
}

// FailedLen returns the number of dead-lettered jobs of a queue
func (r *RedisClient) FailedLen(ctx context.Context, queueName string) (int64, error) {
	return r.client.LLen(ctx, failedPrefix+queueName).Result()
}

func (r *RedisClient) push(ctx context.Context, queueName string, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := r.client.LPush(ctx, queueName, data).Err(); err != nil {
		return fmt.Errorf("failed to add job to queue: %w", err)
	}
	return nil
}
