package annotate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ProcessItem is pushed onto the process queue when a video has been annotated,
// so that downstream consumers can pick up the track.
type ProcessItem struct {
	AnnotationsPath string `json:"annotationsPath"`
	VideoPath       string `json:"videoPath"`
}

// Publisher announces finished annotation jobs
type Publisher interface {
	Publish(ctx context.Context, item ProcessItem) error
}

// RedisQueue appends items to a redis list
type RedisQueue struct {
	client *redis.Client
	queue  string
}

func ConnectRedisQueue(ctx context.Context, addr, queue string) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("Failed to connect to redis at %v: %w", addr, err)
	}
	return &RedisQueue{
		client: client,
		queue:  queue,
	}, nil
}

func (r *RedisQueue) Publish(ctx context.Context, item ProcessItem) error {
	b, err := json.Marshal(item)
	if err != nil {
		return err
	}
	if err := r.client.RPush(ctx, r.queue, string(b)).Err(); err != nil {
		return fmt.Errorf("Failed to push onto %v: %w", r.queue, err)
	}
	return nil
}

func (r *RedisQueue) Close() error {
	return r.client.Close()
}
