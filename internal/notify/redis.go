package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/CharanSaiVaddi/purrctl/internal/job"
)

const DefaultList = "purr:completions"

// RedisSink appends completions to a list for a consumer to BLPOP.
type RedisSink struct {
	Client *redis.Client
	List   string
}

func NewRedisSink(url, list string) (*RedisSink, error) {
	if url == "" {
		url = "redis://localhost:6379/0"
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	if list == "" {
		list = DefaultList
	}
	return &RedisSink{Client: redis.NewClient(opts), List: list}, nil
}

func (r *RedisSink) Publish(ctx context.Context, c job.Completion) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := r.Client.RPush(ctx, r.List, data).Err(); err != nil {
		return fmt.Errorf("push to %s: %w", r.List, err)
	}
	return nil
}

func (r *RedisSink) Close() error {
	return r.Client.Close()
}
