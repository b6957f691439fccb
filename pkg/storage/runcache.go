package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/riskwise-ai/platform/pkg/common/models"
)

// RunCache keeps recently completed prediction runs in Redis so run
// lookups can skip the database for hot entries.
type RunCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRunCache(client *redis.Client, ttl time.Duration) *RunCache {
	return &RunCache{client: client, ttl: ttl}
}

func runKey(runID string) string {
	return fmt.Sprintf("run:%s", runID)
}

func (c *RunCache) Put(ctx context.Context, runID string, resp models.PredictionResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, runKey(runID), data, c.ttl).Err()
}

// Get returns nil without error on a cache miss.
func (c *RunCache) Get(ctx context.Context, runID string) (*models.PredictionResponse, error) {
	data, err := c.client.Get(ctx, runKey(runID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var resp models.PredictionResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
