package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"

	"contextgraph/internal/models"
)

// RedisRepository keeps model answers and last-known graphs in Redis so
// they survive restarts and are shared between replicas.
type RedisRepository struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisRepository(rdb *redis.Client, ttl time.Duration) *RedisRepository {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisRepository{rdb: rdb, ttl: ttl}
}

func labelKey(key string) string {
	return "classification:" + key
}

func graphKey(projectID string) string {
	return "context-graph:" + projectID
}

func (r *RedisRepository) GetLabel(ctx context.Context, key string) (string, bool, error) {
	label, err := r.rdb.Get(ctx, labelKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return label, true, nil
}

func (r *RedisRepository) SetLabel(ctx context.Context, key, label string) error {
	return r.rdb.Set(ctx, labelKey(key), label, r.ttl).Err()
}

// GetGraph returns nil when no graph is cached for the project.
func (r *RedisRepository) GetGraph(ctx context.Context, projectID string) (*models.Graph, error) {
	data, err := r.rdb.Get(ctx, graphKey(projectID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var g models.Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to decode cached graph: %w", err)
	}
	return &g, nil
}

func (r *RedisRepository) SetGraph(ctx context.Context, g *models.Graph) error {
	data, err := json.Marshal(g)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, graphKey(g.ProjectID), data, r.ttl).Err()
}

func (r *RedisRepository) DeleteGraph(ctx context.Context, projectID string) error {
	return r.rdb.Del(ctx, graphKey(projectID)).Err()
}

// MemoryGraphCache is the in-process graph cache used when Redis is not
// configured. It holds the most recently analyzed projects.
type MemoryGraphCache struct {
	graphs *lru.Cache[string, models.Graph]
}

func NewMemoryGraphCache(size int) (*MemoryGraphCache, error) {
	if size <= 0 {
		size = 256
	}
	graphs, err := lru.New[string, models.Graph](size)
	if err != nil {
		return nil, err
	}
	return &MemoryGraphCache{graphs: graphs}, nil
}

func (c *MemoryGraphCache) GetGraph(ctx context.Context, projectID string) (*models.Graph, error) {
	g, ok := c.graphs.Get(projectID)
	if !ok {
		return nil, nil
	}
	return &g, nil
}

func (c *MemoryGraphCache) SetGraph(ctx context.Context, g *models.Graph) error {
	c.graphs.Add(g.ProjectID, *g)
	return nil
}

func (c *MemoryGraphCache) DeleteGraph(ctx context.Context, projectID string) error {
	c.graphs.Remove(projectID)
	return nil
}
