package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ScanCache shares discovery results between processes so that only one of
// them walks the plugin root per TTL window.
type ScanCache interface {
	Load(ctx context.Context, root string) ([]Record, bool, error)
	Store(ctx context.Context, root string, records []Record, ttl time.Duration) error
	Invalidate(ctx context.Context, root string) error
}

const scanKeyPrefix = "exilon:plugins:scan:"

// RedisScanCache stores discovery results as JSON under one key per root.
type RedisScanCache struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisScanCache(client *redis.Client, logger *zap.Logger) *RedisScanCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisScanCache{client: client, logger: logger.With(zap.String("component", "plugin_scan_cache"))}
}

func (c *RedisScanCache) Load(ctx context.Context, root string) ([]Record, bool, error) {
	data, err := c.client.Get(ctx, scanKeyPrefix+root).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read scan cache: %w", err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		c.logger.Warn("dropping corrupt scan cache entry", zap.String("root", root), zap.Error(err))
		return nil, false, nil
	}
	c.logger.Debug("scan cache hit", zap.String("root", root), zap.Int("plugins", len(records)))
	return records, true, nil
}

// Store saves records with activation state stripped, since that is
// per-process.
func (c *RedisScanCache) Store(ctx context.Context, root string, records []Record, ttl time.Duration) error {
	clean := make([]Record, len(records))
	for i, rec := range records {
		clean[i] = Record{Manifest: rec.Manifest, Paths: rec.Paths, Status: StatusNotActivated}
	}
	data, err := json.Marshal(clean)
	if err != nil {
		return fmt.Errorf("failed to marshal scan: %w", err)
	}
	if err := c.client.Set(ctx, scanKeyPrefix+root, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write scan cache: %w", err)
	}
	return nil
}

func (c *RedisScanCache) Invalidate(ctx context.Context, root string) error {
	if err := c.client.Del(ctx, scanKeyPrefix+root).Err(); err != nil {
		return fmt.Errorf("failed to invalidate scan cache: %w", err)
	}
	return nil
}
