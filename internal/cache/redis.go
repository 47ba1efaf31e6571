package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"studypool-backend/internal/config"
	"studypool-backend/internal/model"
)

// RedisClient wraps the Redis client for canvas snapshot caching
type RedisClient struct {
	client    *redis.Client
	canvasTTL time.Duration
	log       *zap.Logger
}

// NewRedisClient creates a new Redis client and pings it
func NewRedisClient(ctx context.Context, cfg config.RedisConfig, log *zap.Logger) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	if log == nil {
		log = zap.NewNop()
	}
	log.Info("redis connected", zap.String("addr", cfg.Addr))

	ttl := cfg.CanvasCacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisClient{client: client, canvasTTL: ttl, log: log}, nil
}

func canvasKey(poolID int64) string {
	return "pool:" + strconv.FormatInt(poolID, 10) + ":canvas"
}

// Get returns the cached snapshot, or (nil, nil) on a miss
func (r *RedisClient) Get(ctx context.Context, poolID int64) (*model.CanvasSnapshot, error) {
	data, err := r.client.Get(ctx, canvasKey(poolID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var snap model.CanvasSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		// 깨진 값은 지우고 미스로 처리
		r.client.Del(ctx, canvasKey(poolID))
		r.log.Warn("dropping corrupt canvas cache entry", zap.Int64("pool_id", poolID), zap.Error(err))
		return nil, nil
	}
	return &snap, nil
}

// setRetries bounds optimistic retries when the key changes under WATCH
const setRetries = 3

// Set stores the snapshot with the canvas TTL. An entry that already holds a
// newer version is kept, so a slow cache fill cannot overwrite a later save.
func (r *RedisClient) Set(ctx context.Context, poolID int64, snap *model.CanvasSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	key := canvasKey(poolID)

	txf := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil {
			var existing model.CanvasSnapshot
			if json.Unmarshal(cur, &existing) == nil && existing.Version > snap.Version {
				return nil
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, r.canvasTTL)
			return nil
		})
		return err
	}

	for i := 0; i < setRetries; i++ {
		err = r.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("canvas cache set pool %d: %w", poolID, err)
}

// Invalidate removes the cached snapshot
func (r *RedisClient) Invalidate(ctx context.Context, poolID int64) error {
	return r.client.Del(ctx, canvasKey(poolID)).Err()
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// Health checks if Redis is healthy
func (r *RedisClient) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
