package service

import (
	"context"

	"studypool-backend/internal/model"
	"studypool-backend/internal/storage"
)

// ObjectStore 파일 오브젝트 저장소 (storage.S3Service)
type ObjectStore interface {
	PublicURL(fileKey string) string
	PresignPut(ctx context.Context, fileKey, contentType string, size int64) (string, error)
	Stat(ctx context.Context, fileKey string) (*storage.ObjectInfo, error)
	Delete(ctx context.Context, fileKey string) error
}

// CanvasCache 캔버스 스냅샷 캐시. Get 은 캐시 미스일 때 (nil, nil).
// Set 은 이미 더 높은 Version 이 저장되어 있으면 아무것도 바꾸지 않는다
type CanvasCache interface {
	Get(ctx context.Context, poolID int64) (*model.CanvasSnapshot, error)
	Set(ctx context.Context, poolID int64, snap *model.CanvasSnapshot) error
	Invalidate(ctx context.Context, poolID int64) error
}

// EventPublisher 풀 이벤트 전달 (WebSocket 허브)
type EventPublisher interface {
	Publish(ev model.PoolEvent)
}

type noopCache struct{}

func (noopCache) Get(context.Context, int64) (*model.CanvasSnapshot, error) { return nil, nil }
func (noopCache) Set(context.Context, int64, *model.CanvasSnapshot) error   { return nil }
func (noopCache) Invalidate(context.Context, int64) error                   { return nil }

type noopPublisher struct{}

func (noopPublisher) Publish(model.PoolEvent) {}
