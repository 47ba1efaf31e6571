package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"studypool-backend/internal/metrics"
	"studypool-backend/internal/model"
)

// CanvasService 풀 캔버스 조회/저장.
//
// 풀마다 canvases 행은 최대 하나이고, 첫 저장 때 upsert 로 만들어진다.
// 기본 저장은 last-writer-wins 이며 baseVersion 을 주면 버전이 다를 때 Conflict 를 돌려준다.
type CanvasService struct {
	db      *gorm.DB
	members *MemberService
	cache   CanvasCache
	events  EventPublisher
	log     *zap.Logger
	now     func() time.Time
}

// NewCanvasService CanvasService 생성. cache, events 는 nil 가능
func NewCanvasService(db *gorm.DB, members *MemberService, cache CanvasCache, events EventPublisher, log *zap.Logger) *CanvasService {
	if cache == nil {
		cache = noopCache{}
	}
	if events == nil {
		events = noopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CanvasService{db: db, members: members, cache: cache, events: events, log: log, now: time.Now}
}

// GetCanvas 저장된 캔버스. 저장 기록이 없으면 빈 목록 + 현재 시각 + 버전 0
func (s *CanvasService) GetCanvas(ctx context.Context, userID, poolID int64) (*model.CanvasSnapshot, error) {
	if err := s.members.RequireMember(ctx, poolID, userID); err != nil {
		return nil, err
	}

	if snap, err := s.cache.Get(ctx, poolID); err != nil {
		s.log.Warn("canvas cache get failed", zap.Int64("pool_id", poolID), zap.Error(err))
	} else if snap != nil {
		metrics.Get().CanvasReads.WithLabelValues("cache").Inc()
		return snap, nil
	}

	var row model.Canvas
	err := s.db.WithContext(ctx).Where("pool_id = ?", poolID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &model.CanvasSnapshot{
			Images:       []model.ImagePlacement{},
			TextItems:    []model.TextItem{},
			LastModified: s.now().UnixMilli(),
			Version:      0,
		}, nil
	}
	if err != nil {
		return nil, Internal("get canvas", err)
	}
	metrics.Get().CanvasReads.WithLabelValues("db").Inc()

	var content model.CanvasContent
	if len(row.Content) > 0 {
		if err := json.Unmarshal(row.Content, &content); err != nil {
			return nil, Internal("decode canvas content", err)
		}
	}
	content = content.Normalize()

	snap := &model.CanvasSnapshot{
		Images:       content.Images,
		TextItems:    content.TextItems,
		LastModified: row.UpdatedAt.UnixMilli(),
		Version:      row.Version,
	}
	if err := s.cache.Set(ctx, poolID, snap); err != nil {
		s.log.Warn("canvas cache set failed", zap.Int64("pool_id", poolID), zap.Error(err))
	}
	return snap, nil
}

// SaveCanvas 전체 상태로 덮어쓰기. baseVersion 이 nil 이면 last-writer-wins
func (s *CanvasService) SaveCanvas(ctx context.Context, userID, poolID int64, content model.CanvasContent, baseVersion *int64) (*model.CanvasSaveResult, error) {
	if err := s.members.RequireMember(ctx, poolID, userID); err != nil {
		return nil, err
	}
	if baseVersion != nil && *baseVersion < 0 {
		return nil, Invalid("baseVersion must not be negative")
	}

	content = content.Normalize()
	data, err := json.Marshal(content)
	if err != nil {
		return nil, Invalid("invalid canvas content")
	}

	// 응답의 lastModified 와 이후 GET 값이 같도록 ms 단위로 맞춘다
	now := s.now().UTC().Truncate(time.Millisecond)

	var version int64
	if baseVersion == nil {
		version, err = s.upsert(ctx, userID, poolID, data, now)
	} else {
		version, err = s.compareAndSwap(ctx, userID, poolID, data, now, *baseVersion)
	}
	if err != nil {
		if KindOf(err) == KindConflict {
			metrics.Get().CanvasSaves.WithLabelValues("conflict").Inc()
		} else {
			metrics.Get().CanvasSaves.WithLabelValues("error").Inc()
		}
		return nil, err
	}
	metrics.Get().CanvasSaves.WithLabelValues("ok").Inc()

	result := &model.CanvasSaveResult{Success: true, LastModified: now.UnixMilli(), Version: version}

	// 저장한 상태를 바로 캐시에 쓴다. 캐시는 더 낮은 버전으로 덮어쓰지 않는다
	snap := &model.CanvasSnapshot{
		Images:       content.Images,
		TextItems:    content.TextItems,
		LastModified: result.LastModified,
		Version:      version,
	}
	if err := s.cache.Set(ctx, poolID, snap); err != nil {
		s.log.Warn("canvas cache write failed", zap.Int64("pool_id", poolID), zap.Error(err))
		if err := s.cache.Invalidate(ctx, poolID); err != nil {
			s.log.Warn("canvas cache invalidate failed", zap.Int64("pool_id", poolID), zap.Error(err))
		}
	}

	s.events.Publish(model.PoolEvent{
		Type:    model.PoolEventCanvasUpdated,
		PoolID:  poolID,
		ActorID: userID,
		Data:    map[string]interface{}{"lastModified": result.LastModified, "version": result.Version},
		At:      now,
	})
	return result, nil
}

func (s *CanvasService) upsert(ctx context.Context, userID, poolID int64, data []byte, now time.Time) (int64, error) {
	var version int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := model.Canvas{
			PoolID:    poolID,
			CreatorID: userID,
			Content:   datatypes.JSON(data),
			Version:   1,
			CreatedAt: now,
			UpdatedAt: now,
		}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "pool_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"content":    datatypes.JSON(data),
				"updated_at": now,
				"version":    gorm.Expr("canvases.version + 1"),
			}),
		}).Create(&row).Error
		if err != nil {
			return err
		}
		var saved model.Canvas
		if err := tx.Select("version").Where("pool_id = ?", poolID).First(&saved).Error; err != nil {
			return err
		}
		version = saved.Version
		return nil
	})
	if err != nil {
		return 0, Internal("upsert canvas", err)
	}
	return version, nil
}

func (s *CanvasService) compareAndSwap(ctx context.Context, userID, poolID int64, data []byte, now time.Time, base int64) (int64, error) {
	db := s.db.WithContext(ctx)

	if base == 0 {
		row := model.Canvas{
			PoolID:    poolID,
			CreatorID: userID,
			Content:   datatypes.JSON(data),
			Version:   1,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := db.Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return 0, Conflict("Canvas was modified by someone else")
			}
			return 0, Internal("create canvas", err)
		}
		return 1, nil
	}

	res := db.Model(&model.Canvas{}).
		Where("pool_id = ? AND version = ?", poolID, base).
		Updates(map[string]interface{}{
			"content":    datatypes.JSON(data),
			"updated_at": now,
			"version":    gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return 0, Internal("update canvas", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, Conflict("Canvas was modified by someone else")
	}
	return base + 1, nil
}
