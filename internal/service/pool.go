package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"studypool-backend/internal/metrics"
	"studypool-backend/internal/model"
)

const maxPoolNameLength = 100

// PoolSummary 풀 목록/상세 응답
type PoolSummary struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"createdAt"`
	CreatorID   int64     `json:"creatorId"`
	MemberCount int64     `json:"memberCount"`
	Role        string    `json:"role"`
}

// MemberInfo 멤버 목록 항목
type MemberInfo struct {
	ID       int64     `json:"id"`
	UserID   int64     `json:"userId"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Image    *string   `json:"image"`
}

// PoolService 풀 생성/조회/삭제/멤버 관리
type PoolService struct {
	db      *gorm.DB
	members *MemberService
	store   ObjectStore
	cache   CanvasCache
	events  EventPublisher
	log     *zap.Logger
}

// NewPoolService PoolService 생성. store, cache, events 는 nil 가능
func NewPoolService(db *gorm.DB, members *MemberService, store ObjectStore, cache CanvasCache, events EventPublisher, log *zap.Logger) *PoolService {
	if cache == nil {
		cache = noopCache{}
	}
	if events == nil {
		events = noopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PoolService{db: db, members: members, store: store, cache: cache, events: events, log: log}
}

// CreatePool 풀 생성 + 생성자를 admin 으로 등록 (하나의 트랜잭션)
func (s *PoolService) CreatePool(ctx context.Context, userID int64, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, Invalid("Pool name is required")
	}
	if utf8.RuneCountInString(name) > maxPoolNameLength {
		return 0, Invalid("Pool name must be at most %d characters", maxPoolNameLength)
	}

	var pool model.Pool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pool = model.Pool{Name: name, CreatorID: userID}
		if err := tx.Create(&pool).Error; err != nil {
			return err
		}
		member := model.PoolMember{
			PoolID: pool.ID,
			UserID: userID,
			Role:   model.MemberRoleAdmin.String(),
		}
		return tx.Create(&member).Error
	})
	if err != nil {
		return 0, Internal("create pool", err)
	}

	metrics.Get().PoolsCreated.Inc()
	s.log.Info("pool created", zap.Int64("pool_id", pool.ID), zap.Int64("user_id", userID))
	return pool.ID, nil
}

func (s *PoolService) summaryQuery(ctx context.Context, userID int64) *gorm.DB {
	return s.db.WithContext(ctx).
		Table("pools").
		Select("pools.id, pools.name, pools.creator_id, pools.created_at, pm.role, "+
			"(SELECT COUNT(*) FROM pool_members c WHERE c.pool_id = pools.id) AS member_count").
		Joins("JOIN pool_members pm ON pm.pool_id = pools.id AND pm.user_id = ?", userID)
}

// ListPools 사용자가 속한 풀 목록 (q: 이름 부분 검색, 대소문자 무시)
func (s *PoolService) ListPools(ctx context.Context, userID int64, q string) ([]PoolSummary, error) {
	query := s.summaryQuery(ctx, userID)
	if q = strings.TrimSpace(q); q != "" {
		query = query.Where(`LOWER(pools.name) LIKE ? ESCAPE '\'`, containsPattern(q))
	}

	pools := make([]PoolSummary, 0)
	if err := query.Order("pools.created_at DESC, pools.id DESC").Scan(&pools).Error; err != nil {
		return nil, Internal("list pools", err)
	}
	return pools, nil
}

// GetPool 풀 상세 (멤버만)
func (s *PoolService) GetPool(ctx context.Context, userID, poolID int64) (*PoolSummary, error) {
	if _, err := s.findPool(ctx, poolID); err != nil {
		return nil, err
	}
	if err := s.members.RequireMember(ctx, poolID, userID); err != nil {
		return nil, err
	}

	var pool PoolSummary
	if err := s.summaryQuery(ctx, userID).Where("pools.id = ?", poolID).Scan(&pool).Error; err != nil {
		return nil, Internal("get pool", err)
	}
	return &pool, nil
}

// DeletePool 풀 삭제 (생성자만). 멤버십, 캔버스, 파일 행을 함께 지우고
// 저장소 오브젝트는 커밋 후 best-effort 로 지운다
func (s *PoolService) DeletePool(ctx context.Context, userID, poolID int64) error {
	pool, err := s.findPool(ctx, poolID)
	if err != nil {
		return err
	}
	if pool.CreatorID != userID {
		return Forbidden("Only the creator can delete this pool")
	}

	var fileKeys []string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.File{}).Where("pool_id = ?", poolID).Pluck("key", &fileKeys).Error; err != nil {
			return err
		}
		if err := tx.Where("pool_id = ?", poolID).Delete(&model.PoolMember{}).Error; err != nil {
			return err
		}
		if err := tx.Where("pool_id = ?", poolID).Delete(&model.Canvas{}).Error; err != nil {
			return err
		}
		if err := tx.Where("pool_id = ?", poolID).Delete(&model.File{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Pool{}, poolID).Error
	})
	if err != nil {
		return Internal("delete pool", err)
	}

	if err := s.cache.Invalidate(ctx, poolID); err != nil {
		s.log.Warn("canvas cache invalidate failed", zap.Int64("pool_id", poolID), zap.Error(err))
	}
	s.deleteObjects(ctx, poolID, fileKeys)

	metrics.Get().PoolsDeleted.Inc()
	s.events.Publish(model.PoolEvent{Type: model.PoolEventPoolDeleted, PoolID: poolID, ActorID: userID, At: time.Now()})
	s.log.Info("pool deleted", zap.Int64("pool_id", poolID), zap.Int("files", len(fileKeys)))
	return nil
}

func (s *PoolService) deleteObjects(ctx context.Context, poolID int64, keys []string) {
	if len(keys) == 0 {
		return
	}
	if s.store == nil {
		s.log.Warn("file storage not configured, leaving objects", zap.Int64("pool_id", poolID), zap.Int("files", len(keys)))
		return
	}
	for _, key := range keys {
		if err := s.store.Delete(ctx, key); err != nil {
			s.log.Warn("object delete failed", zap.String("key", key), zap.Error(err))
		}
	}
}

// LeavePool 풀 탈퇴. 생성자는 탈퇴할 수 없음
func (s *PoolService) LeavePool(ctx context.Context, userID, poolID int64) error {
	ok, err := s.members.IsMember(ctx, poolID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return NotFound("Not a member")
	}

	pool, err := s.findPool(ctx, poolID)
	if err != nil {
		return err
	}
	if pool.CreatorID == userID {
		return Invalid("Creator cannot leave pool")
	}

	if err := s.db.WithContext(ctx).
		Where("pool_id = ? AND user_id = ?", poolID, userID).
		Delete(&model.PoolMember{}).Error; err != nil {
		return Internal("leave pool", err)
	}

	s.events.Publish(model.PoolEvent{Type: model.PoolEventMemberLeft, PoolID: poolID, ActorID: userID, At: time.Now()})
	return nil
}

// HasAccess 멤버십 여부
func (s *PoolService) HasAccess(ctx context.Context, userID, poolID int64) (bool, error) {
	return s.members.IsMember(ctx, poolID, userID)
}

// ListMembers 멤버 목록 (멤버만)
func (s *PoolService) ListMembers(ctx context.Context, userID, poolID int64) ([]MemberInfo, error) {
	if err := s.members.RequireMember(ctx, poolID, userID); err != nil {
		return nil, err
	}

	members := make([]MemberInfo, 0)
	err := s.db.WithContext(ctx).
		Table("pool_members pm").
		Select("pm.id, pm.user_id, pm.role, pm.joined_at, u.name, u.email, u.image").
		Joins("LEFT JOIN users u ON u.id = pm.user_id").
		Where("pm.pool_id = ?", poolID).
		Order("pm.joined_at, pm.id").
		Scan(&members).Error
	if err != nil {
		return nil, Internal("list members", err)
	}
	return members, nil
}

// AddMember 이메일로 멤버 추가 (admin 만)
func (s *PoolService) AddMember(ctx context.Context, userID, poolID int64, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return Invalid("Email is required")
	}

	isAdmin, err := s.members.IsAdmin(ctx, poolID, userID)
	if err != nil {
		return err
	}
	if !isAdmin {
		return Forbidden("Not authorized to add members")
	}

	var user model.User
	err = s.db.WithContext(ctx).Where("LOWER(email) = ?", strings.ToLower(email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NotFound("User not found")
	}
	if err != nil {
		return Internal("find user by email", err)
	}

	exists, err := s.members.IsMember(ctx, poolID, user.ID)
	if err != nil {
		return err
	}
	if exists {
		return Conflict("User is already a member of this pool")
	}

	member := model.PoolMember{PoolID: poolID, UserID: user.ID, Role: model.MemberRoleMember.String()}
	if err := s.db.WithContext(ctx).Create(&member).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return Conflict("User is already a member of this pool")
		}
		return Internal("add member", err)
	}

	s.events.Publish(model.PoolEvent{
		Type:    model.PoolEventMemberAdded,
		PoolID:  poolID,
		ActorID: userID,
		Data:    map[string]interface{}{"userId": user.ID, "email": user.Email},
		At:      time.Now(),
	})
	return nil
}

func (s *PoolService) findPool(ctx context.Context, poolID int64) (*model.Pool, error) {
	var pool model.Pool
	err := s.db.WithContext(ctx).First(&pool, poolID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NotFound("Pool not found")
	}
	if err != nil {
		return nil, Internal("get pool", err)
	}
	return &pool, nil
}
