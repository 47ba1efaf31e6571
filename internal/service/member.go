package service

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"studypool-backend/internal/model"
)

// MemberService 풀 멤버십 조회
type MemberService struct {
	db *gorm.DB
}

// NewMemberService MemberService 생성
func NewMemberService(db *gorm.DB) *MemberService {
	return &MemberService{db: db}
}

// IsMember 풀 멤버 여부 확인
func (s *MemberService) IsMember(ctx context.Context, poolID, userID int64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.PoolMember{}).
		Where("pool_id = ? AND user_id = ?", poolID, userID).
		Count(&count).Error
	if err != nil {
		return false, Internal("count pool membership", err)
	}
	return count > 0, nil
}

// Role 멤버 역할 조회 (멤버가 아니면 "", nil)
func (s *MemberService) Role(ctx context.Context, poolID, userID int64) (model.MemberRole, error) {
	var member model.PoolMember
	err := s.db.WithContext(ctx).
		Where("pool_id = ? AND user_id = ?", poolID, userID).
		First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", Internal("get pool member", err)
	}
	return model.MemberRole(member.Role), nil
}

// IsAdmin 풀 관리자 여부 확인
func (s *MemberService) IsAdmin(ctx context.Context, poolID, userID int64) (bool, error) {
	role, err := s.Role(ctx, poolID, userID)
	if err != nil {
		return false, err
	}
	return role == model.MemberRoleAdmin, nil
}

// RequireMember 멤버가 아니면 Forbidden
func (s *MemberService) RequireMember(ctx context.Context, poolID, userID int64) error {
	ok, err := s.IsMember(ctx, poolID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return Forbidden("Not a member of this pool")
	}
	return nil
}
