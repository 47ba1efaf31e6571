package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"studypool-backend/internal/auth"
	"studypool-backend/internal/model"
)

// UserService 사용자 조회/가입
type UserService struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewUserService UserService 생성
func NewUserService(db *gorm.DB, log *zap.Logger) *UserService {
	if log == nil {
		log = zap.NewNop()
	}
	return &UserService{db: db, log: log}
}

// LoginWithIdentity 이메일로 사용자를 찾거나 만든다.
// 같은 이메일이면 제공자가 달라도 같은 계정으로 연결된다
func (s *UserService) LoginWithIdentity(ctx context.Context, id *auth.Identity) (*model.User, error) {
	email := strings.ToLower(strings.TrimSpace(id.Email))
	if email == "" {
		return nil, Invalid("Email is required")
	}

	db := s.db.WithContext(ctx)
	var user model.User
	err := db.Where("email = ?", email).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = model.User{
			Email:      email,
			Name:       displayName(id.Name, email),
			Image:      optional(id.Picture),
			Provider:   optional(id.Provider),
			ProviderID: optional(id.ProviderID),
		}
		if err := db.Create(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				// 동시 가입: 먼저 만들어진 행을 사용
				if err := db.Where("email = ?", email).First(&user).Error; err == nil {
					return &user, nil
				}
			}
			return nil, Internal("create user", err)
		}
		s.log.Info("user created", zap.Int64("user_id", user.ID), zap.String("provider", id.Provider))
		return &user, nil
	case err != nil:
		return nil, Internal("find user", err)
	}

	updates := map[string]interface{}{}
	if id.Picture != "" && (user.Image == nil || *user.Image != id.Picture) {
		updates["image"] = id.Picture
	}
	if user.Name == "" && id.Name != "" {
		updates["name"] = id.Name
	}
	if user.Provider == nil || *user.Provider != id.Provider {
		updates["provider"] = id.Provider
		updates["provider_id"] = id.ProviderID
	}
	if len(updates) > 0 {
		if err := db.Model(&user).Updates(updates).Error; err != nil {
			return nil, Internal("update user", err)
		}
	}
	return &user, nil
}

// GetUser ID 로 사용자 조회
func (s *UserService) GetUser(ctx context.Context, userID int64) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NotFound("User not found")
	}
	if err != nil {
		return nil, Internal("get user", err)
	}
	return &user, nil
}

// SearchUsers 이름 또는 이메일 부분 검색 (자기 자신 제외)
func (s *UserService) SearchUsers(ctx context.Context, callerID int64, q string, limit int) ([]model.User, error) {
	q = strings.TrimSpace(q)
	if len([]rune(q)) < 2 {
		return nil, Invalid("search query must be at least 2 characters")
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}

	pattern := containsPattern(q)
	users := make([]model.User, 0)
	err := s.db.WithContext(ctx).
		Where("id <> ?", callerID).
		Where(`LOWER(name) LIKE ? ESCAPE '\' OR LOWER(email) LIKE ? ESCAPE '\'`, pattern, pattern).
		Order("name, id").
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, Internal("search users", err)
	}
	return users, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern 소문자 부분 일치 LIKE 패턴. 입력의 와일드카드는 글자 그대로 찾는다 (ESCAPE '\')
func containsPattern(q string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(q)) + "%"
}

func displayName(name, email string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return email
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
