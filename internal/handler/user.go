package handler

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"studypool-backend/internal/service"
)

// UserHandler 유저 핸들러
type UserHandler struct {
	users *service.UserService
	log   *zap.Logger
}

// NewUserHandler UserHandler 생성
func NewUserHandler(users *service.UserService, log *zap.Logger) *UserHandler {
	return &UserHandler{users: users, log: log}
}

// SearchUsersResponse 유저 검색 응답
type SearchUsersResponse struct {
	Users []UserResponse `json:"users"`
	Total int            `json:"total"`
}

// SearchUsers GET /api/users/search?q= (멤버 추가 다이얼로그)
func (h *UserHandler) SearchUsers(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	users, err := h.users.SearchUsers(c.UserContext(), userID, c.Query("q"), c.QueryInt("limit", 20))
	if err != nil {
		return respondError(c, h.log, err)
	}

	resp := SearchUsersResponse{Users: make([]UserResponse, 0, len(users)), Total: len(users)}
	for i := range users {
		resp.Users = append(resp.Users, toUserResponse(&users[i]))
	}
	return c.JSON(resp)
}
