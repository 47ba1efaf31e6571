package handler

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"studypool-backend/internal/service"
)

// PoolHandler 풀 핸들러
type PoolHandler struct {
	pools *service.PoolService
	log   *zap.Logger
}

// NewPoolHandler PoolHandler 생성
func NewPoolHandler(pools *service.PoolService, log *zap.Logger) *PoolHandler {
	return &PoolHandler{pools: pools, log: log}
}

// CreatePoolRequest 풀 생성 요청
type CreatePoolRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

// UpdatePoolRequest PATCH 요청
type UpdatePoolRequest struct {
	Action string `json:"action" validate:"required"`
}

// AddMemberRequest 멤버 추가 요청
type AddMemberRequest struct {
	Email string `json:"email" validate:"omitempty,max=255,email"`
}

// ListPools GET /api/pools
func (h *PoolHandler) ListPools(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	pools, err := h.pools.ListPools(c.UserContext(), userID, c.Query("q"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(pools)
}

// CreatePool POST /api/pools
func (h *PoolHandler) CreatePool(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	var req CreatePoolRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	id, err := h.pools.CreatePool(c.UserContext(), userID, req.Name)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{"id": id})
}

// GetPool GET /api/pools/:id
func (h *PoolHandler) GetPool(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	poolID, err := poolIDParam(c)
	if err != nil {
		return err
	}

	pool, err := h.pools.GetPool(c.UserContext(), userID, poolID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(pool)
}

// DeletePool DELETE /api/pools/:id (생성자만)
func (h *PoolHandler) DeletePool(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	poolID, err := poolIDParam(c)
	if err != nil {
		return err
	}

	if err := h.pools.DeletePool(c.UserContext(), userID, poolID); err != nil {
		return respondError(c, h.log, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// UpdatePool PATCH /api/pools/:id ({"action":"leave"})
func (h *PoolHandler) UpdatePool(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	poolID, err := poolIDParam(c)
	if err != nil {
		return err
	}

	var req UpdatePoolRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	switch req.Action {
	case "leave":
		if err := h.pools.LeavePool(c.UserContext(), userID, poolID); err != nil {
			return respondError(c, h.log, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	default:
		return fiber.NewError(fiber.StatusBadRequest, "Invalid action")
	}
}

// CheckAccess GET /api/pools/:id/access
func (h *PoolHandler) CheckAccess(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	poolID, err := poolIDParam(c)
	if err != nil {
		return err
	}

	ok, err := h.pools.HasAccess(c.UserContext(), userID, poolID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	if !ok {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"access": false})
	}
	return c.JSON(fiber.Map{"access": true})
}

// ListMembers GET /api/pools/:id/members
func (h *PoolHandler) ListMembers(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	poolID, err := poolIDParam(c)
	if err != nil {
		return err
	}

	members, err := h.pools.ListMembers(c.UserContext(), userID, poolID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(members)
}

// AddMember POST /api/pools/:id/members (admin 만)
func (h *PoolHandler) AddMember(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	poolID, err := poolIDParam(c)
	if err != nil {
		return err
	}

	var req AddMemberRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	if err := h.pools.AddMember(c.UserContext(), userID, poolID, req.Email); err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{"success": true})
}
