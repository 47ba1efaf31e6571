package handler

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"studypool-backend/internal/model"
	"studypool-backend/internal/service"
)

// CanvasHandler 풀 캔버스 핸들러
type CanvasHandler struct {
	canvas *service.CanvasService
	log    *zap.Logger
}

// NewCanvasHandler CanvasHandler 생성
func NewCanvasHandler(canvas *service.CanvasService, log *zap.Logger) *CanvasHandler {
	return &CanvasHandler{canvas: canvas, log: log}
}

// SaveCanvasRequest PUT 바디. baseVersion 이 있으면 버전 검사 후 저장
type SaveCanvasRequest struct {
	Images      []model.ImagePlacement `json:"images" validate:"max=1000"`
	TextItems   []model.TextItem       `json:"textItems" validate:"max=5000"`
	BaseVersion *int64                 `json:"baseVersion,omitempty" validate:"omitempty,gte=0"`
}

// GetCanvas GET /api/pools/:id/canvas
func (h *CanvasHandler) GetCanvas(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	poolID, err := poolIDParam(c)
	if err != nil {
		return err
	}

	snap, err := h.canvas.GetCanvas(c.UserContext(), userID, poolID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(snap)
}

// SaveCanvas PUT /api/pools/:id/canvas (전체 상태 덮어쓰기)
func (h *CanvasHandler) SaveCanvas(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	poolID, err := poolIDParam(c)
	if err != nil {
		return err
	}

	var req SaveCanvasRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	content := model.CanvasContent{Images: req.Images, TextItems: req.TextItems}
	result, err := h.canvas.SaveCanvas(c.UserContext(), userID, poolID, content, req.BaseVersion)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(result)
}
