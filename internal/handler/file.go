package handler

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"studypool-backend/internal/service"
)

// FileHandler 파일 업로드/삭제 핸들러
type FileHandler struct {
	files *service.FileService
	log   *zap.Logger
}

// NewFileHandler FileHandler 생성
func NewFileHandler(files *service.FileService, log *zap.Logger) *FileHandler {
	return &FileHandler{files: files, log: log}
}

// PresignRequest 업로드 URL 요청
type PresignRequest struct {
	Name string `json:"name" validate:"required,max=255"`
	Type string `json:"type" validate:"required,max=100"`
	Size int64  `json:"size" validate:"required,gt=0"`
}

// ConfirmUploadRequest 업로드 완료 요청
type ConfirmUploadRequest struct {
	Name    string `json:"name" validate:"required,max=255"`
	FileKey string `json:"fileKey" validate:"required,max=500"`
}

// DeleteUploadRequest 파일 삭제 요청
type DeleteUploadRequest struct {
	FileKey string `json:"fileKey"`
}

// PresignUpload POST /api/pools/:id/files/presign
func (h *FileHandler) PresignUpload(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	poolID, err := poolIDParam(c)
	if err != nil {
		return err
	}

	var req PresignRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	res, err := h.files.PresignUpload(c.UserContext(), userID, poolID, req.Name, req.Type, req.Size)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(res)
}

// ConfirmUpload POST /api/pools/:id/files
func (h *FileHandler) ConfirmUpload(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	poolID, err := poolIDParam(c)
	if err != nil {
		return err
	}

	var req ConfirmUploadRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	file, err := h.files.ConfirmUpload(c.UserContext(), userID, poolID, req.Name, req.FileKey)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(file)
}

// ListFiles GET /api/pools/:id/files
func (h *FileHandler) ListFiles(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	poolID, err := poolIDParam(c)
	if err != nil {
		return err
	}

	files, err := h.files.ListFiles(c.UserContext(), userID, poolID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(files)
}

// DeleteUpload POST /api/uploads/delete ({"fileKey": ...})
func (h *FileHandler) DeleteUpload(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	var req DeleteUploadRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	if err := h.files.DeleteFile(c.UserContext(), userID, req.FileKey); err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "File deleted successfully",
	})
}
