package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"studypool-backend/internal/metrics"
	"studypool-backend/internal/model"
	"studypool-backend/internal/storage"
)

var extPattern = regexp.MustCompile(`^\.[a-z0-9]{1,8}$`)

// UploadLimits 업로드 허용 타입/크기
type UploadLimits struct {
	MaxBytes     int64
	AllowedTypes []string
}

func (l UploadLimits) allows(contentType string) bool {
	for _, t := range l.AllowedTypes {
		if strings.EqualFold(t, contentType) {
			return true
		}
	}
	return false
}

// PresignResult presigned 업로드 응답
type PresignResult struct {
	UploadURL string `json:"uploadUrl"`
	FileKey   string `json:"fileKey"`
	URL       string `json:"url"`
}

// FileInfo 파일 응답
type FileInfo struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	Key        string    `json:"key"`
	Size       int64     `json:"size"`
	Type       string    `json:"type"`
	PoolID     int64     `json:"poolId"`
	UploaderID int64     `json:"uploaderId"`
	UploadedAt time.Time `json:"uploadedAt"`
}

func toFileInfo(f *model.File) FileInfo {
	return FileInfo{
		ID:         f.ID,
		Name:       f.Name,
		URL:        f.URL,
		Key:        f.Key,
		Size:       f.Size,
		Type:       f.Type,
		PoolID:     f.PoolID,
		UploaderID: f.UploaderID,
		UploadedAt: f.UploadedAt,
	}
}

// FileService 풀 파일 업로드/삭제. 캔버스 내용과는 독립적이다
type FileService struct {
	db      *gorm.DB
	members *MemberService
	store   ObjectStore
	limits  UploadLimits
	log     *zap.Logger
}

// NewFileService FileService 생성. store 가 nil 이면 모든 작업이 Unavailable
func NewFileService(db *gorm.DB, members *MemberService, store ObjectStore, limits UploadLimits, log *zap.Logger) *FileService {
	if log == nil {
		log = zap.NewNop()
	}
	return &FileService{db: db, members: members, store: store, limits: limits, log: log}
}

func (s *FileService) requireStore() error {
	if s.store == nil {
		return Unavailable("File storage is not configured")
	}
	return nil
}

func (s *FileService) checkUpload(contentType string, size int64) error {
	if !s.limits.allows(contentType) {
		return Invalid("File type %q is not allowed", contentType)
	}
	if size <= 0 {
		return Invalid("File is empty")
	}
	if size > s.limits.MaxBytes {
		return Invalid("File exceeds the %dMB limit", s.limits.MaxBytes/(1024*1024))
	}
	return nil
}

// NewFileKey <poolID>/<uuid><ext>
func NewFileKey(poolID int64, name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if !extPattern.MatchString(ext) {
		ext = ""
	}
	return fmt.Sprintf("%d/%s%s", poolID, uuid.NewString(), ext)
}

// PresignUpload 업로드용 presigned URL 발급
func (s *FileService) PresignUpload(ctx context.Context, userID, poolID int64, name, contentType string, size int64) (*PresignResult, error) {
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	if err := s.members.RequireMember(ctx, poolID, userID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" {
		return nil, Invalid("File name is required")
	}
	if err := s.checkUpload(contentType, size); err != nil {
		return nil, err
	}

	key := NewFileKey(poolID, name)
	uploadURL, err := s.store.PresignPut(ctx, key, contentType, size)
	if err != nil {
		return nil, Internal("presign upload", err)
	}

	return &PresignResult{UploadURL: uploadURL, FileKey: key, URL: s.store.PublicURL(key)}, nil
}

// ConfirmUpload 업로드 완료 후 File 행 생성. 크기/타입은 저장소 값을 따른다
func (s *FileService) ConfirmUpload(ctx context.Context, userID, poolID int64, name, fileKey string) (*FileInfo, error) {
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	if err := s.members.RequireMember(ctx, poolID, userID); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(fileKey, fmt.Sprintf("%d/", poolID)) {
		return nil, Invalid("File key does not belong to this pool")
	}

	info, err := s.store.Stat(ctx, fileKey)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, Invalid("Upload not found")
	}
	if err != nil {
		return nil, Internal("stat upload", err)
	}
	if err := s.checkUpload(info.ContentType, info.Size); err != nil {
		if delErr := s.store.Delete(ctx, fileKey); delErr != nil {
			s.log.Warn("rejected upload cleanup failed", zap.String("key", fileKey), zap.Error(delErr))
		}
		return nil, err
	}

	file := model.File{
		Name:       sanitizeFileName(name),
		URL:        s.store.PublicURL(fileKey),
		Key:        fileKey,
		Size:       info.Size,
		Type:       info.ContentType,
		PoolID:     poolID,
		UploaderID: userID,
	}
	if err := s.db.WithContext(ctx).Create(&file).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, Conflict("Upload already confirmed")
		}
		return nil, Internal("create file", err)
	}

	metrics.Get().FilesUploaded.Inc()
	out := toFileInfo(&file)
	return &out, nil
}

// ListFiles 풀 파일 목록 (멤버만)
func (s *FileService) ListFiles(ctx context.Context, userID, poolID int64) ([]FileInfo, error) {
	if err := s.members.RequireMember(ctx, poolID, userID); err != nil {
		return nil, err
	}

	var files []model.File
	if err := s.db.WithContext(ctx).
		Where("pool_id = ?", poolID).
		Order("uploaded_at DESC, id DESC").
		Find(&files).Error; err != nil {
		return nil, Internal("list files", err)
	}

	out := make([]FileInfo, 0, len(files))
	for i := range files {
		out = append(out, toFileInfo(&files[i]))
	}
	return out, nil
}

// DeleteFile 파일 삭제 (파일이 속한 풀의 멤버만). 오브젝트를 먼저 지우고 행을 지운다
func (s *FileService) DeleteFile(ctx context.Context, userID int64, fileKey string) error {
	fileKey = strings.TrimSpace(fileKey)
	if fileKey == "" {
		return Invalid("File key is required")
	}
	if err := s.requireStore(); err != nil {
		return err
	}

	var file model.File
	err := s.db.WithContext(ctx).Where(&model.File{Key: fileKey}).First(&file).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NotFound("File not found")
	}
	if err != nil {
		return Internal("get file", err)
	}
	if err := s.members.RequireMember(ctx, file.PoolID, userID); err != nil {
		return err
	}

	if err := s.store.Delete(ctx, fileKey); err != nil {
		return Internal("delete object", err)
	}
	if err := s.db.WithContext(ctx).Delete(&model.File{}, file.ID).Error; err != nil {
		return Internal("delete file row", err)
	}

	metrics.Get().FilesDeleted.Inc()
	s.log.Info("file deleted", zap.String("key", fileKey), zap.Int64("pool_id", file.PoolID), zap.Int64("user_id", userID))
	return nil
}

const maxFileNameRunes = 255

// sanitizeFileName 경로 구분자와 제어 문자 제거, 최대 255자 (바이트가 아닌 문자 기준)
func sanitizeFileName(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f || r == '/' || r == '\\' {
			return -1
		}
		return r
	}, name)
	if runes := []rune(name); len(runes) > maxFileNameRunes {
		name = string(runes[:maxFileNameRunes])
	}
	if name == "" || name == "." {
		return "file"
	}
	return name
}
