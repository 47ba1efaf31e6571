package canvassync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"studypool-backend/internal/model"
)

// Remote is the server side of the synchronizer.
type Remote interface {
	GetCanvas(ctx context.Context, poolID int64) (*model.CanvasSnapshot, error)
	SaveCanvas(ctx context.Context, poolID int64, content model.CanvasContent, baseVersion *int64) (*model.CanvasSaveResult, error)
	DeleteFile(ctx context.Context, fileKey string) error
}

const defaultRequestTimeout = 10 * time.Second

// HTTPRemote talks to the pool API with a bearer token.
type HTTPRemote struct {
	baseURL string
	token   string
	timeout time.Duration
}

// NewHTTPRemote returns a Remote for the API at baseURL (e.g. http://localhost:8080).
func NewHTTPRemote(baseURL, token string, timeout time.Duration) *HTTPRemote {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &HTTPRemote{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		timeout: timeout,
	}
}

type saveRequest struct {
	Images      []model.ImagePlacement `json:"images"`
	TextItems   []model.TextItem       `json:"textItems"`
	BaseVersion *int64                 `json:"baseVersion,omitempty"`
}

type deleteRequest struct {
	FileKey string `json:"fileKey"`
}

func (r *HTTPRemote) GetCanvas(ctx context.Context, poolID int64) (*model.CanvasSnapshot, error) {
	var snap model.CanvasSnapshot
	if err := r.do(ctx, "get canvas", fiber.Get(r.canvasURL(poolID)), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (r *HTTPRemote) SaveCanvas(ctx context.Context, poolID int64, content model.CanvasContent, baseVersion *int64) (*model.CanvasSaveResult, error) {
	content = content.Normalize()
	body := saveRequest{Images: content.Images, TextItems: content.TextItems, BaseVersion: baseVersion}

	var res model.CanvasSaveResult
	if err := r.do(ctx, "save canvas", fiber.Put(r.canvasURL(poolID)).JSON(body), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *HTTPRemote) DeleteFile(ctx context.Context, fileKey string) error {
	return r.do(ctx, "delete file", fiber.Post(r.baseURL+"/api/uploads/delete").JSON(deleteRequest{FileKey: fileKey}), nil)
}

func (r *HTTPRemote) canvasURL(poolID int64) string {
	return r.baseURL + "/api/pools/" + strconv.FormatInt(poolID, 10) + "/canvas"
}

// do sends the request and decodes a 2xx JSON body into out (when non-nil).
func (r *HTTPRemote) do(ctx context.Context, op string, a *fiber.Agent, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	timeout := r.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}

	a.Set(fiber.HeaderAuthorization, "Bearer "+r.token)
	a.Timeout(timeout)

	code, body, errs := a.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("%s: %w", op, errors.Join(errs...))
	}
	if code < 200 || code > 299 {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &payload)
		return &StatusError{Op: op, Code: code, Message: payload.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
