package canvassync

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studypool-backend/internal/model"
)

const testToken = "token-123"

// canvasAPI serves the canvas and upload-delete routes from memory.
type canvasAPI struct {
	mu      sync.Mutex
	content model.CanvasContent
	version int64
	deleted []string
	lastReq saveRequest
}

func (a *canvasAPI) seen() (saveRequest, []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastReq, append([]string(nil), a.deleted...)
}

func startAPI(t *testing.T, api *canvasAPI) string {
	t.Helper()
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(func(c *fiber.Ctx) error {
		if c.Get(fiber.HeaderAuthorization) != "Bearer "+testToken {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
		}
		return c.Next()
	})
	app.Get("/api/pools/:id/canvas", func(c *fiber.Ctx) error {
		if c.Params("id") != "1" {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Not a member of this pool"})
		}
		api.mu.Lock()
		defer api.mu.Unlock()
		st := api.content.Normalize()
		return c.JSON(model.CanvasSnapshot{Images: st.Images, TextItems: st.TextItems, LastModified: 1700000000000, Version: api.version})
	})
	app.Put("/api/pools/:id/canvas", func(c *fiber.Ctx) error {
		var req saveRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		api.mu.Lock()
		defer api.mu.Unlock()
		api.lastReq = req
		if req.BaseVersion != nil && *req.BaseVersion != api.version {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Canvas was modified by another client"})
		}
		api.content = model.CanvasContent{Images: req.Images, TextItems: req.TextItems}
		api.version++
		return c.JSON(model.CanvasSaveResult{Success: true, LastModified: 1700000001000, Version: api.version})
	})
	app.Post("/api/uploads/delete", func(c *fiber.Ctx) error {
		var req deleteRequest
		if err := json.Unmarshal(c.Body(), &req); err != nil || req.FileKey == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "File key is required"})
		}
		api.mu.Lock()
		api.deleted = append(api.deleted, req.FileKey)
		api.mu.Unlock()
		return c.JSON(fiber.Map{"success": true})
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	return "http://" + ln.Addr().String()
}

func TestHTTPRemoteRoundTrip(t *testing.T) {
	api := &canvasAPI{}
	remote := NewHTTPRemote(startAPI(t, api)+"/", testToken, 2*time.Second)
	ctx := context.Background()

	snap, err := remote.GetCanvas(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, snap.Images)
	assert.Equal(t, int64(1700000000000), snap.LastModified)

	content := model.CanvasContent{
		Images:    []model.ImagePlacement{{URL: "https://files.example/f/1/a.png", Width: 10, Height: 10}},
		TextItems: nil,
	}
	res, err := remote.SaveCanvas(ctx, 1, content, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, int64(1), res.Version)
	last, _ := api.seen()
	assert.NotNil(t, last.TextItems, "nil slices are sent as []")
	assert.Nil(t, last.BaseVersion)

	snap, err = remote.GetCanvas(ctx, 1)
	require.NoError(t, err)
	require.Len(t, snap.Images, 1)
	assert.Equal(t, "https://files.example/f/1/a.png", snap.Images[0].URL)

	require.NoError(t, remote.DeleteFile(ctx, "1/a.png"))
	_, deleted := api.seen()
	assert.Equal(t, []string{"1/a.png"}, deleted)
}

func TestHTTPRemoteErrors(t *testing.T) {
	api := &canvasAPI{}
	base := startAPI(t, api)
	ctx := context.Background()

	_, err := NewHTTPRemote(base, testToken, time.Second).GetCanvas(ctx, 2)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, fiber.StatusForbidden, se.Code)
	assert.Equal(t, "Not a member of this pool", se.Message)

	_, err = NewHTTPRemote(base, "wrong", time.Second).GetCanvas(ctx, 1)
	require.ErrorAs(t, err, &se)
	assert.Equal(t, fiber.StatusUnauthorized, se.Code)

	stale := int64(5)
	_, err = NewHTTPRemote(base, testToken, time.Second).SaveCanvas(ctx, 1, model.CanvasContent{}, &stale)
	assert.ErrorIs(t, err, ErrConflict)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = NewHTTPRemote(base, testToken, time.Second).GetCanvas(cancelled, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSynchronizerOverHTTP(t *testing.T) {
	api := &canvasAPI{}
	remote := NewHTTPRemote(startAPI(t, api), testToken, 2*time.Second)
	s := New(remote, 1, Options{Versioned: true})
	ctx := context.Background()

	require.NoError(t, s.Load(ctx))
	_, err := s.AddText(model.TextItem{Text: "over the wire"})
	require.NoError(t, err)
	saved, err := s.Save(ctx)
	require.NoError(t, err)
	assert.True(t, saved)
	assert.Equal(t, int64(1), s.Version())
	last, _ := api.seen()
	require.NotNil(t, last.BaseVersion)
	assert.Equal(t, int64(0), *last.BaseVersion)
}
