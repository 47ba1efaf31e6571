package handler

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"studypool-backend/internal/service"
)

func TestValidationMessage(t *testing.T) {
	tests := []struct {
		name string
		req  interface{}
		want string
	}{
		{"required", &CreatePoolRequest{}, "name is required"},
		{"email", &AddMemberRequest{Email: "nope"}, "email must be a valid email"},
		{"gt", &PresignRequest{Name: "a.png", Type: "image/png", Size: -1}, "size must be greater than 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate.Struct(tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.want, validationMessage(err))
		})
	}
}

func TestRespondErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		code int
		body string
	}{
		{service.Invalid("Pool name is required"), http.StatusBadRequest, `{"error":"Pool name is required"}`},
		{service.Forbidden("Not a member of this pool"), http.StatusForbidden, `{"error":"Not a member of this pool"}`},
		{service.NotFound("Pool not found"), http.StatusNotFound, `{"error":"Pool not found"}`},
		{service.Conflict("version mismatch"), http.StatusConflict, `{"error":"version mismatch"}`},
		{service.Unavailable("File storage is not configured"), http.StatusServiceUnavailable, `{"error":"File storage is not configured"}`},
		{service.Internal("db", io.ErrUnexpectedEOF), http.StatusInternalServerError, `{"error":"Internal Server Error"}`},
	}
	for _, tt := range tests {
		app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
		err := tt.err
		app.Get("/", func(c *fiber.Ctx) error { return respondError(c, zap.NewNop(), err) })

		resp, reqErr := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
		require.NoError(t, reqErr)
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		assert.Equal(t, tt.code, resp.StatusCode)
		assert.JSONEq(t, tt.body, string(raw))
	}
}

func TestErrorHandlerRendersFiberErrors(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Get("/pools/:id", func(c *fiber.Ctx) error {
		_, err := poolIDParam(c)
		return err
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/pools/0", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `{"error":"invalid pool ID"}`, string(raw))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/missing/route", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
