package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"studypool-backend/internal/auth"
	"studypool-backend/internal/database"
	"studypool-backend/internal/model"
	"studypool-backend/internal/service"
)

type fakeVerifier struct {
	identity *auth.Identity
	err      error
}

func (f *fakeVerifier) VerifyIDToken(ctx context.Context, idToken string) (*auth.Identity, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.identity, nil
}

type fakeExchanger struct {
	identity *auth.Identity
	code     string
}

func (f *fakeExchanger) AuthCodeURL(state string) string {
	return "https://github.example/authorize?state=" + url.QueryEscape(state)
}

func (f *fakeExchanger) Exchange(ctx context.Context, code string) (*auth.Identity, error) {
	f.code = code
	return f.identity, nil
}

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenMemory(zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func newAuthApp(t *testing.T, google IDTokenVerifier, github CodeExchanger) (*fiber.App, *gorm.DB, *auth.JWTManager) {
	t.Helper()
	db := newHandlerDB(t)
	jwtManager := auth.NewJWTManager("handler-test-secret", 15*time.Minute, time.Hour)
	h := NewAuthHandler(service.NewUserService(db, zap.NewNop()), jwtManager, google, github, "http://localhost:3000", false, zap.NewNop())

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Post("/auth/google", h.GoogleLogin)
	app.Get("/auth/github/login", h.GitHubLogin)
	app.Get("/auth/github/callback", h.GitHubCallback)
	app.Post("/auth/refresh", h.RefreshToken)
	app.Post("/auth/logout", auth.AuthMiddleware(jwtManager), h.Logout)
	app.Get("/auth/me", auth.AuthMiddleware(jwtManager), h.GetMe)
	return app, db, jwtManager
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestGoogleLoginCreatesUserAndSession(t *testing.T) {
	picture := "https://img.example/alice.png"
	verifier := &fakeVerifier{identity: &auth.Identity{
		Provider:   model.AuthProviderGoogle.String(),
		ProviderID: "g-123",
		Email:      "Alice@Example.com",
		Name:       "Alice",
		Picture:    picture,
	}}
	app, db, jwtManager := newAuthApp(t, verifier, nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/google", strings.NewReader(`{"id_token":"tok"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body AuthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "alice@example.com", body.User.Email)
	assert.Equal(t, int64(15*60), body.ExpiresIn)

	claims, err := jwtManager.ValidateAccessToken(body.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, body.User.ID, claims.UserID)

	refresh := findCookie(resp, "refresh_token")
	require.NotNil(t, refresh)
	assert.True(t, refresh.HttpOnly)
	assert.NotNil(t, findCookie(resp, auth.AccessTokenCookie))

	var count int64
	require.NoError(t, db.Model(&model.User{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// refresh with the cookie issues a new access token
	req = httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: "refresh_token", Value: refresh.Value})
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var refreshed struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&refreshed))
	assert.NotEmpty(t, refreshed.AccessToken)

	// me
	req = httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+refreshed.AccessToken)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me UserResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&me))
	assert.Equal(t, "Alice", me.Name)
	require.NotNil(t, me.Image)
	assert.Equal(t, picture, *me.Image)
}

func TestGoogleLoginErrors(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		app, _, _ := newAuthApp(t, nil, nil)
		req := httptest.NewRequest(http.MethodPost, "/auth/google", strings.NewReader(`{"id_token":"tok"}`))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})

	t.Run("missing token", func(t *testing.T) {
		app, _, _ := newAuthApp(t, &fakeVerifier{}, nil)
		req := httptest.NewRequest(http.MethodPost, "/auth/google", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		raw, _ := io.ReadAll(resp.Body)
		assert.JSONEq(t, `{"error":"id_token is required"}`, string(raw))
	})

	t.Run("unverified email", func(t *testing.T) {
		app, _, _ := newAuthApp(t, &fakeVerifier{err: auth.ErrEmailNotVerified}, nil)
		req := httptest.NewRequest(http.MethodPost, "/auth/google", strings.NewReader(`{"id_token":"tok"}`))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		raw, _ := io.ReadAll(resp.Body)
		assert.Contains(t, string(raw), "email not verified")
	})
}

func TestRefreshWithoutCookie(t *testing.T) {
	app, _, _ := newAuthApp(t, nil, nil)
	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/auth/refresh", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGitHubLoginFlow(t *testing.T) {
	exchanger := &fakeExchanger{identity: &auth.Identity{
		Provider:   model.AuthProviderGitHub.String(),
		ProviderID: "42",
		Email:      "octo@example.com",
		Name:       "octocat",
	}}
	app, db, _ := newAuthApp(t, nil, exchanger)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/auth/github/login", nil), -1)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	state := findCookie(resp, "oauth_state")
	require.NotNil(t, state)
	assert.Contains(t, resp.Header.Get("Location"), url.QueryEscape(state.Value))

	// mismatched state is rejected
	req := httptest.NewRequest(http.MethodGet, "/auth/github/callback?state=other&code=c1", nil)
	req.AddCookie(&http.Cookie{Name: "oauth_state", Value: state.Value})
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, exchanger.code)

	req = httptest.NewRequest(http.MethodGet, "/auth/github/callback?state="+url.QueryEscape(state.Value)+"&code=c1", nil)
	req.AddCookie(&http.Cookie{Name: "oauth_state", Value: state.Value})
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Location"))
	assert.Equal(t, "c1", exchanger.code)
	assert.NotNil(t, findCookie(resp, "refresh_token"))

	var user model.User
	require.NoError(t, db.Where("email = ?", "octo@example.com").First(&user).Error)
	require.NotNil(t, user.Provider)
	assert.Equal(t, "github", *user.Provider)
}

func TestLogoutClearsCookies(t *testing.T) {
	app, db, jwtManager := newAuthApp(t, nil, nil)
	u := model.User{Email: "alice@example.com", Name: "Alice"}
	require.NoError(t, db.Create(&u).Error)
	token, err := jwtManager.GenerateAccessToken(u.ID, u.Email, u.Name)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	for _, name := range []string{"refresh_token", auth.AccessTokenCookie} {
		c := findCookie(resp, name)
		require.NotNil(t, c, name)
		assert.Empty(t, c.Value, name)
	}
}
