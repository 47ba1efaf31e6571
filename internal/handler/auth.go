package handler

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"studypool-backend/internal/auth"
	"studypool-backend/internal/model"
	"studypool-backend/internal/service"
)

const (
	refreshTokenCookie = "refresh_token"
	oauthStateCookie   = "oauth_state"
)

// IDTokenVerifier Google ID Token 검증 (auth.GoogleAuthenticator)
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Identity, error)
}

// CodeExchanger OAuth authorization code flow (auth.GitHubAuthenticator)
type CodeExchanger interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.Identity, error)
}

// AuthHandler 인증 핸들러
type AuthHandler struct {
	users        *service.UserService
	jwtManager   *auth.JWTManager
	google       IDTokenVerifier
	github       CodeExchanger
	frontendURL  string
	secureCookie bool
	log          *zap.Logger
}

// NewAuthHandler AuthHandler 생성. google, github 는 설정되지 않았으면 nil
func NewAuthHandler(users *service.UserService, jwtManager *auth.JWTManager, google IDTokenVerifier, github CodeExchanger, frontendURL string, secureCookie bool, log *zap.Logger) *AuthHandler {
	return &AuthHandler{
		users:        users,
		jwtManager:   jwtManager,
		google:       google,
		github:       github,
		frontendURL:  frontendURL,
		secureCookie: secureCookie,
		log:          log,
	}
}

// GoogleLoginRequest Google 로그인 요청
type GoogleLoginRequest struct {
	IDToken string `json:"id_token" validate:"required"`
}

// AuthResponse 인증 응답
type AuthResponse struct {
	User        UserResponse `json:"user"`
	AccessToken string       `json:"access_token"`
	ExpiresIn   int64        `json:"expires_in"`
}

// UserResponse 사용자 응답
type UserResponse struct {
	ID       int64   `json:"id"`
	Email    string  `json:"email"`
	Name     string  `json:"name"`
	Image    *string `json:"image,omitempty"`
	Provider *string `json:"provider,omitempty"`
}

func toUserResponse(u *model.User) UserResponse {
	return UserResponse{
		ID:       u.ID,
		Email:    u.Email,
		Name:     u.Name,
		Image:    u.Image,
		Provider: u.Provider,
	}
}

// GoogleLogin POST /auth/google
func (h *AuthHandler) GoogleLogin(c *fiber.Ctx) error {
	if h.google == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "Google login is not configured")
	}

	var req GoogleLoginRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	// Google ID Token 검증
	ctx, cancel := context.WithTimeout(c.UserContext(), 10*time.Second)
	defer cancel()

	identity, err := h.google.VerifyIDToken(ctx, req.IDToken)
	if err != nil {
		if errors.Is(err, auth.ErrEmailNotVerified) {
			return fiber.NewError(fiber.StatusUnauthorized, "email not verified")
		}
		return fiber.NewError(fiber.StatusUnauthorized, "invalid google token")
	}

	user, err := h.users.LoginWithIdentity(ctx, identity)
	if err != nil {
		return respondError(c, h.log, err)
	}

	resp, err := h.issueSession(c, user)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

// GitHubLogin GET /auth/github/login (GitHub 로 리다이렉트)
func (h *AuthHandler) GitHubLogin(c *fiber.Ctx) error {
	if h.github == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "GitHub login is not configured")
	}

	state, err := auth.NewState()
	if err != nil {
		h.log.Error("oauth state generation failed", zap.Error(err))
		return fiber.ErrInternalServerError
	}

	c.Cookie(&fiber.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/auth/github",
		MaxAge:   10 * 60,
		Secure:   h.secureCookie,
		HTTPOnly: true,
		SameSite: "Lax",
	})
	return c.Redirect(h.github.AuthCodeURL(state), fiber.StatusFound)
}

// GitHubCallback GET /auth/github/callback
func (h *AuthHandler) GitHubCallback(c *fiber.Ctx) error {
	if h.github == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "GitHub login is not configured")
	}

	state := c.Query("state")
	expected := c.Cookies(oauthStateCookie)
	h.clearCookie(c, oauthStateCookie, "/auth/github")
	if state == "" || expected == "" || state != expected {
		return fiber.NewError(fiber.StatusBadRequest, "invalid oauth state")
	}

	code := c.Query("code")
	if code == "" {
		return fiber.NewError(fiber.StatusBadRequest, "missing code")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 15*time.Second)
	defer cancel()

	identity, err := h.github.Exchange(ctx, code)
	if err != nil {
		h.log.Warn("github login failed", zap.Error(err))
		return fiber.NewError(fiber.StatusUnauthorized, "github login failed")
	}

	user, err := h.users.LoginWithIdentity(ctx, identity)
	if err != nil {
		return respondError(c, h.log, err)
	}

	if _, err := h.issueSession(c, user); err != nil {
		return err
	}
	return c.Redirect(h.frontendURL, fiber.StatusFound)
}

// issueSession 액세스/리프레시 토큰 발급 + 쿠키 설정
func (h *AuthHandler) issueSession(c *fiber.Ctx, user *model.User) (*AuthResponse, error) {
	accessToken, err := h.jwtManager.GenerateAccessToken(user.ID, user.Email, user.Name)
	if err != nil {
		h.log.Error("access token generation failed", zap.Error(err))
		return nil, fiber.NewError(fiber.StatusInternalServerError, "failed to generate token")
	}

	refreshToken, err := h.jwtManager.GenerateRefreshToken(user.ID)
	if err != nil {
		h.log.Error("refresh token generation failed", zap.Error(err))
		return nil, fiber.NewError(fiber.StatusInternalServerError, "failed to generate refresh token")
	}

	// HTTP-Only 쿠키로 리프레시 토큰 설정
	c.Cookie(&fiber.Cookie{
		Name:     refreshTokenCookie,
		Value:    refreshToken,
		Path:     "/",
		MaxAge:   int(h.jwtManager.RefreshExpiry().Seconds()),
		Secure:   h.secureCookie,
		HTTPOnly: true,
		SameSite: "Lax",
	})
	// 브라우저 WebSocket 연결용 액세스 토큰 쿠키
	c.Cookie(&fiber.Cookie{
		Name:     auth.AccessTokenCookie,
		Value:    accessToken,
		Path:     "/",
		MaxAge:   int(h.jwtManager.AccessExpiry().Seconds()),
		Secure:   h.secureCookie,
		HTTPOnly: true,
		SameSite: "Lax",
	})

	return &AuthResponse{
		User:        toUserResponse(user),
		AccessToken: accessToken,
		ExpiresIn:   int64(h.jwtManager.AccessExpiry().Seconds()),
	}, nil
}

// RefreshToken POST /auth/refresh
func (h *AuthHandler) RefreshToken(c *fiber.Ctx) error {
	refreshToken := c.Cookies(refreshTokenCookie)
	if refreshToken == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "refresh token not found")
	}

	// 리프레시 토큰 검증
	userID, err := h.jwtManager.ValidateRefreshToken(refreshToken)
	if err != nil {
		h.clearCookie(c, refreshTokenCookie, "/")
		return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired refresh token")
	}

	user, err := h.users.GetUser(c.UserContext(), userID)
	if err != nil {
		if service.KindOf(err) == service.KindNotFound {
			return fiber.NewError(fiber.StatusUnauthorized, "user not found")
		}
		return respondError(c, h.log, err)
	}

	resp, err := h.issueSession(c, user)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"access_token": resp.AccessToken,
		"expires_in":   resp.ExpiresIn,
	})
}

// Logout POST /auth/logout
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	h.clearCookie(c, refreshTokenCookie, "/")
	h.clearCookie(c, auth.AccessTokenCookie, "/")

	return c.JSON(fiber.Map{
		"message": "logged out successfully",
	})
}

// GetMe GET /auth/me
func (h *AuthHandler) GetMe(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	user, err := h.users.GetUser(c.UserContext(), userID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(toUserResponse(user))
}

func (h *AuthHandler) clearCookie(c *fiber.Ctx, name, path string) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		MaxAge:   -1,
		Secure:   h.secureCookie,
		HTTPOnly: true,
	})
}
