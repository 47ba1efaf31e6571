package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// 컨텍스트 Locals 키
const (
	LocalUserID = "userID"
	LocalEmail  = "email"
	LocalName   = "name"
	LocalClaims = "claims"
)

// AccessTokenCookie 액세스 토큰 쿠키 이름
const AccessTokenCookie = "access_token"

// AuthMiddleware JWT 인증 미들웨어
func AuthMiddleware(jwtManager *JWTManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := extractToken(c)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing authorization token",
			})
		}
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid authorization header format",
			})
		}

		// 토큰 검증
		claims, err := jwtManager.ValidateAccessToken(token)
		if err != nil {
			if errors.Is(err, ErrExpiredToken) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "token expired",
					"code":  "TOKEN_EXPIRED",
				})
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid token",
			})
		}

		setClaims(c, claims)
		return c.Next()
	}
}

// OptionalAuthMiddleware 선택적 인증 미들웨어 (인증 실패해도 계속 진행)
func OptionalAuthMiddleware(jwtManager *JWTManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token, ok := extractToken(c); ok && token != "" {
			if claims, err := jwtManager.ValidateAccessToken(token); err == nil {
				setClaims(c, claims)
			}
		}
		return c.Next()
	}
}

// ErrNoClaims 인증 미들웨어를 거치지 않은 요청
var ErrNoClaims = errors.New("no claims in context")

// GetClaimsFromContext 미들웨어가 저장한 클레임
func GetClaimsFromContext(c *fiber.Ctx) (*Claims, error) {
	claims, ok := c.Locals(LocalClaims).(*Claims)
	if !ok || claims == nil {
		return nil, ErrNoClaims
	}
	return claims, nil
}

// GetUserID 인증된 사용자 ID (없으면 0, false)
func GetUserID(c *fiber.Ctx) (int64, bool) {
	id, ok := c.Locals(LocalUserID).(int64)
	return id, ok && id > 0
}

// extractToken Authorization 헤더 또는 쿠키에서 토큰 추출.
// 헤더가 있지만 형식이 틀리면 ("", true)
func extractToken(c *fiber.Ctx) (string, bool) {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		cookie := c.Cookies(AccessTokenCookie)
		return cookie, cookie != ""
	}

	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", true
	}
	return parts[1], true
}

func setClaims(c *fiber.Ctx, claims *Claims) {
	c.Locals(LocalUserID, claims.UserID)
	c.Locals(LocalEmail, claims.Email)
	c.Locals(LocalName, claims.Name)
	c.Locals(LocalClaims, claims)
}
