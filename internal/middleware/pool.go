package middleware

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"studypool-backend/internal/auth"
	"studypool-backend/internal/service"
)

// LocalPoolID 검증된 풀 ID 를 담는 Locals 키
const LocalPoolID = "poolID"

// PoolMiddleware 풀 권한 미들웨어
type PoolMiddleware struct {
	members *service.MemberService
	log     *zap.Logger
}

// NewPoolMiddleware PoolMiddleware 생성
func NewPoolMiddleware(members *service.MemberService, log *zap.Logger) *PoolMiddleware {
	return &PoolMiddleware{members: members, log: log}
}

// getPoolIDFromContext URL 에서 풀 ID 추출
func getPoolIDFromContext(c *fiber.Ctx) (int64, bool) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	return id, err == nil && id > 0
}

// RequireMembership 풀 멤버 필수
func (m *PoolMiddleware) RequireMembership() fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := auth.GetClaimsFromContext(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "unauthorized",
			})
		}

		poolID, ok := getPoolIDFromContext(c)
		if !ok {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid pool ID",
			})
		}

		isMember, err := m.members.IsMember(c.UserContext(), poolID, claims.UserID)
		if err != nil {
			m.log.Error("membership check failed", zap.Int64("pool_id", poolID), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Internal Server Error",
			})
		}
		if !isMember {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Not a member of this pool",
			})
		}

		// 풀 ID 를 컨텍스트에 저장
		c.Locals(LocalPoolID, poolID)
		return c.Next()
	}
}
