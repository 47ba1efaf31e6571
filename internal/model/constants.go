package model

// MemberRole 풀 멤버 역할
type MemberRole string

const (
	MemberRoleAdmin  MemberRole = "admin"
	MemberRoleMember MemberRole = "member"
)

// String 메서드
func (r MemberRole) String() string {
	return string(r)
}

// AuthProvider 로그인 제공자
type AuthProvider string

const (
	AuthProviderGoogle AuthProvider = "google"
	AuthProviderGitHub AuthProvider = "github"
)

func (p AuthProvider) String() string {
	return string(p)
}

// PoolEventType 풀 WebSocket 이벤트 타입
type PoolEventType string

const (
	PoolEventCanvasUpdated PoolEventType = "canvas_updated"
	PoolEventMemberAdded   PoolEventType = "member_added"
	PoolEventMemberLeft    PoolEventType = "member_left"
	PoolEventPoolDeleted   PoolEventType = "pool_deleted"
)

func (e PoolEventType) String() string {
	return string(e)
}
