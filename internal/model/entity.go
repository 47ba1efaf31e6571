package model

import (
	"time"

	"gorm.io/datatypes"
)

// User 사용자
type User struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Email      string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Name       string    `gorm:"type:varchar(100)" json:"name"`
	Image      *string   `gorm:"type:text" json:"image,omitempty"`
	Provider   *string   `gorm:"type:varchar(50)" json:"provider,omitempty"`
	ProviderID *string   `gorm:"type:varchar(255)" json:"provider_id,omitempty"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	Memberships []PoolMember `gorm:"foreignKey:UserID" json:"memberships,omitempty"`
}

func (User) TableName() string {
	return "users"
}

// Pool 스터디 풀
type Pool struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"type:varchar(100);not null" json:"name"`
	CreatorID int64     `gorm:"not null;index" json:"creator_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	Creator User         `gorm:"foreignKey:CreatorID" json:"creator,omitempty"`
	Members []PoolMember `gorm:"foreignKey:PoolID" json:"members,omitempty"`
	Files   []File       `gorm:"foreignKey:PoolID" json:"files,omitempty"`
}

func (Pool) TableName() string {
	return "pools"
}

// PoolMember 풀 멤버 (pool, user 쌍마다 한 행)
type PoolMember struct {
	ID       int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	PoolID   int64     `gorm:"not null;uniqueIndex:idx_pool_members_pool_user" json:"pool_id"`
	UserID   int64     `gorm:"not null;uniqueIndex:idx_pool_members_pool_user;index" json:"user_id"`
	Role     string    `gorm:"type:varchar(20);not null;default:'member'" json:"role"` // admin, member
	JoinedAt time.Time `gorm:"autoCreateTime" json:"joined_at"`

	// Relations
	Pool Pool `gorm:"foreignKey:PoolID" json:"pool,omitempty"`
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (PoolMember) TableName() string {
	return "pool_members"
}

// Canvas 풀 캔버스 (풀마다 최대 한 행, 첫 저장 시 생성)
type Canvas struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string         `gorm:"type:varchar(100);not null;default:'Pool Canvas'" json:"name"`
	PoolID    int64          `gorm:"not null;uniqueIndex" json:"pool_id"`
	CreatorID int64          `gorm:"not null" json:"creator_id"`
	Content   datatypes.JSON `json:"content"`
	Version   int64          `gorm:"not null;default:1" json:"version"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`

	// Relations
	Pool    Pool `gorm:"foreignKey:PoolID" json:"pool,omitempty"`
	Creator User `gorm:"foreignKey:CreatorID" json:"creator,omitempty"`
}

func (Canvas) TableName() string {
	return "canvases"
}

// File 풀에 업로드된 파일
type File struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name       string    `gorm:"type:varchar(255);not null" json:"name"`
	URL        string    `gorm:"type:text;not null" json:"url"`
	Key        string    `gorm:"type:varchar(500);not null;uniqueIndex" json:"key"` // /f/ 뒤의 파일 키
	Size       int64     `gorm:"not null" json:"size"`
	Type       string    `gorm:"type:varchar(100);not null" json:"type"`
	PoolID     int64     `gorm:"not null;index" json:"pool_id"`
	UploaderID int64     `gorm:"not null" json:"uploader_id"`
	UploadedAt time.Time `gorm:"autoCreateTime" json:"uploaded_at"`

	// Relations
	Pool     Pool `gorm:"foreignKey:PoolID" json:"pool,omitempty"`
	Uploader User `gorm:"foreignKey:UploaderID" json:"uploader,omitempty"`
}

func (File) TableName() string {
	return "files"
}
