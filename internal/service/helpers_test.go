package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"studypool-backend/internal/database"
	"studypool-backend/internal/model"
	"studypool-backend/internal/storage"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenMemory(zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func createUser(t *testing.T, db *gorm.DB, email, name string) model.User {
	t.Helper()
	u := model.User{Email: email, Name: name}
	require.NoError(t, db.Create(&u).Error)
	return u
}

func countMembers(t *testing.T, db *gorm.DB, poolID int64) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&model.PoolMember{}).Where("pool_id = ?", poolID).Count(&n).Error)
	return n
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.PoolEvent
}

func (p *recordingPublisher) Publish(ev model.PoolEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) types() []model.PoolEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.PoolEventType, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type fakeStore struct {
	mu        sync.Mutex
	objects   map[string]storage.ObjectInfo
	deleted   []string
	deleteErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string]storage.ObjectInfo{}}
}

func (s *fakeStore) PublicURL(fileKey string) string {
	return "https://files.example.com/f/" + fileKey
}

func (s *fakeStore) PresignPut(_ context.Context, fileKey, contentType string, size int64) (string, error) {
	return "https://bucket.example.com/f/" + fileKey + "?sig=1", nil
}

func (s *fakeStore) Stat(_ context.Context, fileKey string) (*storage.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.objects[fileKey]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return &info, nil
}

func (s *fakeStore) Delete(_ context.Context, fileKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.objects, fileKey)
	s.deleted = append(s.deleted, fileKey)
	return nil
}

func (s *fakeStore) put(fileKey, contentType string, size int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[fileKey] = storage.ObjectInfo{Size: size, ContentType: contentType}
}

type memoryCache struct {
	mu          sync.Mutex
	snaps       map[int64]model.CanvasSnapshot
	gets        int
	invalidated int
	failGet     bool
}

func newMemoryCache() *memoryCache {
	return &memoryCache{snaps: map[int64]model.CanvasSnapshot{}}
}

func (c *memoryCache) Get(_ context.Context, poolID int64) (*model.CanvasSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.failGet {
		return nil, errors.New("cache down")
	}
	snap, ok := c.snaps[poolID]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (c *memoryCache) Set(_ context.Context, poolID int64, snap *model.CanvasSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.snaps[poolID]; ok && cur.Version > snap.Version {
		return nil
	}
	c.snaps[poolID] = *snap
	return nil
}

func (c *memoryCache) Invalidate(_ context.Context, poolID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated++
	delete(c.snaps, poolID)
	return nil
}

type fixture struct {
	db      *gorm.DB
	members *MemberService
	pools   *PoolService
	canvas  *CanvasService
	files   *FileService
	store   *fakeStore
	cache   *memoryCache
	events  *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	f := &fixture{
		db:     db,
		store:  newFakeStore(),
		cache:  newMemoryCache(),
		events: &recordingPublisher{},
	}
	f.members = NewMemberService(db)
	f.pools = NewPoolService(db, f.members, f.store, f.cache, f.events, zap.NewNop())
	f.canvas = NewCanvasService(db, f.members, f.cache, f.events, zap.NewNop())
	f.files = NewFileService(db, f.members, f.store, UploadLimits{
		MaxBytes:     4 * 1024 * 1024,
		AllowedTypes: []string{"image/jpeg", "image/png", "image/gif", "image/webp"},
	}, zap.NewNop())
	return f
}
