package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"studypool-backend/internal/model"
)

func TestNewFileKey(t *testing.T) {
	key := NewFileKey(12, "Graph.PNG")
	assert.True(t, strings.HasPrefix(key, "12/"), key)
	assert.True(t, strings.HasSuffix(key, ".png"), key)

	assert.NotContains(t, NewFileKey(12, "weird.<script>"), "<")
	assert.NotEqual(t, NewFileKey(1, "a.png"), NewFileKey(1, "a.png"))
}

func TestPresignUpload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := createUser(t, f.db, "alice@example.com", "Alice")
	eve := createUser(t, f.db, "eve@example.com", "Eve")
	id, err := f.pools.CreatePool(ctx, alice.ID, "Algebra")
	require.NoError(t, err)

	res, err := f.files.PresignUpload(ctx, alice.ID, id, "graph.png", "image/png", 1024)
	require.NoError(t, err)
	assert.Contains(t, res.UploadURL, res.FileKey)
	assert.Equal(t, "https://files.example.com/f/"+res.FileKey, res.URL)

	tests := []struct {
		name   string
		user   int64
		ctype  string
		size   int64
		expect Kind
	}{
		{name: "not a member", user: eve.ID, ctype: "image/png", size: 10, expect: KindForbidden},
		{name: "wrong type", user: alice.ID, ctype: "application/pdf", size: 10, expect: KindInvalid},
		{name: "too large", user: alice.ID, ctype: "image/jpeg", size: 4*1024*1024 + 1, expect: KindInvalid},
		{name: "empty", user: alice.ID, ctype: "image/gif", size: 0, expect: KindInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.files.PresignUpload(ctx, tt.user, id, "x.png", tt.ctype, tt.size)
			assert.Equal(t, tt.expect, KindOf(err))
		})
	}
}

func TestFileServiceWithoutStorage(t *testing.T) {
	f := newFixture(t)
	files := NewFileService(f.db, f.members, nil, UploadLimits{MaxBytes: 1}, zap.NewNop())

	_, err := files.PresignUpload(context.Background(), 1, 1, "a.png", "image/png", 1)
	assert.Equal(t, KindUnavailable, KindOf(err))

	err = files.DeleteFile(context.Background(), 1, "1/a.png")
	assert.Equal(t, KindUnavailable, KindOf(err))
}

func TestConfirmUpload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := createUser(t, f.db, "alice@example.com", "Alice")
	id, err := f.pools.CreatePool(ctx, alice.ID, "Algebra")
	require.NoError(t, err)

	t.Run("object missing", func(t *testing.T) {
		_, err := f.files.ConfirmUpload(ctx, alice.ID, id, "a.png", NewFileKey(id, "a.png"))
		assert.Equal(t, KindInvalid, KindOf(err))
	})

	t.Run("key from another pool", func(t *testing.T) {
		_, err := f.files.ConfirmUpload(ctx, alice.ID, id, "a.png", NewFileKey(id+1, "a.png"))
		assert.Equal(t, KindInvalid, KindOf(err))
	})

	t.Run("oversized upload is removed", func(t *testing.T) {
		key := NewFileKey(id, "big.png")
		f.store.put(key, "image/png", 5*1024*1024)
		_, err := f.files.ConfirmUpload(ctx, alice.ID, id, "big.png", key)
		assert.Equal(t, KindInvalid, KindOf(err))
		assert.Contains(t, f.store.deleted, key)
	})

	t.Run("confirmed", func(t *testing.T) {
		key := NewFileKey(id, "graph.png")
		f.store.put(key, "image/png", 2048)
		file, err := f.files.ConfirmUpload(ctx, alice.ID, id, "../graph.png", key)
		require.NoError(t, err)
		assert.Equal(t, "graph.png", file.Name)
		assert.Equal(t, int64(2048), file.Size)
		assert.Equal(t, "https://files.example.com/f/"+key, file.URL)

		_, err = f.files.ConfirmUpload(ctx, alice.ID, id, "graph.png", key)
		assert.Equal(t, KindConflict, KindOf(err))

		files, err := f.files.ListFiles(ctx, alice.ID, id)
		require.NoError(t, err)
		require.Len(t, files, 1)
		assert.Equal(t, key, files[0].Key)
	})

	t.Run("long multibyte name", func(t *testing.T) {
		key := NewFileKey(id, "notes.png")
		f.store.put(key, "image/png", 1024)
		name := strings.Repeat("수학노트", 100) + ".png"
		file, err := f.files.ConfirmUpload(ctx, alice.ID, id, name, key)
		require.NoError(t, err)
		assert.True(t, utf8.ValidString(file.Name))
		assert.Equal(t, 255, utf8.RuneCountInString(file.Name))
		assert.True(t, strings.HasPrefix(name, file.Name))
	})
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "graph.png", "graph.png"},
		{"path stripped", "../../etc/graph.png", "graph.png"},
		{"control chars", "gra\x00ph\n.png", "graph.png"},
		{"empty", "   ", "file"},
		{"dot", ".", "file"},
		{"exactly 255 runes", strings.Repeat("가", 255), strings.Repeat("가", 255)},
		{"cut on rune boundary", strings.Repeat("a", 254) + "가나", strings.Repeat("a", 254) + "가"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizeFileName(tt.in)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}

func TestDeleteFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := createUser(t, f.db, "alice@example.com", "Alice")
	eve := createUser(t, f.db, "eve@example.com", "Eve")
	id, err := f.pools.CreatePool(ctx, alice.ID, "Algebra")
	require.NoError(t, err)

	key := NewFileKey(id, "graph.png")
	f.store.put(key, "image/png", 2048)
	_, err = f.files.ConfirmUpload(ctx, alice.ID, id, "graph.png", key)
	require.NoError(t, err)

	// 캔버스에 남아 있는 이미지 참조와는 독립적
	_, err = f.canvas.SaveCanvas(ctx, alice.ID, id, model.CanvasContent{
		Images: []model.ImagePlacement{{URL: "https://files.example.com/f/" + key}},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, KindInvalid, KindOf(f.files.DeleteFile(ctx, alice.ID, "")))
	assert.Equal(t, KindNotFound, KindOf(f.files.DeleteFile(ctx, alice.ID, "999/nope.png")))
	assert.Equal(t, KindForbidden, KindOf(f.files.DeleteFile(ctx, eve.ID, key)))

	f.store.deleteErr = errors.New("s3 down")
	assert.Equal(t, KindInternal, KindOf(f.files.DeleteFile(ctx, alice.ID, key)))
	files, err := f.files.ListFiles(ctx, alice.ID, id)
	require.NoError(t, err)
	assert.Len(t, files, 1)

	f.store.deleteErr = nil
	require.NoError(t, f.files.DeleteFile(ctx, alice.ID, key))
	files, err = f.files.ListFiles(ctx, alice.ID, id)
	require.NoError(t, err)
	assert.Empty(t, files)

	snap, err := f.canvas.GetCanvas(ctx, alice.ID, id)
	require.NoError(t, err)
	assert.Len(t, snap.Images, 1)
}
