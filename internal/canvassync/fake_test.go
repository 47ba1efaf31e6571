package canvassync

import (
	"context"
	"errors"
	"sync"

	"studypool-backend/internal/model"
)

// fakeRemote is an in-memory canvas endpoint with the server's save rules.
type fakeRemote struct {
	mu       sync.Mutex
	content  model.CanvasContent
	exists   bool
	modified int64
	version  int64
	clock    int64

	saves   int
	deleted []string

	getErr    error
	saveErr   error
	deleteErr error

	// saveGate, when set, blocks SaveCanvas until it is closed.
	saveGate    chan struct{}
	saveEntered chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{clock: 1000}
}

func (f *fakeRemote) tick() int64 {
	f.clock += 1000
	return f.clock
}

func (f *fakeRemote) GetCanvas(ctx context.Context, poolID int64) (*model.CanvasSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	if !f.exists {
		return &model.CanvasSnapshot{Images: []model.ImagePlacement{}, TextItems: []model.TextItem{}, LastModified: f.tick()}, nil
	}
	c := f.content.Clone()
	return &model.CanvasSnapshot{Images: c.Images, TextItems: c.TextItems, LastModified: f.modified, Version: f.version}, nil
}

func (f *fakeRemote) SaveCanvas(ctx context.Context, poolID int64, content model.CanvasContent, baseVersion *int64) (*model.CanvasSaveResult, error) {
	if f.saveEntered != nil {
		f.saveEntered <- struct{}{}
	}
	if f.saveGate != nil {
		<-f.saveGate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	if baseVersion != nil {
		current := int64(0)
		if f.exists {
			current = f.version
		}
		if *baseVersion != current {
			return nil, &StatusError{Op: "save canvas", Code: 409, Message: "Canvas was modified by another client"}
		}
	}
	f.saves++
	f.content = content.Clone()
	f.exists = true
	f.version++
	f.modified = f.tick()
	return &model.CanvasSaveResult{Success: true, LastModified: f.modified, Version: f.version}, nil
}

func (f *fakeRemote) DeleteFile(ctx context.Context, fileKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, fileKey)
	return nil
}

func (f *fakeRemote) stored() model.CanvasContent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.content.Clone()
}

func (f *fakeRemote) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}

var errNetwork = errors.New("connection refused")

type notes struct {
	mu   sync.Mutex
	msgs []string
}

func (n *notes) add(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
}

func (n *notes) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.msgs...)
}
