// Package canvassync keeps a local copy of a pool canvas in step with the
// server. Saves always send the full state and the server keeps whichever
// write lands last, unless versioned mode is enabled.
package canvassync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"studypool-backend/internal/model"
)

// DefaultInterval is the reconciliation period.
const DefaultInterval = 2000 * time.Millisecond

// Options configures a Synchronizer. The zero value is usable.
type Options struct {
	// Interval between reconciliation ticks. Defaults to DefaultInterval.
	Interval time.Duration
	// Versioned sends the last observed version with each save and reloads
	// remote state when the server reports a conflict.
	Versioned bool
	// Notify receives user-facing failure messages.
	Notify func(msg string)
	Log    *zap.Logger
	Now    func() time.Time
}

// Synchronizer owns the client-side canvas state of one pool.
type Synchronizer struct {
	remote    Remote
	poolID    int64
	interval  time.Duration
	versioned bool
	notify    func(msg string)
	log       *zap.Logger
	now       func() time.Time

	mu           sync.Mutex
	state        model.CanvasContent
	lastModified int64
	version      int64
	generation   uint64 // bumped by every mutation
	savedGen     uint64

	saving atomic.Bool
	kick   chan struct{}
}

// New returns a Synchronizer for poolID with empty local state.
func New(remote Remote, poolID int64, opts Options) *Synchronizer {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Notify == nil {
		opts.Notify = func(string) {}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Synchronizer{
		remote:    remote,
		poolID:    poolID,
		interval:  opts.Interval,
		versioned: opts.Versioned,
		notify:    opts.Notify,
		log:       opts.Log.With(zap.Int64("pool_id", poolID)),
		now:       opts.Now,
		state:     model.CanvasContent{}.Normalize(),
		kick:      make(chan struct{}, 1),
	}
}

// State returns a copy of the local canvas.
func (s *Synchronizer) State() model.CanvasContent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// LastModified is the server timestamp (epoch ms) this client last saved or observed.
func (s *Synchronizer) LastModified() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastModified
}

// Version is the canvas version this client last saved or observed.
func (s *Synchronizer) Version() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Dirty reports whether local edits have not been saved yet.
func (s *Synchronizer) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation != s.savedGen
}

// Load replaces local state with the server copy. On failure local state is
// left unchanged.
func (s *Synchronizer) Load(ctx context.Context) error {
	snap, err := s.remote.GetCanvas(ctx, s.poolID)
	if err != nil {
		s.fail("load", "Failed to load canvas", err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = snap.Content().Normalize().Clone()
	s.lastModified = snap.LastModified
	if s.lastModified == 0 {
		s.lastModified = model.EpochMillis(s.now())
	}
	s.version = snap.Version
	s.savedGen = s.generation
	return nil
}

// Save pushes the full local state. It returns false without contacting the
// server when another save is in flight or the local canvas is empty.
func (s *Synchronizer) Save(ctx context.Context) (bool, error) {
	if !s.saving.CompareAndSwap(false, true) {
		s.log.Debug("save skipped, another save in flight")
		return false, nil
	}
	defer s.saving.Store(false)

	s.mu.Lock()
	content := s.state.Clone()
	gen := s.generation
	var base *int64
	if s.versioned {
		v := s.version
		base = &v
	}
	s.mu.Unlock()

	if content.IsEmpty() {
		return false, nil
	}

	res, err := s.remote.SaveCanvas(ctx, s.poolID, content, base)
	if err != nil {
		if s.versioned && errors.Is(err, ErrConflict) {
			s.log.Info("canvas changed remotely, reloading")
			s.notify("Canvas was changed by someone else. Reloaded the latest version.")
			if lerr := s.Load(ctx); lerr != nil {
				return false, fmt.Errorf("reload after conflict: %w", lerr)
			}
			return false, err
		}
		s.fail("save", "Failed to save canvas", err)
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastModified = res.LastModified
	s.version = res.Version
	if s.generation == gen {
		s.savedGen = gen
	}
	return true, nil
}

// Reconcile fetches the server's lastModified and pushes local state when it
// differs from the value this client last saved or observed. Remote changes
// are never merged into local state.
func (s *Synchronizer) Reconcile(ctx context.Context) error {
	snap, err := s.remote.GetCanvas(ctx, s.poolID)
	if err != nil {
		s.fail("reconcile", "Failed to check canvas", err)
		return err
	}

	if snap.LastModified == s.LastModified() {
		return nil
	}
	_, err = s.Save(ctx)
	return err
}

// Run drives edit-triggered saves and periodic reconciliation until ctx is
// done. Errors are logged and reported through Notify; Run keeps going.
func (s *Synchronizer) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_ = s.Reconcile(ctx)
		case <-s.kick:
			_, _ = s.Save(ctx)
		}
	}
}

// requestSave asks Run for an immediate save. Requests coalesce.
func (s *Synchronizer) requestSave() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Synchronizer) fail(op, msg string, err error) {
	s.log.Warn("canvas sync failed", zap.String("op", op), zap.Error(err))
	s.notify(msg)
}

// mutate applies fn under the lock and schedules a save when it succeeds.
func (s *Synchronizer) mutate(fn func(st *model.CanvasContent) error) error {
	s.mu.Lock()
	err := fn(&s.state)
	if err == nil {
		s.generation++
	}
	s.mu.Unlock()

	if err == nil {
		s.requestSave()
	}
	return err
}

// AddImage appends an image placement.
func (s *Synchronizer) AddImage(img model.ImagePlacement) error {
	return s.mutate(func(st *model.CanvasContent) error {
		st.Images = append(st.Images, img)
		return nil
	})
}

// MoveImage sets the position of the image at index i.
func (s *Synchronizer) MoveImage(i int, x, y float64) error {
	return s.mutate(func(st *model.CanvasContent) error {
		if i < 0 || i >= len(st.Images) {
			return fmt.Errorf("image %d: %w", i, ErrNoSuchItem)
		}
		st.Images[i].X, st.Images[i].Y = x, y
		return nil
	})
}

func (s *Synchronizer) ResizeImage(i int, width, height float64) error {
	return s.mutate(func(st *model.CanvasContent) error {
		if i < 0 || i >= len(st.Images) {
			return fmt.Errorf("image %d: %w", i, ErrNoSuchItem)
		}
		st.Images[i].Width, st.Images[i].Height = width, height
		return nil
	})
}

func (s *Synchronizer) RotateImage(i int, degrees float64) error {
	return s.mutate(func(st *model.CanvasContent) error {
		if i < 0 || i >= len(st.Images) {
			return fmt.Errorf("image %d: %w", i, ErrNoSuchItem)
		}
		st.Images[i].Rotation = degrees
		return nil
	})
}

// RemoveImage deletes the uploaded file behind image i and then drops the
// image from the canvas. A malformed URL or a failed delete leaves the
// canvas untouched.
func (s *Synchronizer) RemoveImage(ctx context.Context, i int) error {
	s.mu.Lock()
	if i < 0 || i >= len(s.state.Images) {
		s.mu.Unlock()
		return fmt.Errorf("image %d: %w", i, ErrNoSuchItem)
	}
	img := s.state.Images[i]
	s.mu.Unlock()

	key, err := FileKeyFromURL(img.URL)
	if err != nil {
		s.fail("remove image", "Could not find the file for this image", err)
		return err
	}
	if err := s.remote.DeleteFile(ctx, key); err != nil {
		s.fail("remove image", "Failed to delete file", err)
		return err
	}

	return s.mutate(func(st *model.CanvasContent) error {
		// the list may have shifted while the delete was in flight
		for j := range st.Images {
			if st.Images[j] == img {
				st.Images = append(st.Images[:j], st.Images[j+1:]...)
				return nil
			}
		}
		return fmt.Errorf("image %q: %w", img.URL, ErrNoSuchItem)
	})
}

// AddText appends a text item and returns its id. An empty id gets a new UUID.
func (s *Synchronizer) AddText(item model.TextItem) (string, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	err := s.mutate(func(st *model.CanvasContent) error {
		st.TextItems = append(st.TextItems, item)
		return nil
	})
	return item.ID, err
}

// EditText applies fn to the text item with the given id.
func (s *Synchronizer) EditText(id string, fn func(item *model.TextItem)) error {
	return s.mutate(func(st *model.CanvasContent) error {
		for j := range st.TextItems {
			if st.TextItems[j].ID == id {
				fn(&st.TextItems[j])
				st.TextItems[j].ID = id
				return nil
			}
		}
		return fmt.Errorf("text %q: %w", id, ErrNoSuchItem)
	})
}

func (s *Synchronizer) DeleteText(id string) error {
	return s.mutate(func(st *model.CanvasContent) error {
		for j := range st.TextItems {
			if st.TextItems[j].ID == id {
				st.TextItems = append(st.TextItems[:j], st.TextItems[j+1:]...)
				return nil
			}
		}
		return fmt.Errorf("text %q: %w", id, ErrNoSuchItem)
	})
}
