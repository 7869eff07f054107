package upload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/primlo/nibbana/internal/entrystore"
	"github.com/primlo/nibbana/pkg/entry"
	logpkg "github.com/primlo/nibbana/pkg/log"
)

// Func delivers a batch of entries to the collector. A nil error means the
// collector accepted every entry in the batch. Implementations must bound
// their own running time: the coordinator holds its lock for as long as Func
// runs.
type Func func(ctx context.Context, entries []entry.Entry) error

// ErrUpload matches every error returned for a failed upload.
var ErrUpload = errors.New("upload failed")

// Error reports a rejected or failed upload. The entries stay buffered.
type Error struct {
	// Count is the number of entries in the failed batch.
	Count int
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("upload of %d entries failed: %v", e.Count, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrUpload }

// Result describes a completed Trigger.
type Result struct {
	// Uploaded is the number of entries delivered and removed.
	Uploaded int
	// NoOp is set when there was nothing to upload.
	NoOp bool
}

// Observer receives upload outcomes. internal/metrics implements it.
type Observer interface {
	ObserveUpload(elapsed time.Duration, entries int, err error)
}

// Options configures a Coordinator.
type Options struct {
	Store  *entrystore.Store
	Upload Func
	// Context, when set, is called once per batch and attached to each
	// entry sent upstream. Buffered entries are not modified.
	Context func() entry.Properties
	Logger  logpkg.Logger
	// Observer is optional.
	Observer Observer
}

// Coordinator runs at most one upload at a time.
type Coordinator struct {
	store    *entrystore.Store
	upload   Func
	context  func() entry.Properties
	logger   logpkg.Logger
	observer Observer

	// lock is the upload lock; it is never held by append paths.
	lock *semaphore.Weighted
}

// NewCoordinator validates opts and returns a Coordinator.
func NewCoordinator(opts Options) (*Coordinator, error) {
	if opts.Store == nil {
		return nil, errors.New("upload: Options.Store is required")
	}
	if opts.Upload == nil {
		return nil, errors.New("upload: Options.Upload is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	return &Coordinator{
		store:    opts.Store,
		upload:   opts.Upload,
		context:  opts.Context,
		logger:   logger.WithComponent("upload"),
		observer: opts.Observer,
		lock:     semaphore.NewWeighted(1),
	}, nil
}

// Trigger uploads every entry buffered at the time the upload lock is
// acquired. Concurrent calls queue on the lock. On success exactly the
// uploaded ids are removed; entries appended while the upload was in flight
// stay buffered. On failure nothing is removed and an *Error is returned.
func (c *Coordinator) Trigger(ctx context.Context) (Result, error) {
	if err := c.lock.Acquire(ctx, 1); err != nil {
		return Result{}, err
	}
	defer c.lock.Release(1)

	snapshot, err := c.store.ReadAll(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(snapshot) == 0 {
		return Result{NoOp: true}, nil
	}

	ids := make(map[string]struct{}, len(snapshot))
	for _, e := range snapshot {
		ids[e.ID] = struct{}{}
	}

	start := time.Now()
	err = c.call(ctx, c.batch(snapshot))
	if c.observer != nil {
		c.observer.ObserveUpload(time.Since(start), len(snapshot), err)
	}
	if err != nil {
		c.logger.Warn("upload failed, entries retained",
			logpkg.Int("entries", len(snapshot)), logpkg.Err(err))
		return Result{}, &Error{Count: len(snapshot), Err: err}
	}

	removed, err := c.store.RemoveByIDs(ctx, ids)
	if err != nil {
		// The collector has the batch; the next upload re-sends it and the
		// collector upserts by id.
		c.logger.Error("removing uploaded entries failed", logpkg.Err(err))
		return Result{}, fmt.Errorf("upload: remove uploaded entries: %w", err)
	}
	c.logger.Debug("batch uploaded",
		logpkg.Int("entries", len(snapshot)),
		logpkg.Int("removed", removed),
		logpkg.Duration("elapsed", time.Since(start)))
	return Result{Uploaded: len(snapshot)}, nil
}

// TriggerQuietly runs Trigger and only logs failures. Periodic callers use it
// so that one failed upload never stops the next.
func (c *Coordinator) TriggerQuietly(ctx context.Context) {
	if _, err := c.Trigger(ctx); err != nil && !errors.Is(err, ErrUpload) {
		// upload failures are already logged by Trigger
		c.logger.Error("scheduled upload failed", logpkg.Err(err))
	}
}

// batch returns a copy of snapshot for the upload function, with the shared
// context attached when a provider is set.
func (c *Coordinator) batch(snapshot []entry.Entry) []entry.Entry {
	var shared entry.Properties
	if c.context != nil {
		shared = c.context()
	}
	out := make([]entry.Entry, len(snapshot))
	for i, e := range snapshot {
		if len(shared) > 0 {
			e.Context = shared.Clone()
		}
		out[i] = e
	}
	return out
}

// call invokes the upload function, turning a panic into an error.
func (c *Coordinator) call(ctx context.Context, batch []entry.Entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("upload function panicked: %v", r)
		}
	}()
	return c.upload(ctx, batch)
}
