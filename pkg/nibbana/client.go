package nibbana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/primlo/nibbana/internal/entrystore"
	"github.com/primlo/nibbana/internal/filter"
	"github.com/primlo/nibbana/internal/metrics"
	"github.com/primlo/nibbana/internal/scheduler"
	"github.com/primlo/nibbana/internal/superprops"
	"github.com/primlo/nibbana/internal/upload"
	"github.com/primlo/nibbana/internal/upload/httpupload"
	"github.com/primlo/nibbana/pkg/entry"
	"github.com/primlo/nibbana/pkg/id"
	logpkg "github.com/primlo/nibbana/pkg/log"
)

// Client buffers entries and uploads them. Create one with New and call
// Configure once before anything else. A Client is safe for concurrent use.
type Client struct {
	mu    sync.RWMutex
	state *state

	// appendMu serializes stamping and appending so stored order matches
	// id and occurredAt order.
	appendMu sync.Mutex
	ids      *id.Generator
	lastAt   time.Time
	user     *string
}

// state is everything Configure builds. It is read-only once installed.
type state struct {
	capacity int
	console  bool
	capture  filter.Filter
	logger   logpkg.Logger
	metrics  *metrics.Metrics
	storage  Storage

	store       *entrystore.Store
	props       *superprops.Registry
	coordinator *upload.Coordinator
	scheduler   *scheduler.Scheduler
}

// UserKey is the storage key holding the identified user.
const UserKey = "com.primlo.nibbana.userIdentification"

// now is swapped in tests.
var now = time.Now

// New returns an unconfigured Client.
func New() *Client {
	return &Client{ids: id.NewGenerator()}
}

// Configure validates opts and readies the client. It loads persisted super
// properties from opts.Storage. A rejected configuration can be corrected
// and retried; once one succeeds every further call returns
// ErrAlreadyConfigured.
func (c *Client) Configure(ctx context.Context, opts Options) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != nil {
		return ErrAlreadyConfigured
	}

	capture, err := opts.validate()
	if err != nil {
		return err
	}

	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger()
	}

	uploadFn := opts.UploadEntries
	if uploadFn == nil {
		uploadFn = httpupload.New(opts.Endpoint, opts.SecretToken,
			httpupload.WithHeaders(opts.AdditionalHeaders),
			httpupload.WithTimeout(opts.HTTPTimeout),
		).Upload
	}

	store := entrystore.New(opts.Storage, entrystore.WithLogger(logger))
	props := superprops.New(opts.Storage, superprops.DefaultKey, logger)
	if err := props.Load(ctx); err != nil {
		return fmt.Errorf("nibbana: configure: %w", err)
	}
	user, err := loadUser(ctx, opts.Storage, logger)
	if err != nil {
		return fmt.Errorf("nibbana: configure: %w", err)
	}

	var observer upload.Observer
	if opts.Metrics != nil {
		observer = opts.Metrics
	}
	coordinator, err := upload.NewCoordinator(upload.Options{
		Store:    store,
		Upload:   uploadFn,
		Context:  opts.UploadContext,
		Logger:   logger,
		Observer: observer,
	})
	if err != nil {
		return fmt.Errorf("nibbana: configure: %w", err)
	}
	if opts.Metrics != nil {
		err := opts.Metrics.RegisterPending(func() float64 {
			n, err := store.Len(context.Background())
			if err != nil {
				return 0
			}
			return float64(n)
		})
		if errors.Is(err, metrics.ErrInUse) {
			return invalid("Metrics is already attached to another client")
		}
		if err != nil {
			return fmt.Errorf("nibbana: configure: %w", err)
		}
	}

	c.state = &state{
		capacity:    opts.Capacity,
		console:     opts.outputToConsole(),
		capture:     capture,
		logger:      logger,
		metrics:     opts.Metrics,
		storage:     opts.Storage,
		store:       store,
		props:       props,
		coordinator: coordinator,
		scheduler:   scheduler.New(coordinator.TriggerQuietly, logger),
	}
	c.appendMu.Lock()
	c.user = user
	c.appendMu.Unlock()
	return nil
}

// loadUser reads the persisted identification. An unreadable value is
// discarded.
func loadUser(ctx context.Context, st Storage, logger logpkg.Logger) (*string, error) {
	raw, ok, err := st.GetItem(ctx, UserKey)
	if err != nil || !ok {
		return nil, err
	}
	var user string
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		logger.Warn("discarding unreadable user identification", logpkg.Err(err))
		return nil, nil
	}
	if user == "" {
		return nil, nil
	}
	return &user, nil
}

func (c *Client) configured() (*state, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state == nil {
		return nil, ErrNotConfigured
	}
	return c.state, nil
}

// Log records a log entry. Errors among data are stored as their message,
// type name and stack.
func (c *Client) Log(ctx context.Context, data ...any) error {
	return c.record(ctx, entry.KindLog, data)
}

// Warn records a warn entry.
func (c *Client) Warn(ctx context.Context, data ...any) error {
	return c.record(ctx, entry.KindWarn, data)
}

// Debug records a debug entry.
func (c *Client) Debug(ctx context.Context, data ...any) error {
	return c.record(ctx, entry.KindDebug, data)
}

// Error records an error entry.
func (c *Client) Error(ctx context.Context, data ...any) error {
	return c.record(ctx, entry.KindError, data)
}

// EventOption configures an event.
type EventOption func(*entry.Entry)

// WithDuration attaches a duration to an event, stored in milliseconds.
func WithDuration(d time.Duration) EventOption {
	return func(e *entry.Entry) {
		ms := float64(d) / float64(time.Millisecond)
		e.Duration = &ms
	}
}

// Event records a named event with an optional payload.
func (c *Client) Event(ctx context.Context, name string, payload any, opts ...EventOption) error {
	s, err := c.configured()
	if err != nil {
		return err
	}
	e := entry.Entry{Kind: entry.KindEvent, Name: name}
	if payload != nil {
		e.Payload = entry.NormalizeData([]any{payload})[0]
	}
	for _, opt := range opts {
		opt(&e)
	}
	return c.append(ctx, s, e)
}

// Identify sets the user identification stamped on every later entry and
// records an identify entry. An empty userID clears it. The identification is
// persisted so clients configured later on the same storage keep it. When the
// identify entry cannot be stored the previous identification stays in effect.
func (c *Client) Identify(ctx context.Context, userID string) error {
	s, err := c.configured()
	if err != nil {
		return err
	}
	c.appendMu.Lock()
	defer c.appendMu.Unlock()

	prev := c.user
	if userID == "" {
		c.user = nil
	} else {
		c.user = &userID
	}
	if err := c.appendLocked(ctx, s, entry.Entry{Kind: entry.KindIdentify}); err != nil {
		c.user = prev
		return err
	}
	if userID == "" {
		err = s.storage.RemoveItem(ctx, UserKey)
	} else {
		raw, _ := json.Marshal(userID)
		err = s.storage.SetItem(ctx, UserKey, string(raw))
	}
	if err != nil {
		return fmt.Errorf("nibbana: persist user identification: %w", err)
	}
	return nil
}

func (c *Client) record(ctx context.Context, kind entry.Kind, data []any) error {
	s, err := c.configured()
	if err != nil {
		return err
	}
	return c.append(ctx, s, entry.Entry{Kind: kind, Payload: entry.NormalizeData(data)})
}

// append stamps e and persists it before returning.
func (c *Client) append(ctx context.Context, s *state, e entry.Entry) error {
	c.appendMu.Lock()
	defer c.appendMu.Unlock()
	return c.appendLocked(ctx, s, e)
}

// appendLocked is append with appendMu held.
func (c *Client) appendLocked(ctx context.Context, s *state, e entry.Entry) error {
	e.ID = c.ids.Next().String()
	at := now().UTC()
	if at.Before(c.lastAt) {
		at = c.lastAt
	}
	c.lastAt = at
	e.OccurredAt = at
	e.SuperProperties = s.props.Effective()
	if c.user != nil {
		u := *c.user
		e.UserIdentification = &u
	}

	if s.console {
		echo(s.logger, e)
	}
	if !s.capture.Match(e) {
		if s.metrics != nil {
			s.metrics.EntryFiltered()
		}
		return nil
	}

	evicted, err := s.store.Append(ctx, e, s.capacity)
	if err != nil {
		return fmt.Errorf("nibbana: append %s entry: %w", e.Kind, err)
	}
	if s.metrics != nil {
		s.metrics.EntryAppended(evicted)
	}
	return nil
}

// echo writes e through the logger at the level matching its kind.
func echo(l logpkg.Logger, e entry.Entry) {
	var msg string
	var fields []logpkg.Field
	switch e.Kind {
	case entry.KindEvent:
		msg = "event " + e.Name
		if e.Payload != nil {
			fields = append(fields, logpkg.Any("payload", e.Payload))
		}
		if e.Duration != nil {
			fields = append(fields, logpkg.Any("duration_ms", *e.Duration))
		}
	case entry.KindIdentify:
		msg = "identify"
		if e.UserIdentification != nil {
			fields = append(fields, logpkg.Str("user", *e.UserIdentification))
		}
	default:
		data, _ := e.Payload.([]any)
		parts := make([]string, len(data))
		for i, d := range data {
			if ep, ok := d.(entry.ErrorPayload); ok {
				parts[i] = ep.Name + ": " + ep.Message
				continue
			}
			parts[i] = fmt.Sprint(d)
		}
		msg = strings.Join(parts, " ")
	}

	switch e.Kind {
	case entry.KindWarn:
		l.Warn(msg, fields...)
	case entry.KindDebug:
		l.Debug(msg, fields...)
	case entry.KindError:
		l.Error(msg, fields...)
	default:
		l.Info(msg, fields...)
	}
}

// SetSuperProperties replaces the transient or persistent super properties
// with props. Keys in props are removed from the other set.
func (c *Client) SetSuperProperties(ctx context.Context, props entry.Properties, persistent bool) error {
	s, err := c.configured()
	if err != nil {
		return err
	}
	return s.props.SetAll(ctx, props, persistent)
}

// ExtendSuperProperties merges props into the transient or persistent super
// properties. Keys in props are removed from the other set.
func (c *Client) ExtendSuperProperties(ctx context.Context, props entry.Properties, persistent bool) error {
	s, err := c.configured()
	if err != nil {
		return err
	}
	return s.props.Extend(ctx, props, persistent)
}

// UnsetSuperProperty removes key from both sets.
func (c *Client) UnsetSuperProperty(ctx context.Context, key string) error {
	s, err := c.configured()
	if err != nil {
		return err
	}
	return s.props.Unset(ctx, key)
}

// ClearSuperProperties empties both sets.
func (c *Client) ClearSuperProperties(ctx context.Context) error {
	s, err := c.configured()
	if err != nil {
		return err
	}
	return s.props.ClearAll(ctx)
}

// SuperProperties returns the properties the next entry would carry.
func (c *Client) SuperProperties() (entry.Properties, error) {
	s, err := c.configured()
	if err != nil {
		return nil, err
	}
	return s.props.Effective(), nil
}

// UploadNow uploads everything buffered. It waits for an upload already in
// flight. On failure the entries stay buffered and the error matches
// ErrUpload.
func (c *Client) UploadNow(ctx context.Context) (UploadResult, error) {
	s, err := c.configured()
	if err != nil {
		return UploadResult{}, err
	}
	return s.coordinator.Trigger(ctx)
}

// StartAutomaticUploads uploads every interval in the background. A
// non-positive interval means 5 minutes. Starting while already started
// changes nothing.
func (c *Client) StartAutomaticUploads(interval time.Duration) error {
	s, err := c.configured()
	if err != nil {
		return err
	}
	s.scheduler.Start(interval)
	return nil
}

// StopAutomaticUploads stops future background uploads. An upload already
// running completes.
func (c *Client) StopAutomaticUploads() error {
	s, err := c.configured()
	if err != nil {
		return err
	}
	s.scheduler.Stop()
	return nil
}

// ClearEntries drops every buffered entry.
func (c *Client) ClearEntries(ctx context.Context) error {
	s, err := c.configured()
	if err != nil {
		return err
	}
	return s.store.Clear(ctx)
}

// PendingEntries returns the buffered entries, oldest first, optionally
// narrowed by a CEL expression.
func (c *Client) PendingEntries(ctx context.Context, where string) ([]entry.Entry, error) {
	s, err := c.configured()
	if err != nil {
		return nil, err
	}
	f, err := filter.Compile(where)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	return f.Select(entries), nil
}

// Close stops automatic uploads. It does not upload or close the storage.
func (c *Client) Close() error {
	s, err := c.configured()
	if err != nil {
		return err
	}
	s.scheduler.Stop()
	return nil
}
