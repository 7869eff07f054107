package scheduler

import (
	"context"
	"sync"
	"time"

	logpkg "github.com/primlo/nibbana/pkg/log"
)

// DefaultInterval is used when Start is given a non-positive interval.
const DefaultInterval = 5 * time.Minute

// Scheduler calls a function on a fixed period. It is either stopped or
// running; Start and Stop are idempotent.
type Scheduler struct {
	fn     func(ctx context.Context)
	logger logpkg.Logger

	mu       sync.Mutex
	stop     chan struct{}
	interval time.Duration
}

// New returns a stopped Scheduler that will call fn on every tick. fn runs on
// the scheduler goroutine, so ticks never overlap each other.
func New(fn func(ctx context.Context), logger logpkg.Logger) *Scheduler {
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	return &Scheduler{fn: fn, logger: logger.WithComponent("scheduler")}
}

// Start begins periodic calls. It returns false, and changes nothing, when
// the scheduler is already running.
func (s *Scheduler) Start(interval time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		s.logger.Info("automatic uploads already running", logpkg.Duration("interval", s.interval))
		return false
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	s.stop = make(chan struct{})
	s.interval = interval
	go s.run(s.stop, interval)
	s.logger.Debug("automatic uploads started", logpkg.Duration("interval", interval))
	return true
}

// Stop cancels future ticks and returns true, or returns false when already
// stopped. A call to fn that is already running is not interrupted.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop == nil {
		return false
	}
	close(s.stop)
	s.stop = nil
	s.logger.Debug("automatic uploads stopped")
	return true
}

// Running reports whether the scheduler is running.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop != nil
}

func (s *Scheduler) run(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// a tick racing with Stop must not fire
			select {
			case <-stop:
				return
			default:
			}
			s.fn(context.Background())
		}
	}
}
