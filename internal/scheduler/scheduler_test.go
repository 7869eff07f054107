package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestStartTicksPeriodically(t *testing.T) {
	var calls int32
	s := New(func(context.Context) { atomic.AddInt32(&calls, 1) }, nil)
	if !s.Start(20 * time.Millisecond) {
		t.Fatalf("first start should succeed")
	}
	defer s.Stop()

	time.Sleep(110 * time.Millisecond)
	if n := atomic.LoadInt32(&calls); n < 3 {
		t.Fatalf("expected at least 3 ticks, got %d", n)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	var calls int32
	s := New(func(context.Context) { atomic.AddInt32(&calls, 1) }, nil)
	if !s.Start(30 * time.Millisecond) {
		t.Fatalf("first start should succeed")
	}
	if s.Start(30 * time.Millisecond) {
		t.Fatalf("second start must be a no-op")
	}
	time.Sleep(100 * time.Millisecond)
	s.Stop()

	// a second timer would roughly double the count
	if n := atomic.LoadInt32(&calls); n > 4 {
		t.Fatalf("looks like two timers ran: %d ticks", n)
	}
}

func TestStopPreventsFurtherTicks(t *testing.T) {
	var calls int32
	s := New(func(context.Context) { atomic.AddInt32(&calls, 1) }, nil)
	s.Start(20 * time.Millisecond)
	time.Sleep(70 * time.Millisecond)
	if !s.Stop() {
		t.Fatalf("stop of running scheduler should report true")
	}
	after := atomic.LoadInt32(&calls)
	time.Sleep(80 * time.Millisecond)
	if n := atomic.LoadInt32(&calls); n != after {
		t.Fatalf("ticks after stop: before=%d after=%d", after, n)
	}
	if s.Running() {
		t.Fatalf("expected stopped")
	}
}

func TestStopWhenStoppedIsNoOp(t *testing.T) {
	s := New(func(context.Context) {}, nil)
	if s.Stop() {
		t.Fatalf("stop of stopped scheduler should report false")
	}
}

func TestRestartAfterStop(t *testing.T) {
	var calls int32
	s := New(func(context.Context) { atomic.AddInt32(&calls, 1) }, nil)
	s.Start(time.Hour)
	s.Stop()
	if !s.Start(15 * time.Millisecond) {
		t.Fatalf("restart should succeed")
	}
	defer s.Stop()
	time.Sleep(60 * time.Millisecond)
	if atomic.LoadInt32(&calls) == 0 {
		t.Fatalf("restarted scheduler never ticked")
	}
}

func TestSlowCallbackDoesNotOverlap(t *testing.T) {
	var inFlight, overlapped int32
	s := New(func(context.Context) {
		if atomic.AddInt32(&inFlight, 1) > 1 {
			atomic.StoreInt32(&overlapped, 1)
		}
		time.Sleep(40 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
	}, nil)
	s.Start(10 * time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	s.Stop()
	if atomic.LoadInt32(&overlapped) != 0 {
		t.Fatalf("ticks overlapped")
	}
}
