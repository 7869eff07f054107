package piperun

import (
	"bufio"
	"context"
	"io"
	"strings"
	"time"

	"github.com/primlo/nibbana/internal/runtime"
	httpserver "github.com/primlo/nibbana/internal/server/http"
	logpkg "github.com/primlo/nibbana/pkg/log"
)

// Options configures Run.
type Options struct {
	In io.Reader
	// Interval between automatic uploads; non-positive means the default.
	Interval time.Duration
	// MetricsAddr, when set, serves the local status endpoints
	// (/metrics, /v1/healthz, /v1/entries, /v1/flush).
	MetricsAddr string
	// FlushTimeout bounds the final upload. Default 30s.
	FlushTimeout time.Duration
}

// Run records every line of opts.In as a log entry and uploads on a timer.
// It returns when the input ends or ctx is cancelled, after one final
// upload attempt. Lines starting with "WARN", "ERROR" or "DEBUG" are
// recorded with that kind.
func Run(ctx context.Context, rt *runtime.Runtime, opts Options) error {
	logger := rt.Logger().WithComponent("pipe")
	client := rt.Client()
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = 30 * time.Second
	}

	if opts.MetricsAddr != "" {
		srv := httpserver.New(rt, logger)
		sctx, stop := context.WithCancel(context.Background())
		served := make(chan struct{})
		go func() {
			defer close(served)
			if err := srv.ListenAndServe(sctx, opts.MetricsAddr); err != nil {
				logger.Error("status server stopped", logpkg.Err(err))
			}
		}()
		// runs after the final upload so /metrics reflects it until shutdown
		defer func() {
			stop()
			<-served
		}()
	}

	if err := client.StartAutomaticUploads(opts.Interval); err != nil {
		return err
	}

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(opts.In)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := record(ctx, rt, line); err != nil {
				logger.Error("recording line failed", logpkg.Err(err))
			}
		}
	}
	select {
	case runErr = <-readErr:
	default:
	}

	_ = client.StopAutomaticUploads()
	fctx, cancel := context.WithTimeout(context.Background(), opts.FlushTimeout)
	defer cancel()
	if res, err := client.UploadNow(fctx); err != nil {
		logger.Warn("final upload failed; entries stay buffered", logpkg.Err(err))
	} else if !res.NoOp {
		logger.Info("final upload", logpkg.Int("entries", res.Uploaded))
	}
	return runErr
}

func record(ctx context.Context, rt *runtime.Runtime, line string) error {
	c := rt.Client()
	head, _, _ := strings.Cut(line, " ")
	switch strings.ToUpper(strings.Trim(head, "[]:")) {
	case "WARN", "WARNING":
		return c.Warn(ctx, line)
	case "ERROR":
		return c.Error(ctx, line)
	case "DEBUG":
		return c.Debug(ctx, line)
	default:
		return c.Log(ctx, line)
	}
}
