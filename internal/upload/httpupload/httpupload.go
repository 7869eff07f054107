package httpupload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/primlo/nibbana/pkg/entry"
)

const (
	// TokenHeader carries the collector token.
	TokenHeader = "nibbana-token"

	defaultTimeout    = 15 * time.Second
	defaultMaxRetries = 3
)

// Doer is the subset of *http.Client used for requests.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Option configures an Uploader.
type Option func(*Uploader)

// WithHeaders sets a function returning extra headers for every request. It
// is called once per upload so headers can carry fresh credentials.
func WithHeaders(f func() map[string]string) Option {
	return func(u *Uploader) { u.headers = f }
}

// WithTimeout sets the per-attempt request timeout. Default: 15s.
func WithTimeout(d time.Duration) Option {
	return func(u *Uploader) {
		if d > 0 {
			u.timeout = d
		}
	}
}

// WithMaxRetries sets how many times a retryable failure is retried.
// Default: 3.
func WithMaxRetries(n int) Option {
	return func(u *Uploader) { u.maxRetries = n }
}

// WithClient replaces the HTTP client.
func WithClient(d Doer) Option {
	return func(u *Uploader) { u.client = d }
}

// WithBackOff replaces the retry schedule. Mostly for tests.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(u *Uploader) { u.newBackOff = newBackOff }
}

// Uploader POSTs batches to a collector endpoint.
type Uploader struct {
	endpoint   string
	token      string
	headers    func() map[string]string
	timeout    time.Duration
	maxRetries int
	client     Doer
	newBackOff func() backoff.BackOff
}

// New creates an Uploader for endpoint authenticated with token.
func New(endpoint, token string, opts ...Option) *Uploader {
	u := &Uploader{
		endpoint:   endpoint,
		token:      token,
		timeout:    defaultTimeout,
		maxRetries: defaultMaxRetries,
		client:     http.DefaultClient,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

type requestBody struct {
	SecretToken string        `json:"secretToken"`
	Entries     []entry.Entry `json:"entries"`
}

// StatusError reports a non-2xx collector response.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("collector responded HTTP %d", e.StatusCode)
}

// Upload sends entries in one request. Transport errors and 5xx responses
// are retried with exponential backoff; 4xx responses fail immediately.
// It has the signature of upload.Func.
func (u *Uploader) Upload(ctx context.Context, entries []entry.Entry) error {
	body, err := json.Marshal(requestBody{SecretToken: u.token, Entries: entries})
	if err != nil {
		return fmt.Errorf("httpupload: marshal: %w", err)
	}
	var headers map[string]string
	if u.headers != nil {
		headers = u.headers()
	}

	b := backoff.WithContext(backoff.WithMaxRetries(u.newBackOff(), uint64(max(u.maxRetries, 0))), ctx)
	return backoff.Retry(func() error { return u.post(ctx, body, headers) }, b)
}

// post performs a single attempt. Errors not worth retrying are wrapped in
// backoff.Permanent.
func (u *Uploader) post(ctx context.Context, body []byte, headers map[string]string) error {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("httpupload: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.Header.Set(TokenHeader, u.token)

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("httpupload: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	serr := &StatusError{StatusCode: resp.StatusCode}
	if resp.StatusCode < 500 {
		return backoff.Permanent(serr)
	}
	return serr
}
