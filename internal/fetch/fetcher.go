// Package fetch retrieves asset bytes from HTTP(S) URLs or local files.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrTransient marks failures worth retrying: network errors, 5xx, 408 and 429.
	ErrTransient = errors.New("transient fetch failure")
	// ErrPermanent marks failures that will not go away on retry.
	ErrPermanent = errors.New("permanent fetch failure")
)

const (
	defaultTimeout        = 30 * time.Second
	defaultMaxBytes       = 64 << 20
	defaultAttempts       = 4
	defaultInitialBackoff = 250 * time.Millisecond
	defaultMaxBackoff     = 5 * time.Second
	defaultUserAgent      = "mediadedup/1.0"
)

// Options configures a Fetcher. Zero values take defaults.
type Options struct {
	Timeout        time.Duration
	MaxBytes       int64
	UserAgent      string
	RetryAttempts  int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	HTTPClient     *http.Client
}

// Result holds fetched asset bytes.
type Result struct {
	Data     []byte
	MIMEType string
}

// StatusError is a non-200 HTTP response.
type StatusError struct {
	URL        string
	StatusCode int
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.StatusCode)
}

// Fetcher loads assets with bounded size and retries transient failures.
type Fetcher struct {
	opts    Options
	client  *http.Client
	logger  *slog.Logger
	sleeper func(context.Context, time.Duration) error
}

// New creates a Fetcher.
func New(opts Options, logger *slog.Logger) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaultMaxBytes
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = defaultAttempts
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = defaultInitialBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Fetcher{opts: opts, client: client, logger: logger, sleeper: sleep}
}

// Fetch retrieves the asset at location, retrying transient failures with
// exponential backoff. Returned errors wrap ErrTransient or ErrPermanent
// unless the context ended.
func (f *Fetcher) Fetch(ctx context.Context, location string) (*Result, error) {
	var lastErr error
	for attempt := 1; attempt <= f.opts.RetryAttempts; attempt++ {
		res, err := f.fetchOnce(ctx, location)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		if !errors.Is(err, ErrTransient) || attempt == f.opts.RetryAttempts {
			break
		}

		delay := f.backoffDelay(attempt)
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.RetryAfter > 0 {
			delay = min(statusErr.RetryAfter, f.opts.MaxBackoff)
		}
		f.logger.Debug("retrying fetch",
			"location", location, "attempt", attempt, "delay", delay, "error", err)
		if err := f.sleeper(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// Open fetches location and returns a reader over its bytes.
func (f *Fetcher) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	res, err := f.Fetch(ctx, location)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(res.Data)), nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, location string) (*Result, error) {
	if isHTTP(location) {
		return f.fetchHTTP(ctx, location)
	}
	return f.fetchFile(location)
}

func (f *Fetcher) fetchHTTP(ctx context.Context, location string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPermanent, err)
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		statusErr := &StatusError{
			URL:        location,
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
		if retryableStatus(resp.StatusCode) {
			return nil, fmt.Errorf("%w: %w", ErrTransient, statusErr)
		}
		return nil, fmt.Errorf("%w: %w", ErrPermanent, statusErr)
	}

	data, err := f.readLimited(resp.Body)
	if err != nil {
		return nil, err
	}
	mimeType := resp.Header.Get("Content-Type")
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	return &Result{Data: data, MIMEType: mimeType}, nil
}

func (f *Fetcher) fetchFile(location string) (*Result, error) {
	path := strings.TrimPrefix(location, "file://")
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: %w", ErrPermanent, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrTransient, err)
	}
	defer file.Close()

	data, err := f.readLimited(file)
	if err != nil {
		return nil, err
	}
	return &Result{Data: data, MIMEType: http.DetectContentType(data)}, nil
}

// readLimited reads at most MaxBytes and rejects larger bodies.
func (f *Fetcher) readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, f.opts.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrTransient, err)
	}
	if int64(len(data)) > f.opts.MaxBytes {
		return nil, fmt.Errorf("%w: asset exceeds %d bytes", ErrPermanent, f.opts.MaxBytes)
	}
	return data, nil
}

func (f *Fetcher) backoffDelay(attempt int) time.Duration {
	delay := f.opts.InitialBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= f.opts.MaxBackoff {
			return f.opts.MaxBackoff
		}
	}
	return delay
}

func retryableStatus(code int) bool {
	return code == http.StatusRequestTimeout ||
		code == http.StatusTooManyRequests ||
		code >= http.StatusInternalServerError
}

func isHTTP(location string) bool {
	u, err := url.Parse(location)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(value); err == nil {
		if d := time.Until(when); d > 0 {
			return d
		}
	}
	return 0
}

func sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
