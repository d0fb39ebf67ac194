package fetcher

import (
	"fmt"
	"log/slog"
	"time"

	"resty.dev/v3"
)

const (
	// DefaultTimeout bounds every single request attempt
	DefaultTimeout = 10 * time.Second

	// DefaultUserAgent is a desktop browser string; some yield pages block
	// requests that do not present one.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
)

// ClientOptions configures clients built by NewHTTPClient.
type ClientOptions struct {
	Timeout   time.Duration
	UserAgent string
	Headers   map[string]string
}

// NewHTTPClient creates an HTTP client that makes exactly one timeout-bounded
// attempt per request. Slow or unreachable sources cost at most one request
// latency each.
func NewHTTPClient(baseURL string, opts ClientOptions) *resty.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("User-Agent", userAgent).
		SetHeaders(opts.Headers).
		SetLogger(slogLogger{})

	if baseURL != "" {
		client.SetBaseURL(baseURL)
	}

	return client
}

// slogLogger routes resty's internal logging into slog
type slogLogger struct{}

func (slogLogger) Errorf(format string, v ...any) {
	slog.Error(fmt.Sprintf(format, v...), "component", "http")
}

func (slogLogger) Warnf(format string, v ...any) {
	slog.Warn(fmt.Sprintf(format, v...), "component", "http")
}

func (slogLogger) Debugf(format string, v ...any) {
	slog.Debug(fmt.Sprintf(format, v...), "component", "http")
}
