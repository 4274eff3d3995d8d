package data

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"sync"

	"github.com/otp-relay/sms-otp-bridge/internal/biz/domain"
	"github.com/otp-relay/sms-otp-bridge/internal/biz/repo"
)

// maxBodySize caps how much of a source response is read
const maxBodySize = 8 << 20

// httpSource implements SourceRepo with a plain HTTP client, for sources without a browser challenge.
// A session is a client with its own cookie jar.
type httpSource struct {
	opts   SourceOptions
	logger *slog.Logger

	mu     sync.Mutex
	client *http.Client
}

// NewHTTPSource creates a new HTTP-backed source repository
func NewHTTPSource(opts SourceOptions, logger *slog.Logger) repo.SourceRepo {
	return &httpSource{
		opts:   opts,
		logger: logger.With("component", "http_source"),
	}
}

// Initialize creates a fresh client and primes its cookies with one request to the source
func (s *httpSource) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.teardownLocked()

	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("create cookie jar: %w", err)
	}
	client := &http.Client{Jar: jar, Timeout: s.opts.RequestTimeout}

	resp, err := s.do(ctx, client, s.opts.URL)
	if err != nil {
		return fmt.Errorf("reach source: %w", err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
	resp.Body.Close()

	s.client = client
	s.logger.Info("HTTP session ready", "url", s.opts.URL, "status", resp.StatusCode)
	return nil
}

// Fetch performs the authenticated GET
func (s *httpSource) Fetch(ctx context.Context, cursor int64) ([]domain.SMSRecord, error) {
	client := s.session()
	if client == nil {
		return nil, fmt.Errorf("%w: no http session", domain.ErrSessionLost)
	}

	target, err := buildSourceURL(s.opts.URL, s.opts.PerPage, cursor)
	if err != nil {
		return nil, err
	}

	resp, err := s.do(ctx, client, target)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &domain.SourceTransportError{Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &domain.SourceTransportError{Message: err.Error()}
	}
	return decodeBatch(resp.StatusCode, http.StatusText(resp.StatusCode), body)
}

// IsResponsive reports whether a client exists; there is no page to probe
func (s *httpSource) IsResponsive(ctx context.Context) bool {
	return s.session() != nil && ctx.Err() == nil
}

// Teardown drops the client and its cookies
func (s *httpSource) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()
}

// Active reports whether a client exists
func (s *httpSource) Active() bool {
	return s.session() != nil
}

func (s *httpSource) session() *http.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

func (s *httpSource) teardownLocked() {
	if s.client == nil {
		return
	}
	s.client.CloseIdleConnections()
	s.client = nil
}

func (s *httpSource) do(ctx context.Context, client *http.Client, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", basicAuthHeader(s.opts.Username, s.opts.Password))
	req.Header.Set("Accept", "application/json")
	if s.opts.UserAgent != "" {
		req.Header.Set("User-Agent", s.opts.UserAgent)
	}
	return client.Do(req)
}
