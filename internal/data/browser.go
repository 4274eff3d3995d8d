package data

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/jonboulle/clockwork"

	"github.com/otp-relay/sms-otp-bridge/internal/biz/domain"
	"github.com/otp-relay/sms-otp-bridge/internal/biz/repo"
)

// fetchScript runs inside the page so the challenge cookies apply to the request.
// It never rejects: transport failures come back in the error field.
const fetchScript = `(async () => {
  try {
    const res = await fetch(%s, {
      method: "GET",
      credentials: "include",
      headers: { "Authorization": %s, "Accept": "application/json" }
    });
    const body = await res.text();
    return { ok: res.ok, status: res.status, statusText: res.statusText, body: body, error: "" };
  } catch (e) {
    return { ok: false, status: 0, statusText: "", body: "", error: String((e && e.message) || e) };
  }
})()`

// pageResponse is the value fetchScript resolves to
type pageResponse struct {
	OK         bool   `json:"ok"`
	Status     int    `json:"status"`
	StatusText string `json:"statusText"`
	Body       string `json:"body"`
	Error      string `json:"error"`
}

// browserSource implements SourceRepo with a headless Chrome session
type browserSource struct {
	opts   SourceOptions
	clock  clockwork.Clock
	logger *slog.Logger

	mu            sync.Mutex
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
}

// NewBrowserSource creates a new browser-backed source repository
func NewBrowserSource(opts SourceOptions, clock clockwork.Clock, logger *slog.Logger) repo.SourceRepo {
	return &browserSource{
		opts:   opts,
		clock:  clock,
		logger: logger.With("component", "browser"),
	}
}

// Initialize launches Chrome, installs the auth header and navigates once so the challenge can clear
func (s *browserSource) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.teardownLocked()

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.DisableGPU,
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("headless", s.opts.Headless),
	)
	if s.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(s.opts.ExecPath))
	}
	if s.opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(s.opts.UserAgent))
	}

	// The browser outlives this call, so it hangs off Background; ctx only bounds the setup
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			s.logger.Debug("chromedp: " + fmt.Sprintf(format, args...))
		}),
	)
	abort := func() {
		browserCancel()
		allocCancel()
	}
	stop := context.AfterFunc(ctx, abort)
	defer stop()

	s.logger.Info("Launching browser", "headless", s.opts.Headless, "exec_path", s.opts.ExecPath)
	if err := chromedp.Run(browserCtx); err != nil {
		abort()
		return fmt.Errorf("launch browser: %w", err)
	}

	navCtx, navCancel := context.WithTimeout(browserCtx, s.opts.NavigationTimeout)
	err := chromedp.Run(navCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{
			"Authorization": basicAuthHeader(s.opts.Username, s.opts.Password),
		}),
		chromedp.Navigate(s.opts.URL),
	)
	navCancel()
	if err != nil {
		abort()
		return fmt.Errorf("navigate to source: %w", err)
	}

	s.logger.Debug("Waiting for challenge to settle", "delay", s.opts.SettleDelay.String())
	if s.opts.SettleDelay > 0 {
		select {
		case <-s.clock.After(s.opts.SettleDelay):
		case <-ctx.Done():
			abort()
			return ctx.Err()
		}
	}

	if !stop() {
		return ctx.Err()
	}
	s.browserCtx = browserCtx
	s.browserCancel = browserCancel
	s.allocCancel = allocCancel
	s.logger.Info("Browser session ready", "url", s.opts.URL)
	return nil
}

// Fetch runs the authenticated GET inside the page
func (s *browserSource) Fetch(ctx context.Context, cursor int64) ([]domain.SMSRecord, error) {
	browserCtx := s.session()
	if browserCtx == nil {
		return nil, fmt.Errorf("%w: no browser session", domain.ErrSessionLost)
	}

	target, err := buildSourceURL(s.opts.URL, s.opts.PerPage, cursor)
	if err != nil {
		return nil, err
	}
	script, err := buildFetchScript(target, basicAuthHeader(s.opts.Username, s.opts.Password))
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(browserCtx, s.opts.RequestTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var res pageResponse
	err = chromedp.Run(runCtx, chromedp.Evaluate(script, &res, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrSessionLost, err)
	}

	if res.Error != "" {
		return nil, &domain.SourceTransportError{Message: res.Error}
	}
	return decodeBatch(res.Status, res.StatusText, []byte(res.Body))
}

// IsResponsive evaluates a trivial expression in the page
func (s *browserSource) IsResponsive(ctx context.Context) bool {
	browserCtx := s.session()
	if browserCtx == nil {
		return false
	}

	runCtx, cancel := context.WithTimeout(browserCtx, s.opts.RequestTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var sum int
	if err := chromedp.Run(runCtx, chromedp.Evaluate(`1 + 1`, &sum)); err != nil {
		s.logger.Warn("Browser probe failed", "error", err)
		return false
	}
	return sum == 2
}

// Teardown closes the browser
func (s *browserSource) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()
}

// Active reports whether a browser session exists
func (s *browserSource) Active() bool {
	return s.session() != nil
}

func (s *browserSource) session() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.browserCtx
}

func (s *browserSource) teardownLocked() {
	if s.browserCtx == nil {
		return
	}
	if err := chromedp.Cancel(s.browserCtx); err != nil {
		s.logger.Debug("Browser close returned error", "error", err)
	}
	s.browserCancel()
	s.allocCancel()
	s.browserCtx = nil
	s.browserCancel = nil
	s.allocCancel = nil
	s.logger.Info("Browser closed")
}

// buildFetchScript embeds the target and auth header as JSON string literals
func buildFetchScript(target, authorization string) (string, error) {
	t, err := json.Marshal(target)
	if err != nil {
		return "", err
	}
	a, err := json.Marshal(authorization)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(fetchScript, t, a), nil
}
