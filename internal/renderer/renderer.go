// Package renderer turns a single article URL into PDF bytes using a
// headless Chromium subprocess. A Renderer is single-use: it owns at most
// one browser for one job and is never shared or reused.
package renderer

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/pkg/errors"

	"github.com/danielledeleo/wikiprint/internal/renderqueue"
)

// DefaultCloseTimeout bounds the graceful browser close during an abort;
// past it the subprocess is force-killed.
const DefaultCloseTimeout = 3 * time.Second

// Config is shared by all renderers; one is constructed per job from it.
type Config struct {
	// ChromePath overrides the browser binary location. Empty means the
	// chromedp default lookup.
	ChromePath string

	// ChromeFlags are extra command line flags, "--name" or "--name=value".
	ChromeFlags []string

	// UserAgent and MobileUserAgent override the browser UA per device
	// profile. Empty keeps the browser default.
	UserAgent       string
	MobileUserAgent string

	// DenyHosts refuses any URL whose host matches. Applies to the
	// article URL and to every sub-resource the page requests.
	DenyHosts *regexp.Regexp

	// MarginInches and PrintBackground feed page.printToPDF.
	MarginInches    float64
	PrintBackground bool

	CloseTimeout time.Duration
}

// session is the handle to a live browser: a graceful close that blocks
// until the process exits, and a force-kill escape hatch.
type session struct {
	close func()
	kill  func() error
}

// Renderer renders one article to PDF. Safe for a concurrent AbortRender
// while ArticleToPDF is in flight; two ArticleToPDF calls are not.
type Renderer struct {
	cfg Config

	mu      sync.Mutex
	aborted bool
	sess    *session
	// launch is non-nil once a browser launch has begun and is closed
	// when the launch attempt concludes, with sess set on success.
	launch chan struct{}

	closeOnce sync.Once
}

// New builds a renderer for a single job.
func New(cfg Config) *Renderer {
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = DefaultCloseTimeout
	}
	return &Renderer{cfg: cfg}
}

// ArticleToPDF fetches the article and prints it. If AbortRender was called
// first, any failure is reported as a plain cancellation so the caller does
// not treat its own abort as a render fault.
func (r *Renderer) ArticleToPDF(ctx context.Context, rawurl, format string, device DeviceType, headers map[string]string) (*renderqueue.PdfResult, error) {
	res, err := r.render(ctx, rawurl, format, device, headers)
	if err != nil && r.wasAborted() {
		return nil, renderqueue.ErrProcessingCancelled
	}
	return res, err
}

// AbortRender tears the browser down: graceful close raced against the
// close timeout, then a force kill. Kill errors are swallowed; they mean
// the process already exited. If a launch is in progress, AbortRender
// waits for it to hand the session over, so it never returns while the
// subprocess is still coming up. Idempotent.
func (r *Renderer) AbortRender() {
	r.mu.Lock()
	r.aborted = true
	l := r.launch
	r.mu.Unlock()

	if l != nil {
		<-l
	}
	r.closeBrowser()
}

func (r *Renderer) wasAborted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.aborted
}

// closeBrowser runs the session teardown exactly once. Concurrent callers
// block until the teardown completes, which is what gives AbortRender its
// "resolved means the process is gone" guarantee.
func (r *Renderer) closeBrowser() {
	r.mu.Lock()
	s := r.sess
	r.mu.Unlock()
	if s == nil {
		return
	}
	r.closeOnce.Do(func() {
		abortSession(s, r.cfg.CloseTimeout)
	})
}

// abortSession closes a browser session, force-killing the subprocess if
// the graceful close does not finish within timeout.
func abortSession(s *session, timeout time.Duration) {
	closed := make(chan struct{})
	go func() {
		s.close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(timeout):
		if s.kill != nil {
			_ = s.kill() // already-exited races are expected
		}
	}
}

func (r *Renderer) render(ctx context.Context, rawurl, format string, device DeviceType, headers map[string]string) (*renderqueue.PdfResult, error) {
	if err := CheckURL(rawurl, r.cfg.DenyHosts); err != nil {
		return nil, err
	}
	paperWidth, paperHeight, ok := PaperSize(format)
	if !ok {
		return nil, errors.Errorf("unsupported page format %q", format)
	}
	profile, ok := deviceProfiles[device]
	if !ok {
		profile = deviceProfiles[DeviceDesktop]
	}
	userAgent := r.cfg.UserAgent
	if profile.Mobile && r.cfg.MobileUserAgent != "" {
		userAgent = r.cfg.MobileUserAgent
	}

	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if r.cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(r.cfg.ChromePath))
	}
	for _, raw := range r.cfg.ChromeFlags {
		name, value := splitFlag(raw)
		opts = append(opts, chromedp.Flag(name, value))
	}

	r.mu.Lock()
	if r.aborted {
		r.mu.Unlock()
		return nil, renderqueue.ErrProcessingCancelled
	}
	r.launch = make(chan struct{})
	r.mu.Unlock()

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	// First Run launches the subprocess; nothing to abort before this.
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		close(r.launch)
		return nil, errors.Wrap(err, "launching browser")
	}

	var proc *os.Process
	if c := chromedp.FromContext(tabCtx); c != nil && c.Browser != nil {
		proc = c.Browser.Process()
	}
	s := &session{
		close: func() {
			cancelTab()
			cancelAlloc() // blocks until the subprocess exits
		},
		kill: func() error {
			if proc == nil {
				return nil
			}
			return proc.Kill()
		},
	}

	r.mu.Lock()
	r.sess = s
	aborted := r.aborted
	r.mu.Unlock()
	close(r.launch)
	if aborted {
		r.closeBrowser()
		return nil, renderqueue.ErrProcessingCancelled
	}
	defer r.closeBrowser()

	var (
		responseSeen bool
		status       int64
		statusText   string
		lastModified string
	)
	idle := make(chan struct{})
	var idleOnce sync.Once

	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *fetch.EventRequestPaused:
			go r.continueOrDeny(tabCtx, e, headers)
		case *network.EventResponseReceived:
			if e.Type == network.ResourceTypeDocument && !responseSeen {
				responseSeen = true
				status = e.Response.Status
				statusText = e.Response.StatusText
				for name, value := range e.Response.Headers {
					if strings.EqualFold(name, "last-modified") {
						lastModified = fmt.Sprint(value)
					}
				}
			}
		case *page.EventLifecycleEvent:
			if e.Name == "networkIdle" {
				idleOnce.Do(func() { close(idle) })
			}
		}
	})

	err := chromedp.Run(tabCtx,
		fetch.Enable(),
		network.Enable(),
		page.SetLifecycleEventsEnabled(true),
		emulation.SetDeviceMetricsOverride(profile.Width, profile.Height, profile.Scale, profile.Mobile),
		// Scripts stay off so lazily loaded resources are not deferred
		// past the network-idle wait.
		emulation.SetScriptExecutionDisabled(true),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if userAgent == "" {
				return nil
			}
			return emulation.SetUserAgentOverride(userAgent).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, _, errText, err := page.Navigate(rawurl).Do(ctx)
			if err != nil {
				return err
			}
			if errText != "" {
				return errors.Errorf("navigation failed: %s", errText)
			}
			return nil
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "navigating to article")
	}

	select {
	case <-idle:
	case <-tabCtx.Done():
		return nil, errors.Wrap(tabCtx.Err(), "waiting for network idle")
	}

	if !responseSeen {
		return nil, ErrMalformedResponse
	}
	if status >= 400 {
		return nil, &NavigationError{Code: status, Message: statusText}
	}

	var pdf []byte
	err = chromedp.Run(tabCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		buf, _, err := page.PrintToPDF().
			WithPaperWidth(paperWidth).
			WithPaperHeight(paperHeight).
			WithMarginTop(r.cfg.MarginInches).
			WithMarginBottom(r.cfg.MarginInches).
			WithMarginLeft(r.cfg.MarginInches).
			WithMarginRight(r.cfg.MarginInches).
			WithPrintBackground(r.cfg.PrintBackground).
			Do(ctx)
		if err != nil {
			return err
		}
		pdf = buf
		return nil
	}))
	if err != nil {
		return nil, errors.Wrap(err, "printing page to PDF")
	}

	if lastModified == "" {
		lastModified = time.Now().UTC().Format(http.TimeFormat)
	}
	return &renderqueue.PdfResult{Buffer: pdf, LastModified: lastModified}, nil
}

// continueOrDeny applies the allow-rule to one intercepted request and
// rewrites its headers: the forbidden host header is stripped, configured
// overrides replace whatever the browser set.
func (r *Renderer) continueOrDeny(ctx context.Context, ev *fetch.EventRequestPaused, overrides map[string]string) {
	c := chromedp.FromContext(ctx)
	if c == nil {
		return
	}
	ectx := cdp.WithExecutor(ctx, c.Target)

	if err := CheckURL(ev.Request.URL, r.cfg.DenyHosts); err != nil {
		_ = fetch.FailRequest(ev.RequestID, network.ErrorReasonAccessDenied).Do(ectx)
		return
	}

	overridden := make(map[string]bool, len(overrides))
	for name := range overrides {
		overridden[strings.ToLower(name)] = true
	}

	entries := make([]*fetch.HeaderEntry, 0, len(ev.Request.Headers)+len(overrides))
	for name, value := range ev.Request.Headers {
		if strings.EqualFold(name, "host") || overridden[strings.ToLower(name)] {
			continue
		}
		entries = append(entries, &fetch.HeaderEntry{Name: name, Value: fmt.Sprint(value)})
	}
	for name, value := range overrides {
		if strings.EqualFold(name, "host") {
			continue
		}
		entries = append(entries, &fetch.HeaderEntry{Name: name, Value: value})
	}

	_ = fetch.ContinueRequest(ev.RequestID).WithHeaders(entries).Do(ectx)
}

func splitFlag(raw string) (string, interface{}) {
	raw = strings.TrimLeft(raw, "-")
	if name, value, ok := strings.Cut(raw, "="); ok {
		return name, value
	}
	return raw, true
}
