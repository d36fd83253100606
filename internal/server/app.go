// Package server is the HTTP glue: it turns inbound requests into render
// queue items, awaits their futures, and is the sole place queue and
// renderer errors are translated to HTTP.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/danielledeleo/wikiprint/internal/article"
	"github.com/danielledeleo/wikiprint/internal/config"
	"github.com/danielledeleo/wikiprint/internal/renderer"
	"github.com/danielledeleo/wikiprint/internal/renderqueue"
)

// App holds all application dependencies.
type App struct {
	Config   *config.Config
	Queue    *renderqueue.Queue
	Articles *article.Service

	// newItem builds the queue item for one job. Tests swap it for a
	// fake so no browser is ever launched.
	newItem func(jobID string, p jobParams) *renderqueue.Item
}

type jobParams struct {
	url     string
	format  string
	device  renderer.DeviceType
	headers map[string]string
}

// NewApp wires the glue layer. The queue is an injected collaborator, not
// an ambient singleton.
func NewApp(cfg *config.Config, queue *renderqueue.Queue, articles *article.Service) *App {
	a := &App{Config: cfg, Queue: queue, Articles: articles}
	a.newItem = a.browserItem
	return a
}

// browserItem builds a queue item backed by a fresh single-use renderer.
// The item's cancel routes straight to the renderer's abort, which is what
// guarantees no orphan browser survives a settled job.
func (a *App) browserItem(jobID string, p jobParams) *renderqueue.Item {
	r := renderer.New(renderer.Config{
		ChromePath:      a.Config.ChromePath,
		ChromeFlags:     a.Config.ChromeFlags,
		UserAgent:       a.Config.UserAgent,
		MobileUserAgent: a.Config.MobileUserAgent,
		DenyHosts:       a.Config.DenyHosts(),
		MarginInches:    a.Config.PDFMarginInches,
		PrintBackground: a.Config.PDFPrintBackground,
	})

	process := func() (*renderqueue.PdfResult, error) {
		// The queue's execution timer is the real budget; this outer
		// deadline is a backstop for a wedged browser session.
		ctx, cancel := context.WithTimeout(context.Background(), a.Config.RenderTimeout()+30*time.Second)
		defer cancel()
		return r.ArticleToPDF(ctx, p.url, p.format, p.device, p.headers)
	}
	abort := func() error {
		r.AbortRender()
		return nil
	}
	return renderqueue.NewItem(jobID, process, abort)
}

func newJobID() string {
	return uuid.NewString()
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// SlogLoggingMiddleware logs HTTP requests using slog
func SlogLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"size", wrapped.size,
			"duration", time.Since(start),
			"remote", r.RemoteAddr,
		)
	})
}
