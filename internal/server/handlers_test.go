package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/danielledeleo/wikiprint/internal/article"
	"github.com/danielledeleo/wikiprint/internal/config"
	"github.com/danielledeleo/wikiprint/internal/renderqueue"
)

// newTestApp wires an App whose items run a supplied process function, so
// no browser is ever launched. probeStatus is what the fake wiki's
// existence probe returns.
func newTestApp(t *testing.T, qcfg renderqueue.Config, probeStatus int,
	process renderqueue.ProcessFunc, cancel renderqueue.CancelFunc) (*App, *mux.Router, func()) {
	t.Helper()

	probe := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(probeStatus)
	}))

	cfg := &config.Config{QueueTimeoutSecs: 60}
	queue := renderqueue.New(qcfg, nil)
	articles := article.NewService(probe.Client(), "", probe.URL+"/title/{title}?d={domain}", nil)

	app := NewApp(cfg, queue, articles)
	app.newItem = func(jobID string, p jobParams) *renderqueue.Item {
		return renderqueue.NewItem(jobID, process, cancel)
	}

	router := mux.NewRouter()
	app.RegisterRoutes(router)

	teardown := func() {
		queue.Shutdown(context.Background())
		probe.Close()
	}
	return app, router, teardown
}

func defaultQueueConfig() renderqueue.Config {
	return renderqueue.Config{
		Concurrency:      1,
		QueueTimeout:     5 * time.Second,
		ExecutionTimeout: 5 * time.Second,
		MaxTaskCount:     5,
	}
}

func okProcess() (*renderqueue.PdfResult, error) {
	return &renderqueue.PdfResult{
		Buffer:       []byte("%PDF-1.7 fake"),
		LastModified: "Tue, 05 May 2020 10:00:00 GMT",
	}, nil
}

func TestPdfSuccessHeaders(t *testing.T) {
	_, router, teardown := newTestApp(t, defaultQueueConfig(), http.StatusOK, okProcess, nil)
	defer teardown()

	req := httptest.NewRequest("GET", "/en.wikipedia.org/v1/pdf/Go_(programming_language)/a4/desktop", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Content-Type = %q", ct)
	}
	wantCD := `attachment; filename="Go_(programming_language).pdf"; filename*=UTF-8''Go_(programming_language).pdf`
	if cd := rec.Header().Get("Content-Disposition"); cd != wantCD {
		t.Errorf("Content-Disposition = %q, want %q", cd, wantCD)
	}
	if cl := rec.Header().Get("Content-Length"); cl != "13" {
		t.Errorf("Content-Length = %q", cl)
	}
	if lm := rec.Header().Get("Last-Modified"); lm != "Tue, 05 May 2020 10:00:00 GMT" {
		t.Errorf("Last-Modified = %q", lm)
	}
	if rec.Body.String() != "%PDF-1.7 fake" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestPdfDefaultsToDesktop(t *testing.T) {
	_, router, teardown := newTestApp(t, defaultQueueConfig(), http.StatusOK, okProcess, nil)
	defer teardown()

	req := httptest.NewRequest("GET", "/en.wikipedia.org/v1/pdf/Main_Page/letter", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestPdfRejectsBadFormatAndDevice(t *testing.T) {
	_, router, teardown := newTestApp(t, defaultQueueConfig(), http.StatusOK, okProcess, nil)
	defer teardown()

	for _, path := range []string{
		"/en.wikipedia.org/v1/pdf/Main_Page/tabloid",
		"/en.wikipedia.org/v1/pdf/Main_Page/a4/tablet",
	} {
		req := httptest.NewRequest("GET", path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", path, rec.Code)
		}
	}
}

func TestPdfMissingArticle(t *testing.T) {
	_, router, teardown := newTestApp(t, defaultQueueConfig(), http.StatusNotFound, okProcess, nil)
	defer teardown()

	req := httptest.NewRequest("GET", "/en.wikipedia.org/v1/pdf/Does_Not_Exist/a4", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad JSON body: %v", err)
	}
	if body.Status != 404 || body.Name != "not_found" {
		t.Errorf("unexpected body %+v", body)
	}
	if body.Details != "Article 'Does_Not_Exist' not found" {
		t.Errorf("details = %q", body.Details)
	}
}

func TestPdfQueueFullGets503WithRetryAfter(t *testing.T) {
	block := make(chan struct{})
	process := func() (*renderqueue.PdfResult, error) {
		<-block
		return okProcess()
	}
	app, router, teardown := newTestApp(t,
		renderqueue.Config{Concurrency: 1, QueueTimeout: 5 * time.Second, ExecutionTimeout: 5 * time.Second, MaxTaskCount: 1},
		http.StatusOK, process, nil)
	defer teardown()
	defer close(block)

	// Fill the queue's single slot directly.
	app.Queue.Submit(renderqueue.NewItem("occupant", process, nil))

	req := httptest.NewRequest("GET", "/en.wikipedia.org/v1/pdf/Main_Page/a4", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if ra := rec.Header().Get("Retry-After"); ra != "60" {
		t.Errorf("Retry-After = %q, want 60", ra)
	}
}

func TestPdfClientDisconnectCancelsJob(t *testing.T) {
	var cancelled atomic.Int32
	release := make(chan struct{})
	process := func() (*renderqueue.PdfResult, error) {
		<-release
		return nil, renderqueue.ErrProcessingCancelled
	}
	cancel := func() error {
		cancelled.Add(1)
		close(release)
		return nil
	}
	_, router, teardown := newTestApp(t, defaultQueueConfig(), http.StatusOK, process, cancel)
	defer teardown()

	ctx, stop := context.WithCancel(context.Background())
	req := httptest.NewRequest("GET", "/en.wikipedia.org/v1/pdf/Main_Page/a4", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		router.ServeHTTP(rec, req)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond) // let the job start
	stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not return after client disconnect")
	}
	if cancelled.Load() != 1 {
		t.Errorf("expected renderer abort exactly once, got %d", cancelled.Load())
	}
	if rec.Body.Len() != 0 {
		t.Errorf("disconnect must not produce a body, got %q", rec.Body.String())
	}
}

func TestEncodeTitle(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Main_Page", "Main_Page"},
		{"Go_(programming_language)", "Go_(programming_language)"},
		{"C++", "C%2B%2B"},
		{"Nap time!", "Nap%20time!"},
		{"Über", "%C3%9Cber"},
		{"it's~ok*", "it's~ok*"},
		{"a/b\\c", "a%2Fb%5Cc"},
	}
	for _, tc := range cases {
		if got := encodeTitle(tc.in); got != tc.want {
			t.Errorf("encodeTitle(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
