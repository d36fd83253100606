package article

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRenderURL(t *testing.T) {
	s := NewService(nil, "", "", nil)

	got := s.RenderURL("en.wikipedia.org", "Go (programming language)")
	want := "https://en.wikipedia.org/api/rest_v1/page/html/Go%20(programming%20language)"
	if got != want {
		t.Errorf("RenderURL = %q, want %q", got, want)
	}
}

func TestRenderURLCustomTemplate(t *testing.T) {
	s := NewService(nil, "http://{domain}/render/{title}", "", nil)
	if got := s.RenderURL("wiki.local", "Main_Page"); got != "http://wiki.local/render/Main_Page" {
		t.Errorf("unexpected URL: %q", got)
	}
}

func TestCheckExists(t *testing.T) {
	var sawPath, sawHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawPath = r.URL.Path
		sawHeader = r.Header.Get("X-Forwarded-For")
		if strings.Contains(r.URL.Path, "Missing") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if strings.Contains(r.URL.Path, "Broken") {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewService(srv.Client(), "", srv.URL+"/page/title/{title}?domain={domain}",
		map[string]string{"X-Forwarded-For": "10.0.0.1", "Host": "ignored.example"})

	if err := s.CheckExists(context.Background(), "en.wikipedia.org", "Exists"); err != nil {
		t.Fatalf("expected existing article, got: %v", err)
	}
	if sawPath != "/page/title/Exists" {
		t.Errorf("unexpected probe path %q", sawPath)
	}
	if sawHeader != "10.0.0.1" {
		t.Errorf("configured header not forwarded, got %q", sawHeader)
	}

	err := s.CheckExists(context.Background(), "en.wikipedia.org", "Missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got: %v", err)
	}

	err = s.CheckExists(context.Background(), "en.wikipedia.org", "Broken")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected a non-404 failure to be distinct, got: %v", err)
	}
}
