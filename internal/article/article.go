// Package article maps (domain, title) pairs onto the remote wiki's REST
// API: the URL the browser should render, the headers to send, and a cheap
// pre-existence probe so obviously missing articles never reach the render
// queue.
package article

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrNotFound means the wiki reported that the article does not exist.
var ErrNotFound = errors.New("article not found")

const (
	// DefaultRenderTemplate is the page the browser renders.
	DefaultRenderTemplate = "https://{domain}/api/rest_v1/page/html/{title}"

	// DefaultProbeTemplate is the endpoint the existence probe checks.
	DefaultProbeTemplate = "https://{domain}/api/rest_v1/page/title/{title}"
)

// Service expands URL templates and probes article existence.
type Service struct {
	client         *http.Client
	renderTemplate string
	probeTemplate  string
	headers        map[string]string
}

// NewService builds the article service. Empty templates fall back to the
// defaults; a nil client gets a timeout-bounded one.
func NewService(client *http.Client, renderTemplate, probeTemplate string, headers map[string]string) *Service {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if renderTemplate == "" {
		renderTemplate = DefaultRenderTemplate
	}
	if probeTemplate == "" {
		probeTemplate = DefaultProbeTemplate
	}
	return &Service{
		client:         client,
		renderTemplate: renderTemplate,
		probeTemplate:  probeTemplate,
		headers:        headers,
	}
}

// RenderURL is the article URL the browser navigates to.
func (s *Service) RenderURL(domain, title string) string {
	return expand(s.renderTemplate, domain, title)
}

// Headers returns a fresh copy of the configured per-job header overrides.
func (s *Service) Headers() map[string]string {
	out := make(map[string]string, len(s.headers))
	for k, v := range s.headers {
		out[k] = v
	}
	return out
}

// CheckExists asks the wiki whether the article exists before any browser
// is launched. 404 maps to ErrNotFound; other failures are wrapped.
func (s *Service) CheckExists(ctx context.Context, domain, title string) error {
	probeURL := expand(s.probeTemplate, domain, title)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		return errors.Wrap(err, "building existence probe request")
	}
	for k, v := range s.headers {
		if strings.EqualFold(k, "host") {
			continue
		}
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "probing article existence")
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errors.Wrapf(ErrNotFound, "probe for %q on %q", title, domain)
	case resp.StatusCode >= 400:
		return errors.Errorf("existence probe for %q returned status %d", title, resp.StatusCode)
	}
	return nil
}

func expand(template, domain, title string) string {
	return strings.NewReplacer(
		"{domain}", domain,
		"{title}", url.PathEscape(title),
	).Replace(template)
}
