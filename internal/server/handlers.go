package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/danielledeleo/wikiprint/internal/article"
	"github.com/danielledeleo/wikiprint/internal/renderer"
	"github.com/danielledeleo/wikiprint/internal/renderqueue"
)

// RegisterRoutes attaches the service's handlers to a router.
func (a *App) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/_info", a.InfoHandler).Methods("GET")
	router.HandleFunc("/{domain}/v1/pdf/{title}/{format}", a.PdfHandler).Methods("GET")
	router.HandleFunc("/{domain}/v1/pdf/{title}/{format}/{type}", a.PdfHandler).Methods("GET")
}

// InfoHandler reports the service name and version.
func (a *App) InfoHandler(rw http.ResponseWriter, req *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	json.NewEncoder(rw).Encode(map[string]string{
		"name":        "wikiprint",
		"description": "renders wiki articles as PDF",
	})
}

// PdfHandler serves GET /{domain}/v1/pdf/{title}/{format}[/{type}].
func (a *App) PdfHandler(rw http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	domain := vars["domain"]
	title := vars["title"]
	format := vars["format"]

	if _, _, ok := renderer.PaperSize(format); !ok {
		a.writeError(rw, http.StatusBadRequest, "bad_request",
			fmt.Sprintf("unsupported page format %q, expected letter, a4, or legal", format))
		return
	}
	device, ok := renderer.ParseDeviceType(vars["type"])
	if !ok {
		a.writeError(rw, http.StatusBadRequest, "bad_request",
			fmt.Sprintf("unsupported device type %q, expected mobile or desktop", vars["type"]))
		return
	}

	if err := a.Articles.CheckExists(req.Context(), domain, title); err != nil {
		if errors.Is(err, article.ErrNotFound) {
			a.writeNotFound(rw, title)
			return
		}
		if req.Context().Err() != nil {
			return // client went away mid-probe
		}
		slog.Error("existence probe failed", "domain", domain, "title", title, "error", err)
		a.writeError(rw, http.StatusInternalServerError, "internal_error", "article lookup failed")
		return
	}

	item := a.newItem(newJobID(), jobParams{
		url:     a.Articles.RenderURL(domain, title),
		format:  format,
		device:  device,
		headers: a.Articles.Headers(),
	})
	future := a.Queue.Submit(item)

	select {
	case <-future.Done():
	case <-req.Context().Done():
		// Client disconnected: cancel and close the socket with no body.
		future.Cancel()
		<-future.Done()
		return
	}

	res, err := future.Result()
	if err != nil {
		a.writeRenderError(rw, title, err)
		return
	}

	encoded := encodeTitle(title)
	rw.Header().Set("Content-Type", "application/pdf")
	rw.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="%s.pdf"; filename*=UTF-8''%s.pdf`, encoded, encoded))
	rw.Header().Set("Content-Length", strconv.Itoa(len(res.Buffer)))
	rw.Header().Set("Last-Modified", res.LastModified)
	rw.WriteHeader(http.StatusOK)
	rw.Write(res.Buffer)
}

// writeRenderError maps queue and renderer failures onto HTTP responses.
// This is the single translation point; nothing below it speaks HTTP.
func (a *App) writeRenderError(rw http.ResponseWriter, title string, err error) {
	var nav *renderer.NavigationError
	var forbidden *renderer.ForbiddenHostError

	switch {
	case errors.Is(err, renderqueue.ErrProcessingCancelled):
		// Client-initiated; the socket just closes. Not an error.
		return

	case errors.Is(err, renderqueue.ErrQueueFull),
		errors.Is(err, renderqueue.ErrQueueTimeout),
		errors.Is(err, renderqueue.ErrJobTimeout),
		errors.Is(err, renderqueue.ErrQueueClosed):
		rw.Header().Set("Retry-After", strconv.Itoa(a.Config.QueueTimeoutSecs))
		a.writeError(rw, http.StatusServiceUnavailable, "service_unavailable",
			"render queue is busy, try again later")

	case errors.As(err, &nav):
		if nav.Code == http.StatusNotFound {
			a.writeNotFound(rw, title)
			return
		}
		slog.Error("upstream navigation failed", "title", title, "code", nav.Code, "message", nav.Message)
		a.writeError(rw, http.StatusInternalServerError, "internal_error", "article could not be rendered")

	case errors.As(err, &forbidden):
		slog.Warn("render target matched the host deny-list", "url", forbidden.URL)
		a.writeError(rw, http.StatusInternalServerError, "internal_error", "article could not be rendered")

	case errors.Is(err, renderer.ErrMalformedResponse):
		slog.Error("browser produced no response object", "title", title)
		a.writeError(rw, http.StatusInternalServerError, "internal_error", "article could not be rendered")

	default:
		// %+v prints the pkg/errors stack when one was attached.
		slog.Error("unclassified render failure", "title", title, "error", fmt.Sprintf("%+v", err))
		a.writeError(rw, http.StatusInternalServerError, "internal_error", "article could not be rendered")
	}
}

type errorBody struct {
	Name    string `json:"name"`
	Status  int    `json:"status"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (a *App) writeError(rw http.ResponseWriter, status int, name, message string) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	json.NewEncoder(rw).Encode(errorBody{Name: name, Status: status, Message: message})
}

func (a *App) writeNotFound(rw http.ResponseWriter, title string) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(http.StatusNotFound)
	json.NewEncoder(rw).Encode(errorBody{
		Name:    "not_found",
		Status:  http.StatusNotFound,
		Message: "404 not found",
		Details: fmt.Sprintf("Article '%s' not found", title),
	})
}
