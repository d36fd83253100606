package renderer

import (
	"errors"
	"fmt"
)

// ErrMalformedResponse means navigation completed but the browser produced
// no usable response object for the document.
var ErrMalformedResponse = errors.New("browser returned no response for the page")

// NavigationError reports an upstream HTTP failure (status >= 400) from the
// page being rendered.
type NavigationError struct {
	Code    int64
	Message string
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation failed with status %d: %s", e.Code, e.Message)
}

// ForbiddenHostError means a target URL failed the allow-rule: bad scheme,
// a user-info component, or a host on the deny-list.
type ForbiddenHostError struct {
	URL string
}

func (e *ForbiddenHostError) Error() string {
	return fmt.Sprintf("refusing to fetch forbidden URL %q", e.URL)
}
