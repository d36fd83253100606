package renderer

import (
	"net/url"
	"regexp"
	"strings"
)

// Schemes a render target (and any of its sub-resources) may use.
var allowedSchemes = map[string]bool{
	"http":  true,
	"https": true,
	"data":  true,
}

// CheckURL applies the allow-rule: the scheme must be http, https, or data;
// the URL must carry no user-info; and the host must not match the deny
// regex. The same rule gates the main navigation and every sub-resource the
// page requests.
func CheckURL(raw string, deny *regexp.Regexp) error {
	u, err := url.Parse(raw)
	if err != nil {
		return &ForbiddenHostError{URL: raw}
	}
	if !allowedSchemes[strings.ToLower(u.Scheme)] {
		return &ForbiddenHostError{URL: raw}
	}
	if u.User != nil {
		return &ForbiddenHostError{URL: raw}
	}
	if deny != nil && u.Hostname() != "" && deny.MatchString(u.Hostname()) {
		return &ForbiddenHostError{URL: raw}
	}
	return nil
}
