package gateway

import (
	"net/url"
	"strings"
)

// normalizePath normalizes a service path the way ServiceRegistry.Add and
// the Server's dispatch lookup both expect: URL-decoded, trailing '/'
// stripped (except for the root path itself), leading '/' required, and
// rejecting '?' or '#' which have no business appearing in a path.
func normalizePath(path string) (string, error) {
	if path == "" {
		return "", &ConfigError{Field: "path", Message: "must not be empty"}
	}

	decoded, err := url.PathUnescape(path)
	if err != nil {
		return "", &ConfigError{Field: "path", Message: "invalid percent-encoding: " + err.Error()}
	}

	if !strings.HasPrefix(decoded, "/") {
		return "", &ConfigError{Field: "path", Message: "must begin with '/'"}
	}
	if strings.ContainsAny(decoded, "?#") {
		return "", &ConfigError{Field: "path", Message: "must not contain '?' or '#'"}
	}

	for len(decoded) > 1 && strings.HasSuffix(decoded, "/") {
		decoded = strings.TrimSuffix(decoded, "/")
	}

	return decoded, nil
}
