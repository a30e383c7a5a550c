// Package validation holds the small input checks shared by config resolution
// and the diagnostics report.
package validation

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrInvalidPath     = errors.New("invalid file path")
	ErrPathNotExists   = errors.New("path does not exist")
	ErrInvalidEndpoint = errors.New("invalid endpoint URL")
	ErrInvalidMethod   = errors.New("invalid push method")
)

// ValidateFilePath rejects empty paths and, when mustExist is set, paths that
// do not name a regular file.
func ValidateFilePath(p string, mustExist bool) error {
	if p == "" {
		return ErrInvalidPath
	}
	p = filepath.Clean(p)
	if mustExist {
		info, err := os.Stat(p)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPathNotExists, err)
		}
		if info.IsDir() {
			return fmt.Errorf("%w: %s is a directory", ErrInvalidPath, p)
		}
	}
	return nil
}

// ValidateEndpoint checks that raw is an absolute http or https URL with a host.
func ValidateEndpoint(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidEndpoint)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	switch u.Scheme {
	case "https", "http":
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidEndpoint, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidEndpoint)
	}
	return u, nil
}

// ValidateMethod normalizes a push method. Only POST and PUT are accepted.
func ValidateMethod(method string) (string, error) {
	m := strings.ToUpper(strings.TrimSpace(method))
	switch m {
	case http.MethodPost, http.MethodPut:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMethod, method)
}
