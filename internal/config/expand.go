package config

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrExpand is returned when a path cannot be expanded.
var ErrExpand = errors.New("unable to expand path")

// varPattern matches ${VAR:-default}. Plain $VAR and ${VAR} are left to os.Expand.
var varPattern = regexp.MustCompile(`\$\{([^}:]+):-([^}]*)\}`)

// ExpandPath expands a leading ~ or ~user and environment variables in p.
//
// Supported variable forms are $VAR, ${VAR} and ${VAR:-default}. Unset
// variables expand to the empty string.
func ExpandPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}

	p = varPattern.ReplaceAllStringFunc(p, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
	p = os.ExpandEnv(p)

	if !strings.HasPrefix(p, "~") {
		return p, nil
	}

	rest := p[1:]
	name := rest
	if i := strings.IndexRune(rest, '/'); i >= 0 {
		name, rest = rest[:i], rest[i:]
	} else {
		rest = ""
	}

	var home string
	if name == "" {
		dir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("%w %q: %v", ErrExpand, p, err)
		}
		home = dir
	} else {
		u, err := user.Lookup(name)
		if err != nil {
			return "", fmt.Errorf("%w %q: %v", ErrExpand, p, err)
		}
		home = u.HomeDir
	}

	if rest == "" {
		return home, nil
	}
	return filepath.Join(home, rest), nil
}
