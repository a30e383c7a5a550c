package config

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestExpandPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("ICKY_TEST_DIR", "/opt/icky")

	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"/etc/icky/ca.crt", "/etc/icky/ca.crt"},
		{"relative/ca.crt", "relative/ca.crt"},
		{"~", home},
		{"~/.icky/client.pem", filepath.Join(home, ".icky", "client.pem")},
		{"$ICKY_TEST_DIR/ca.crt", "/opt/icky/ca.crt"},
		{"${ICKY_TEST_DIR}/ca.crt", "/opt/icky/ca.crt"},
		{"${ICKY_TEST_UNSET:-/fallback}/ca.crt", "/fallback/ca.crt"},
		{"${ICKY_TEST_DIR:-/fallback}/ca.crt", "/opt/icky/ca.crt"},
		{"$HOME/x", filepath.Join(home, "x")},
	}

	for _, tt := range tests {
		got, err := ExpandPath(tt.in)
		if err != nil {
			t.Errorf("ExpandPath(%q) returned error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExpandPath_UnknownUser(t *testing.T) {
	_, err := ExpandPath("~no-such-user-icky-test/ca.crt")
	if !errors.Is(err, ErrExpand) {
		t.Errorf("Expected ErrExpand, got %v", err)
	}
}
