package store

import (
	"errors"
	"testing"
)

func TestJoin(t *testing.T) {
	got, err := Join(ClaimsPrefix, "MS1", "U1")
	if err != nil {
		t.Fatal(err)
	}
	if got != "claims/MS1/U1" {
		t.Errorf("Join = %q, want claims/MS1/U1", got)
	}

	for _, bad := range []string{"", "..", "a/b", `a\b`} {
		if _, err := Join(ClaimsPrefix, bad); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Join(%q) error = %v, want ErrInvalidKey", bad, err)
		}
	}
}

func TestParentAndBase(t *testing.T) {
	tests := []struct {
		key, parent, base string
	}{
		{"claims/MS1/U1", "claims/MS1", "U1"},
		{"instances/w1", "instances", "w1"},
		{"top", "", "top"},
	}

	for _, tt := range tests {
		if got := Parent(tt.key); got != tt.parent {
			t.Errorf("Parent(%q) = %q, want %q", tt.key, got, tt.parent)
		}
		if got := Base(tt.key); got != tt.base {
			t.Errorf("Base(%q) = %q, want %q", tt.key, got, tt.base)
		}
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	if _, err := Open(Config{Backend: "etcd"}); err == nil {
		t.Error("unknown backend should error")
	}
}
