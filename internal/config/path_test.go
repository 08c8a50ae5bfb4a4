package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain", "/var/lib/fieldmend.db", "/var/lib/fieldmend.db"},
		{"tilde", "~/data/fieldmend.db", filepath.Join(home, "data", "fieldmend.db")},
		{"bare tilde", "~", home},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExpandPath(tt.in); got != tt.want {
				t.Errorf("ExpandPath(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestExpandPathEnvVar(t *testing.T) {
	t.Setenv("FIELDMEND_TEST_DIR", "/tmp/fm")
	if got := ExpandPath("$FIELDMEND_TEST_DIR/db.sqlite"); got != "/tmp/fm/db.sqlite" {
		t.Errorf("ExpandPath() = %q, want /tmp/fm/db.sqlite", got)
	}
}

func TestDatabasePath(t *testing.T) {
	got, err := DatabasePath("~/custom.db")
	if err != nil {
		t.Fatalf("DatabasePath() error = %v", err)
	}
	if strings.HasPrefix(got, "~") {
		t.Errorf("DatabasePath() = %q, tilde not expanded", got)
	}

	got, err = DatabasePath("")
	if err != nil {
		t.Fatalf("DatabasePath() error = %v", err)
	}
	if !strings.HasSuffix(got, filepath.Join("fieldmend", "fieldmend.db")) {
		t.Errorf("DatabasePath(\"\") = %q, want default location", got)
	}
}
