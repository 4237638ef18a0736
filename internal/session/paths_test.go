package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDir(t *testing.T) {
	home, _ := os.UserHomeDir()
	got := Dir("main")
	want := filepath.Join(home, ".wamon", "sessions", "main")
	if got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
}

func TestSocketPath(t *testing.T) {
	got := SocketPath("test")
	if !strings.HasSuffix(got, filepath.Join("sessions", "test", "daemon.sock")) {
		t.Errorf("SocketPath(test) = %q, want suffix sessions/test/daemon.sock", got)
	}
}

func TestProfileDir(t *testing.T) {
	got := ProfileDir("test")
	if !strings.HasSuffix(got, filepath.Join("sessions", "test", "profile")) {
		t.Errorf("ProfileDir(test) = %q, want suffix sessions/test/profile", got)
	}
}

func TestDBPath(t *testing.T) {
	got := DBPath("test")
	if !strings.HasSuffix(got, filepath.Join("sessions", "test", "wamon.db")) {
		t.Errorf("DBPath(test) = %q, want suffix sessions/test/wamon.db", got)
	}
}
