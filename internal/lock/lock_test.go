package lock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestAcquireAndRelease(t *testing.T) {
	tmpDir := t.TempDir()

	l, err := Acquire(tmpDir)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(tmpDir, "LOCK"))
	if err != nil {
		t.Fatalf("read lock file: %v", err)
	}
	if len(data) == 0 {
		t.Error("lock file is empty")
	}

	if err := l.Release(); err != nil {
		t.Errorf("Release() error = %v", err)
	}
}

func TestDoubleAcquireFails(t *testing.T) {
	tmpDir := t.TempDir()

	l1, err := Acquire(tmpDir)
	if err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	defer func() { _ = l1.Release() }()

	_, err = Acquire(tmpDir)
	if err == nil {
		t.Fatal("second Acquire() should fail")
	}

	var held *HeldError
	if !errors.As(err, &held) {
		t.Errorf("expected HeldError, got %T: %v", err, err)
	}
	if held != nil && held.PID != os.Getpid() {
		t.Errorf("holder PID = %d, want %d", held.PID, os.Getpid())
	}
}

func TestReleaseNilAndIdempotent(t *testing.T) {
	var nilLock *Lock
	if err := nilLock.Release(); err != nil {
		t.Errorf("nil Release() error = %v", err)
	}

	l, err := Acquire(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("first Release() error = %v", err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("second Release() error = %v", err)
	}
}
