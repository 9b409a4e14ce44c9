package lock

import (
	"path/filepath"
	"testing"
)

func TestAcquireExcludesSecondHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")
	first, err := Acquire(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Path() != path {
		t.Fatalf("unexpected path: %s", first.Path())
	}
	if _, err := Acquire(path); err == nil {
		t.Fatalf("expected second acquire to fail")
	}
	if err := first.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	again, err := Acquire(path)
	if err != nil {
		t.Fatalf("expected acquire after release: %v", err)
	}
	_ = again.Release()
}

func TestReleaseNil(t *testing.T) {
	var l *Lock
	if err := l.Release(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
