package kiosk

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeRegistry(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestWatcher_Reloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kiosks.json")
	writeRegistry(t, path, `{"lobby-01": {"token": "one"}}`)

	changed := make(chan *Registry, 8)
	w, err := NewWatcher(path, WithInterval(20*time.Millisecond), WithOnChange(func(_, next *Registry) {
		select {
		case changed <- next:
		default:
		}
	}))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if !w.Current().Verify("lobby-01", "one") {
		t.Fatal("initial registry not loaded")
	}

	// Make sure the mtime moves even on coarse-grained filesystems.
	time.Sleep(20 * time.Millisecond)
	writeRegistry(t, path, `{"lobby-01": {"token": "two"}, "trail-02": {"token": "three"}}`)
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}

	// A reload may observe the file mid-write; wait for the final content.
	timeout := time.After(3 * time.Second)
	for done := false; !done; {
		select {
		case reg := <-changed:
			done = reg.Len() == 2
		case <-timeout:
			t.Fatal("registry was not reloaded")
		}
	}
	if w.Current().Verify("lobby-01", "one") || !w.Current().Verify("lobby-01", "two") {
		t.Error("Current() still serves the old token")
	}
}

func TestWatcher_KeepsPreviousOnInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kiosks.json")
	writeRegistry(t, path, `{"lobby-01": {"token": "one"}}`)

	w, err := NewWatcher(path, WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	writeRegistry(t, path, `{"lobby-01": `)
	future := time.Now().Add(2 * time.Second)
	_ = os.Chtimes(path, future, future)
	time.Sleep(100 * time.Millisecond)

	if !w.Current().Verify("lobby-01", "one") {
		t.Error("invalid update replaced the registry")
	}
}

func TestWatcher_FileCreatedLater(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kiosks.json")
	w, err := NewWatcher(path, WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if w.Current().Len() != 0 {
		t.Fatal("expected empty registry for missing file")
	}
	writeRegistry(t, path, `{"lobby-01": {"token": "one"}}`)
	waitFor(t, func() bool { return w.Current().Verify("lobby-01", "one") })
}

func TestNewWatcher_InvalidInitialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kiosks.json")
	writeRegistry(t, path, "[]")
	if _, err := NewWatcher(path); err == nil {
		t.Fatal("expected error for invalid initial registry")
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w, err := NewWatcher(filepath.Join(t.TempDir(), "kiosks.json"))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.Stop()
	w.Stop()
}
