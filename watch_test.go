package gfx2d

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatchConfigReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gfx.toml")
	if err := os.WriteFile(path, []byte("vsync = true\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	got := make(chan Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- WatchConfig(ctx, path, func(c Config, err error) {
			if err != nil {
				t.Errorf("reload: %v", err)
				return
			}
			got <- c
		})
	}()

	// Keep rewriting until the watcher has registered and reports it.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case c := <-got:
			if c.VSync {
				t.Errorf("reloaded vsync = true, want false")
			}
			cancel()
			if err := <-done; err != context.Canceled {
				t.Errorf("WatchConfig = %v, want context.Canceled", err)
			}
			return
		case <-tick.C:
			if err := os.WriteFile(path, []byte("vsync = false\n"), 0o600); err != nil {
				t.Fatal(err)
			}
		case <-deadline:
			t.Fatal("no reload within 5s")
		}
	}
}

func TestWatchConfigMissingDirectory(t *testing.T) {
	err := WatchConfig(t.Context(), filepath.Join(t.TempDir(), "nope", "gfx.yaml"), func(Config, error) {})
	if err == nil {
		t.Fatal("watching a missing directory succeeded")
	}
}
