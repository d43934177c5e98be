package config

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWatcherReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lockres.yaml")
	writeFile(t, path, "resources:\n  - name: rig-1\n")

	changes := make(chan *Config, 16)
	w := NewWatcher(path, func(cfg *Config) {
		select {
		case changes <- cfg:
		default:
		}
	}, nil).WithDebounce(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// The watch is registered asynchronously; rewrite until it is seen.
	deadline := time.After(5 * time.Second)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	// Partially written files may load as empty configs; wait for the full one.
	var got *Config
	for got == nil || len(got.Resources) != 2 {
		select {
		case cfg := <-changes:
			got = cfg
		case <-ticker.C:
			writeFile(t, path, "resources:\n  - name: rig-1\n  - name: rig-2\n")
		case <-deadline:
			t.Fatal("timed out waiting for reload")
		}
	}

	if len(got.Resources) != 2 || got.Resources[1].Name != "rig-2" {
		t.Errorf("Resources = %+v", got.Resources)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestWatcherReportsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lockres.yaml")
	writeFile(t, path, "resources: []\n")

	errs := make(chan error, 16)
	w := NewWatcher(path, nil, func(err error) {
		select {
		case errs <- err:
		default:
		}
	}).WithDebounce(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case err := <-errs:
			if strings.Contains(err.Error(), "duplicates") {
				return
			}
		case <-ticker.C:
			writeFile(t, path, "resources:\n  - name: rig-1\n  - name: rig-1\n")
		case <-deadline:
			t.Fatal("timed out waiting for validation error")
		}
	}
}
