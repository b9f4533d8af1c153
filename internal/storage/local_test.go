package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewLocalStore(t *testing.T) {
	t.Run("creates directory if not exists", func(t *testing.T) {
		dir := filepath.Join(os.TempDir(), "mediagen_test_"+randomSuffix())
		defer func() { _ = os.RemoveAll(dir) }()

		store, err := NewLocalStore(dir)
		if err != nil {
			t.Fatalf("NewLocalStore() error = %v", err)
		}

		if store.Dir() != dir {
			t.Errorf("Dir() = %v, want %v", store.Dir(), dir)
		}

		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("directory not created: %v", err)
		}
		if !info.IsDir() {
			t.Error("expected directory, got file")
		}
	})

	t.Run("uses default directory when empty", func(t *testing.T) {
		store, err := NewLocalStore("")
		if err != nil {
			t.Fatalf("NewLocalStore() error = %v", err)
		}

		expected := filepath.Join(os.TempDir(), "mediagen", "artifacts")
		if store.Dir() != expected {
			t.Errorf("Dir() = %v, want %v", store.Dir(), expected)
		}
	})
}

func TestLocalStore_Publish(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	t.Run("stores artifact under its job directory", func(t *testing.T) {
		url, err := store.Publish(ctx, Artifact{
			JobID:       "job-1700000000-abcd1234",
			Name:        "job-1700000000-abcd1234.mp4",
			ContentType: "video/mp4",
			Body:        bytes.NewReader([]byte("rendered video")),
		})
		if err != nil {
			t.Fatalf("Publish() error = %v", err)
		}

		wantPath := filepath.Join(store.Dir(), "job-1700000000-abcd1234", "job-1700000000-abcd1234.mp4")
		if url != "file://"+wantPath {
			t.Errorf("url = %v, want %v", url, "file://"+wantPath)
		}

		content, err := os.ReadFile(wantPath)
		if err != nil {
			t.Fatalf("failed to read published artifact: %v", err)
		}
		if string(content) != "rendered video" {
			t.Errorf("got %q, want %q", string(content), "rendered video")
		}
	})

	t.Run("keeps one job's artifacts together", func(t *testing.T) {
		for _, name := range []string{"ep1.mp3", "ep1_thumb.png"} {
			if _, err := store.Publish(ctx, Artifact{
				JobID: "job-2",
				Name:  name,
				Body:  bytes.NewReader([]byte("data")),
			}); err != nil {
				t.Fatalf("Publish(%s) error = %v", name, err)
			}
		}

		entries, err := os.ReadDir(filepath.Join(store.Dir(), "job-2"))
		if err != nil {
			t.Fatalf("failed to list job directory: %v", err)
		}
		if len(entries) != 2 {
			t.Errorf("expected 2 artifacts in the job directory, got %d", len(entries))
		}
	})

	t.Run("strips path components from the name", func(t *testing.T) {
		url, err := store.Publish(ctx, Artifact{
			JobID: "job-3",
			Name:  "../../escape.mp4",
			Body:  bytes.NewReader([]byte("data")),
		})
		if err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
		if !strings.HasPrefix(url, "file://"+filepath.Join(store.Dir(), "job-3")) {
			t.Errorf("artifact escaped its job directory: %v", url)
		}
	})

	t.Run("rejects artifact without a job id", func(t *testing.T) {
		_, err := store.Publish(ctx, Artifact{Name: "x.mp4", Body: bytes.NewReader(nil)})
		if err == nil {
			t.Error("expected error for missing job id")
		}
	})

	t.Run("rejects artifact without a name", func(t *testing.T) {
		_, err := store.Publish(ctx, Artifact{JobID: "job-4", Body: bytes.NewReader(nil)})
		if err == nil {
			t.Error("expected error for missing name")
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := store.Publish(cancelled, Artifact{
			JobID: "job-5",
			Name:  "x.mp4",
			Body:  bytes.NewReader([]byte("data")),
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func setupTestStore(t *testing.T) *LocalStore {
	t.Helper()
	dir := filepath.Join(os.TempDir(), "mediagen_test_"+randomSuffix())
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	store, err := NewLocalStore(dir)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func randomSuffix() string {
	return time.Now().Format("20060102150405.000000000")
}
