package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalStore implements Store on local disk. Artifacts land under
// <dir>/<job_id>/<name> and are addressed with file URLs, which is all
// a single-host deployment needs.
type LocalStore struct {
	dir string
}

// NewLocalStore creates a LocalStore rooted at dir, creating the
// directory if needed. An empty dir falls back to a path under the
// system temp directory.
func NewLocalStore(dir string) (*LocalStore, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "mediagen", "artifacts")
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}

	return &LocalStore{dir: dir}, nil
}

// Dir returns the artifact root directory.
func (s *LocalStore) Dir() string {
	return s.dir
}

// Publish writes the artifact under its job's directory and returns a
// file URL. Name is reduced to its base so a malformed name cannot
// escape the artifact root.
func (s *LocalStore) Publish(ctx context.Context, art Artifact) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	if art.JobID == "" {
		return "", errors.New("artifact has no job id")
	}
	if art.Name == "" {
		return "", errors.New("artifact has no name")
	}

	jobDir := filepath.Join(s.dir, filepath.Base(art.JobID))
	if err := os.MkdirAll(jobDir, 0750); err != nil {
		return "", fmt.Errorf("create job artifact directory: %w", err)
	}

	path := filepath.Join(jobDir, filepath.Base(art.Name))
	f, err := os.Create(path) // #nosec G304 - path components are reduced to their base names above
	if err != nil {
		return "", fmt.Errorf("create artifact file: %w", err)
	}

	if _, err := io.Copy(f, art.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write artifact file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close artifact file: %w", err)
	}

	return "file://" + path, nil
}
