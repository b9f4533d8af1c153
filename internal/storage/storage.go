// Package storage persists finished job artifacts and hands back the
// URL clients download them from. Two backends exist: local disk for
// development and single-host deployments, and S3 for shared delivery.
package storage

import (
	"context"
	"io"
)

// Artifact is one finished generation output ready for delivery. Name
// is the bare file name including its extension; artifacts are keyed
// under their owning job so one job's outputs stay together.
type Artifact struct {
	JobID       string
	Name        string
	ContentType string
	Body        io.Reader
}

// Store publishes one artifact and returns its download URL.
type Store interface {
	Publish(ctx context.Context, art Artifact) (url string, err error)
}
