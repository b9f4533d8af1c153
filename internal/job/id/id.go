// Package id provides unique identifier generation for jobs.
package id

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Generate creates a new unique job ID.
// Format: job-<timestamp>-<uuid fragment>
// Example: job-1701432000-a1b2c3d4
func Generate() string {
	return fmt.Sprintf("job-%d-%s", time.Now().Unix(), uuid.NewString()[:8])
}
