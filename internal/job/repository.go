package job

import (
	"context"
	"errors"
)

// Persistence errors.
var (
	// ErrJobNotFound is returned when a job cannot be found by ID.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobExists is returned when creating a job whose ID is taken.
	ErrJobExists = errors.New("job already exists")
)

// Repository defines the persistence port for jobs. Implementations
// must provide atomic read/replace semantics on a single record so that
// a progress write can never be lost between "read current" and "write
// next"; all mutations after creation go through Update.
type Repository interface {
	// Create persists a new job. Returns ErrJobExists if the ID is
	// already taken.
	Create(ctx context.Context, job *Job) error

	// FindByID retrieves a job by its unique identifier.
	// Returns ErrJobNotFound if the job does not exist.
	FindByID(ctx context.Context, id string) (*Job, error)

	// Update applies fn to the current record atomically and persists
	// the outcome. If fn returns an error nothing is written and the
	// error is propagated. The updated clone is returned on success.
	Update(ctx context.Context, id string, fn func(*Job) error) (*Job, error)

	// List returns all jobs, most recently created first.
	List(ctx context.Context) ([]*Job, error)

	// Delete removes a job. Returns ErrJobNotFound if it does not exist.
	Delete(ctx context.Context, id string) error
}
