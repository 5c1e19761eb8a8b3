// internal/store/store.go
package store

import (
	"context"
	"errors"

	"github.com/fawad-mazhar/flowstate/internal/models"
)

var (
	// ErrNotFound is returned when no run exists for the requested id
	ErrNotFound = errors.New("run not found")
	// ErrAlreadyExists is returned when creating a run whose id is taken
	ErrAlreadyExists = errors.New("run already exists")
	// ErrVersionConflict is returned when a conditional write lost the race
	// against a concurrent writer; the caller reloads and retries its pass
	ErrVersionConflict = errors.New("run version conflict")
)

// JobStore is the durable home of run state. Implementations must provide
// strongly-consistent reads and a compare-and-swap write keyed on the run
// version so concurrent scheduler passes cannot overwrite each other's
// progress.
type JobStore interface {
	// CreateRun persists a fresh run at version 1.
	// Returns ErrAlreadyExists if the run id is taken.
	CreateRun(ctx context.Context, run *models.RunState) error

	// GetRun loads the latest persisted state of a run.
	// Returns ErrNotFound if the run does not exist.
	GetRun(ctx context.Context, runID string) (*models.RunState, error)

	// CompareAndSwap persists run if and only if the stored version still
	// equals run.Version, then bumps run.Version. Returns
	// ErrVersionConflict when a concurrent writer got there first.
	CompareAndSwap(ctx context.Context, run *models.RunState) error

	// ListActive returns every run whose overall status is still RUNNING.
	// The event listener scans these for pending futures.
	ListActive(ctx context.Context) ([]*models.RunState, error)

	Close() error
}
