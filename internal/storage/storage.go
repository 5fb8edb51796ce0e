// Package storage persists the history of index runs.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/kotae/internal/models"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

// RunLedger records index runs.
type RunLedger interface {
	CreateRun(ctx context.Context, run *models.IndexRun) error
	FinishRun(ctx context.Context, run *models.IndexRun) error
	GetRun(ctx context.Context, id string) (*models.IndexRun, error)
	LatestRun(ctx context.Context) (*models.IndexRun, error)
	ListRuns(ctx context.Context, limit int) ([]*models.IndexRun, error)
	CountRuns(ctx context.Context) (int64, error)
	Close() error
}
