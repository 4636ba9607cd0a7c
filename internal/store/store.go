// Package store persists media bindings keyed by their short code.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/arzan03/mediadrop/internal/models"
)

var (
	ErrNotFound  = errors.New("binding not found")
	ErrCodeTaken = errors.New("code already bound")
)

// Store is the access contract every backend implements. Backends with
// native expiry drop records on their own; the retrieval path still checks
// the expiry policy because native sweeps run late.
type Store interface {
	// Create inserts b, failing with ErrCodeTaken when the code is present.
	Create(ctx context.Context, b *models.MediaBinding) error
	// Get returns ErrNotFound when no record exists for code.
	Get(ctx context.Context, code string) (*models.MediaBinding, error)
	// Delete reports whether this call removed the record.
	Delete(ctx context.Context, code string) (bool, error)
	// DeleteIfCreatedAt removes the record only while it is still the one
	// created at createdAt, so a code rebound in the meantime survives.
	DeleteIfCreatedAt(ctx context.Context, code string, createdAt time.Time) (bool, error)
	// List returns up to limit bindings created after createdAfter, newest
	// first. A zero createdAfter disables the floor.
	List(ctx context.Context, limit int, createdAfter time.Time) ([]*models.MediaBinding, error)
	// DeleteCreatedBefore removes bindings created at or before cutoff.
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Clear(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
