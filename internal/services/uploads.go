package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/arzan03/mediadrop/internal/models"
	"github.com/arzan03/mediadrop/internal/store"
	"github.com/arzan03/mediadrop/internal/utils"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// UploadService backs the dashboard listing and the administrative purge.
type UploadService struct {
	store   store.Store
	archive MediaArchive
	policy  ExpiryPolicy
	now     func() time.Time
	logger  *slog.Logger
}

// NewUploadService builds the service. archive may be nil.
func NewUploadService(st store.Store, archive MediaArchive, policy ExpiryPolicy, logger *slog.Logger) *UploadService {
	return &UploadService{
		store:   st,
		archive: archive,
		policy:  policy,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "uploads")),
	}
}

// List returns live bindings, newest first. limit is clamped to
// [1, MaxListLimit]; zero or negative selects DefaultListLimit.
func (s *UploadService) List(ctx context.Context, limit int) ([]*models.MediaBinding, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}

	bindings, err := s.store.List(ctx, limit, s.policy.Cutoff(s.now()))
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	if bindings == nil {
		bindings = []*models.MediaBinding{}
	}
	return bindings, nil
}

// ClearAll removes every binding and, when configured, every archived
// copy. Calling it on an empty store is a no-op.
func (s *UploadService) ClearAll(ctx context.Context) error {
	tasks := []utils.Task[string]{
		func() (string, error) { return "store", s.store.Clear(ctx) },
	}
	if s.archive != nil {
		tasks = append(tasks, func() (string, error) { return "archive", s.archive.Purge(ctx) })
	}

	targets, errs := utils.RunParallel(tasks)
	var failed []error
	for i, err := range errs {
		if err != nil {
			failed = append(failed, fmt.Errorf("clear %s: %w", targets[i], err))
		}
	}
	if len(failed) > 0 {
		return errors.Join(failed...)
	}

	s.logger.Info("all uploads cleared")
	return nil
}
