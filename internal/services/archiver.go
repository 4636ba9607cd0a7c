package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/arzan03/mediadrop/internal/models"
	"github.com/arzan03/mediadrop/internal/storage"
	"github.com/arzan03/mediadrop/internal/utils"
)

// Archiver copies freshly bound media from the platform into the archive in
// the background. Bindings never record whether a copy exists; the gateway
// probes the archive and falls back to the platform.
type Archiver struct {
	platform MediaPlatform
	archive  MediaArchive
	pool     *utils.WorkerPool
	timeout  time.Duration
	logger   *slog.Logger
}

func NewArchiver(p MediaPlatform, archive MediaArchive, workers int, timeout time.Duration, logger *slog.Logger) *Archiver {
	a := &Archiver{
		platform: p,
		archive:  archive,
		timeout:  timeout,
		logger:   logger.With(slog.String("component", "archiver")),
	}
	a.pool = utils.NewWorkerPool(workers, func(r any) {
		a.logger.Error("archive copy panicked", "panic", r)
	})
	return a
}

func (a *Archiver) Enqueue(b *models.MediaBinding) {
	mediaID, mimeType, code := b.ExternalMediaID, b.MimeType, b.Code
	a.pool.AddTask(func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()

		if err := a.Copy(ctx, mediaID, mimeType); err != nil {
			a.logger.Error("archive copy failed", "code", code, "media_id", mediaID, "error", err)
			return
		}
		a.logger.Debug("media archived", "code", code, "media_id", mediaID)
	})
}

// Copy streams one media item from the platform into the archive.
func (a *Archiver) Copy(ctx context.Context, mediaID, mimeType string) error {
	info, err := a.platform.ResolveMedia(ctx, mediaID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpstreamResolution, err)
	}
	resp, err := a.platform.Fetch(ctx, info.URL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpstreamStream, err)
	}
	defer resp.Body.Close()

	return a.archive.Put(ctx, storage.Key(mediaID), resp.Body, resp.ContentLength, mimeType)
}

// Close waits for queued copies and stops the workers.
func (a *Archiver) Close() {
	a.pool.Wait()
	a.pool.Close()
}
