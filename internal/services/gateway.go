package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/arzan03/mediadrop/internal/models"
	"github.com/arzan03/mediadrop/internal/platform"
	"github.com/arzan03/mediadrop/internal/storage"
	"github.com/arzan03/mediadrop/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	downloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediadrop_downloads_total",
		Help: "Download requests by outcome.",
	}, []string{"status"})

	downloadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mediadrop_download_duration_seconds",
		Help:    "Time from resolve to the end of the streamed transfer.",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	})

	downloadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediadrop_download_bytes_total",
		Help: "Bytes relayed to downloaders.",
	})

	activeDownloads = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mediadrop_active_downloads",
		Help: "Transfers currently streaming.",
	})
)

// MediaPlatform is the part of the platform client the gateway needs.
type MediaPlatform interface {
	ResolveMedia(ctx context.Context, mediaID string) (*platform.MediaInfo, error)
	Fetch(ctx context.Context, mediaURL string) (*http.Response, error)
}

// MediaArchive is an optional blob store holding copies of platform media.
type MediaArchive interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (*storage.Object, error)
	Purge(ctx context.Context) error
}

// Download is a resolved, live transfer. Body is read straight from the
// upstream connection and must be closed by the caller.
type Download struct {
	Body        io.ReadCloser
	ContentType string
	Filename    string
	// Size is -1 when the upstream did not announce a length.
	Size   int64
	Source string
}

type GatewayOptions struct {
	// PreferOriginalName serves the sender's filename when one is known
	// instead of <code><extension>.
	PreferOriginalName bool
}

// Gateway turns a code into a streaming download.
type Gateway struct {
	store    store.Store
	platform MediaPlatform
	archive  MediaArchive
	policy   ExpiryPolicy
	opts     GatewayOptions
	now      func() time.Time
	logger   *slog.Logger
}

// NewGateway builds a gateway. archive may be nil.
func NewGateway(st store.Store, p MediaPlatform, archive MediaArchive, policy ExpiryPolicy, opts GatewayOptions, logger *slog.Logger) *Gateway {
	return &Gateway{
		store:    st,
		platform: p,
		archive:  archive,
		policy:   policy,
		opts:     opts,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "gateway")),
	}
}

// Stat reports what Resolve would serve for code without contacting the
// platform or consuming the binding. Body is nil and Size is -1.
func (g *Gateway) Stat(ctx context.Context, code string) (*Download, error) {
	b, err := g.live(ctx, code)
	if err != nil {
		return nil, err
	}
	return &Download{
		ContentType: contentType(b),
		Filename:    b.DownloadName(g.opts.PreferOriginalName),
		Size:        -1,
	}, nil
}

// live returns the binding behind code when it is still resolvable,
// removing it lazily once expired.
func (g *Gateway) live(ctx context.Context, code string) (*models.MediaBinding, error) {
	b, err := g.store.Get(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		downloadsTotal.WithLabelValues("not_found").Inc()
		return nil, ErrNotFound
	}
	if err != nil {
		downloadsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("lookup code: %w", err)
	}

	if g.policy.Expired(b, g.now()) {
		if _, err := g.store.DeleteIfCreatedAt(ctx, code, b.CreatedAt); err != nil {
			g.logger.Warn("failed to remove expired binding", "code", code, "error", err)
		}
		downloadsTotal.WithLabelValues("expired").Inc()
		return nil, ErrNotFound
	}
	return b, nil
}

func contentType(b *models.MediaBinding) string {
	if b.MimeType == "" {
		return "application/octet-stream"
	}
	return b.MimeType
}

// Resolve looks up code and opens the media stream.
//
// Pipeline:
//  1. binding from the store, checked against the expiry policy
//  2. archived copy, when an archive is configured and holds one
//  3. otherwise platform lookup for a short-lived URL, then streaming fetch
//  4. under consume-once, delete the binding once the stream is open
//
// Unknown, expired and consumed codes return ErrNotFound without any
// network call. Upstream failures leave the binding in place.
func (g *Gateway) Resolve(ctx context.Context, code string) (*Download, error) {
	b, err := g.live(ctx, code)
	if err != nil {
		return nil, err
	}

	dl, err := g.open(ctx, b.ExternalMediaID)
	if err != nil {
		if errors.Is(err, ErrUpstreamResolution) {
			downloadsTotal.WithLabelValues("resolve_error").Inc()
		} else {
			downloadsTotal.WithLabelValues("stream_error").Inc()
		}
		g.logger.Warn("media unavailable", "code", code, "media_id", b.ExternalMediaID, "error", err)
		return nil, err
	}

	if g.policy.ConsumeOnce() {
		// Conditional on created_at: the code may have been reissued since
		// it was read.
		deleted, err := g.store.DeleteIfCreatedAt(ctx, code, b.CreatedAt)
		if err != nil {
			_ = dl.Body.Close()
			downloadsTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("consume binding: %w", err)
		}
		if !deleted {
			// A concurrent request consumed it first.
			_ = dl.Body.Close()
			downloadsTotal.WithLabelValues("not_found").Inc()
			return nil, ErrNotFound
		}
	}

	dl.ContentType = contentType(b)
	dl.Filename = b.DownloadName(g.opts.PreferOriginalName)
	dl.Body = g.meter(dl.Body, code, dl.Source, dl.Size)

	g.logger.Info("download started", "code", code, "source", dl.Source, "size", dl.Size)
	return dl, nil
}

func (g *Gateway) open(ctx context.Context, mediaID string) (*Download, error) {
	if g.archive != nil {
		obj, err := g.archive.Open(ctx, storage.Key(mediaID))
		switch {
		case err == nil:
			return &Download{Body: obj.Body, Size: obj.Size, Source: "archive"}, nil
		case !errors.Is(err, storage.ErrObjectMissing):
			g.logger.Warn("archive lookup failed, using platform", "media_id", mediaID, "error", err)
		}
	}

	info, err := g.platform.ResolveMedia(ctx, mediaID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstreamResolution, err)
	}

	resp, err := g.platform.Fetch(ctx, info.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstreamStream, err)
	}
	return &Download{Body: resp.Body, Size: resp.ContentLength, Source: "platform"}, nil
}

func (g *Gateway) meter(body io.ReadCloser, code, source string, size int64) io.ReadCloser {
	activeDownloads.Inc()
	return &meteredBody{
		ReadCloser: body,
		size:       size,
		start:      g.now(),
		now:        g.now,
		code:       code,
		source:     source,
		logger:     g.logger,
	}
}

// meteredBody records transfer metrics when the consumer closes it.
type meteredBody struct {
	io.ReadCloser
	size   int64
	start  time.Time
	now    func() time.Time
	code   string
	source string
	logger *slog.Logger

	n       int64
	eof     bool
	readErr error
	once    sync.Once
}

func (m *meteredBody) Read(p []byte) (int, error) {
	n, err := m.ReadCloser.Read(p)
	m.n += int64(n)
	switch {
	case errors.Is(err, io.EOF):
		m.eof = true
	case err != nil && m.readErr == nil:
		m.readErr = err
	}
	return n, err
}

func (m *meteredBody) Close() error {
	err := m.ReadCloser.Close()
	m.once.Do(func() {
		activeDownloads.Dec()
		downloadBytesTotal.Add(float64(m.n))
		duration := m.now().Sub(m.start)
		downloadDuration.Observe(duration.Seconds())

		if m.readErr != nil {
			downloadsTotal.WithLabelValues("stream_error").Inc()
			m.logger.Error("download aborted",
				"code", m.code,
				"source", m.source,
				"bytes", m.n,
				"error", fmt.Errorf("%w: %w", ErrUpstreamStream, m.readErr),
			)
			return
		}
		// Writers that know the length stop reading at size without
		// waiting for EOF.
		if !m.eof && (m.size < 0 || m.n < m.size) {
			// The downloader went away before the end of the body.
			downloadsTotal.WithLabelValues("aborted").Inc()
			m.logger.Warn("download closed early", "code", m.code, "source", m.source, "bytes", m.n)
			return
		}
		downloadsTotal.WithLabelValues("success").Inc()
		m.logger.Info("download finished", "code", m.code, "source", m.source, "bytes", m.n, "duration", duration)
	})
	return err
}
