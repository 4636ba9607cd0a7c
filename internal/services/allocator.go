package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	"github.com/arzan03/mediadrop/internal/models"
	"github.com/arzan03/mediadrop/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MinCodeDigits is the width every allocation starts with.
const MinCodeDigits = 4

var (
	allocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediadrop_allocations_total",
		Help: "Code allocations by result.",
	}, []string{"result"})

	collisionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediadrop_code_collisions_total",
		Help: "Candidate codes rejected because a live binding holds them.",
	})
)

type AllocatorOptions struct {
	// MaxAttempts is the number of candidates tried per code width.
	MaxAttempts int
	// MaxDigits is the widest code the allocator falls back to.
	MaxDigits int
}

// Allocator issues short numeric codes and binds them to media.
//
// The live check and the insert are separate store calls, so two
// concurrent allocations can race for one code. Every backend rejects the
// second insert, which surfaces here as an ordinary collision.
type Allocator struct {
	store   store.Store
	policy  ExpiryPolicy
	opts    AllocatorOptions
	now     func() time.Time
	randInt func(n int64) (int64, error)
	logger  *slog.Logger
}

func NewAllocator(st store.Store, policy ExpiryPolicy, opts AllocatorOptions, logger *slog.Logger) *Allocator {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 8
	}
	if opts.MaxDigits < MinCodeDigits {
		opts.MaxDigits = MinCodeDigits
	}
	return &Allocator{
		store:   st,
		policy:  policy,
		opts:    opts,
		now:     time.Now,
		randInt: cryptoRandInt,
		logger:  logger.With(slog.String("component", "allocator")),
	}
}

func cryptoRandInt(n int64) (int64, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		return 0, err
	}
	return v.Int64(), nil
}

// Allocate binds ref to a fresh code and persists the binding.
func (a *Allocator) Allocate(ctx context.Context, ref models.MediaRef) (*models.MediaBinding, error) {
	if err := ref.Validate(); err != nil {
		allocationsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	for digits := MinCodeDigits; digits <= a.opts.MaxDigits; digits++ {
		for attempt := 0; attempt < a.opts.MaxAttempts; attempt++ {
			code, err := a.candidate(digits)
			if err != nil {
				allocationsTotal.WithLabelValues("error").Inc()
				return nil, fmt.Errorf("generate code: %w", err)
			}

			b := ref.Bind(code, a.now().UTC().Truncate(time.Millisecond))
			err = a.bind(ctx, b)
			if err == nil {
				allocationsTotal.WithLabelValues("ok").Inc()
				a.logger.Debug("code allocated", "code", code, "media_id", ref.ExternalMediaID, "attempt", attempt+1)
				return b, nil
			}
			if !errors.Is(err, errCodeCollision) {
				allocationsTotal.WithLabelValues("error").Inc()
				return nil, err
			}
			collisionsTotal.Inc()
		}
		a.logger.Warn("code space congested, widening", "digits", digits+1)
	}

	allocationsTotal.WithLabelValues("exhausted").Inc()
	return nil, ErrAllocationFailed
}

// candidate returns a uniformly random code of the given width with a
// non-zero leading digit, e.g. 1000-9999 for four digits.
func (a *Allocator) candidate(digits int) (string, error) {
	lo := int64(1)
	for i := 1; i < digits; i++ {
		lo *= 10
	}
	n, err := a.randInt(9 * lo)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(lo+n, 10), nil
}

func (a *Allocator) bind(ctx context.Context, b *models.MediaBinding) error {
	existing, err := a.store.Get(ctx, b.Code)
	switch {
	case err == nil:
		if !a.policy.Expired(existing, b.CreatedAt) {
			return errCodeCollision
		}
		// Expired but not yet reaped; the code is free again.
		if _, err := a.store.DeleteIfCreatedAt(ctx, b.Code, existing.CreatedAt); err != nil {
			return fmt.Errorf("remove expired binding: %w", err)
		}
	case !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("check code: %w", err)
	}

	err = a.store.Create(ctx, b)
	if errors.Is(err, store.ErrCodeTaken) {
		return errCodeCollision
	}
	if err != nil {
		return fmt.Errorf("save binding: %w", err)
	}
	return nil
}
