package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/arzan03/mediadrop/internal/models"
	"github.com/dustin/go-humanize"
)

type ExpiryMode string

const (
	ModeTTL         ExpiryMode = "ttl"
	ModeConsumeOnce ExpiryMode = "consume-once"
)

func ParseExpiryMode(s string) (ExpiryMode, error) {
	switch m := ExpiryMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeTTL, ModeConsumeOnce:
		return m, nil
	default:
		return "", fmt.Errorf("unknown expiry mode %q", s)
	}
}

// ExpiryPolicy decides whether a binding is still live. In consume-once
// mode TTL is an optional upper bound; zero means no time limit.
type ExpiryPolicy struct {
	Mode ExpiryMode
	TTL  time.Duration
}

func TTLPolicy(ttl time.Duration) ExpiryPolicy {
	return ExpiryPolicy{Mode: ModeTTL, TTL: ttl}
}

func ConsumeOncePolicy(ttl time.Duration) ExpiryPolicy {
	return ExpiryPolicy{Mode: ModeConsumeOnce, TTL: ttl}
}

// Expired reports whether b is past its lifetime at now. A binding created
// at T with TTL S is live for now < T+S.
func (p ExpiryPolicy) Expired(b *models.MediaBinding, now time.Time) bool {
	if p.TTL <= 0 {
		return false
	}
	return !now.Before(b.CreatedAt.Add(p.TTL))
}

func (p ExpiryPolicy) ConsumeOnce() bool {
	return p.Mode == ModeConsumeOnce
}

// Cutoff is the newest creation time that is already expired at now, or
// the zero time when bindings never expire by age.
func (p ExpiryPolicy) Cutoff(now time.Time) time.Time {
	if p.TTL <= 0 {
		return time.Time{}
	}
	return now.Add(-p.TTL)
}

// Describe renders the policy for messages sent to users.
func (p ExpiryPolicy) Describe() string {
	var parts []string
	if p.TTL > 0 {
		now := time.Now()
		parts = append(parts, "expires in "+strings.TrimSpace(humanize.RelTime(now, now.Add(p.TTL), "", "")))
	}
	if p.ConsumeOnce() {
		parts = append(parts, "can be downloaded once")
	}
	return strings.Join(parts, " and ")
}
