package services

import (
	"testing"
	"time"

	"github.com/arzan03/mediadrop/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpiryPolicy_TTLBoundary(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	b := &models.MediaBinding{Code: "4821", CreatedAt: created}

	for _, ttl := range []time.Duration{600 * time.Second, 86400 * time.Second} {
		p := TTLPolicy(ttl)
		assert.False(t, p.Expired(b, created), "live at creation")
		assert.False(t, p.Expired(b, created.Add(ttl-time.Millisecond)), "live just before T+S")
		assert.True(t, p.Expired(b, created.Add(ttl)), "expired at T+S")
		assert.True(t, p.Expired(b, created.Add(ttl+time.Hour)), "expired after T+S")
	}
}

func TestExpiryPolicy_NoTTLNeverExpires(t *testing.T) {
	p := ConsumeOncePolicy(0)
	b := &models.MediaBinding{CreatedAt: time.Unix(0, 0)}

	assert.False(t, p.Expired(b, time.Now()))
	assert.True(t, p.ConsumeOnce())
	assert.True(t, p.Cutoff(time.Now()).IsZero())
}

func TestExpiryPolicy_Cutoff(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 10, 0, 0, time.UTC)
	p := TTLPolicy(10 * time.Minute)

	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), p.Cutoff(now))
	assert.False(t, p.ConsumeOnce())
}

func TestParseExpiryMode(t *testing.T) {
	m, err := ParseExpiryMode(" Consume-Once ")
	require.NoError(t, err)
	assert.Equal(t, ModeConsumeOnce, m)

	m, err = ParseExpiryMode("ttl")
	require.NoError(t, err)
	assert.Equal(t, ModeTTL, m)

	_, err = ParseExpiryMode("forever")
	assert.Error(t, err)
}

func TestExpiryPolicy_Describe(t *testing.T) {
	assert.Equal(t, "expires in 10 minutes", TTLPolicy(600*time.Second).Describe())
	assert.Equal(t, "expires in 1 day", TTLPolicy(24*time.Hour).Describe())
	assert.Equal(t, "can be downloaded once", ConsumeOncePolicy(0).Describe())
	assert.Equal(t, "expires in 1 day and can be downloaded once", ConsumeOncePolicy(24*time.Hour).Describe())
}
