package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arzan03/mediadrop/internal/db"
	"github.com/arzan03/mediadrop/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// base is millisecond aligned so every backend round-trips it exactly.
var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func binding(code string, age time.Duration) *models.MediaBinding {
	return &models.MediaBinding{
		Code:            code,
		ExternalMediaID: "media-" + code,
		MimeType:        "application/pdf",
		Extension:       ".pdf",
		OriginalName:    "file-" + code + ".pdf",
		SenderID:        "15550001111",
		CreatedAt:       base.Add(-age),
	}
}

func codes(bs []*models.MediaBinding) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = b.Code
	}
	return out
}

// testStore runs the behaviour every backend must share.
func testStore(t *testing.T, open func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		s := open(t)
		want := binding("4821", 0)
		require.NoError(t, s.Create(ctx, want))

		got, err := s.Get(ctx, "4821")
		require.NoError(t, err)
		assert.Equal(t, want.Code, got.Code)
		assert.Equal(t, want.ExternalMediaID, got.ExternalMediaID)
		assert.Equal(t, want.MimeType, got.MimeType)
		assert.Equal(t, want.Extension, got.Extension)
		assert.Equal(t, want.OriginalName, got.OriginalName)
		assert.Equal(t, want.SenderID, got.SenderID)
		assert.True(t, want.CreatedAt.Equal(got.CreatedAt), "created_at %v != %v", want.CreatedAt, got.CreatedAt)
	})

	t.Run("get unknown", func(t *testing.T) {
		s := open(t)
		_, err := s.Get(ctx, "9999")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("create taken code", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Create(ctx, binding("1000", 0)))

		dup := binding("1000", 0)
		dup.ExternalMediaID = "other"
		assert.ErrorIs(t, s.Create(ctx, dup), ErrCodeTaken)

		got, err := s.Get(ctx, "1000")
		require.NoError(t, err)
		assert.Equal(t, "media-1000", got.ExternalMediaID)
	})

	t.Run("delete reports winner", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Create(ctx, binding("1000", 0)))

		deleted, err := s.Delete(ctx, "1000")
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = s.Delete(ctx, "1000")
		require.NoError(t, err)
		assert.False(t, deleted)

		_, err = s.Get(ctx, "1000")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("concurrent delete has one winner", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Create(ctx, binding("1000", 0)))

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				deleted, err := s.Delete(ctx, "1000")
				assert.NoError(t, err)
				if deleted {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})

	t.Run("conditional delete spares a rebound code", func(t *testing.T) {
		s := open(t)
		old := binding("1000", 20*time.Minute)
		require.NoError(t, s.Create(ctx, old))
		deleted, err := s.Delete(ctx, "1000")
		require.NoError(t, err)
		require.True(t, deleted)

		fresh := binding("1000", 0)
		fresh.ExternalMediaID = "media-fresh"
		require.NoError(t, s.Create(ctx, fresh))

		// A reader still holding the old binding must not remove the new one.
		deleted, err = s.DeleteIfCreatedAt(ctx, "1000", old.CreatedAt)
		require.NoError(t, err)
		assert.False(t, deleted)

		got, err := s.Get(ctx, "1000")
		require.NoError(t, err)
		assert.Equal(t, "media-fresh", got.ExternalMediaID)

		deleted, err = s.DeleteIfCreatedAt(ctx, "1000", got.CreatedAt)
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = s.DeleteIfCreatedAt(ctx, "1000", got.CreatedAt)
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("list newest first with floor and limit", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Create(ctx, binding("1000", 3*time.Minute)))
		require.NoError(t, s.Create(ctx, binding("1001", time.Minute)))
		require.NoError(t, s.Create(ctx, binding("1002", 20*time.Minute)))
		require.NoError(t, s.Create(ctx, binding("1003", 10*time.Minute)))

		all, err := s.List(ctx, 0, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, []string{"1001", "1000", "1003", "1002"}, codes(all))

		limited, err := s.List(ctx, 2, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, []string{"1001", "1000"}, codes(limited))

		// The floor is exclusive: a binding created exactly at it is out.
		live, err := s.List(ctx, 10, base.Add(-10*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, []string{"1001", "1000"}, codes(live))
	})

	t.Run("list empty", func(t *testing.T) {
		s := open(t)
		all, err := s.List(ctx, 10, time.Time{})
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("delete created before is inclusive", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Create(ctx, binding("1000", time.Minute)))
		require.NoError(t, s.Create(ctx, binding("1001", 10*time.Minute)))
		require.NoError(t, s.Create(ctx, binding("1002", 11*time.Minute)))

		n, err := s.DeleteCreatedBefore(ctx, base.Add(-10*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		left, err := s.List(ctx, 0, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, []string{"1000"}, codes(left))

		n, err = s.DeleteCreatedBefore(ctx, base.Add(-10*time.Minute))
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("clear twice", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Create(ctx, binding("1000", 0)))
		require.NoError(t, s.Create(ctx, binding("1001", 0)))

		for i := 0; i < 2; i++ {
			require.NoError(t, s.Clear(ctx))
			all, err := s.List(ctx, 0, time.Time{})
			require.NoError(t, err)
			assert.Empty(t, all)
		}

		require.NoError(t, s.Create(ctx, binding("1000", 0)), "cleared codes are free again")
	})

	t.Run("ping", func(t *testing.T) {
		s := open(t)
		assert.NoError(t, s.Ping(ctx))
	})
}

func TestMemory(t *testing.T) {
	testStore(t, func(t *testing.T) Store {
		s := NewMemory(0)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestMemory_NativeExpiry(t *testing.T) {
	s := NewMemory(50 * time.Millisecond)
	require.NoError(t, s.Create(context.Background(), binding("1000", 0)))

	require.Eventually(t, func() bool {
		_, err := s.Get(context.Background(), "1000")
		return errors.Is(err, ErrNotFound)
	}, time.Second, 10*time.Millisecond)

	assert.NoError(t, s.Create(context.Background(), binding("1000", 0)), "expired code can be bound again")
}

func TestBadger(t *testing.T) {
	testStore(t, func(t *testing.T) Store {
		s, err := OpenBadger("", 0)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestBadger_ReopenKeepsBindings(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenBadger(dir, 0)
	require.NoError(t, err)
	require.NoError(t, s.Create(context.Background(), binding("4821", 0)))
	require.NoError(t, s.Close())

	s, err = OpenBadger(dir, 0)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(context.Background(), "4821")
	require.NoError(t, err)
	assert.Equal(t, "media-4821", got.ExternalMediaID)
}

func TestBadger_PingAfterClose(t *testing.T) {
	s, err := OpenBadger("", 0)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.Error(t, s.Ping(context.Background()))
}

func TestSQLite(t *testing.T) {
	testStore(t, func(t *testing.T) Store {
		sqlDB, err := db.OpenSQL(db.DriverSQLite, filepath.Join(t.TempDir(), "mediadrop.db"))
		require.NoError(t, err)
		s := NewSQL(sqlDB)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestCached(t *testing.T) {
	testStore(t, func(t *testing.T) Store {
		s := NewCached(NewMemory(0), 16, time.Minute)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestCached_ServesCopies(t *testing.T) {
	ctx := context.Background()
	s := NewCached(NewMemory(0), 16, time.Minute)
	require.NoError(t, s.Create(ctx, binding("1000", 0)))

	first, err := s.Get(ctx, "1000")
	require.NoError(t, err)
	first.ExternalMediaID = "mutated"

	second, err := s.Get(ctx, "1000")
	require.NoError(t, err)
	assert.Equal(t, "media-1000", second.ExternalMediaID)
}

func TestCached_DeleteInvalidates(t *testing.T) {
	ctx := context.Background()
	inner := NewMemory(0)
	s := NewCached(inner, 16, time.Minute)
	require.NoError(t, s.Create(ctx, binding("1000", 0)))

	_, err := s.Get(ctx, "1000")
	require.NoError(t, err)

	deleted, err := s.Delete(ctx, "1000")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = s.Get(ctx, "1000")
	assert.ErrorIs(t, err, ErrNotFound)
}
