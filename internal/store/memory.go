package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/arzan03/mediadrop/internal/models"
	gocache "github.com/patrickmn/go-cache"
)

// Memory keeps bindings in process memory. It starts empty and is lost on
// restart. A ttl of zero keeps entries until they are deleted.
type Memory struct {
	// mu serialises Delete so that exactly one caller wins a consume.
	mu    sync.Mutex
	items *gocache.Cache
	ttl   time.Duration
}

func NewMemory(ttl time.Duration) *Memory {
	expiration := gocache.NoExpiration
	cleanup := time.Duration(0)
	if ttl > 0 {
		expiration = ttl
		cleanup = time.Minute
	}
	return &Memory{items: gocache.New(expiration, cleanup), ttl: ttl}
}

func (m *Memory) Create(_ context.Context, b *models.MediaBinding) error {
	cp := *b
	if err := m.items.Add(b.Code, &cp, gocache.DefaultExpiration); err != nil {
		return ErrCodeTaken
	}
	return nil
}

func (m *Memory) Get(_ context.Context, code string) (*models.MediaBinding, error) {
	v, ok := m.items.Get(code)
	if !ok {
		return nil, ErrNotFound
	}
	cp := *v.(*models.MediaBinding)
	return &cp, nil
}

func (m *Memory) Delete(_ context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items.Get(code); !ok {
		return false, nil
	}
	m.items.Delete(code)
	return true, nil
}

func (m *Memory) DeleteIfCreatedAt(_ context.Context, code string, createdAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.items.Get(code)
	if !ok || !v.(*models.MediaBinding).CreatedAt.Equal(createdAt) {
		return false, nil
	}
	m.items.Delete(code)
	return true, nil
}

func (m *Memory) List(_ context.Context, limit int, createdAfter time.Time) ([]*models.MediaBinding, error) {
	var out []*models.MediaBinding
	for _, item := range m.items.Items() {
		b := *item.Object.(*models.MediaBinding)
		if !createdAfter.IsZero() && !b.CreatedAt.After(createdAfter) {
			continue
		}
		out = append(out, &b)
	}
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) DeleteCreatedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for code, item := range m.items.Items() {
		if !item.Object.(*models.MediaBinding).CreatedAt.After(cutoff) {
			m.items.Delete(code)
			n++
		}
	}
	return n, nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.items.Flush()
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error {
	m.items.Flush()
	return nil
}

func sortNewestFirst(bs []*models.MediaBinding) {
	sort.SliceStable(bs, func(i, j int) bool {
		return bs[i].CreatedAt.After(bs[j].CreatedAt)
	})
}
