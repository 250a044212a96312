package directory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fathima-sithara/chat-core/internal/domain"
	"github.com/fathima-sithara/chat-core/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mapCache struct {
	mu   sync.Mutex
	m    map[string]string
	sets int
}

func (c *mapCache) Set(_ context.Context, key, val string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = val
	c.sets++
	return nil
}

func (c *mapCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	if !ok {
		return "", ErrCacheMiss
	}
	return v, nil
}

func TestBlockStatusBothDirections(t *testing.T) {
	store := repository.NewMemoryStore()
	store.Block("a", "b")
	o := NewOracle(store, nil, time.Minute, zap.NewNop())
	ctx := context.Background()

	st, err := o.BlockStatus(ctx, "a", "b")
	require.NoError(t, err)
	assert.True(t, st.IBlocked)
	assert.False(t, st.TheyBlocked)

	st, err = o.BlockStatus(ctx, "b", "a")
	require.NoError(t, err)
	assert.True(t, st.TheyBlocked)

	ok, err := o.CanMessage(ctx, "b", "a")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = o.CanMessage(ctx, "b", "c")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestProfileReadThrough(t *testing.T) {
	store := repository.NewMemoryStore()
	store.PutUser(domain.Profile{ID: "a", Username: "alice", FullName: "Alice A"})
	cache := &mapCache{m: map[string]string{}}
	o := NewOracle(store, cache, time.Minute, zap.NewNop())
	ctx := context.Background()

	p, err := o.Profile(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Alice A", p.FullName)
	assert.Equal(t, 1, cache.sets)

	// served from cache even after the store changes
	store.PutUser(domain.Profile{ID: "a", Username: "alice", FullName: "Renamed"})
	p, err = o.Profile(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Alice A", p.FullName)
	assert.Equal(t, 1, cache.sets)

	_, err = o.Profile(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDisplayNamePrefersContactName(t *testing.T) {
	store := repository.NewMemoryStore()
	store.PutUser(domain.Profile{ID: "a", Username: "alice", FullName: "Alice A"})
	store.PutUser(domain.Profile{ID: "c", Username: "carol"})
	store.AddContact(domain.Contact{OwnerID: "b", ContactUserID: "a", ContactName: "Mum"})
	o := NewOracle(store, nil, time.Minute, zap.NewNop())
	ctx := context.Background()

	assert.Equal(t, "Mum", o.DisplayName(ctx, "b", "a"))
	assert.Equal(t, "Alice A", o.DisplayName(ctx, "c", "a"))
	assert.Equal(t, "carol", o.DisplayName(ctx, "b", "c"))
	assert.Equal(t, "", o.DisplayName(ctx, "b", "nobody"))
}
