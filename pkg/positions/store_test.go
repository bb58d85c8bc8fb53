package positions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrims-network/guildkeeper/pkg/doccache"
	"github.com/scrims-network/guildkeeper/pkg/observability"
	"github.com/scrims-network/guildkeeper/pkg/store"
)

func newBindingStore(t *testing.T) (*BindingStore, *doccache.Cache[Binding]) {
	t.Helper()
	coll := store.NewMemoryCollection[Binding]("position_bindings", nil, nil)
	cache := doccache.New[Binding]("position_bindings")
	registry := NewRegistry()
	registry.DeclareAll("Staff", "Support")
	logger := observability.NewLogger(observability.ErrorLevel, nil)
	return NewBindingStore(coll, cache, registry, logger), cache
}

func TestCreateBinding(t *testing.T) {
	s, cache := newBindingStore(t)
	ctx := context.Background()

	b, err := s.CreateBinding(ctx, "Staff", "g1", "r1")
	require.NoError(t, err)
	assert.NotEmpty(t, b.ID)
	assert.Same(t, b, cache.Get(b.ID))
}

func TestCreateBindingRejectsUndeclaredPosition(t *testing.T) {
	s, _ := newBindingStore(t)

	_, err := s.CreateBinding(context.Background(), "Nonexistent", "g1", "r1")
	assert.Error(t, err)
}

func TestCreateBindingTripleIsUnique(t *testing.T) {
	s, cache := newBindingStore(t)
	ctx := context.Background()

	first, err := s.CreateBinding(ctx, "Staff", "g1", "r1")
	require.NoError(t, err)
	second, err := s.CreateBinding(ctx, "Staff", "g1", "r1")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, cache.Len())

	// same role under a different position is a distinct binding
	_, err = s.CreateBinding(ctx, "Support", "g1", "r1")
	require.NoError(t, err)
	assert.Equal(t, 2, cache.Len())
}

func TestDeleteBinding(t *testing.T) {
	s, cache := newBindingStore(t)
	ctx := context.Background()

	b, err := s.CreateBinding(ctx, "Staff", "g1", "r1")
	require.NoError(t, err)

	deleted, err := s.DeleteBinding(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.False(t, cache.Has(b.ID))

	deleted, err = s.DeleteBinding(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestCascadeDeleteRole(t *testing.T) {
	s, cache := newBindingStore(t)
	ctx := context.Background()

	staff, err := s.CreateBinding(ctx, "Staff", "g1", "r1")
	require.NoError(t, err)
	support, err := s.CreateBinding(ctx, "Support", "g1", "r1")
	require.NoError(t, err)
	other, err := s.CreateBinding(ctx, "Staff", "g1", "r2")
	require.NoError(t, err)
	_ = staff
	_ = support

	removed, err := s.CascadeDeleteRole(ctx, "g1", "r1")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, cache.Len())
	assert.True(t, cache.Has(other.ID))
}

func TestTransientSet(t *testing.T) {
	cache := doccache.New[TransientRole]("transient_roles")
	set := NewTransientSet()
	set.Attach(cache)

	cache.Set("r9", &TransientRole{ID: "r9"})
	assert.True(t, set.IsTransient("r9"))
	assert.False(t, set.IsTransient("r1"))

	cache.Delete("r9")
	assert.False(t, set.IsTransient("r9"))
}
