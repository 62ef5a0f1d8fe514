package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fleetsim/core/clock"
)

func TestRegistryLifecycle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reg := NewRegistry(clock.Config{Multiplier: 1})
	require.NotNil(t, reg.Default())

	s, err := reg.Register(ctx, "exp-1", clock.Config{Multiplier: 2})
	require.NoError(t, err)
	_, err = reg.Register(ctx, "exp-1", clock.Config{})
	assert.Error(t, err)

	got, ok := reg.Get("exp-1")
	require.True(t, ok)
	assert.Same(t, s, got)
	assert.NotSame(t, reg.Default().Clock, s.Clock)
	assert.Len(t, reg.IDs(), 2)

	assert.False(t, s.ShouldAbort())
	assert.True(t, reg.Cancel("exp-1"))
	assert.True(t, s.ShouldAbort())
	assert.False(t, reg.Cancel("missing"))

	reg.Unregister("exp-1")
	_, ok = reg.Get("exp-1")
	assert.False(t, ok)

	reg.Unregister(DefaultID)
	_, ok = reg.Get(DefaultID)
	assert.True(t, ok)
}
