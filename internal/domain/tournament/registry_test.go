package tournament

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/tournament-hub/internal/domain/shared"
)

func TestRegistry(t *testing.T) {
	h := newHarness()
	reg := NewRegistry()

	b := h.build(t, NewBuilder("bravo").Window(activeWindow(t)))
	a := h.build(t, NewBuilder("alpha").Window(futureWindow(t)))

	require.NoError(t, reg.Register(b))
	require.NoError(t, reg.Register(a))
	assert.ErrorIs(t, reg.Register(a), shared.ErrTournamentExists)

	got, err := reg.Get("alpha")
	require.NoError(t, err)
	assert.Same(t, a, got)

	_, err = reg.Get("missing")
	assert.True(t, shared.IsNotFound(err))

	all := reg.All()
	require.Len(t, all, 2)
	assert.Equal(t, shared.TournamentID("alpha"), all[0].ID())
	assert.Equal(t, []*Tournament{b}, reg.WithStatus(StatusActive))
	assert.Equal(t, 2, reg.Len())
}
