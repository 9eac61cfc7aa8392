package apperr

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestKinds(t *testing.T) {
	require.True(t, IsNotFound(NotFound("mission")))
	require.True(t, IsConflict(Conflict("mission is no longer available")))
	require.True(t, IsInvalidInput(InvalidInput("status")))

	require.False(t, IsNotFound(Conflict("x")))
	require.False(t, IsConflict(errors.New("plain")))
}

func TestKinds_SurviveWrapping(t *testing.T) {
	err := errors.Wrap(NotFound("mission"), "accept")
	require.True(t, IsNotFound(err))
	require.Equal(t, "accept: mission: not found", err.Error())
}
