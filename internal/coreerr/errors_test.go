package coreerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	t.Run("nil error wraps to nil", func(t *testing.T) {
		assert.NoError(t, Wrap(ErrStorage, nil))
	})

	t.Run("wrapped error matches its kind via errors.Is", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := Wrap(ErrStorage, cause)

		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrStorage))
		assert.False(t, errors.Is(err, ErrInput))
	})

	t.Run("unwraps to the original cause", func(t *testing.T) {
		cause := errors.New("boom")
		err := Wrap(ErrDevice, cause)

		assert.Equal(t, cause, errors.Unwrap(err))
	})

	t.Run("message includes both kind and cause", func(t *testing.T) {
		err := Wrap(ErrDetectionMiss, errors.New("no faces"))
		assert.Equal(t, "detection miss: no faces", err.Error())
	})
}
