package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBind(t *testing.T) {
	sig := calculatorAdd()

	t.Run("defaults fill omitted parameters", func(t *testing.T) {
		bound, err := Bind(sig, ArgumentSet{"b": 2, "a": 1})
		require.NoError(t, err)
		require.Len(t, bound, 3)
		assert.Equal(t, "a", bound[0].Param.Name)
		assert.Equal(t, 1, bound[0].Value)
		assert.True(t, bound[0].Present)
		assert.Equal(t, 1.0, bound[2].Value)
		assert.False(t, bound[2].Present)
	})

	t.Run("missing required argument", func(t *testing.T) {
		_, err := Bind(sig, ArgumentSet{"a": 1})
		var ae *ArgumentError
		require.True(t, errors.As(err, &ae))
		assert.Equal(t, "b", ae.Param)
		assert.ErrorIs(t, err, errMissingArgument)
	})

	t.Run("unknown argument name", func(t *testing.T) {
		_, err := Bind(sig, ArgumentSet{"a": 1, "b": 2, "c": 3})
		var ae *ArgumentError
		require.True(t, errors.As(err, &ae))
		assert.Equal(t, "c", ae.Param)
		assert.ErrorIs(t, err, errUnexpectedArgument)
	})
}
