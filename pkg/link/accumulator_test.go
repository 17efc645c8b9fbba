package link

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAccumulator(t *testing.T) {
	a := NewAccumulator(4)
	require.Nil(t, a.Take())
	require.Equal(t, 0, a.Append([]byte("ab")))
	require.Equal(t, 2, a.Room())
	require.Equal(t, 1, a.Append([]byte("cde")))
	require.Equal(t, 4, a.Len())
	require.Equal(t, 2, a.Append([]byte("fg")))
	require.Equal(t, []byte("abcd"), a.Take())
	require.Equal(t, 0, a.Len())
	require.Equal(t, 4, a.Room())
}

func TestAccumulatorTakeCopies(t *testing.T) {
	a := NewAccumulator(8)
	a.Append([]byte("ping"))
	frame := a.Take()
	a.Append([]byte("pong"))
	require.Equal(t, []byte("ping"), frame)
}
