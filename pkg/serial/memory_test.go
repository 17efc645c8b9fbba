package serial

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	var m Memory
	require.Zero(t, m.BytesAvailable())
	require.Nil(t, m.ReadUpTo(4))

	m.Feed([]byte("hello"))
	require.Equal(t, 5, m.BytesAvailable())
	require.Equal(t, []byte("hel"), m.ReadUpTo(3))
	require.Equal(t, []byte("lo"), m.ReadUpTo(10))
	require.Zero(t, m.BytesAvailable())

	_, err := m.Write([]byte("out"))
	require.NoError(t, err)
	require.Equal(t, []byte("out"), m.TakeOutput())
	require.Empty(t, m.TakeOutput())
}
