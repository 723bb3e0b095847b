package buffer_test

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benedito123/workflow-runner/internal/commands/run/log/buffer"
)

func TestBuffer_Length(t *testing.T) {
	buf := buffer.NewBuffer()

	assert.Zero(t, buf.Length())

	n, err := buf.Write([]byte("0123456789"))
	require.NoError(t, err)
	require.Equal(t, 10, n)

	assert.Equal(t, 10, buf.Length())

	n, err = buf.Write([]byte("abcdefgh"))
	require.NoError(t, err)
	require.Equal(t, 8, n)

	assert.Equal(t, 18, buf.Length())
}

func TestBuffer_ReadAt(t *testing.T) {
	t.Run("negative offset", func(t *testing.T) {
		buf := buffer.NewBuffer()

		n, err := buf.ReadAt(nil, -1)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
		assert.Zero(t, n)
	})

	t.Run("offset over length", func(t *testing.T) {
		buf := buffer.NewBuffer()

		_, err := buf.Write([]byte("0123456789"))
		require.NoError(t, err)

		n, err := buf.ReadAt(nil, 11)
		require.ErrorIs(t, err, io.EOF)
		assert.Zero(t, n)
	})

	t.Run("ok", func(t *testing.T) {
		buf := buffer.NewBuffer()

		_, err := buf.Write([]byte("0123456789"))
		require.NoError(t, err)

		dest := make([]byte, 5)
		n, err := buf.ReadAt(dest, 0)
		assert.NoError(t, err)
		assert.Equal(t, 5, n)
		assert.Equal(t, []byte("01234"), dest)

		dest = make([]byte, 10)
		n, err = buf.ReadAt(dest, 7)
		assert.ErrorIs(t, err, io.EOF)
		assert.Equal(t, 3, n)
		assert.Equal(t, []byte("789"), dest[:n])
	})
}

func TestBuffer_String(t *testing.T) {
	buf := buffer.NewBuffer()

	_, err := buf.Write([]byte("hello "))
	require.NoError(t, err)

	_, err = buf.Write([]byte("world"))
	require.NoError(t, err)

	assert.Equal(t, "hello world", buf.String())
}
