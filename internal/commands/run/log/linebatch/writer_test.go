package linebatch_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benedito123/workflow-runner/internal/commands/run/log/linebatch"
)

func TestWriter(t *testing.T) {
	t.Run("complete lines", func(t *testing.T) {
		var batches [][]string

		w := linebatch.NewWriter(func(lines []string) {
			batches = append(batches, lines)
		})

		_, err := w.Write([]byte("one\ntwo\n"))
		require.NoError(t, err)

		require.Len(t, batches, 1)
		assert.Equal(t, []string{"one", "two"}, batches[0])
	})

	t.Run("partial line held back", func(t *testing.T) {
		var batches [][]string

		w := linebatch.NewWriter(func(lines []string) {
			batches = append(batches, lines)
		})

		_, err := w.Write([]byte("par"))
		require.NoError(t, err)
		assert.Empty(t, batches)

		_, err = w.Write([]byte("tial\nnext"))
		require.NoError(t, err)

		require.Len(t, batches, 1)
		assert.Equal(t, []string{"partial"}, batches[0])

		require.NoError(t, w.Close())

		require.Len(t, batches, 2)
		assert.Equal(t, []string{"next"}, batches[1])
	})

	t.Run("crlf", func(t *testing.T) {
		var batches [][]string

		w := linebatch.NewWriter(func(lines []string) {
			batches = append(batches, lines)
		})

		_, err := w.Write([]byte("one\r\ntwo\r\n"))
		require.NoError(t, err)

		require.Len(t, batches, 1)
		assert.Equal(t, []string{"one", "two"}, batches[0])
	})

	t.Run("close with nothing pending", func(t *testing.T) {
		calls := 0

		w := linebatch.NewWriter(func([]string) { calls++ })

		require.NoError(t, w.Close())
		assert.Zero(t, calls)
	})
}
