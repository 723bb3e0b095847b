package event_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benedito123/workflow-runner/internal/event"
)

func writePayload(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "payload.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestNew(t *testing.T) {
	t.Run("push", func(t *testing.T) {
		evt, err := event.New(event.NamePush, "refs/heads/main")
		require.NoError(t, err)

		assert.Equal(t, "push", evt.Name)
		assert.Equal(t, "main", evt.Branch())
		assert.Equal(t, "main", evt.ShortRef())
		assert.Empty(t, evt.Tag())
	})

	t.Run("tag ref", func(t *testing.T) {
		evt, err := event.New(event.NamePush, "refs/tags/v1.2.0")
		require.NoError(t, err)

		assert.Empty(t, evt.Branch())
		assert.Equal(t, "v1.2.0", evt.Tag())
		assert.Equal(t, "v1.2.0", evt.ShortRef())
	})

	t.Run("unknown name", func(t *testing.T) {
		_, err := event.New("deployment", "refs/heads/main")
		assert.ErrorIs(t, err, event.ErrUnknownEvent)
	})
}

func TestReadPayloadFile(t *testing.T) {
	t.Run("push payload", func(t *testing.T) {
		path := writePayload(t, `{
			"ref": "refs/heads/main",
			"commits": [
				{"added": ["a.go"], "modified": ["b.go"], "removed": []},
				{"added": [], "modified": ["docs/c.md"], "removed": ["old.txt"]}
			]
		}`)

		evt, err := event.ReadPayloadFile(event.NamePush, path)
		require.NoError(t, err)

		assert.Equal(t, "refs/heads/main", evt.Ref)
		assert.ElementsMatch(t, []string{"a.go", "b.go", "docs/c.md", "old.txt"}, evt.ChangedPaths)
	})

	t.Run("pull_request payload matches base branch", func(t *testing.T) {
		path := writePayload(t, `{
			"action": "opened",
			"pull_request": {
				"head": {"ref": "feature/x"},
				"base": {"ref": "main"}
			}
		}`)

		evt, err := event.ReadPayloadFile(event.NamePullRequest, path)
		require.NoError(t, err)

		assert.Equal(t, "refs/heads/main", evt.Ref)
		assert.Equal(t, "main", evt.Branch())
	})

	t.Run("invalid json", func(t *testing.T) {
		path := writePayload(t, "{")

		_, err := event.ReadPayloadFile(event.NamePush, path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := event.ReadPayloadFile(event.NamePush, filepath.Join(t.TempDir(), "nope.json"))
		assert.Error(t, err)
	})
}
