package chat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/scriptflow/internal/project"
)

func msg(role project.Role, c project.Context, ts int64, text string) project.ChatMessage {
	return project.NewMessage(role, c, ts, text)
}

func TestPartition(t *testing.T) {
	b, a := project.ContextBrainstorm, project.ContextAssistant
	history := project.History{
		msg(project.RoleUser, b, 1, "idea"),
		msg(project.RoleModel, b, 2, "angles"),
		msg(project.RoleUser, a, 3, "shorten intro"),
		msg(project.RoleModel, a, 4, "done"),
		msg(project.RoleUser, b, 5, "one more idea"),
	}

	t.Run("assistant surface", func(t *testing.T) {
		blocks := Partition(history, a)
		require.Len(t, blocks, 4)

		assert.Equal(t, BlockBookmark, blocks[0].Kind)
		assert.Equal(t, "bookmark-2", blocks[0].Key)
		assert.Equal(t, b, blocks[0].Context)
		assert.Len(t, blocks[0].Messages, 2)
		assert.Equal(t, "View 2 messages from Brainstorm", blocks[0].Label())

		assert.Equal(t, BlockMessage, blocks[1].Kind)
		assert.Equal(t, "msg-3-2", blocks[1].Key)
		assert.Equal(t, "shorten intro", blocks[1].Message.Text())
		require.NotNil(t, blocks[1].Index)
		assert.Equal(t, 2, *blocks[1].Index)
		assert.Nil(t, blocks[0].Index)

		assert.Equal(t, "msg-4-3", blocks[2].Key)

		assert.Equal(t, "bookmark-final", blocks[3].Key)
		assert.Equal(t, "View 1 message from Brainstorm", blocks[3].Label())
	})

	t.Run("brainstorm surface", func(t *testing.T) {
		blocks := Partition(history, b)
		require.Len(t, blocks, 4)
		assert.Equal(t, "msg-1-0", blocks[0].Key)
		assert.Equal(t, "msg-2-1", blocks[1].Key)
		assert.Equal(t, "bookmark-4", blocks[2].Key)
		assert.Equal(t, "View 2 messages from Editor", blocks[2].Label())
		assert.Equal(t, "msg-5-4", blocks[3].Key)
	})
}

func TestPartition_IndexOnlyOnMessages(t *testing.T) {
	history := project.History{
		msg(project.RoleUser, project.ContextBrainstorm, 1, "first"),
		msg(project.RoleUser, project.ContextAssistant, 2, "other"),
	}
	blocks := Partition(history, project.ContextBrainstorm)
	require.Len(t, blocks, 2)

	data, err := json.Marshal(blocks[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"index":0`)

	data, err = json.Marshal(blocks[1])
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"index"`)
}

func TestPartition_Stable(t *testing.T) {
	history := project.History{
		msg(project.RoleUser, project.ContextBrainstorm, 1, "a"),
		msg(project.RoleUser, project.ContextAssistant, 2, "b"),
	}
	first := Partition(history, project.ContextAssistant)
	second := Partition(history.Clone(), project.ContextAssistant)
	assert.Equal(t, first, second)

	// Blocks do not alias the input
	first[1].Message.Parts[0].Text = "changed"
	assert.Equal(t, "b", history[1].Text())
}

func TestPartition_EdgeCases(t *testing.T) {
	assert.Empty(t, Partition(nil, project.ContextAssistant))

	onlyForeign := project.History{
		msg(project.RoleUser, project.ContextBrainstorm, 1, "a"),
		msg(project.RoleModel, project.ContextBrainstorm, 2, "b"),
		msg(project.RoleUser, project.ContextBrainstorm, 3, "c"),
	}
	blocks := Partition(onlyForeign, project.ContextAssistant)
	require.Len(t, blocks, 1)
	assert.Equal(t, "bookmark-final", blocks[0].Key)
	assert.Equal(t, "View 3 messages from Brainstorm", blocks[0].Label())

	onlyLive := Partition(onlyForeign, project.ContextBrainstorm)
	require.Len(t, onlyLive, 3)
	for _, blk := range onlyLive {
		assert.Equal(t, BlockMessage, blk.Kind)
		assert.Empty(t, blk.Label())
	}
}
