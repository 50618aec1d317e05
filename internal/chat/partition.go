package chat

import (
	"fmt"

	"github.com/hpungsan/scriptflow/internal/project"
)

// BlockKind distinguishes live messages from collapsed foreign runs.
type BlockKind string

const (
	BlockMessage  BlockKind = "message"
	BlockBookmark BlockKind = "bookmark"
)

// Block is one renderable unit of a surface's chat view.
type Block struct {
	Kind BlockKind `json:"kind"`

	// Key is stable for a given history and surface.
	Key string `json:"key"`

	// Context is the message's context, or the origin surface of a bookmark.
	Context project.Context `json:"context"`

	// Message and Index are set only for BlockMessage. Index is the
	// message's position in the full history.
	Message *project.ChatMessage `json:"message,omitempty"`
	Index   *int                 `json:"index,omitempty"`

	// Messages holds the collapsed run for BlockBookmark.
	Messages project.History `json:"messages,omitempty"`
}

// Label is the summary line of a bookmark.
func (b Block) Label() string {
	if b.Kind != BlockBookmark {
		return ""
	}
	n := len(b.Messages)
	plural := "s"
	if n == 1 {
		plural = ""
	}
	return fmt.Sprintf("View %d message%s from %s", n, plural, b.Context.Label())
}

// Partition splits history into what the active surface shows live and what it
// collapses. Messages of the active context become message blocks, in order.
// Each contiguous run of foreign messages becomes one bookmark placed where the
// run occurred. The result depends only on the inputs.
func Partition(history project.History, active project.Context) []Block {
	blocks := make([]Block, 0, len(history))
	var run project.History
	var runContext project.Context

	flush := func(key string) {
		if len(run) == 0 {
			return
		}
		blocks = append(blocks, Block{
			Kind:     BlockBookmark,
			Key:      key,
			Context:  runContext,
			Messages: run,
		})
		run = nil
	}

	for i, m := range history {
		if m.Context == active {
			flush(fmt.Sprintf("bookmark-%d", i))
			msg := history[i : i+1].Clone()[0]
			index := i
			blocks = append(blocks, Block{
				Kind:    BlockMessage,
				Key:     fmt.Sprintf("msg-%d-%d", m.Timestamp, i),
				Context: m.Context,
				Message: &msg,
				Index:   &index,
			})
			continue
		}

		// A foreign run ends when the foreign context itself changes
		if len(run) > 0 && m.Context != runContext {
			flush(fmt.Sprintf("bookmark-%d", i))
		}
		run = append(run, history[i:i+1].Clone()...)
		runContext = m.Context
	}
	flush("bookmark-final")

	return blocks
}
