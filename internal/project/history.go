package project

import "fmt"

// History is an ordered message log. Methods never modify the receiver;
// each returns a new slice so snapshots handed out earlier stay stable.
type History []ChatMessage

// Clone returns a deep copy of h.
func (h History) Clone() History {
	if h == nil {
		return nil
	}
	out := make(History, len(h))
	for i, m := range h {
		out[i] = m.clone()
	}
	return out
}

// Append returns a new history with msgs added at the end.
func (h History) Append(msgs ...ChatMessage) History {
	out := make(History, 0, len(h)+len(msgs))
	out = append(out, h.Clone()...)
	for _, m := range msgs {
		out = append(out, m.clone())
	}
	return out
}

// ReplaceAt returns a new history with the message at index i replaced.
func (h History) ReplaceAt(i int, m ChatMessage) (History, error) {
	if i < 0 || i >= len(h) {
		return nil, fmt.Errorf("replace at %d: index out of range [0,%d)", i, len(h))
	}
	out := h.Clone()
	out[i] = m.clone()
	return out, nil
}

// ReplaceTextAt returns a new history where message i holds text as its only part.
// Role, context, and timestamp are kept.
func (h History) ReplaceTextAt(i int, text string) (History, error) {
	if i < 0 || i >= len(h) {
		return nil, fmt.Errorf("replace text at %d: index out of range [0,%d)", i, len(h))
	}
	m := h[i]
	m.Parts = []Part{{Text: text}}
	return h.ReplaceAt(i, m)
}

// LastTimestamp returns the largest timestamp in h, or 0 when empty.
func (h History) LastTimestamp() int64 {
	var last int64
	for _, m := range h {
		if m.Timestamp > last {
			last = m.Timestamp
		}
	}
	return last
}

// IsChronological reports whether timestamps are strictly increasing.
func (h History) IsChronological() bool {
	for i := 1; i < len(h); i++ {
		if h[i].Timestamp <= h[i-1].Timestamp {
			return false
		}
	}
	return true
}
