package chat

import "strings"

// ComposePrompt prefixes text with the editor selection as a quoted block.
// With no selection the text is returned unchanged.
func ComposePrompt(text, selection string) string {
	selection = strings.TrimSpace(selection)
	if selection == "" {
		return text
	}

	var b strings.Builder
	b.WriteString("Selected text from the editor:\n")
	for _, line := range strings.Split(selection, "\n") {
		b.WriteString("> ")
		b.WriteString(strings.TrimRight(line, "\r"))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(text)
	return b.String()
}
