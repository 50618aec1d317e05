package scriptfile

import (
	"html"
	"regexp"
	"strings"
)

var cueTag = regexp.MustCompile(`<[^>]*>`)

// StripSubtitles reduces SRT or WebVTT captions to their spoken text, one cue
// per line. Cue numbers, identifiers, timing lines, and header, NOTE, STYLE
// and REGION blocks are dropped. Repeated consecutive cues, common in rolling
// auto-captions, collapse to one.
func StripSubtitles(src string) string {
	src = strings.ReplaceAll(src, "\r\n", "\n")

	var out []string
	for _, block := range strings.Split(src, "\n\n") {
		lines := strings.Split(strings.Trim(block, "\n"), "\n")

		timing := -1
		for i, line := range lines {
			if strings.Contains(line, "-->") {
				timing = i
				break
			}
		}
		if timing < 0 {
			// No cue: WEBVTT header, NOTE, STYLE, REGION, or stray text
			continue
		}

		var text []string
		for _, line := range lines[timing+1:] {
			line = html.UnescapeString(cueTag.ReplaceAllString(line, ""))
			if line = strings.TrimSpace(line); line != "" {
				text = append(text, line)
			}
		}
		if len(text) == 0 {
			continue
		}

		cue := strings.Join(text, " ")
		if len(out) > 0 && out[len(out)-1] == cue {
			continue
		}
		out = append(out, cue)
	}
	return strings.Join(out, "\n")
}
