package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkdown(t *testing.T) {
	out, err := Markdown("# Intro\n\nHello **world**")
	require.NoError(t, err)
	assert.Contains(t, out, "<h1>Intro</h1>")
	assert.Contains(t, out, "<strong>world</strong>")
}

func TestMarkdown_GFM(t *testing.T) {
	out, err := Markdown("| a | b |\n|---|---|\n| 1 | 2 |\n\n~~old~~")
	require.NoError(t, err)
	assert.Contains(t, out, "<table>")
	assert.Contains(t, out, "<del>old</del>")
}

func TestMarkdown_OmitsRawHTML(t *testing.T) {
	out, err := Markdown("hi <script>alert(1)</script> <img src=x onerror=alert(1)>")
	require.NoError(t, err)
	assert.NotContains(t, out, "<script>")
	assert.NotContains(t, out, "onerror")
}

func TestMarkdownHTML(t *testing.T) {
	assert.Contains(t, string(MarkdownHTML("*a*")), "<em>a</em>")
}

func TestHTMLToMarkdown_PrefersArticle(t *testing.T) {
	src := `<html><head><style>p{}</style></head><body>
<nav>Home | About</nav>
<article><h1>Episode 4</h1><p>Welcome <b>back</b>.</p><script>track()</script></article>
<footer>© 2024</footer>
</body></html>`

	out, err := HTMLToMarkdown(src)
	require.NoError(t, err)
	assert.Contains(t, out, "# Episode 4")
	assert.Contains(t, out, "Welcome **back**.")
	assert.NotContains(t, out, "Home | About")
	assert.NotContains(t, out, "track()")
	assert.NotContains(t, out, "2024")
}

func TestHTMLToMarkdown_FallsBackToBody(t *testing.T) {
	out, err := HTMLToMarkdown("<p>one</p><p>two</p>")
	require.NoError(t, err)
	assert.Equal(t, "one\n\ntwo", out)
	assert.False(t, strings.Contains(out, "\n\n\n"))
}
