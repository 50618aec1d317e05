package scriptfile

import (
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/scriptflow/internal/errors"
)

func memReader(t *testing.T, maxChars int, files map[string]string) *Reader {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, content := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0600))
	}
	return NewReader(fs, maxChars)
}

func TestRead_TextVerbatim(t *testing.T) {
	r := memReader(t, 0, map[string]string{
		"/in/script.md": "# Intro\r\n\r\nHello there.\n",
		"/in/notes.TXT": "\ufeffplain",
	})

	got, err := r.Read("/in/script.md")
	require.NoError(t, err)
	assert.Equal(t, "# Intro\n\nHello there.\n", got)

	got, err = r.Read("/in/notes.TXT")
	require.NoError(t, err)
	assert.Equal(t, "plain", got)
}

func TestRead_HTML(t *testing.T) {
	r := memReader(t, 0, map[string]string{
		"/in/page.html": `<body><nav>menu</nav><main><h2>Hook</h2><p>Start strong.</p></main></body>`,
	})

	got, err := r.Read("/in/page.html")
	require.NoError(t, err)
	assert.Equal(t, "## Hook\n\nStart strong.", got)
}

func TestRead_Subtitles(t *testing.T) {
	srt := "1\n00:00:01,000 --> 00:00:02,500\nHello and <i>welcome</i>\n\n2\n00:00:02,500 --> 00:00:04,000\nto the channel.\n"
	r := memReader(t, 0, map[string]string{"/in/cap.srt": srt})

	got, err := r.Read("/in/cap.srt")
	require.NoError(t, err)
	assert.Equal(t, "Hello and welcome\nto the channel.", got)
}

func TestRead_Errors(t *testing.T) {
	r := memReader(t, 10, map[string]string{
		"/in/empty.txt": "   \n",
		"/in/big.txt":   strings.Repeat("a", 11),
		"/in/bin.txt":   "\xff\xfe\xfd",
		"/in/cues.vtt":  "WEBVTT\n\nNOTE nothing spoken\n",
	})

	tests := []struct {
		name string
		path string
		code errors.ErrorCode
	}{
		{"unsupported extension", "/in/movie.mp4", errors.ErrUnsupportedFile},
		{"missing file", "/in/nope.txt", errors.ErrFileNotFound},
		{"no extension", "/in", errors.ErrUnsupportedFile},
		{"empty content", "/in/empty.txt", errors.ErrInvalidRequest},
		{"over character limit", "/in/big.txt", errors.ErrInvalidRequest},
		{"invalid utf-8", "/in/bin.txt", errors.ErrInvalidRequest},
		{"captions without cues", "/in/cues.vtt", errors.ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Read(tt.path)
			assert.True(t, errors.Is(err, tt.code), "Read(%s) error = %v, want %s", tt.path, err, tt.code)
		})
	}
}

func TestRead_MultibyteWithinLimit(t *testing.T) {
	r := memReader(t, 3, map[string]string{"/in/jp.txt": "日本語"})
	got, err := r.Read("/in/jp.txt")
	require.NoError(t, err)
	assert.Equal(t, "日本語", got)
}

func TestStripSubtitles_VTT(t *testing.T) {
	vtt := `WEBVTT
Kind: captions

STYLE
::cue { color: white }

NOTE this is a comment

intro-1
00:00:00.000 --> 00:00:01.000 align:start
<v Host>Welcome back</v>

00:00:01.000 --> 00:00:02.000
<v Host>Welcome back</v>

00:00:02.000 --> 00:00:03.000
Today: tips &amp; tricks
`
	assert.Equal(t, "Welcome back\nToday: tips & tricks", StripSubtitles(vtt))
}

func TestFormatFor(t *testing.T) {
	f, ok := FormatFor("a/b/Episode.VTT")
	assert.True(t, ok)
	assert.Equal(t, FormatSubtitle, f)

	_, ok = FormatFor("noext")
	assert.False(t, ok)
}
