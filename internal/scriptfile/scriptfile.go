// Package scriptfile turns an uploaded file into script text.
package scriptfile

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/spf13/afero"

	"github.com/hpungsan/scriptflow/internal/errors"
	"github.com/hpungsan/scriptflow/internal/project"
	"github.com/hpungsan/scriptflow/internal/render"
)

// Format is how a file's bytes become script text.
type Format string

const (
	FormatText     Format = "text"
	FormatHTML     Format = "html"
	FormatSubtitle Format = "subtitle"
)

var formats = map[string]Format{
	".txt":      FormatText,
	".md":       FormatText,
	".markdown": FormatText,
	".html":     FormatHTML,
	".htm":      FormatHTML,
	".srt":      FormatSubtitle,
	".vtt":      FormatSubtitle,
}

// SupportedExtensions lists accepted file extensions, lowercase with dot.
var SupportedExtensions = []string{".txt", ".md", ".markdown", ".html", ".htm", ".srt", ".vtt"}

// bytesPerChar bounds the raw read before decoding.
const bytesPerChar = 4

// FormatFor returns the format for path's extension.
func FormatFor(path string) (Format, bool) {
	f, ok := formats[strings.ToLower(filepath.Ext(path))]
	return f, ok
}

// Reader reads script files from a filesystem.
type Reader struct {
	fs       afero.Fs
	maxChars int
}

// NewReader returns a Reader over fs. maxChars <= 0 disables the size cap.
func NewReader(fs afero.Fs, maxChars int) *Reader {
	return &Reader{fs: fs, maxChars: maxChars}
}

// NewOSReader reads from the real filesystem.
func NewOSReader(maxChars int) *Reader {
	return NewReader(afero.NewOsFs(), maxChars)
}

// Read returns the file's content as script text.
func (r *Reader) Read(path string) (string, error) {
	format, ok := FormatFor(path)
	if !ok {
		return "", errors.NewUnsupportedFile(filepath.Ext(path), SupportedExtensions)
	}

	info, err := r.fs.Stat(path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return "", errors.NewFileNotFound(path)
		}
		return "", errors.NewInternal(fmt.Errorf("stat %s: %w", path, err))
	}
	if info.IsDir() {
		return "", errors.NewInvalidRequest(fmt.Sprintf("%s is a directory", path))
	}

	f, err := r.fs.Open(path)
	if err != nil {
		return "", errors.NewInternal(fmt.Errorf("open %s: %w", path, err))
	}
	defer f.Close()

	var src io.Reader = f
	if r.maxChars > 0 {
		src = io.LimitReader(f, int64(r.maxChars)*bytesPerChar+1)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return "", errors.NewInternal(fmt.Errorf("read %s: %w", path, err))
	}
	if r.maxChars > 0 && int64(len(data)) > int64(r.maxChars)*bytesPerChar {
		return "", tooLarge(r.maxChars)
	}

	return r.Decode(format, data)
}

// Decode converts raw file bytes of the given format to script text.
func (r *Reader) Decode(format Format, data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", errors.NewInvalidRequest("file is not valid UTF-8 text")
	}
	text := strings.TrimPrefix(string(data), "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var err error
	switch format {
	case FormatHTML:
		text, err = render.HTMLToMarkdown(text)
		if err != nil {
			return "", errors.NewInvalidRequest(err.Error())
		}
	case FormatSubtitle:
		text = StripSubtitles(text)
	}

	if strings.TrimSpace(text) == "" {
		return "", errors.NewInvalidRequest("file has no text content")
	}
	if r.maxChars > 0 && project.CountChars(text) > r.maxChars {
		return "", tooLarge(r.maxChars)
	}
	return text, nil
}

func tooLarge(max int) error {
	return errors.NewInvalidRequest(fmt.Sprintf("file exceeds the %d character limit", max))
}
