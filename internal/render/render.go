// Package render converts between Markdown and HTML for display and import.
// Rendering never changes stored text.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// markdown omits raw HTML from the source (goldmark's default), so output
// cannot carry script or event-handler markup from chat text.
var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// Markdown renders markdown text to sanitized HTML.
func Markdown(text string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

// MarkdownHTML renders text for templates, falling back to escaped text.
func MarkdownHTML(text string) template.HTML {
	out, err := Markdown(text)
	if err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(out)
}

// HTMLToMarkdown extracts the main content of an HTML document as Markdown.
// The first of article, main, or body is used; scripts, styles, and page
// chrome are dropped.
func HTMLToMarkdown(src string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("script, style, noscript, nav, header, footer").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	content := doc.Find("body")
	for _, sel := range []string{"article", "main"} {
		if found := doc.Find(sel).First(); found.Length() > 0 {
			content = found
			break
		}
	}

	fragment, err := goquery.OuterHtml(content)
	if err != nil {
		return "", fmt.Errorf("failed to select content: %w", err)
	}

	converter := md.NewConverter("", true, nil)
	out, err := converter.ConvertString(fragment)
	if err != nil {
		return "", fmt.Errorf("failed to convert HTML to Markdown: %w", err)
	}

	out = strings.TrimSpace(out)
	for strings.Contains(out, "\n\n\n") {
		out = strings.ReplaceAll(out, "\n\n\n", "\n\n")
	}
	return out, nil
}
