package ai

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// streamChunk is one server-sent completion delta.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *APIError `json:"error,omitempty"`
}

// sseStream reads "data: {...}" lines until "data: [DONE]" or EOF.
type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	logger  *slog.Logger
	done    bool
}

func newSSEStream(body io.ReadCloser, logger *slog.Logger) *sseStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &sseStream{body: body, scanner: scanner, logger: logger}
}

// Recv returns the next non-empty text fragment.
func (s *sseStream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}

	for s.scanner.Scan() {
		line := s.scanner.Text()

		// Blank separators and ": keep-alive" comments
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			s.logger.Debug("ignoring non-data SSE line", "line", line)
			continue
		}

		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			s.done = true
			return "", io.EOF
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return "", fmt.Errorf("decode stream chunk: %w", err)
		}
		if chunk.Error != nil {
			return "", chunk.Error
		}

		var b strings.Builder
		for _, choice := range chunk.Choices {
			b.WriteString(choice.Delta.Content)
		}
		if b.Len() > 0 {
			return b.String(), nil
		}
	}

	if err := s.scanner.Err(); err != nil {
		return "", err
	}
	s.done = true
	return "", io.EOF
}

// Close releases the underlying response body.
func (s *sseStream) Close() error {
	s.done = true
	return s.body.Close()
}
