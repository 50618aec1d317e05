// Package aitest provides a scripted ai.Provider for tests.
package aitest

import (
	"context"
	"io"
	"sync"

	"github.com/hpungsan/scriptflow/internal/ai"
	"github.com/hpungsan/scriptflow/internal/project"
)

var _ ai.Provider = (*Fake)(nil)

// Fake replays canned replies and records what it was asked.
type Fake struct {
	mu sync.Mutex

	// Reply is returned by SendMessage. ReplyErr wins when set.
	Reply    string
	ReplyErr error

	// Chunks are streamed by SendMessageStream in order. StreamErr, when
	// set, is returned after the chunks instead of io.EOF. OpenErr fails
	// the stream before any chunk.
	Chunks    []string
	StreamErr error
	OpenErr   error

	// Block, when non-nil, is received from before each chunk is delivered,
	// so a test can hold the stream open.
	Block chan struct{}

	Image    []byte
	ImageErr error

	// Recorded calls.
	Prompts      []string
	ChatHistory  project.History
	ChatPrompts  []string
	ImagePrompts []string
}

// SendMessage implements ai.TextGenerator.
func (f *Fake) SendMessage(ctx context.Context, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Prompts = append(f.Prompts, text)
	if f.ReplyErr != nil {
		return "", f.ReplyErr
	}
	return f.Reply, nil
}

// StartChat implements ai.ChatStarter.
func (f *Fake) StartChat(history project.History) ai.ChatSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ChatHistory = history.Clone()
	return &session{fake: f}
}

// GenerateImage implements ai.ImageGenerator.
func (f *Fake) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ImagePrompts = append(f.ImagePrompts, prompt)
	if f.ImageErr != nil {
		return nil, f.ImageErr
	}
	return f.Image, nil
}

type session struct {
	fake *Fake
}

func (s *session) SendMessageStream(ctx context.Context, text string) (ai.Stream, error) {
	s.fake.mu.Lock()
	defer s.fake.mu.Unlock()
	s.fake.ChatPrompts = append(s.fake.ChatPrompts, text)
	if s.fake.OpenErr != nil {
		return nil, s.fake.OpenErr
	}
	return &stream{
		ctx:    ctx,
		chunks: append([]string(nil), s.fake.Chunks...),
		err:    s.fake.StreamErr,
		block:  s.fake.Block,
	}, nil
}

type stream struct {
	ctx    context.Context
	chunks []string
	err    error
	block  chan struct{}
}

func (s *stream) Recv() (string, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-s.ctx.Done():
			return "", s.ctx.Err()
		}
	}
	if err := s.ctx.Err(); err != nil {
		return "", err
	}
	if len(s.chunks) == 0 {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	next := s.chunks[0]
	s.chunks = s.chunks[1:]
	return next, nil
}

func (s *stream) Close() error { return nil }
