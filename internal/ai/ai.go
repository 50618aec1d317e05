// Package ai defines the generative-AI collaborators and an HTTP client for
// OpenAI-compatible chat completion endpoints.
package ai

import (
	"context"
	"errors"

	"github.com/hpungsan/scriptflow/internal/project"
)

var (
	// ErrNoAPIKey indicates the API key is missing.
	ErrNoAPIKey = errors.New("API key is required")

	// ErrEmptyResponse indicates the API returned no text.
	ErrEmptyResponse = errors.New("empty response from API")

	// ErrNoImage indicates an image request returned no image data.
	ErrNoImage = errors.New("no image in response")
)

// TextGenerator answers single prompts without conversation state.
// Used for cleanup, metadata, rewrite, and brainstorm conversion.
type TextGenerator interface {
	SendMessage(ctx context.Context, text string) (string, error)
}

// ChatStarter opens a conversation seeded with prior turns.
type ChatStarter interface {
	StartChat(history project.History) ChatSession
}

// ChatSession sends the next user turn of a conversation.
type ChatSession interface {
	SendMessageStream(ctx context.Context, text string) (Stream, error)
}

// Stream yields reply fragments in order. Recv returns io.EOF after the last
// fragment. Close releases the connection and may be called at any time.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// ImageGenerator turns a prompt into encoded image bytes.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
}

// Provider is everything the workspace needs from the AI service.
type Provider interface {
	TextGenerator
	ChatStarter
	ImageGenerator
}
