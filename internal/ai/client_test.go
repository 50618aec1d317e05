package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/scriptflow/internal/project"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		APIKey:     "sk-test",
		BaseURL:    srv.URL,
		Model:      "test/model",
		ImageModel: "test/image",
		RetryCount: 3,
		RetryDelay: time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient(Config{})
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestSendMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req completionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test/model", req.Model)
		assert.False(t, req.Stream)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "Clean this", req.Messages[0].Content)

		fmt.Fprint(w, `{"choices":[{"message":{"content":"Cleaned."}}]}`)
	})

	got, err := c.SendMessage(context.Background(), "Clean this")
	require.NoError(t, err)
	assert.Equal(t, "Cleaned.", got)
}

func TestSendMessage_EmptyResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	})

	_, err := c.SendMessage(context.Background(), "x")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestSendMessage_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad key","code":"invalid_api_key"}}`)
	})

	_, err := c.SendMessage(context.Background(), "x")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "bad key", apiErr.Message)
	assert.True(t, apiErr.IsAuthError())
	assert.Equal(t, int32(1), calls.Load())
}

func TestSendMessage_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	})

	got, err := c.SendMessage(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSendMessage_RetriesExhausted(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `overloaded`)
	})

	_, err := c.SendMessage(context.Background(), "x")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.True(t, apiErr.IsRetryable())
}

func TestChatStream(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req completionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		// history replayed, model role mapped to assistant
		require.Len(t, req.Messages, 3)
		assert.Equal(t, "user", req.Messages[0].Role)
		assert.Equal(t, "assistant", req.Messages[1].Role)
		assert.Equal(t, "And now?", req.Messages[2].Content)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": OPENROUTER PROCESSING\n\n")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"Hel"}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"role":"assistant"}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"lo"}}]}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	history := project.History{
		project.NewMessage(project.RoleUser, project.ContextAssistant, 1, "Hi"),
		project.NewMessage(project.RoleModel, project.ContextAssistant, 2, "Hello!"),
	}
	stream, err := c.StartChat(history).SendMessageStream(context.Background(), "And now?")
	require.NoError(t, err)
	defer stream.Close()

	var chunks []string
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		chunks = append(chunks, chunk)
	}
	assert.Equal(t, []string{"Hel", "lo"}, chunks)

	// EOF is sticky
	_, err = stream.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

func TestChatStream_ErrorChunk(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"par"}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"error":{"message":"upstream died"}}`+"\n\n")
	})

	stream, err := c.StartChat(nil).SendMessageStream(context.Background(), "x")
	require.NoError(t, err)
	defer stream.Close()

	chunk, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "par", chunk)

	_, err = stream.Recv()
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "upstream died", apiErr.Message)
}

func TestGenerateImage(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req completionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test/image", req.Model)
		assert.Equal(t, []string{"image", "text"}, req.Modalities)

		url := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
		fmt.Fprintf(w, `{"choices":[{"message":{"content":"","images":[{"image_url":{"url":%q}}]}}]}`, url)
	})

	got, err := c.GenerateImage(context.Background(), "a cat")
	require.NoError(t, err)
	assert.Equal(t, png, got)
}

func TestGenerateImage_NoImage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"I can't draw that"}}]}`)
	})

	_, err := c.GenerateImage(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNoImage)
}

func TestDecodeDataURL(t *testing.T) {
	_, err := decodeDataURL("https://example.com/cat.png")
	assert.Error(t, err)
	_, err = decodeDataURL("data:image/png,raw")
	assert.Error(t, err)

	data, err := decodeDataURL("data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("ok")))
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))
}
