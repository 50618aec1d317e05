package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hpungsan/scriptflow/internal/config"
	"github.com/hpungsan/scriptflow/internal/project"
)

const (
	defaultBaseURL = "https://openrouter.ai/api/v1"
	defaultTimeout = 120 * time.Second
)

var _ Provider = (*Client)(nil)

// Config holds configuration for the HTTP client.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	ImageModel string
	Logger     *slog.Logger
	Timeout    time.Duration
	RetryCount int           // attempts per request, including the first
	RetryDelay time.Duration // grows linearly with each attempt
}

// Client talks to an OpenAI-compatible chat completion API.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new API client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = 1
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		config: cfg,
		// Streaming replies can outlive a whole-request timeout, so the
		// timeout bounds only the wait for response headers.
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: timeout,
			},
		},
		logger: logger.With("component", "ai_client"),
	}, nil
}

// NewFromConfig builds a client from application config. It returns
// ErrNoAPIKey when the configured environment variable is empty.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	return NewClient(Config{
		APIKey:     cfg.APIKey(),
		BaseURL:    cfg.AI.BaseURL,
		Model:      cfg.AI.Model,
		ImageModel: cfg.AI.ImageModel,
		Logger:     logger,
		Timeout:    cfg.Timeout(),
		RetryCount: cfg.AI.RetryCount,
	})
}

// wireMessage is a chat message in request format.
type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model      string        `json:"model"`
	Messages   []wireMessage `json:"messages"`
	Stream     bool          `json:"stream,omitempty"`
	Modalities []string      `json:"modalities,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Images  []struct {
				ImageURL struct {
					URL string `json:"url"`
				} `json:"image_url"`
			} `json:"images"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// SendMessage sends one prompt and returns the complete reply.
func (c *Client) SendMessage(ctx context.Context, text string) (string, error) {
	logger := c.logger.With("method", "SendMessage", "model", c.config.Model)

	result, err := c.complete(ctx, completionRequest{
		Model:    c.config.Model,
		Messages: []wireMessage{{Role: "user", Content: text}},
	})
	if err != nil {
		logger.Warn("request failed", "error", err)
		return "", err
	}
	if len(result.Choices) == 0 || result.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}

	logger.Debug("completion successful", "usage_total", result.Usage.TotalTokens)
	return result.Choices[0].Message.Content, nil
}

// StartChat returns a session that replays history before each new turn.
func (c *Client) StartChat(history project.History) ChatSession {
	return &chatSession{client: c, history: toWire(history)}
}

// GenerateImage requests an image and returns its decoded bytes.
func (c *Client) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	logger := c.logger.With("method", "GenerateImage", "model", c.config.ImageModel)

	result, err := c.complete(ctx, completionRequest{
		Model:      c.config.ImageModel,
		Messages:   []wireMessage{{Role: "user", Content: prompt}},
		Modalities: []string{"image", "text"},
	})
	if err != nil {
		logger.Warn("request failed", "error", err)
		return nil, err
	}

	for _, choice := range result.Choices {
		for _, img := range choice.Message.Images {
			data, err := decodeDataURL(img.ImageURL.URL)
			if err != nil {
				return nil, err
			}
			return data, nil
		}
	}
	return nil, ErrNoImage
}

type chatSession struct {
	client  *Client
	history []wireMessage
}

// SendMessageStream sends text after the session history and streams the reply.
func (s *chatSession) SendMessageStream(ctx context.Context, text string) (Stream, error) {
	messages := make([]wireMessage, 0, len(s.history)+1)
	messages = append(messages, s.history...)
	messages = append(messages, wireMessage{Role: "user", Content: text})

	resp, err := s.client.post(ctx, "/chat/completions", completionRequest{
		Model:    s.client.config.Model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return nil, err
	}
	return newSSEStream(resp.Body, s.client.logger), nil
}

// complete performs a non-streaming completion request.
func (c *Client) complete(ctx context.Context, req completionRequest) (*completionResponse, error) {
	resp, err := c.post(ctx, "/chat/completions", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}

// post sends a JSON request and returns a 2xx response; other statuses
// become *APIError.
func (c *Client) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.doRequestWithRetry(ctx, path, body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, c.handleError(resp)
	}
	return resp, nil
}

// doRequestWithRetry retries transport failures, 429s and 5xx responses.
// Client errors are returned immediately for the caller to decode.
func (c *Client) doRequestWithRetry(ctx context.Context, path string, body []byte) (*http.Response, error) {
	url := c.config.BaseURL + path
	logger := c.logger.With("url", url)

	var lastErr error
	for attempt := 1; attempt <= c.config.RetryCount; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		switch {
		case err != nil:
			lastErr = err
			logger.Debug("request attempt failed", "attempt", attempt, "error", err)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			if attempt == c.config.RetryCount {
				return resp, nil
			}
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			logger.Debug("server error, retrying", "attempt", attempt, "status_code", resp.StatusCode)
		default:
			return resp, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt < c.config.RetryCount {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.config.RetryDelay * time.Duration(attempt)):
			}
		}
	}

	logger.Warn("request failed after all retries", "retry_count", c.config.RetryCount, "error", lastErr)
	return nil, fmt.Errorf("request failed after %d attempts: %w", c.config.RetryCount, lastErr)
}

// handleError decodes an error response into *APIError.
func (c *Client) handleError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("failed to read error response: %w", err)
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
			RequestID:  resp.Header.Get("X-Request-ID"),
		}
	}

	apiErr := errResp.Error
	apiErr.StatusCode = resp.StatusCode
	apiErr.RequestID = resp.Header.Get("X-Request-ID")
	return &apiErr
}

// toWire maps stored turns to request messages. The API calls the model
// role "assistant".
func toWire(history project.History) []wireMessage {
	out := make([]wireMessage, 0, len(history))
	for _, m := range history {
		role := "user"
		if m.Role == project.RoleModel {
			role = "assistant"
		}
		out = append(out, wireMessage{Role: role, Content: m.Text()})
	}
	return out
}

// decodeDataURL extracts the payload of a base64 data: URL.
func decodeDataURL(url string) ([]byte, error) {
	if !strings.HasPrefix(url, "data:") {
		return nil, fmt.Errorf("unsupported image url %q", truncate(url, 40))
	}
	comma := strings.IndexByte(url, ',')
	if comma < 0 || !strings.Contains(url[:comma], ";base64") {
		return nil, fmt.Errorf("image url is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(url[comma+1:])
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
