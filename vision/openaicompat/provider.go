// =============================================================================
// OpenAI-compatible multimodal chat client
// =============================================================================
// Implements vision.Provider against any /v1/chat/completions endpoint that
// accepts image_url content parts (OpenAI, Qwen-VL, GLM-4V, Doubao, ...).
// =============================================================================

package openaicompat

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/panoroam/internal/httpx"
	"github.com/BaSui01/panoroam/types"
	"github.com/BaSui01/panoroam/vision"
)

// Config holds the configuration for an OpenAI-compatible vision endpoint.
type Config struct {
	// ProviderName labels errors and logs (e.g., "openai", "qwen").
	ProviderName string
	APIKey       string
	BaseURL      string
	Model        string
	// Timeout is the HTTP client timeout. Defaults to 60s if zero.
	Timeout time.Duration
	// EndpointPath defaults to "/v1/chat/completions".
	EndpointPath string
	Temperature  float32
}

// Provider is a vision.Provider over HTTP.
type Provider struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

var _ vision.Provider = (*Provider)(nil)

// New creates a provider.
func New(cfg Config, logger *zap.Logger) *Provider {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/v1/chat/completions"
	}
	if cfg.ProviderName == "" {
		cfg.ProviderName = "openai-compat"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		cfg:    cfg,
		client: httpx.Client(cfg.Timeout),
		logger: logger.With(zap.String("component", "vision_provider"), zap.String("provider", cfg.ProviderName)),
	}
}

// WithHTTPClient replaces the HTTP client, mainly for tests.
func (p *Provider) WithHTTPClient(c *http.Client) *Provider {
	p.client = c
	return p
}

// Name returns the provider name.
func (p *Provider) Name() string { return p.cfg.ProviderName }

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type message struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float32   `json:"temperature,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		FinishReason string `json:"finish_reason"`
		Message      struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage,omitempty"`
}

func buildMessages(req vision.CompletionRequest) []message {
	parts := []contentPart{{Type: "text", Text: req.Prompt}}
	for _, img := range req.Images {
		mime := img.MIMEType
		if mime == "" {
			mime = "image/jpeg"
		}
		parts = append(parts, contentPart{
			Type:     "image_url",
			ImageURL: &imageURL{URL: "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)},
		})
	}
	return []message{{Role: "user", Content: parts}}
}

// Complete implements vision.Provider.
func (p *Provider) Complete(ctx context.Context, req vision.CompletionRequest) (string, error) {
	body := chatRequest{
		Model:       p.cfg.Model,
		Messages:    buildMessages(req),
		MaxTokens:   req.MaxTokens,
		Temperature: p.cfg.Temperature,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + p.cfg.EndpointPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpx.TagRequest(httpReq)

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", httpx.TransportError(err, p.cfg.ProviderName)
	}
	defer httpx.SafeCloseBody(resp.Body)

	if resp.StatusCode >= 400 {
		return "", httpx.MapHTTPError(resp.StatusCode, httpx.ReadErrorMessage(resp.Body), p.cfg.ProviderName)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", types.NewError(types.ErrUpstreamError, "undecodable completion response").
			WithCause(err).WithRetryable(true).WithProvider(p.cfg.ProviderName)
	}
	if len(out.Choices) == 0 {
		return "", types.NewError(types.ErrMalformedVisionReply, "completion has no choices").
			WithProvider(p.cfg.ProviderName)
	}

	choice := out.Choices[0]
	fields := append(httpx.StepFields(ctx),
		zap.String("model", out.Model),
		zap.String("finish_reason", choice.FinishReason),
		zap.Duration("latency", time.Since(start)))
	if out.Usage != nil {
		fields = append(fields,
			zap.Int("prompt_tokens", out.Usage.PromptTokens),
			zap.Int("completion_tokens", out.Usage.CompletionTokens))
	}
	p.logger.Debug("completion", fields...)

	if choice.FinishReason == "length" {
		return choice.Message.Content, types.NewError(types.ErrTruncatedVisionReply, "completion hit max_tokens").
			WithProvider(p.cfg.ProviderName)
	}
	if strings.TrimSpace(choice.Message.Content) == "" {
		return "", types.NewError(types.ErrMalformedVisionReply, "empty completion").
			WithProvider(p.cfg.ProviderName)
	}
	return choice.Message.Content, nil
}
