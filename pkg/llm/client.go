package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-rx/pkg/logging"
)

// Default provider settings. Gemini exposes an OpenAI-compatible endpoint.
const (
	DefaultOpenAIEndpoint = "https://generativelanguage.googleapis.com/v1beta/openai"
	DefaultOpenAIModel    = "gemini-2.5-pro"
	DefaultMaxTokens      = 8192
)

// Config holds configuration for creating a vision client.
type Config struct {
	Provider  string // "openai" (any OpenAI-compatible endpoint, including Gemini) or "anthropic"
	Endpoint  string // Base URL, e.g. "https://api.openai.com/v1"
	Model     string // Model name, e.g. "gemini-2.5-pro"
	APIKey    string
	MaxTokens int

	// SystemMessage frames the model's role; empty sends none.
	SystemMessage string

	// Circuit breaker; a zero threshold disables it.
	BreakerThreshold  int
	BreakerResetAfter time.Duration
}

// OpenAIVisionClient talks to OpenAI-compatible chat completion endpoints.
type OpenAIVisionClient struct {
	client        *openai.Client
	endpoint      string
	model         string
	apiKey        string
	maxTokens     int
	systemMessage string
	logger        *zap.Logger
}

// NewOpenAIVisionClient creates a client for an OpenAI-compatible endpoint.
// A missing API key is reported on the first Analyze call, not here.
func NewOpenAIVisionClient(cfg *Config, logger *zap.Logger) (*OpenAIVisionClient, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultOpenAIEndpoint
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return nil, NewConfigError(fmt.Sprintf("endpoint must be an http(s) URL, got %q", endpoint))
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(endpoint, "/")

	return &OpenAIVisionClient{
		client:        openai.NewClientWithConfig(clientConfig),
		endpoint:      endpoint,
		model:         model,
		apiKey:        cfg.APIKey,
		maxTokens:     maxTokens,
		systemMessage: cfg.SystemMessage,
		logger:        logger.Named("vision.openai"),
	}, nil
}

// Analyze sends the instruction and image as one multi-part user message,
// after the system message when one is configured, and asks for a JSON
// object reply.
func (c *OpenAIVisionClient) Analyze(ctx context.Context, instruction, imageBase64, mediaType string) (any, error) {
	if c.apiKey == "" {
		return nil, NewConfigError("vision API key is not configured").withContext(c.model, c.endpoint)
	}

	var messages []openai.ChatCompletionMessage
	if c.systemMessage != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: c.systemMessage,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: instruction},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    "data:" + mediaType + ";base64," + imageBase64,
					Detail: openai.ImageURLDetailHigh,
				},
			},
		},
	})

	req := openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages:  messages,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	c.logger.Debug("Vision request",
		zap.String("model", c.model),
		zap.String("media_type", mediaType),
		zap.Int("image_b64_len", len(imageBase64)),
		zap.Int("prompt_len", len(instruction)))

	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		classified := ClassifyError(err).withContext(c.model, c.endpoint)
		c.logger.Error("Vision request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.String("error_type", string(classified.Type)),
			zap.Int("status_code", classified.StatusCode),
			zap.String("error", logging.SanitizeError(err)))
		return nil, classified
	}

	if len(resp.Choices) == 0 {
		return nil, NewError(ErrorTypeEmpty, "no choices in response", true, nil).withContext(c.model, c.endpoint)
	}

	content := resp.Choices[0].Message.Content
	c.logger.Info("Vision request completed",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Int("reply_len", len(content)),
		zap.Duration("elapsed", time.Since(start)))

	v, err := decodePayload(content)
	if err != nil {
		c.logger.Warn("Vision reply could not be decoded",
			zap.String("reply_excerpt", logging.TruncateString(logging.SanitizeText(content), logging.MaxReplyLogLength)))
		if llmErr, ok := err.(*Error); ok {
			return nil, llmErr.withContext(c.model, c.endpoint)
		}
		return nil, err
	}
	return v, nil
}

// GetModel returns the configured model name.
func (c *OpenAIVisionClient) GetModel() string {
	return c.model
}

// GetEndpoint returns the configured endpoint.
func (c *OpenAIVisionClient) GetEndpoint() string {
	return c.endpoint
}
