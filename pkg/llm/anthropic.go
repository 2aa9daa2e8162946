package llm

import (
	"context"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-rx/pkg/logging"
)

const (
	DefaultAnthropicEndpoint = "https://api.anthropic.com/v1"
	DefaultAnthropicModel    = "claude-sonnet-4-5-20250929"
)

// AnthropicVisionClient talks to the Anthropic messages API.
type AnthropicVisionClient struct {
	client        *anthropic.Client
	endpoint      string
	model         string
	apiKey        string
	maxTokens     int
	systemMessage string
	logger        *zap.Logger
}

// NewAnthropicVisionClient creates a Claude vision client.
func NewAnthropicVisionClient(cfg *Config, logger *zap.Logger) *AnthropicVisionClient {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultAnthropicEndpoint
	}
	model := cfg.Model
	if model == "" {
		model = DefaultAnthropicModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	return &AnthropicVisionClient{
		client:        anthropic.NewClient(cfg.APIKey, anthropic.WithBaseURL(strings.TrimSuffix(endpoint, "/"))),
		endpoint:      endpoint,
		model:         model,
		apiKey:        cfg.APIKey,
		maxTokens:     maxTokens,
		systemMessage: cfg.SystemMessage,
		logger:        logger.Named("vision.anthropic"),
	}
}

// Analyze sends the image as a base64 block followed by the instruction.
func (c *AnthropicVisionClient) Analyze(ctx context.Context, instruction, imageBase64, mediaType string) (any, error) {
	if c.apiKey == "" {
		return nil, NewConfigError("vision API key is not configured").withContext(c.model, c.endpoint)
	}

	c.logger.Debug("Vision request",
		zap.String("model", c.model),
		zap.String("media_type", mediaType),
		zap.Int("image_b64_len", len(imageBase64)),
		zap.Int("prompt_len", len(instruction)))

	start := time.Now()

	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		System:    c.systemMessage,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{
					Type: "image",
					Source: &anthropic.MessageContentSource{
						Type:      "base64",
						MediaType: mediaType,
						Data:      imageBase64,
					},
				},
				{Type: "text", Text: &instruction},
			}},
		},
	})
	if err != nil {
		classified := ClassifyError(err).withContext(c.model, c.endpoint)
		c.logger.Error("Vision request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.String("error_type", string(classified.Type)),
			zap.Int("status_code", classified.StatusCode),
			zap.String("error", logging.SanitizeError(err)))
		return nil, classified
	}

	responseText := ""
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			responseText = *block.Text
			break
		}
	}

	c.logger.Info("Vision request completed",
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
		zap.Int("reply_len", len(responseText)),
		zap.Duration("elapsed", time.Since(start)))

	v, err := decodePayload(responseText)
	if err != nil {
		c.logger.Warn("Vision reply could not be decoded",
			zap.String("reply_excerpt", logging.TruncateString(logging.SanitizeText(responseText), logging.MaxReplyLogLength)))
		if llmErr, ok := err.(*Error); ok {
			return nil, llmErr.withContext(c.model, c.endpoint)
		}
		return nil, err
	}
	return v, nil
}

// GetModel returns the configured model name.
func (c *AnthropicVisionClient) GetModel() string {
	return c.model
}

// GetEndpoint returns the configured endpoint.
func (c *AnthropicVisionClient) GetEndpoint() string {
	return c.endpoint
}
