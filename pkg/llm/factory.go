package llm

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Supported providers.
const (
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

// NewVisionClient creates the client for cfg.Provider, wrapped in a circuit
// breaker when cfg.BreakerThreshold is positive.
func NewVisionClient(cfg *Config, logger *zap.Logger) (VisionClient, error) {
	var client VisionClient

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderOpenAI, ProviderGemini:
		c, err := NewOpenAIVisionClient(cfg, logger)
		if err != nil {
			return nil, err
		}
		client = c
	case ProviderAnthropic:
		client = NewAnthropicVisionClient(cfg, logger)
	default:
		return nil, NewConfigError(fmt.Sprintf("unknown vision provider %q", cfg.Provider))
	}

	if cfg.BreakerThreshold > 0 {
		breaker := NewCircuitBreaker(CircuitBreakerConfig{
			Threshold:  cfg.BreakerThreshold,
			ResetAfter: cfg.BreakerResetAfter,
		})
		client = NewGuardedVisionClient(client, breaker, logger)
	}

	if cfg.APIKey == "" {
		logger.Warn("Vision API key is not set; prescription uploads will fail until it is configured",
			zap.String("provider", cfg.Provider))
	}

	return client, nil
}
