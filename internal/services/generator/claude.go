package generator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/salonpress/internal/common"
	"github.com/ternarybob/salonpress/internal/models"
)

// ClaudeGenerator drafts posts with Anthropic Claude
type ClaudeGenerator struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float32
	timeout     time.Duration
	variations  int
	titleLimit  int
	logger      arbor.ILogger
}

// NewClaudeGenerator creates a Claude-backed generator
func NewClaudeGenerator(config *common.ClaudeConfig, variations, titleLimit int, logger arbor.ILogger) (*ClaudeGenerator, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("claude: %w", ErrNotConfigured)
	}
	model := config.Model
	if model == "" {
		model = "claude-sonnet-4-5"
	}
	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	logger.Info().Str("model", model).Int("variations", variations).Msg("Claude generator initialized")

	return &ClaudeGenerator{
		client:      anthropic.NewClient(option.WithAPIKey(config.APIKey)),
		model:       model,
		maxTokens:   int64(maxTokens),
		temperature: config.Temperature,
		timeout:     common.ParseDuration(config.Timeout, 2*time.Minute),
		variations:  max(variations, 1),
		titleLimit:  titleLimit,
		logger:      logger,
	}, nil
}

// Name returns the provider name
func (c *ClaudeGenerator) Name() string { return "claude" }

// Generate requests the configured number of drafts for prompt
func (c *ClaudeGenerator) Generate(ctx context.Context, prompt string, imageCount int) ([]models.GeneratedVariation, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: SystemInstruction(imageCount, c.variations, c.titleLimit)},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if c.temperature > 0 {
		params.Temperature = anthropic.Float(float64(c.temperature))
	}

	start := time.Now()
	text, err := withRateLimitRetry(ctx, c.logger, c.Name(), func() (string, error) {
		resp, err := c.client.Messages.New(ctx, params)
		if err != nil {
			return "", err
		}
		var sb strings.Builder
		for _, block := range resp.Content {
			if block.Type == "text" {
				sb.WriteString(block.Text)
			}
		}
		return sb.String(), nil
	})
	if err != nil {
		return nil, fmt.Errorf("claude generation failed: %w", err)
	}

	variations, err := ParseVariations(text)
	if err != nil {
		return nil, fmt.Errorf("claude: %w", err)
	}
	c.logger.Debug().
		Int("drafts", len(variations)).
		Dur("duration", time.Since(start)).
		Msg("Claude drafts received")
	return variations, nil
}
