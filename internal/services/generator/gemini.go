package generator

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/salonpress/internal/common"
	"github.com/ternarybob/salonpress/internal/models"
	"google.golang.org/genai"
)

// GeminiGenerator drafts posts with Google Gemini in JSON mode
type GeminiGenerator struct {
	client      *genai.Client
	model       string
	temperature float32
	timeout     time.Duration
	variations  int
	titleLimit  int
	logger      arbor.ILogger
}

// NewGeminiGenerator creates a Gemini-backed generator
func NewGeminiGenerator(config *common.GeminiConfig, variations, titleLimit int, logger arbor.ILogger) (*GeminiGenerator, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("gemini: %w", ErrNotConfigured)
	}
	model := config.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}
	temperature := config.Temperature
	if temperature == 0 {
		temperature = 0.7
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	logger.Info().Str("model", model).Int("variations", variations).Msg("Gemini generator initialized")

	return &GeminiGenerator{
		client:      client,
		model:       model,
		temperature: temperature,
		timeout:     common.ParseDuration(config.Timeout, 2*time.Minute),
		variations:  max(variations, 1),
		titleLimit:  titleLimit,
		logger:      logger,
	}, nil
}

// Name returns the provider name
func (g *GeminiGenerator) Name() string { return "gemini" }

// Generate requests the configured number of drafts for prompt
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string, imageCount int) ([]models.GeneratedVariation, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	config := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(g.temperature),
		MaxOutputTokens:   8192,
		SystemInstruction: genai.NewContentFromText(SystemInstruction(imageCount, g.variations, g.titleLimit), genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    variationSchema,
	}
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	start := time.Now()
	text, err := withRateLimitRetry(ctx, g.logger, g.Name(), func() (string, error) {
		resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
		if err != nil {
			return "", err
		}
		return resp.Text(), nil
	})
	if err != nil {
		return nil, fmt.Errorf("gemini generation failed: %w", err)
	}

	variations, err := ParseVariations(text)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	g.logger.Debug().
		Int("drafts", len(variations)).
		Dur("duration", time.Since(start)).
		Msg("Gemini drafts received")
	return variations, nil
}

var variationSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"title":   {Type: genai.TypeString},
			"content": {Type: genai.TypeString},
		},
		Required: []string{"title", "content"},
	},
}
