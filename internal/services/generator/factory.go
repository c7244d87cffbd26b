package generator

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/salonpress/internal/common"
	"github.com/ternarybob/salonpress/internal/interfaces"
)

// New builds the generator for the configured provider. ErrNotConfigured is
// returned when its API key is missing; generation is then unavailable.
func New(config *common.Config, logger arbor.ILogger) (interfaces.ContentGenerator, error) {
	variations := config.Generate.Variations
	titleLimit := config.Publish.TitleLimit

	switch config.LLM.DefaultProvider {
	case common.LLMProviderClaude:
		gen, err := NewClaudeGenerator(&config.Claude, variations, titleLimit, logger)
		if err != nil {
			return nil, err
		}
		return gen, nil
	case common.LLMProviderGemini, "":
		gen, err := NewGeminiGenerator(&config.Gemini, variations, titleLimit, logger)
		if err != nil {
			return nil, err
		}
		return gen, nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", config.LLM.DefaultProvider)
	}
}
