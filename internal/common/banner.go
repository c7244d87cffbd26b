package common

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner and the resolved endpoints
func PrintBanner(config *Config, logger arbor.ILogger) {
	banner.Print("SalonPress", GetVersion())

	logger.Info().
		Str("portal", config.Portal.BaseURL).
		Str("llm_provider", string(config.LLM.DefaultProvider)).
		Bool("headless", config.Browser.Headless).
		Int("workers", config.Queue.Concurrency).
		Msg("Publication engine configured")
}
