package dialogue

import (
	"context"
	"fmt"

	"github.com/sandevgo/rumormill/internal/config"
	"github.com/sandevgo/rumormill/internal/core"
	"github.com/sandevgo/rumormill/pkg/log"
)

// NewProvider creates the configured DialogueProvider. The openrouter
// branch reads its own config lazily so the API key is only required when
// that provider is selected.
func NewProvider(ctx context.Context, cfg *config.AppConfig, seed int64) (core.DialogueProvider, error) {
	log.FromCtx(ctx).Info().
		Str("provider", cfg.Provider).
		Str("model", cfg.Model).
		Msg("starting dialogue provider")

	switch cfg.Provider {
	case "template":
		return NewTemplate(seed), nil
	case "openai":
		return NewOpenAI(cfg.OpenAIAPIKey, cfg.Model), nil
	case "openrouter":
		orCfg := config.NewOpenRouterConfig(ctx)
		model := cfg.Model
		if model == "" {
			model = orCfg.Model
		}
		return NewOpenRouter(orCfg.APIKey, model), nil
	case "ollama":
		return NewOllama(cfg.OllamaBaseURL, cfg.OllamaAPIKey, cfg.Model), nil
	case "custom":
		return NewCustomOpenAI(cfg.CustomBaseURL, cfg.CustomAPIKey, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown dialogue provider: %s", cfg.Provider)
	}
}
