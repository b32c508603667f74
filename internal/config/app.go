package config

import (
	"context"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/rumormill/pkg/log"
)

type AppConfig struct {
	RuntimePath string `env:"RUMORMILL_RUNTIME_PATH" envDefault:".rumormill"`
	// Allow selecting the dialogue provider
	Provider string `env:"LLM_PROVIDER" envDefault:"template"`
	Model    string `env:"LLM_MODEL" envDefault:"google/gemma-3-27b-it:free"`

	// Keys for providers configured straight off AppConfig. OpenRouter has
	// its own config struct with required tags, parsed only when selected.
	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OllamaBaseURL string `env:"OLLAMA_BASE_URL" envDefault:"http://localhost:11434"`
	OllamaAPIKey  string `env:"OLLAMA_API_KEY"`
	CustomBaseURL string `env:"CUSTOM_OPENAI_BASE_URL"`
	CustomAPIKey  string `env:"CUSTOM_OPENAI_API_KEY"`

	// Transport Flags
	EnableTelegram bool `env:"ENABLE_TELEGRAM" envDefault:"false"`
	EnableTUI      bool `env:"ENABLE_TUI" envDefault:"false"`
	EnableCLI      bool `env:"ENABLE_CLI" envDefault:"false"`
	EnableMCP      bool `env:"ENABLE_MCP" envDefault:"false"`
	EnableArchive  bool `env:"ENABLE_ARCHIVE" envDefault:"true"`

	// Simulation roster and pacing
	PartySize   int      `env:"PARTY_SIZE" envDefault:"4"`
	HistorySize int      `env:"HISTORY_SIZE" envDefault:"50"`
	Autoplay    bool     `env:"AUTOPLAY" envDefault:"false"`
	RumorSeeds  []string `env:"RUMOR_SEEDS" envSeparator:"|"`
	PersonaFile string   `env:"PERSONA_FILE"`
}

func NewAppConfig(ctx context.Context) *AppConfig {
	c := &AppConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse App config")
	}
	// Anchor a relative runtime path under the home directory, same as
	// GetRuntimePath, so db and .env never end up in the working dir.
	if !filepath.IsAbs(c.RuntimePath) {
		c.RuntimePath = GetRuntimePath()
	}
	return c
}

func (c AppConfig) GetRuntimePath() string {
	return c.RuntimePath
}

func (c AppConfig) GetDatabasePath() string {
	return filepath.Join(c.RuntimePath, "rumormill.db")
}

// GetPersonaPath returns the roster override location, empty when the
// embedded roster should be used.
func (c AppConfig) GetPersonaPath() string {
	if c.PersonaFile == "" {
		return ""
	}
	if filepath.IsAbs(c.PersonaFile) {
		return c.PersonaFile
	}
	return filepath.Join(c.RuntimePath, c.PersonaFile)
}
