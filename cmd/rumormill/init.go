package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sandevgo/rumormill/internal/config"
	"github.com/sandevgo/rumormill/internal/persona"
	"github.com/sandevgo/rumormill/pkg/env"
	"github.com/sandevgo/rumormill/pkg/log"
)

const envHeader = `# RumorMill runtime configuration.
# Values here override the built-in defaults. Credentials stay commented
# out until filled in.
#
# LLM_PROVIDER=openrouter
# OPENROUTER_API_KEY=
# OPENAI_API_KEY=
# ENABLE_TELEGRAM=true
# TELEGRAM_TOKEN=
# TELEGRAM_OWNER_ID=
# ENABLE_TUI=true
# ENABLE_MCP=true
# PERSONA_FILE=personas.yaml

`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter .env and persona roster to the runtime directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var flushLog func()
		ctx, flushLog = setupLogger(ctx)
		defer flushLog()
		logger := log.FromCtx(ctx)

		runtimePath := config.GetRuntimePath()
		if err := os.MkdirAll(runtimePath, 0755); err != nil {
			return fmt.Errorf("failed to create runtime directory: %w", err)
		}

		envPath := filepath.Join(runtimePath, ".env")
		if _, err := os.Stat(envPath); err == nil {
			return fmt.Errorf(".env file already exists at %s", envPath)
		}

		// Capture the effective defaults so the file documents them.
		content := envHeader
		for _, c := range []any{
			config.NewAppConfig(ctx),
			config.NewSimConfig(ctx),
			config.NewPropagationConfig(ctx),
		} {
			part, err := env.MarshalEnv(c)
			if err != nil {
				return err
			}
			content += part
		}

		if err := os.WriteFile(envPath, []byte(content), 0600); err != nil {
			return err
		}
		logger.Info().Str("path", envPath).Msg("wrote starter .env")

		rosterPath := filepath.Join(runtimePath, "personas.yaml")
		if _, err := os.Stat(rosterPath); os.IsNotExist(err) {
			if err := os.WriteFile(rosterPath, persona.DefaultRoster(), 0644); err != nil {
				return err
			}
			logger.Info().Str("path", rosterPath).Msg("wrote default persona roster")
		}

		logger.Info().Msgf("initialized runtime directory at: %s", runtimePath)
		logger.Info().Msg("Ready! You can now run 'rumormill start'.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
