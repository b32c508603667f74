package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/sandevgo/rumormill/internal/config"
	"github.com/sandevgo/rumormill/internal/persona"
	"github.com/sandevgo/rumormill/internal/providers/dialogue"
	"github.com/sandevgo/rumormill/internal/service/archive"
	"github.com/sandevgo/rumormill/internal/sim"
	"github.com/sandevgo/rumormill/internal/storage/sqlite"
	"github.com/sandevgo/rumormill/internal/transport/cli"
	"github.com/sandevgo/rumormill/internal/transport/mcptool"
	"github.com/sandevgo/rumormill/internal/transport/telegram"
	"github.com/sandevgo/rumormill/internal/transport/tui"
	"github.com/sandevgo/rumormill/pkg/log"
	"github.com/sandevgo/rumormill/pkg/srv"
)

func NewServices(ctx context.Context) []srv.Service {
	logger := log.FromCtx(ctx)
	services := make([]srv.Service, 0)

	// init env
	err := initEnv(ctx, config.GetRuntimePath())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init env")
	}

	// 1. Configuration
	appCfg := config.NewAppConfig(ctx)

	// 2. Orchestrator (graph, provider, roster, tracker)
	orc := NewOrchestrator(ctx, appCfg)
	services = append(services, orc)

	// 3. Archive
	if appCfg.EnableArchive {
		db, err := sqlite.NewDB(ctx, appCfg.GetDatabasePath())
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize storage")
		}
		services = append(services, srv.NewCleanup(db.Close))
		services = append(services, archive.New(orc, sqlite.NewTurnsRepo(db), sqlite.NewExperimentsRepo(db)))
	}

	// 4. Transports
	transports, err := initTransports(ctx, appCfg, orc)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize transports")
	}
	services = append(services, transports...)

	return services
}

// NewOrchestrator wires the simulation core. The headless run command uses
// it without the service stack around it.
func NewOrchestrator(ctx context.Context, appCfg *config.AppConfig) *sim.Orchestrator {
	logger := log.FromCtx(ctx)

	simCfg := config.NewSimConfig(ctx)
	propCfg := config.NewPropagationConfig(ctx)

	provider, err := dialogue.NewProvider(ctx, appCfg, simCfg.Seed)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize dialogue provider")
	}

	registry, err := persona.Load(appCfg.GetPersonaPath(), appCfg.PartySize)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load persona roster")
	}

	return sim.New(ctx, appCfg, simCfg, propCfg, provider, registry)
}

func initTransports(ctx context.Context, cfg *config.AppConfig, orc *sim.Orchestrator) ([]srv.Service, error) {
	var services []srv.Service

	// Telegram Bot
	if cfg.EnableTelegram {
		tgCfg := config.NewTelegramConfig(ctx)
		bot, err := telegram.NewBot(ctx, tgCfg, orc)
		if err != nil {
			return nil, err
		}
		services = append(services, bot)
	}

	// Terminal dashboard
	if cfg.EnableTUI {
		services = append(services, tui.NewDashboard(orc))
	}

	// Interactive console
	if cfg.EnableCLI {
		console, err := cli.NewConsole(orc, cfg)
		if err != nil {
			return nil, err
		}
		services = append(services, console)
	}

	// MCP stdio server
	if cfg.EnableMCP {
		services = append(services, mcptool.NewServer(orc))
	}

	return services, nil
}

func initEnv(ctx context.Context, runtimePath string) error {
	logger := log.FromCtx(ctx)
	envFile := filepath.Join(runtimePath, ".env")

	if _, err := os.Stat(envFile); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := godotenv.Load(envFile); err != nil {
		logger.Warn().Err(err).Str("path", envFile).Msg("failed to load .env file")
		return err
	}

	logger.Debug().Str("path", envFile).Msg("loaded .env file")
	return nil
}
