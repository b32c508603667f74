package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/sandevgo/rumormill/internal/config"
	"github.com/sandevgo/rumormill/internal/core"
	"github.com/sandevgo/rumormill/internal/sim"
	"github.com/sandevgo/rumormill/pkg/log"
)

var (
	runSteps  int
	runAgent  string
	runSecret string
	runJSON   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a headless batch of exchanges and print the transcript",
	Long:  `Builds a fresh world, optionally plants a secret, runs the requested number of exchanges and prints the transcript plus the final world state to stdout. Logs go to stderr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		_ = initEnv(ctx, config.GetRuntimePath())

		// Keep stdout clean for the transcript.
		var flushLog func()
		ctx, flushLog = log.NewContextWithLoggerTo(ctx, os.Stderr, debug || config.IsDebug())
		defer flushLog()

		appCfg := config.NewAppConfig(ctx)
		orc := NewOrchestrator(ctx, appCfg)
		defer orc.Shutdown(ctx)

		if runSecret != "" {
			agent := runAgent
			if agent == "" {
				agent = orc.Party()[0].Name
			}
			if _, err := orc.InjectSecret(ctx, agent, runSecret); err != nil {
				return err
			}
			if !runJSON {
				fmt.Printf("planted with %s: %s\n\n", agent, runSecret)
			}
		}

		for done := 0; done < runSteps; {
			batch := runSteps - done
			if batch > sim.MaxRunSteps {
				batch = sim.MaxRunSteps
			}
			turns, err := orc.RunSteps(ctx, batch)
			printTurns(turns)
			done += len(turns)
			if err != nil {
				return err
			}
		}

		printSummary(orc)
		return nil
	},
}

func printTurns(turns []core.DialogueTurn) {
	enc := json.NewEncoder(os.Stdout)
	for _, t := range turns {
		if runJSON {
			_ = enc.Encode(t)
			continue
		}
		fmt.Printf("T%d %s → %s (%+.2f, %s): %s\n", t.Turn, t.Speaker, t.Listener, t.RumorDelta, t.Sentiment, t.Content)
	}
}

func printSummary(orc *sim.Orchestrator) {
	if runJSON {
		if stats, ok := orc.PropagationStats(); ok {
			_ = json.NewEncoder(os.Stdout).Encode(stats)
		}
		return
	}

	snap := orc.Snapshot()
	w := snap.World
	fmt.Printf("\nafter turn %d: heat %.2f, alert %.2f, prices ×%.2f\n", snap.Turn, w.RumorHeat, w.GuardAlertLevel, w.ShopPriceModifier)

	if report, ok := orc.PropagationReport(); ok {
		fmt.Println()
		fmt.Println(report)
	}
}

func init() {
	runCmd.Flags().IntVarP(&runSteps, "steps", "n", 10, "number of exchanges to run")
	runCmd.Flags().StringVar(&runAgent, "agent", "", "who learns the secret (default: first party member)")
	runCmd.Flags().StringVar(&runSecret, "secret", "", "secret to plant before running")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print turns as json lines")
	rootCmd.AddCommand(runCmd)
}
