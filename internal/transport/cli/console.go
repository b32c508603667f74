package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/sandevgo/rumormill/internal/config"
	"github.com/sandevgo/rumormill/internal/core"
	"github.com/sandevgo/rumormill/internal/graph"
	"github.com/sandevgo/rumormill/internal/sim"
	"github.com/sandevgo/rumormill/pkg/log"
)

const consoleHelp = `commands:
  state                      world summary
  step                       run one exchange
  run [n]                    run n exchanges (default 5)
  loop / stop                start or stop the autoplay loop
  reset [incident...]        rebuild the world, optionally around an incident
  graph                      knowledge graph totals
  who <name>                 agent profile and memories
  inject <name> <secret...>  plant a secret and start tracking
  spread                     propagation stats
  timeline                   traced sightings of the secret
  report                     full experiment report
  conclude                   freeze the running experiment
  recent [n]                 last n turns (default 10)
  exit                       leave
`

// Console is a line-oriented shell over the simulation, for poking at the
// town without a bot token or a full-screen dashboard.
type Console struct {
	cfg *config.AppConfig
	orc *sim.Orchestrator
	rl  *readline.Instance
}

func NewConsole(orc *sim.Orchestrator, cfg *config.AppConfig) (*Console, error) {
	// Ensure runtime directory exists
	if err := os.MkdirAll(cfg.RuntimePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create runtime directory: %w", err)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "town> ",
		HistoryFile:     filepath.Join(cfg.RuntimePath, "console_history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, err
	}

	return &Console{cfg: cfg, orc: orc, rl: rl}, nil
}

func (c *Console) Start(ctx context.Context) error {
	logger := log.FromCtx(ctx)
	logger.Info().Msg("console started, type 'help' for commands")

	for {
		// Check context before blocking read
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				if len(line) == 0 {
					return nil
				}
				continue
			} else if err == io.EOF {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		c.dispatch(ctx, line)
	}
}

func (c *Console) Shutdown(ctx context.Context) error {
	if c.rl != nil {
		return c.rl.Close()
	}
	return nil
}

func (c *Console) printf(format string, args ...any) {
	fmt.Fprintf(c.rl.Stdout(), format, args...)
}

func (c *Console) printErr(err error) {
	if errors.Is(err, core.ErrBusy) {
		c.printf("simulation busy, stop the loop first\n")
		return
	}
	c.printf("error: %v\n", err)
}

func (c *Console) dispatch(ctx context.Context, line string) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "help":
		c.printf("%s", consoleHelp)

	case "state":
		c.printState()

	case "step":
		turn, err := c.orc.Step(ctx)
		if err != nil {
			c.printErr(err)
			return
		}
		c.printTurn(turn)

	case "run":
		n := 5
		if len(args) > 0 {
			v, err := strconv.Atoi(args[0])
			if err != nil || v <= 0 {
				c.printf("usage: run [n]\n")
				return
			}
			n = v
		}
		turns, err := c.orc.RunSteps(ctx, n)
		for _, t := range turns {
			c.printTurn(t)
		}
		if err != nil {
			c.printErr(err)
		}

	case "loop":
		if err := c.orc.StartLoop(ctx); err != nil {
			c.printErr(err)
			return
		}
		c.printf("loop running, 'stop' to pause, 'recent' to catch up\n")

	case "stop":
		if err := c.orc.StopLoop(); err != nil {
			c.printErr(err)
			return
		}
		c.printf("loop stopped\n")

	case "reset":
		c.orc.Reset(ctx, strings.Join(args, " "))
		c.printf("world rebuilt\n")

	case "graph":
		c.printGraph()

	case "who":
		if len(args) != 1 {
			c.printf("usage: who <name>\n")
			return
		}
		c.printAgent(args[0])

	case "inject":
		if len(args) < 2 {
			c.printf("usage: inject <name> <secret...>\n")
			return
		}
		id, err := c.orc.InjectSecret(ctx, args[0], strings.Join(args[1:], " "))
		if err != nil {
			c.printErr(err)
			return
		}
		c.printf("experiment %s opened, secret planted with %s\n", shortID(id), args[0])

	case "spread":
		c.printSpread()

	case "timeline":
		c.printTimeline()

	case "report":
		report, ok := c.orc.PropagationReport()
		if !ok {
			c.printf("no experiment yet, inject a secret first\n")
			return
		}
		c.printf("%s\n", report)

	case "conclude":
		if c.orc.ConcludeExperiment() {
			c.printf("experiment concluded\n")
		} else {
			c.printf("no active experiment\n")
		}

	case "recent":
		n := 10
		if len(args) > 0 {
			if v, err := strconv.Atoi(args[0]); err == nil && v > 0 {
				n = v
			}
		}
		turns := c.orc.RecentHistory(n)
		if len(turns) == 0 {
			c.printf("nothing said yet\n")
			return
		}
		for _, t := range turns {
			c.printTurn(t)
		}

	default:
		c.printf("unknown command %q, try 'help'\n", cmd)
	}
}

func (c *Console) printTurn(t core.DialogueTurn) {
	c.printf("T%d %s → %s (%+.2f, %s): %s\n",
		t.Turn, t.Speaker, t.Listener, t.RumorDelta, t.Sentiment, t.Content)
}

func (c *Console) printState() {
	snap := c.orc.Snapshot()
	w := snap.World
	c.printf("turn %d, %s\n", snap.Turn, snap.State)
	c.printf("heat %.2f, alert %.2f, prices ×%.2f\n", w.RumorHeat, w.GuardAlertLevel, w.ShopPriceModifier)
	c.printf("topic: %s\n", snap.Topic)
	c.printf("party: %s\n", strings.Join(snap.Party, ", "))
	if snap.TrackerActive {
		c.printf("a secret is being tracked\n")
	}
}

func (c *Console) printGraph() {
	stats := c.orc.GraphStats()
	c.printf("%d entities, %d edges\n", stats.EntityCount, stats.EdgeCount)

	types := make([]string, 0, len(stats.EntitiesByType))
	for typ := range stats.EntitiesByType {
		types = append(types, string(typ))
	}
	sort.Strings(types)
	for _, typ := range types {
		c.printf("  %s: %d\n", typ, stats.EntitiesByType[core.EntityType(typ)])
	}

	rels := make([]string, 0, len(stats.EdgesByType))
	for rel := range stats.EdgesByType {
		rels = append(rels, string(rel))
	}
	sort.Strings(rels)
	for _, rel := range rels {
		c.printf("  %s: %d\n", rel, stats.EdgesByType[core.RelationType(rel)])
	}
}

func (c *Console) printAgent(name string) {
	var prof core.SpeakerProfile
	found := false
	for _, p := range c.orc.Party() {
		if strings.EqualFold(p.Name, name) {
			prof = p
			found = true
			break
		}
	}
	if !found {
		c.printf("nobody called %q in the party\n", name)
		return
	}

	c.printf("%s, %s (%s), feeling %s\n", prof.Name, prof.Title, prof.Profession, prof.Mood)
	if len(prof.Traits) > 0 {
		c.printf("traits: %s\n", strings.Join(prof.Traits, ", "))
	}

	neighbors, err := c.orc.Neighborhood(graph.MakeID(core.EntityNPC, prof.Name), core.DirOut, core.RelRemembers)
	if err != nil || len(neighbors) == 0 {
		return
	}
	c.printf("remembers:\n")
	for _, n := range neighbors {
		c.printf("  - %s\n", graph.MemoryContent(n.Entity))
	}
}

func (c *Console) printSpread() {
	stats, ok := c.orc.PropagationStats()
	if !ok {
		c.printf("no experiment yet, inject a secret first\n")
		return
	}

	state := "concluded"
	if stats.Active {
		state = "running"
	}
	c.printf("experiment %s (%s): %q\n", shortID(stats.ExperimentID), state, stats.Secret)
	c.printf("%d turns, %d traces, fidelity %.2f\n", stats.TurnsElapsed, stats.TraceCount, stats.MeanSimilarity)
	if len(stats.AgentsReached) > 0 {
		c.printf("reached: %s\n", strings.Join(stats.AgentsReached, ", "))
	} else {
		c.printf("nobody new has heard it yet\n")
	}
}

func (c *Console) printTimeline() {
	traces := c.orc.Timeline()
	if len(traces) == 0 {
		c.printf("no traces yet\n")
		return
	}
	for _, tr := range traces {
		line := fmt.Sprintf("turn %d: %s → %s, %.2f %s", tr.Turn, tr.Speaker, tr.Listener, tr.Similarity, tr.Class)
		if tr.NewlyReached {
			line += ", new ear"
		}
		c.printf("%s\n", line)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
