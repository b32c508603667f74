package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v3"

	"github.com/sandevgo/rumormill/internal/config"
	"github.com/sandevgo/rumormill/internal/core"
	"github.com/sandevgo/rumormill/internal/sim"
	"github.com/sandevgo/rumormill/pkg/log"
)

const baseContextKey = "base_context"

const helpText = `**RumorMill commands**
/state - world snapshot
/step - run one exchange
/run [n] - run n exchanges (default 5)
/loop - start autoplay
/stop - stop autoplay
/reset [incident] - rebuild the world, optionally around a fresh incident
/graph - knowledge graph stats
/who [name] - the party, or one agent in detail
/inject <name> <secret> - plant a secret and track it
/spread - propagation stats
/timeline - trace timeline
/report - full experiment report
/conclude - freeze the experiment
/watch - toggle live turn feed
/recent [n] - last n exchanges`

type Bot struct {
	bot     *tele.Bot
	cfg     *config.TelegramConfig
	orc     *sim.Orchestrator
	sender  *sender
	ownerID int64

	mu       sync.Mutex
	watching bool
}

func NewBot(
	ctx context.Context,
	cfg *config.TelegramConfig,
	orc *sim.Orchestrator,
) (*Bot, error) {
	pref := tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	b, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	bot := &Bot{
		bot:     b,
		cfg:     cfg,
		orc:     orc,
		sender:  newSender(b),
		ownerID: cfg.OwnerID,
	}

	// Use context from Signal with logger
	b.Use(func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			c.Set(baseContextKey, ctx)
			return next(c)
		}
	})

	// Middleware: Only allow the owner
	b.Use(func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if c.Sender().ID != bot.ownerID {
				return nil // Ignore unauthorized users
			}
			return next(c)
		}
	})

	b.Handle("/help", bot.handleHelp)
	b.Handle("/start", bot.handleHelp)
	b.Handle("/state", bot.handleState)
	b.Handle("/step", bot.handleStep)
	b.Handle("/run", bot.handleRun)
	b.Handle("/loop", bot.handleLoop)
	b.Handle("/stop", bot.handleStop)
	b.Handle("/reset", bot.handleReset)
	b.Handle("/graph", bot.handleGraph)
	b.Handle("/who", bot.handleWho)
	b.Handle("/inject", bot.handleInject)
	b.Handle("/spread", bot.handleSpread)
	b.Handle("/timeline", bot.handleTimeline)
	b.Handle("/report", bot.handleReport)
	b.Handle("/conclude", bot.handleConclude)
	b.Handle("/watch", bot.handleWatch)
	b.Handle("/recent", bot.handleRecent)

	return bot, nil
}

func (b *Bot) Start(ctx context.Context) error {
	log.FromCtx(ctx).Info().Msg("starting telegram bot")
	go b.watchEvents(ctx)
	b.bot.Start()
	return nil
}

func (b *Bot) Shutdown(ctx context.Context) error {
	b.bot.Stop()
	return nil
}

// watchEvents feeds turns to the owner chat while /watch is on.
func (b *Bot) watchEvents(ctx context.Context) {
	events, cancel := b.orc.Subscribe()
	defer cancel()

	owner := tele.ChatID(b.ownerID)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			b.mu.Lock()
			watching := b.watching
			b.mu.Unlock()
			if !watching {
				continue
			}

			switch ev.Kind {
			case core.EventTurn:
				if ev.Turn != nil {
					md := formatTurn(*ev.Turn)
					if ev.Trace != nil {
						md += "\n" + formatTraceMark(*ev.Trace)
					}
					_ = b.sender.sendMarkdown(ctx, owner, md, true)
				}
			case core.EventExperimentOpened:
				if ev.Experiment != nil {
					_ = b.sender.sendMarkdown(ctx, owner,
						fmt.Sprintf("tracking secret via **%s**: %q", ev.Experiment.SeedAgent, ev.Experiment.Secret), true)
				}
			case core.EventReset:
				_ = b.sender.sendMarkdown(ctx, owner, "world rebuilt from scratch", true)
			}
		}
	}
}

func (b *Bot) ctx(c tele.Context) context.Context {
	return c.Get(baseContextKey).(context.Context)
}

func (b *Bot) reply(c tele.Context, md string) error {
	return b.sender.sendMarkdown(b.ctx(c), c.Chat(), md, false)
}

func (b *Bot) handleHelp(c tele.Context) error {
	return b.reply(c, helpText)
}

func (b *Bot) handleState(c tele.Context) error {
	return b.reply(c, formatState(b.orc.Snapshot()))
}

func (b *Bot) handleStep(c tele.Context) error {
	_ = c.Notify(tele.Typing)

	turn, err := b.orc.Step(b.ctx(c))
	if err != nil {
		if errors.Is(err, core.ErrBusy) {
			return b.reply(c, "a step is already running, try again in a moment")
		}
		log.FromCtx(b.ctx(c)).Error().Err(err).Msg("step failed")
		return b.reply(c, fmt.Sprintf("step failed: %v", err))
	}
	return b.reply(c, formatTurn(turn))
}

func (b *Bot) handleRun(c tele.Context) error {
	n := 5
	if payload := strings.TrimSpace(c.Message().Payload); payload != "" {
		parsed, err := strconv.Atoi(payload)
		if err != nil || parsed < 1 {
			return b.reply(c, "usage: /run [count]")
		}
		n = parsed
	}

	_ = c.Notify(tele.Typing)

	turns, err := b.orc.RunSteps(b.ctx(c), n)
	if err != nil && len(turns) == 0 {
		if errors.Is(err, core.ErrBusy) {
			return b.reply(c, "the loop is running, /stop it first")
		}
		return b.reply(c, fmt.Sprintf("run failed: %v", err))
	}

	md := formatTurnDigest(turns)
	if err != nil {
		md += fmt.Sprintf("\n\nstopped early: %v", err)
	}
	return b.reply(c, md)
}

func (b *Bot) handleLoop(c tele.Context) error {
	if err := b.orc.StartLoop(b.ctx(c)); err != nil {
		if errors.Is(err, core.ErrLoopRunning) {
			return b.reply(c, "the loop is already running")
		}
		return b.reply(c, fmt.Sprintf("loop failed to start: %v", err))
	}
	return b.reply(c, "loop started, /watch to follow along")
}

func (b *Bot) handleStop(c tele.Context) error {
	if err := b.orc.StopLoop(); err != nil {
		if errors.Is(err, core.ErrLoopNotRunning) {
			return b.reply(c, "no loop running")
		}
		return b.reply(c, fmt.Sprintf("stop failed: %v", err))
	}
	return b.reply(c, "loop stopped")
}

func (b *Bot) handleReset(c tele.Context) error {
	incident := strings.TrimSpace(c.Message().Payload)
	b.orc.Reset(b.ctx(c), incident)
	if incident != "" {
		return b.reply(c, fmt.Sprintf("world rebuilt around a fresh incident: %q", incident))
	}
	return b.reply(c, "world rebuilt: fresh graph, seeded rumors, moods restored")
}

func (b *Bot) handleGraph(c tele.Context) error {
	return b.reply(c, formatGraphStats(b.orc.GraphStats()))
}

func (b *Bot) handleWho(c tele.Context) error {
	name := strings.TrimSpace(c.Message().Payload)
	if name == "" {
		return b.reply(c, formatParty(b.orc.Party()))
	}

	for _, p := range b.orc.Party() {
		if strings.EqualFold(p.Name, name) {
			return b.reply(c, formatAgent(b.orc, p))
		}
	}
	return b.reply(c, fmt.Sprintf("nobody called %q around here", name))
}

func (b *Bot) handleInject(c tele.Context) error {
	parts := strings.SplitN(strings.TrimSpace(c.Message().Payload), " ", 2)
	if len(parts) < 2 {
		return b.reply(c, "usage: /inject <name> <secret>")
	}

	id, err := b.orc.InjectSecret(b.ctx(c), parts[0], parts[1])
	if err != nil {
		return b.reply(c, fmt.Sprintf("inject failed: %v", err))
	}
	return b.reply(c, fmt.Sprintf("secret planted with **%s**, experiment `%s` is live. /spread to follow it", parts[0], id))
}

func (b *Bot) handleSpread(c tele.Context) error {
	stats, ok := b.orc.PropagationStats()
	if !ok {
		return b.reply(c, "no experiment yet, /inject a secret first")
	}
	return b.reply(c, formatSpread(stats))
}

func (b *Bot) handleTimeline(c tele.Context) error {
	timeline := b.orc.Timeline()
	if len(timeline) == 0 {
		return b.reply(c, "no traces yet")
	}
	return b.reply(c, formatTimeline(timeline))
}

func (b *Bot) handleReport(c tele.Context) error {
	report, ok := b.orc.PropagationReport()
	if !ok {
		return b.reply(c, "no experiment yet, /inject a secret first")
	}
	return b.reply(c, report)
}

func (b *Bot) handleConclude(c tele.Context) error {
	if !b.orc.ConcludeExperiment() {
		return b.reply(c, "nothing to conclude")
	}
	return b.reply(c, "experiment concluded, /report for the findings")
}

func (b *Bot) handleWatch(c tele.Context) error {
	b.mu.Lock()
	b.watching = !b.watching
	watching := b.watching
	b.mu.Unlock()

	if watching {
		return b.reply(c, "watching: every turn lands here until you /watch again")
	}
	return b.reply(c, "watch off")
}

func (b *Bot) handleRecent(c tele.Context) error {
	n := 10
	if payload := strings.TrimSpace(c.Message().Payload); payload != "" {
		parsed, err := strconv.Atoi(payload)
		if err != nil || parsed < 1 {
			return b.reply(c, "usage: /recent [count]")
		}
		n = parsed
	}

	turns := b.orc.RecentHistory(n)
	if len(turns) == 0 {
		return b.reply(c, "no exchanges yet, /step to start one")
	}
	return b.reply(c, formatTurnDigest(turns))
}
