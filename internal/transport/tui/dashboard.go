package tui

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sandevgo/rumormill/internal/core"
	"github.com/sandevgo/rumormill/internal/sim"
	"github.com/sandevgo/rumormill/pkg/log"
)

var (
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	speakerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("5")).Bold(true)
	gaugeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	traceStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	noticeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
)

// Secrets handed out by the i key, rotated through the party.
var demoSecrets = []string{
	"The harbormaster has been forging the caravan manifests.",
	"There is a second key to the vault, and nobody knows who holds it.",
	"The Brass Lantern cellar hides crates that never paid toll.",
}

const maxFeedEntries = 200

// Dashboard renders the live simulation in the terminal.
type Dashboard struct {
	orc *sim.Orchestrator

	mu   sync.Mutex
	prog *tea.Program
}

func NewDashboard(orc *sim.Orchestrator) *Dashboard {
	return &Dashboard{orc: orc}
}

func (d *Dashboard) Start(ctx context.Context) error {
	log.FromCtx(ctx).Info().Msg("starting dashboard")

	m := newModel(ctx, d.orc)
	p := tea.NewProgram(m, tea.WithAltScreen())
	d.mu.Lock()
	d.prog = p
	d.mu.Unlock()

	_, err := p.Run()
	m.cancel()
	if err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

func (d *Dashboard) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.prog != nil {
		d.prog.Quit()
	}
	return nil
}

type eventMsg core.Event
type feedClosedMsg struct{}
type statusMsg string
type actionErrMsg struct{ err error }

type model struct {
	ctx context.Context
	orc *sim.Orchestrator

	events <-chan core.Event
	cancel func()

	vp    viewport.Model
	ready bool
	width int

	snap    core.Snapshot
	stats   core.PropagationStats
	hasExp  bool
	feed    []string
	status  string
	demoN   int
	closing bool
}

func newModel(ctx context.Context, orc *sim.Orchestrator) model {
	events, cancel := orc.Subscribe()
	m := model{
		ctx:    ctx,
		orc:    orc,
		events: events,
		cancel: cancel,
	}
	m.refresh()
	return m
}

func (m *model) refresh() {
	m.snap = m.orc.Snapshot()
	m.stats, m.hasExp = m.orc.PropagationStats()
}

func waitForEvent(ch <-chan core.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return feedClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m model) Init() tea.Cmd {
	return waitForEvent(m.events)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		feedHeight := msg.Height - headerHeight - footerHeight
		if feedHeight < 1 {
			feedHeight = 1
		}
		if !m.ready {
			m.vp = viewport.New(msg.Width, feedHeight)
			m.ready = true
		} else {
			m.vp.Width = msg.Width
			m.vp.Height = feedHeight
		}
		m.vp.SetContent(strings.Join(m.feed, "\n"))
		return m, nil

	case eventMsg:
		m.appendEvent(core.Event(msg))
		m.refresh()
		if m.ready {
			m.vp.SetContent(strings.Join(m.feed, "\n"))
			m.vp.GotoBottom()
		}
		return m, waitForEvent(m.events)

	case feedClosedMsg:
		return m, nil

	case statusMsg:
		m.status = string(msg)
		m.refresh()
		return m, nil

	case actionErrMsg:
		m.status = msg.err.Error()
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.closing = true
			m.cancel()
			return m, tea.Quit
		case "s":
			return m, m.stepCmd()
		case "l":
			return m, m.toggleLoopCmd()
		case "r":
			return m, m.resetCmd()
		case "i":
			var cmd tea.Cmd
			m, cmd = m.injectDemoCmd()
			return m, cmd
		}
	}

	if m.ready {
		var cmd tea.Cmd
		m.vp, cmd = m.vp.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) stepCmd() tea.Cmd {
	orc, ctx := m.orc, m.ctx
	return func() tea.Msg {
		if _, err := orc.Step(ctx); err != nil {
			return actionErrMsg{err}
		}
		return statusMsg("stepped")
	}
}

func (m model) toggleLoopCmd() tea.Cmd {
	orc, ctx := m.orc, m.ctx
	return func() tea.Msg {
		if orc.State() == sim.StateLooping {
			if err := orc.StopLoop(); err != nil {
				return actionErrMsg{err}
			}
			return statusMsg("loop stopped")
		}
		if err := orc.StartLoop(ctx); err != nil {
			return actionErrMsg{err}
		}
		return statusMsg("loop running")
	}
}

func (m model) resetCmd() tea.Cmd {
	orc, ctx := m.orc, m.ctx
	return func() tea.Msg {
		orc.Reset(ctx, "")
		return statusMsg("world rebuilt")
	}
}

func (m model) injectDemoCmd() (model, tea.Cmd) {
	party := m.orc.Party()
	if len(party) == 0 {
		return m, nil
	}
	target := party[m.demoN%len(party)].Name
	secret := demoSecrets[m.demoN%len(demoSecrets)]
	m.demoN++

	orc, ctx := m.orc, m.ctx
	return m, func() tea.Msg {
		if _, err := orc.InjectSecret(ctx, target, secret); err != nil {
			return actionErrMsg{err}
		}
		return statusMsg("secret slipped to " + target)
	}
}

func (m *model) appendEvent(ev core.Event) {
	var entry string
	switch ev.Kind {
	case core.EventTurn:
		if ev.Turn == nil {
			return
		}
		entry = m.formatTurnEntry(*ev.Turn, ev.Trace)
	case core.EventExperimentOpened:
		if ev.Experiment != nil {
			entry = noticeStyle.Render(fmt.Sprintf("── secret planted with %s ──", ev.Experiment.SeedAgent))
		}
	case core.EventExperimentConcluded:
		entry = noticeStyle.Render("── experiment concluded ──")
	case core.EventReset:
		entry = noticeStyle.Render("── world rebuilt ──")
	}
	if entry == "" {
		return
	}

	m.feed = append(m.feed, entry)
	if len(m.feed) > maxFeedEntries {
		m.feed = m.feed[len(m.feed)-maxFeedEntries:]
	}
}

func (m *model) formatTurnEntry(t core.DialogueTurn, trace *core.Trace) string {
	var b strings.Builder

	header := fmt.Sprintf("T%d %s → %s", t.Turn, t.Speaker, t.Listener)
	meta := fmt.Sprintf("  %+.2f %s, %s", t.RumorDelta, t.Sentiment, t.Mood)
	b.WriteString(speakerStyle.Render(header) + dimStyle.Render(meta))
	b.WriteString("\n")
	b.WriteString(m.wrap(t.Content))
	if t.Monologue != "" {
		b.WriteString("\n")
		b.WriteString(dimStyle.Render(m.wrap("("+t.Monologue+")")))
	}
	if trace != nil {
		mark := fmt.Sprintf("↳ secret trace %.2f %s", trace.Similarity, trace.Class)
		if trace.NewlyReached {
			mark += ", new ear: " + trace.Listener
		}
		b.WriteString("\n")
		b.WriteString(traceStyle.Render(mark))
	}
	b.WriteString("\n")
	return b.String()
}

func (m *model) wrap(s string) string {
	if m.width <= 4 {
		return s
	}
	return lipgloss.NewStyle().Width(m.width - 2).Render(s)
}

const (
	headerHeight = 4
	footerHeight = 3
)

func (m model) View() string {
	if m.closing {
		return "leaving the town to its gossip\n"
	}
	if !m.ready {
		return "warming up..."
	}

	var b strings.Builder

	title := fmt.Sprintf("RumorMill · turn %d · %s", m.snap.Turn, m.snap.State)
	if m.snap.TrackerActive {
		title += " · tracking"
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")

	w := m.snap.World
	b.WriteString(gaugeStyle.Render(fmt.Sprintf(
		"heat %s %.2f   alert %s %.2f   prices ×%.2f",
		gauge(w.RumorHeat), w.RumorHeat,
		gauge(w.GuardAlertLevel), w.GuardAlertLevel,
		w.ShopPriceModifier,
	)))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(truncate("topic: "+m.snap.Topic, max(m.width-1, 10))))
	b.WriteString("\n\n")

	b.WriteString(m.vp.View())
	b.WriteString("\n")

	if m.hasExp {
		state := "concluded"
		if m.stats.Active {
			state = "running"
		}
		b.WriteString(noticeStyle.Render(fmt.Sprintf(
			"spread: %d reached · %d traces · fidelity %.2f · %s",
			len(m.stats.AgentsReached), m.stats.TraceCount, m.stats.MeanSimilarity, state,
		)))
	}
	b.WriteString("\n")

	help := "s step · l loop · r reset · i inject · q quit · ↑/↓ scroll"
	if m.status != "" {
		help = truncate(m.status, max(m.width-1, 10)) + "\n" + help
	} else {
		help = "\n" + help
	}
	b.WriteString(dimStyle.Render(help))

	return b.String()
}

func gauge(v float64) string {
	const cells = 10
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	filled := int(math.Round(v * cells))
	return strings.Repeat("█", filled) + strings.Repeat("░", cells-filled)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
