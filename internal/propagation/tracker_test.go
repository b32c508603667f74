package propagation

import (
	"strings"
	"testing"
	"time"

	"github.com/sandevgo/rumormill/internal/core"
)

const testSecret = "The mayor is secretly a vampire"

func newTestTracker() *Tracker {
	tr := NewTracker(DefaultConfig(), Jaccard)
	tr.SetParty(map[string][]string{
		"Mara":   {"reserved", "careful", "practical"},
		"Rylan":  {"watchful", "anxious", "dutiful"},
		"Iris":   {"curious", "talkative", "streetwise"},
		"Theron": {"dramatic", "theatrical", "curious"},
	})
	return tr
}

func TestTracker_Classify(t *testing.T) {
	tr := NewTracker(DefaultConfig(), Jaccard)

	tests := []struct {
		name   string
		traits []string
		want   core.PersonalityType
	}{
		{name: "gossip", traits: []string{"curious", "talkative", "romantic"}, want: core.PersonalityGossip},
		{name: "stoic", traits: []string{"reserved", "careful"}, want: core.PersonalityStoic},
		{name: "tie_is_neutral", traits: []string{"curious", "careful"}, want: core.PersonalityNeutral},
		{name: "no_match", traits: []string{"hungry"}, want: core.PersonalityNeutral},
		{name: "case_insensitive", traits: []string{"Curious", " TALKATIVE "}, want: core.PersonalityGossip},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tr.Classify(tt.traits); got != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.traits, got, tt.want)
			}
		})
	}
}

func TestTracker_NeverOpened(t *testing.T) {
	tr := newTestTracker()

	if _, ok := tr.Stats(); ok {
		t.Error("stats must not be available before the first injection")
	}
	if _, ok := tr.Experiment(); ok {
		t.Error("experiment must not be available before the first injection")
	}
	if _, traced := tr.Observe(1, "Iris", "Mara", testSecret); traced {
		t.Error("observe must be inert before injection")
	}
	if tr.Active() {
		t.Error("tracker must start inactive")
	}
}

func TestTracker_TraceAndReach(t *testing.T) {
	tr := newTestTracker()
	id := tr.Open(testSecret, "Iris", 3)
	if id == "" {
		t.Fatal("expected experiment id")
	}
	if !tr.Active() {
		t.Fatal("expected active experiment")
	}

	// Verbatim relay: unchanged, listener newly reached.
	trace, ok := tr.Observe(4, "Iris", "Mara", testSecret)
	if !ok {
		t.Fatal("expected a trace")
	}
	if trace.Class != core.MutationUnchanged {
		t.Errorf("expected unchanged, got %s", trace.Class)
	}
	if trace.Personality != core.PersonalityGossip {
		t.Errorf("iris carries as gossip, got %s", trace.Personality)
	}
	if !trace.NewlyReached {
		t.Error("mara hears it for the first time")
	}

	// Unrelated chatter is not a trace but still advances the clock.
	if _, ok := tr.Observe(5, "Mara", "Rylan", "the caravan is late again"); ok {
		t.Error("unrelated turn must not trace")
	}

	// Same listener again: trace, but not newly reached.
	trace, ok = tr.Observe(6, "Theron", "Mara", "Have you heard? The mayor is secretly a vampire!")
	if !ok {
		t.Fatal("expected a trace")
	}
	if trace.NewlyReached {
		t.Error("mara was already reached")
	}

	// Telling the seed does not count as reaching anyone.
	trace, ok = tr.Observe(7, "Mara", "Iris", testSecret)
	if !ok {
		t.Fatal("expected a trace")
	}
	if trace.NewlyReached {
		t.Error("the seed agent cannot be newly reached")
	}

	stats, ok := tr.Stats()
	if !ok {
		t.Fatal("expected stats")
	}
	if stats.TurnsElapsed != 4 {
		t.Errorf("turns elapsed %d, want 4", stats.TurnsElapsed)
	}
	if len(stats.AgentsReached) != 1 || stats.AgentsReached[0] != "Mara" {
		t.Errorf("unexpected reached set %v", stats.AgentsReached)
	}
	if stats.TraceCount != 3 {
		t.Errorf("trace count %d, want 3", stats.TraceCount)
	}
	if got := stats.PropagationRate; got != 0.25 {
		t.Errorf("propagation rate %f, want 0.25", got)
	}
}

func TestTracker_MutationBands(t *testing.T) {
	cfg := DefaultConfig()
	tr := NewTracker(cfg, func(a, b string) float64 {
		switch a {
		case "high":
			return 0.9
		case "mid":
			return 0.6
		case "low":
			return 0.2
		default:
			return 0.0
		}
	})
	tr.Open(testSecret, "Iris", 0)

	cases := []struct {
		content string
		want    core.MutationClass
	}{
		{content: "high", want: core.MutationUnchanged},
		{content: "mid", want: core.MutationParaphrased},
		{content: "low", want: core.MutationMutated},
	}
	for i, c := range cases {
		trace, ok := tr.Observe(i+1, "Iris", "Mara", c.content)
		if !ok {
			t.Fatalf("case %d: expected trace", i)
		}
		if trace.Class != c.want {
			t.Errorf("case %d: class %s, want %s", i, trace.Class, c.want)
		}
	}

	if _, ok := tr.Observe(9, "Iris", "Mara", "below threshold"); ok {
		t.Error("similarity under threshold must not trace")
	}
}

func TestTracker_PersonalityStatsAndRatio(t *testing.T) {
	tr := newTestTracker()
	tr.Open(testSecret, "Theron", 0)

	// Gossip carrier reaches two agents over four turns.
	tr.Observe(1, "Iris", "Mara", testSecret)
	tr.Observe(2, "Iris", "Rylan", testSecret)
	// Stoic carrier reaches one.
	tr.Observe(3, "Mara", "Rylan", testSecret) // already reached
	tr.Observe(4, "Mara", "Iris", "the mayor hides from daylight, I hear, a vampire they whisper")

	stats, ok := tr.Stats()
	if !ok {
		t.Fatal("expected stats")
	}

	gossip := stats.ByPersonality[core.PersonalityGossip]
	if gossip.Traces != 2 || gossip.AgentsReached != 2 {
		t.Errorf("gossip stats %+v", gossip)
	}
	stoic := stats.ByPersonality[core.PersonalityStoic]
	if stoic.Traces != 2 || stoic.AgentsReached != 1 {
		t.Errorf("stoic stats %+v", stoic)
	}
	if stats.ByPersonality[core.PersonalityNeutral].Traces != 0 {
		t.Errorf("neutral should be empty, got %+v", stats.ByPersonality[core.PersonalityNeutral])
	}

	if stats.GossipToStoicRatio == nil {
		t.Fatal("expected a measurable ratio")
	}
	if *stats.GossipToStoicRatio != 2.0 {
		t.Errorf("ratio %f, want 2.0", *stats.GossipToStoicRatio)
	}
}

func TestTracker_RatioNilWhenStoicSilent(t *testing.T) {
	tr := newTestTracker()
	tr.Open(testSecret, "Iris", 0)
	tr.Observe(1, "Iris", "Mara", testSecret)

	stats, ok := tr.Stats()
	if !ok {
		t.Fatal("expected stats")
	}
	if stats.GossipToStoicRatio != nil {
		t.Errorf("expected nil ratio, got %f", *stats.GossipToStoicRatio)
	}
}

func TestTracker_ConcludeAndReopen(t *testing.T) {
	tr := newTestTracker()
	first := tr.Open(testSecret, "Iris", 0)
	tr.Observe(1, "Iris", "Mara", testSecret)

	if !tr.Conclude(time.Now()) {
		t.Fatal("expected conclude to succeed")
	}
	if tr.Conclude(time.Now()) {
		t.Error("double conclude must fail")
	}
	if tr.Active() {
		t.Error("concluded experiment must not be active")
	}

	// Concluded data stays queryable.
	stats, ok := tr.Stats()
	if !ok {
		t.Fatal("expected stats after conclude")
	}
	if stats.Active {
		t.Error("stats must report inactive")
	}
	if stats.ExperimentID != first {
		t.Errorf("unexpected experiment id %s", stats.ExperimentID)
	}

	// Observations after conclusion are ignored.
	if _, ok := tr.Observe(5, "Iris", "Rylan", testSecret); ok {
		t.Error("concluded tracker must not trace")
	}

	second := tr.Open("a different secret entirely", "Mara", 10)
	if second == first {
		t.Error("new experiment must get a new id")
	}
	stats, _ = tr.Stats()
	if stats.TraceCount != 0 || len(stats.AgentsReached) != 0 {
		t.Errorf("new experiment must start clean, got %+v", stats)
	}

	exp, ok := tr.Experiment()
	if !ok {
		t.Fatal("expected experiment")
	}
	if exp.ConcludedAt != nil {
		t.Error("fresh experiment must not be concluded")
	}
}

func TestTracker_ResetClearsEverything(t *testing.T) {
	tr := newTestTracker()
	tr.Open(testSecret, "Iris", 0)
	tr.Observe(1, "Iris", "Mara", testSecret)

	tr.Reset()
	if tr.Active() {
		t.Error("reset tracker must be inactive")
	}
	if _, ok := tr.Stats(); ok {
		t.Error("reset tracker must report no stats")
	}
}

func TestTracker_ReportRenders(t *testing.T) {
	tr := newTestTracker()
	if _, ok := tr.Report(); ok {
		t.Error("report must not render before injection")
	}

	tr.Open(testSecret, "Iris", 0)
	tr.Observe(1, "Iris", "Mara", testSecret)
	tr.Observe(2, "Mara", "Rylan", "the mayor, a vampire? nonsense. probably.")

	report, ok := tr.Report()
	if !ok {
		t.Fatal("expected report")
	}
	for _, want := range []string{
		"# Information Propagation Report",
		"**Seed agent**: Iris",
		"Turns elapsed: 2",
		"**Gossip**",
		"**Stoic**",
		"**Neutral**",
		"turn 1: Iris to Mara",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q", want)
		}
	}
}
