package propagation

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sandevgo/rumormill/internal/core"
)

// Config tunes detection and classification thresholds.
type Config struct {
	// TraceThreshold is the minimum similarity between an utterance and
	// the secret for the turn to count as carrying it.
	TraceThreshold float64
	// UnchangedFloor and ParaphrasedFloor split traces into mutation
	// bands: unchanged above the first, paraphrased above the second,
	// mutated below both.
	UnchangedFloor   float64
	ParaphrasedFloor float64

	GossipTraits []string
	StoicTraits  []string
}

func DefaultConfig() Config {
	return Config{
		TraceThreshold:   0.15,
		UnchangedFloor:   0.85,
		ParaphrasedFloor: 0.5,
		GossipTraits:     []string{"curious", "talkative", "dramatic", "theatrical"},
		StoicTraits:      []string{"reserved", "guarded", "careful", "quiet"},
	}
}

// Tracker runs at most one secret-spread experiment at a time. It watches
// every dialogue turn, records traces when the secret surfaces, and keeps
// per-personality spread statistics. The zero tracker has never been
// opened; Stats reports ok=false until the first injection.
type Tracker struct {
	mu  sync.Mutex
	cfg Config
	sim core.SimilarityFunc

	// personality classifies each party member once per roster, by name.
	personality map[string]core.PersonalityType

	opened   bool
	active   bool
	exp      core.Experiment
	lastTurn int

	reached          map[string]struct{}
	reachedByCarrier map[core.PersonalityType]map[string]struct{}
	tracesByCarrier  map[core.PersonalityType][]core.Trace
}

func NewTracker(cfg Config, sim core.SimilarityFunc) *Tracker {
	if sim == nil {
		sim = Jaccard
	}
	if cfg.TraceThreshold <= 0 {
		cfg.TraceThreshold = DefaultConfig().TraceThreshold
	}
	t := &Tracker{
		cfg:         cfg,
		sim:         sim,
		personality: make(map[string]core.PersonalityType),
	}
	t.clearLocked()
	return t
}

// SetParty classifies the roster by declared traits. Called on every
// reset, before any experiment opens.
func (t *Tracker) SetParty(traits map[string][]string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.personality = make(map[string]core.PersonalityType, len(traits))
	for name, ts := range traits {
		t.personality[name] = t.classify(ts)
	}
}

// Classify maps a trait list onto a personality type: whichever of the
// gossip and stoic indicator lists matches more traits wins, ties and
// no-matches are neutral.
func (t *Tracker) Classify(traits []string) core.PersonalityType {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.classify(traits)
}

func (t *Tracker) classify(traits []string) core.PersonalityType {
	gossip, stoic := 0, 0
	for _, tr := range traits {
		tr = strings.ToLower(strings.TrimSpace(tr))
		for _, g := range t.cfg.GossipTraits {
			if tr == g {
				gossip++
			}
		}
		for _, s := range t.cfg.StoicTraits {
			if tr == s {
				stoic++
			}
		}
	}
	switch {
	case gossip > stoic:
		return core.PersonalityGossip
	case stoic > gossip:
		return core.PersonalityStoic
	default:
		return core.PersonalityNeutral
	}
}

// Open starts a new experiment and returns its id. A still-running
// experiment is concluded first; its numbers stay queryable until the
// next Open overwrites them.
func (t *Tracker) Open(secret, seedAgent string, startTurn int) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if t.active {
		t.exp.ConcludedAt = &now
	}

	t.clearLocked()
	t.opened = true
	t.active = true
	t.lastTurn = startTurn
	t.exp = core.Experiment{
		ID:        uuid.NewString(),
		Secret:    secret,
		SeedAgent: seedAgent,
		StartTurn: startTurn,
		StartedAt: now,
	}
	return t.exp.ID
}

func (t *Tracker) clearLocked() {
	t.opened = false
	t.active = false
	t.exp = core.Experiment{}
	t.lastTurn = 0
	t.reached = make(map[string]struct{})
	t.reachedByCarrier = map[core.PersonalityType]map[string]struct{}{
		core.PersonalityGossip:  {},
		core.PersonalityStoic:   {},
		core.PersonalityNeutral: {},
	}
	t.tracesByCarrier = make(map[core.PersonalityType][]core.Trace)
}

// Observe inspects one dialogue turn. Every call while an experiment is
// active advances the elapsed-turn clock; a trace is recorded only when
// the utterance clears the similarity threshold. The returned bool
// reports whether a trace was recorded.
func (t *Tracker) Observe(turn int, speaker, listener, content string) (core.Trace, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.active {
		return core.Trace{}, false
	}
	if turn > t.lastTurn {
		t.lastTurn = turn
	}

	similarity := t.sim(content, t.exp.Secret)
	if similarity < t.cfg.TraceThreshold {
		return core.Trace{}, false
	}

	carrier := core.PersonalityNeutral
	if p, ok := t.personality[speaker]; ok {
		carrier = p
	}

	// The seed already knows the secret; only other listeners count as
	// reached.
	newlyReached := false
	if listener != t.exp.SeedAgent {
		if _, seen := t.reached[listener]; !seen {
			newlyReached = true
			t.reached[listener] = struct{}{}
			t.reachedByCarrier[carrier][listener] = struct{}{}
		}
	}

	trace := core.Trace{
		ExperimentID: t.exp.ID,
		Turn:         turn,
		Speaker:      speaker,
		Listener:     listener,
		Personality:  carrier,
		Content:      truncate(content, 200),
		Similarity:   similarity,
		Class:        t.classifySimilarity(similarity),
		NewlyReached: newlyReached,
		At:           time.Now(),
	}
	t.exp.Traces = append(t.exp.Traces, trace)
	t.tracesByCarrier[carrier] = append(t.tracesByCarrier[carrier], trace)
	return trace, true
}

func (t *Tracker) classifySimilarity(similarity float64) core.MutationClass {
	switch {
	case similarity >= t.cfg.UnchangedFloor:
		return core.MutationUnchanged
	case similarity >= t.cfg.ParaphrasedFloor:
		return core.MutationParaphrased
	default:
		return core.MutationMutated
	}
}

// Conclude stops the active experiment, keeping its data queryable.
func (t *Tracker) Conclude(at time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.active {
		return false
	}
	t.active = false
	t.exp.ConcludedAt = &at
	return true
}

// Reset drops all experiment state, as if the tracker were fresh.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clearLocked()
}

func (t *Tracker) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Experiment returns a copy of the current or last experiment.
func (t *Tracker) Experiment() (core.Experiment, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.opened {
		return core.Experiment{}, false
	}
	return t.snapshotLocked(), true
}

func (t *Tracker) snapshotLocked() core.Experiment {
	exp := t.exp
	exp.Traces = append([]core.Trace(nil), t.exp.Traces...)
	exp.AgentsReached = sortedKeys(t.reached)
	return exp
}

// Timeline returns the recorded traces in observation order.
func (t *Tracker) Timeline() []core.Trace {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]core.Trace(nil), t.exp.Traces...)
}

// Stats aggregates the experiment. ok is false only when no experiment
// was ever opened.
func (t *Tracker) Stats() (core.PropagationStats, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.opened {
		return core.PropagationStats{}, false
	}

	elapsed := t.lastTurn - t.exp.StartTurn
	if elapsed < 1 {
		elapsed = 1
	}

	stats := core.PropagationStats{
		ExperimentID:    t.exp.ID,
		Secret:          t.exp.Secret,
		SeedAgent:       t.exp.SeedAgent,
		Active:          t.active,
		TurnsElapsed:    elapsed,
		TraceCount:      len(t.exp.Traces),
		AgentsReached:   sortedKeys(t.reached),
		PropagationRate: float64(len(t.reached)) / float64(elapsed),
		ByPersonality:   make(map[core.PersonalityType]core.PersonalityStats, 3),
	}

	var simSum float64
	for _, tr := range t.exp.Traces {
		simSum += tr.Similarity
	}
	if len(t.exp.Traces) > 0 {
		stats.MeanSimilarity = simSum / float64(len(t.exp.Traces))
	}

	for _, p := range []core.PersonalityType{core.PersonalityGossip, core.PersonalityStoic, core.PersonalityNeutral} {
		traces := t.tracesByCarrier[p]
		ps := core.PersonalityStats{
			Traces:        len(traces),
			AgentsReached: len(t.reachedByCarrier[p]),
		}
		if len(traces) > 0 {
			var sum float64
			mutated := 0
			for _, tr := range traces {
				sum += tr.Similarity
				if tr.Class != core.MutationUnchanged {
					mutated++
				}
			}
			ps.MeanSimilarity = sum / float64(len(traces))
			ps.MutationRate = float64(mutated) / float64(len(traces))
		}
		ps.SpreadVelocity = float64(ps.AgentsReached) / float64(elapsed)
		stats.ByPersonality[p] = ps
	}

	gossipV := stats.ByPersonality[core.PersonalityGossip].SpreadVelocity
	stoicV := stats.ByPersonality[core.PersonalityStoic].SpreadVelocity
	if stoicV > 0 {
		ratio := gossipV / stoicV
		stats.GossipToStoicRatio = &ratio
	}

	return stats, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Cut on a rune boundary.
	for n > 0 && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n]
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
