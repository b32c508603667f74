package sim

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/sandevgo/rumormill/internal/config"
	"github.com/sandevgo/rumormill/internal/core"
	"github.com/sandevgo/rumormill/internal/graph"
	"github.com/sandevgo/rumormill/internal/persona"
	"github.com/sandevgo/rumormill/internal/propagation"
	"github.com/sandevgo/rumormill/pkg/log"
)

// Simulation states as reported in snapshots.
const (
	StateIdle     = "idle"
	StateStepping = "running_single_step"
	StateLooping  = "running_loop"
	StateStopped  = "stopped"
)

// MaxRunSteps caps a single RunSteps batch. Callers that want longer
// runs chunk them so loop and transport requests interleave fairly.
const MaxRunSteps = 25

const (
	memoryImportance = 0.6
	secretImportance = 0.9
)

var defaultRumorSeeds = []string{
	"The vault door was left ajar last night.",
	"The supply caravan came in two days late, its crates unmarked.",
	"The night watch doubled its rounds near the docks.",
	"Someone scratched out a page in the shop ledger.",
	"Strangers at the Brass Lantern paid in old coin.",
}

// Orchestrator owns the simulation: the knowledge graph, the turn loop,
// the world state and the propagation tracker. All mutation funnels
// through a single step lock; readers get copies and never block a step.
type Orchestrator struct {
	appCfg   *config.AppConfig
	cfg      *config.SimConfig
	provider core.DialogueProvider
	registry *persona.Registry
	tracker  *propagation.Tracker
	bus      *eventBus

	// mu guards the lifecycle fields only.
	mu         sync.Mutex
	state      string
	loopCancel context.CancelFunc
	loopDone   chan struct{}

	// stepMu serializes mutation: steps, injection, reset. Step uses
	// TryLock so callers get ErrBusy instead of a queue.
	stepMu  sync.Mutex
	rng     *rand.Rand
	pending map[string]int

	// stateMu guards the simulation state read by snapshots.
	stateMu   sync.RWMutex
	store     *graph.Store
	matcher   *graph.Matcher
	retriever *graph.Retriever
	turn      int
	world     core.WorldState
	topic     string
	history   []core.DialogueTurn
	thread    []core.ExchangeLine
}

func New(ctx context.Context, appCfg *config.AppConfig, simCfg *config.SimConfig, propCfg *config.PropagationConfig, provider core.DialogueProvider, registry *persona.Registry) *Orchestrator {
	tracker := propagation.NewTracker(propagation.Config{
		TraceThreshold:   propCfg.TraceThreshold,
		UnchangedFloor:   propCfg.UnchangedFloor,
		ParaphrasedFloor: propCfg.ParaphrasedFloor,
		GossipTraits:     propCfg.GossipTraits,
		StoicTraits:      propCfg.StoicTraits,
	}, nil)

	o := &Orchestrator{
		appCfg:   appCfg,
		cfg:      simCfg,
		provider: provider,
		registry: registry,
		tracker:  tracker,
		bus:      newEventBus(),
		state:    StateIdle,
	}
	o.Reset(ctx, "")
	return o
}

// Start implements srv.Service. The loop only spins up when autoplay is
// enabled; otherwise the simulation waits for transport commands.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.appCfg.Autoplay {
		log.FromCtx(ctx).Info().Dur("delay", o.cfg.LoopDelay).Msg("autoplay enabled, starting loop")
		return o.StartLoop(ctx)
	}
	return nil
}

func (o *Orchestrator) Shutdown(ctx context.Context) error {
	if err := o.StopLoop(); err != nil && !errors.Is(err, core.ErrLoopNotRunning) {
		return err
	}

	// Wait out an in-flight single step before declaring the state final.
	o.stepMu.Lock()
	defer o.stepMu.Unlock()

	o.mu.Lock()
	o.state = StateStopped
	o.mu.Unlock()
	return nil
}

func (o *Orchestrator) State() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s string) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Step runs exactly one exchange. A step already in flight answers
// ErrBusy rather than queueing the request.
func (o *Orchestrator) Step(ctx context.Context) (core.DialogueTurn, error) {
	o.mu.Lock()
	looping := o.state == StateLooping
	o.mu.Unlock()
	if looping {
		return core.DialogueTurn{}, fmt.Errorf("loop owns the step lock: %w", core.ErrBusy)
	}

	if !o.stepMu.TryLock() {
		return core.DialogueTurn{}, core.ErrBusy
	}
	defer o.stepMu.Unlock()

	o.setState(StateStepping)
	defer o.setState(StateIdle)

	return o.doStep(ctx)
}

// RunSteps runs up to n exchanges back to back, stopping at the first
// failed step. The batch size is capped so a transport cannot wedge the
// simulation behind one giant request.
func (o *Orchestrator) RunSteps(ctx context.Context, n int) ([]core.DialogueTurn, error) {
	if n <= 0 {
		return nil, fmt.Errorf("step count must be positive, got %d", n)
	}
	if n > MaxRunSteps {
		n = MaxRunSteps
	}

	o.mu.Lock()
	looping := o.state == StateLooping
	o.mu.Unlock()
	if looping {
		return nil, fmt.Errorf("loop owns the step lock: %w", core.ErrBusy)
	}

	o.stepMu.Lock()
	defer o.stepMu.Unlock()

	o.setState(StateStepping)
	defer o.setState(StateIdle)

	turns := make([]core.DialogueTurn, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return turns, err
		}
		turn, err := o.doStep(ctx)
		if err != nil {
			return turns, err
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

// StartLoop begins autoplay. The loop inherits the caller's context, so
// shutting the app down also stops it.
func (o *Orchestrator) StartLoop(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == StateLooping {
		return core.ErrLoopRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	o.state = StateLooping
	o.loopCancel = cancel
	o.loopDone = make(chan struct{})

	go o.runLoop(loopCtx, o.loopDone)
	return nil
}

// StopLoop cancels autoplay and waits for the in-flight step to finish.
func (o *Orchestrator) StopLoop() error {
	o.mu.Lock()
	if o.state != StateLooping {
		o.mu.Unlock()
		return core.ErrLoopNotRunning
	}
	cancel, done := o.loopCancel, o.loopDone
	o.mu.Unlock()

	cancel()
	<-done

	o.mu.Lock()
	if o.state == StateLooping {
		o.state = StateIdle
	}
	o.loopCancel, o.loopDone = nil, nil
	o.mu.Unlock()
	return nil
}

func (o *Orchestrator) runLoop(ctx context.Context, done chan struct{}) {
	logger := log.FromCtx(ctx)
	defer func() {
		o.mu.Lock()
		if o.state == StateLooping {
			o.state = StateIdle
		}
		o.mu.Unlock()
		close(done)
	}()

	ticker := time.NewTicker(o.cfg.LoopDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.stepMu.Lock()
			if ctx.Err() != nil {
				o.stepMu.Unlock()
				return
			}
			_, err := o.doStep(ctx)
			o.stepMu.Unlock()
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn().Err(err).Msg("autoplay step failed")
			}
		}
	}
}

// doStep runs one exchange end to end. Callers hold stepMu. No state is
// mutated until the provider has answered with a valid result, so an
// abandoned step leaves the simulation exactly as it found it.
func (o *Orchestrator) doStep(ctx context.Context) (core.DialogueTurn, error) {
	logger := log.FromCtx(ctx)

	speaker, listener := selectPair(o.rng, o.registry.Names(), o.pending, o.cfg.PendingWeight)
	if speaker == "" || listener == "" {
		return core.DialogueTurn{}, errors.New("party too small to pair")
	}

	speakerProf, ok := o.registry.Profile(speaker)
	if !ok {
		return core.DialogueTurn{}, fmt.Errorf("no profile for speaker %q", speaker)
	}
	listenerProf, ok := o.registry.Profile(listener)
	if !ok {
		return core.DialogueTurn{}, fmt.Errorf("no profile for listener %q", listener)
	}

	speakerID := graph.MakeID(core.EntityNPC, speaker)
	listenerID := graph.MakeID(core.EntityNPC, listener)

	o.stateMu.RLock()
	next := o.turn + 1
	topic := o.topic
	thread := make([]core.ExchangeLine, len(o.thread))
	copy(thread, o.thread)
	retriever := o.retriever
	o.stateMu.RUnlock()

	memories, _, err := retriever.Retrieve(speakerID, topic, next)
	if err != nil {
		return core.DialogueTurn{}, fmt.Errorf("context retrieval for %s: %w", speaker, err)
	}

	req := core.GenerationRequest{
		Speaker:  speakerProf,
		Listener: listenerProf,
		Topic:    topic,
		History:  historyWithinBudget(thread, o.cfg.PromptTokenBudget),
		Context:  memories,
	}

	res, err := o.generate(ctx, req)
	if err != nil {
		return core.DialogueTurn{}, err
	}

	delta := clamp(res.RumorDelta, o.cfg.MinRumorDelta, o.cfg.MaxRumorDelta)
	memContent := strings.TrimSpace(res.NewMemory)
	if memContent == "" {
		memContent = res.Utterance
	}

	o.stateMu.Lock()
	memID, created, err := o.store.AddMemory(speakerID, memContent, memoryImportance, next)
	if err != nil {
		o.stateMu.Unlock()
		return core.DialogueTurn{}, fmt.Errorf("storing memory for %s: %w", speaker, err)
	}
	if created {
		for _, id := range o.matcher.Extract(res.Utterance + " " + memContent) {
			if err := o.store.AddRelationship(memID, id, core.RelMentions, 1.0, nil, next); err != nil {
				logger.Warn().Err(err).Str("entity", string(id)).Msg("failed to link mention")
			}
		}
	}
	if err := o.store.AddRelationship(speakerID, listenerID, core.RelTold, delta, map[string]any{"memory": string(memID)}, next); err != nil {
		logger.Warn().Err(err).Msg("failed to record told edge")
	}

	o.turn = next
	o.world = applyTurn(o.world, o.cfg, next, speaker, res.Utterance, delta)
	o.topic = res.Utterance

	provs := make([]string, len(memories))
	for i, m := range memories {
		provs[i] = m.Provenance
	}
	turn := core.DialogueTurn{
		Turn:         next,
		Speaker:      speaker,
		Listener:     listener,
		SpeakerID:    speakerID,
		ListenerID:   listenerID,
		Profession:   speakerProf.Profession,
		Mood:         speakerProf.Mood,
		Content:      res.Utterance,
		Monologue:    res.Monologue,
		Sentiment:    res.Sentiment,
		RumorDelta:   delta,
		GraphContext: provs,
		Timestamp:    time.Now().UTC(),
	}

	o.registry.AdvanceMood(speaker, res.Sentiment)
	o.registry.AdvanceMood(listener, res.Sentiment)

	o.history = append(o.history, turn)
	if limit := o.appCfg.HistorySize; limit > 0 && len(o.history) > limit {
		o.history = o.history[len(o.history)-limit:]
	}
	o.thread = append(o.thread, core.ExchangeLine{Speaker: speaker, Content: res.Utterance})
	if limit := o.cfg.ThreadDepth; limit > 0 && len(o.thread) > limit {
		o.thread = o.thread[len(o.thread)-limit:]
	}
	worldCopy := copyWorld(o.world)
	o.stateMu.Unlock()

	o.pending[listener]++
	o.pending[speaker] = 0

	event := core.Event{Kind: core.EventTurn, Turn: &turn, World: worldCopy}
	if trace, traced := o.tracker.Observe(next, speaker, listener, res.Utterance); traced {
		event.Trace = &trace
	}
	o.bus.Publish(event)

	logger.Info().
		Int("turn", next).
		Str("speaker", speaker).
		Str("listener", listener).
		Str("sentiment", res.Sentiment).
		Float64("delta", delta).
		Msg("turn completed")

	return turn, nil
}

// generate calls the provider under the step timeout. A malformed
// response or a timed-out attempt earns exactly one stricter re-prompt;
// the second failure abandons the step.
func (o *Orchestrator) generate(ctx context.Context, req core.GenerationRequest) (core.GenerationResult, error) {
	res, err := o.attempt(ctx, req)
	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil {
		return core.GenerationResult{}, ctx.Err()
	}

	timedOut := errors.Is(err, context.DeadlineExceeded)
	if !timedOut && !errors.Is(err, core.ErrInvalidResponse) {
		return core.GenerationResult{}, fmt.Errorf("generation failed: %w", err)
	}

	log.FromCtx(ctx).Warn().Err(err).Bool("timeout", timedOut).Msg("generation attempt failed, re-prompting strictly")

	req.Strict = true
	res, err = o.attempt(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return core.GenerationResult{}, fmt.Errorf("%w after %s", core.ErrGenerationTimeout, o.cfg.StepTimeout)
		}
		return core.GenerationResult{}, fmt.Errorf("step abandoned after strict retry: %w", err)
	}
	return res, nil
}

func (o *Orchestrator) attempt(ctx context.Context, req core.GenerationRequest) (core.GenerationResult, error) {
	genCtx, cancel := context.WithTimeout(ctx, o.cfg.StepTimeout)
	defer cancel()
	return o.provider.Generate(genCtx, req)
}

// InjectSecret plants a secret as a firsthand memory of one agent and
// opens a propagation experiment around it. The secret becomes the
// current topic, so the next exchanges orbit it naturally.
func (o *Orchestrator) InjectSecret(ctx context.Context, agentName, secret string) (string, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return "", errors.New("secret must not be empty")
	}
	if _, ok := o.registry.Profile(agentName); !ok {
		return "", fmt.Errorf("unknown agent %q", agentName)
	}

	o.stepMu.Lock()
	defer o.stepMu.Unlock()

	agentID := graph.MakeID(core.EntityNPC, agentName)

	o.stateMu.Lock()
	memID, created, err := o.store.AddMemory(agentID, secret, secretImportance, o.turn)
	if err != nil {
		o.stateMu.Unlock()
		return "", fmt.Errorf("planting secret: %w", err)
	}
	if created {
		for _, id := range o.matcher.Extract(secret) {
			if err := o.store.AddRelationship(memID, id, core.RelMentions, 1.0, nil, o.turn); err != nil {
				log.FromCtx(ctx).Warn().Err(err).Str("entity", string(id)).Msg("failed to link mention")
			}
		}
	}
	o.topic = secret
	o.world.LastEvent = truncateRunes(secret, lastEventLimit)
	startTurn := o.turn
	worldCopy := copyWorld(o.world)
	o.stateMu.Unlock()

	// A secret burns hotter than passed-along gossip.
	o.pending[agentName] += 2

	prior, hadPrior := o.tracker.Experiment()

	o.tracker.SetParty(o.registry.Traits())
	id := o.tracker.Open(secret, agentName, startTurn)

	// Opening supersedes a running experiment; let the archive close it.
	if hadPrior && prior.ConcludedAt == nil {
		now := time.Now().UTC()
		prior.ConcludedAt = &now
		o.bus.Publish(core.Event{Kind: core.EventExperimentConcluded, World: worldCopy, Experiment: &prior})
	}

	event := core.Event{Kind: core.EventExperimentOpened, World: worldCopy}
	if exp, ok := o.tracker.Experiment(); ok {
		event.Experiment = &exp
	}
	o.bus.Publish(event)

	log.FromCtx(ctx).Info().
		Str("experiment", id).
		Str("seed_agent", agentName).
		Msg("secret injected")

	return id, nil
}

// ConcludeExperiment freezes the active experiment for later analysis.
func (o *Orchestrator) ConcludeExperiment() bool {
	exp, ok := o.tracker.Experiment()
	now := time.Now().UTC()
	if !o.tracker.Conclude(now) {
		return false
	}
	if ok {
		exp.ConcludedAt = &now
		o.stateMu.RLock()
		worldCopy := copyWorld(o.world)
		o.stateMu.RUnlock()
		o.bus.Publish(core.Event{Kind: core.EventExperimentConcluded, World: worldCopy, Experiment: &exp})
	}
	return true
}

// Reset rebuilds the world from scratch: fresh graph, seeded entities
// and rumors, moods and tracker cleared, turn counter at zero. A
// non-empty seedEvent becomes the opening incident and the first seeded
// rumor, ahead of the configured seed list. Safe to call while the loop
// runs; the next tick continues from the new world.
func (o *Orchestrator) Reset(ctx context.Context, seedEvent string) {
	logger := log.FromCtx(ctx)

	o.stepMu.Lock()
	defer o.stepMu.Unlock()

	store := graph.NewStore()
	names := o.registry.Names()

	for _, name := range names {
		prof, _ := o.registry.Profile(name)
		attrs := map[string]any{"title": prof.Title, "profession": prof.Profession, "voice": prof.Voice}
		if _, err := store.AddEntity(core.EntityNPC, name, attrs, 0); err != nil {
			logger.Warn().Err(err).Str("npc", name).Msg("failed to seed npc")
		}
	}
	// Everyone in the party knows everyone, in both directions, so
	// hearsay can travel before any told edges exist.
	for i, a := range names {
		for j, b := range names {
			if i == j {
				continue
			}
			aid := graph.MakeID(core.EntityNPC, a)
			bid := graph.MakeID(core.EntityNPC, b)
			if err := store.AddRelationship(aid, bid, core.RelKnows, 1.0, nil, 0); err != nil {
				logger.Warn().Err(err).Msg("failed to seed knows edge")
			}
		}
	}

	seedEntities := []struct {
		t     core.EntityType
		names []string
	}{
		{core.EntityLocation, []string{"the market square", "the docks", "the guard post", "the Brass Lantern"}},
		{core.EntityObject, []string{"the vault", "the supply caravan", "the shop ledger"}},
		{core.EntityConcept, []string{"the night watch", "the smugglers' guild"}},
		{core.EntityEvent, []string{"the harvest festival"}},
	}
	for _, group := range seedEntities {
		for _, name := range group.names {
			if _, err := store.AddEntity(group.t, name, nil, 0); err != nil {
				logger.Warn().Err(err).Str("entity", name).Msg("failed to seed entity")
			}
		}
	}

	matcher := graph.NewMatcher(store)
	retriever := graph.NewRetriever(store, matcher, graph.RetrieverConfig{
		MaxHops:       o.cfg.MaxHops,
		MaxResults:    o.cfg.MaxResults,
		OverlapWeight: o.cfg.OverlapWeight,
		PathWeight:    o.cfg.PathWeight,
		RecencyWeight: o.cfg.RecencyWeight,
	})

	seeds := make([]string, 0, len(o.appCfg.RumorSeeds)+1)
	if trimmed := strings.TrimSpace(seedEvent); trimmed != "" {
		seeds = append(seeds, trimmed)
	}
	for _, s := range o.appCfg.RumorSeeds {
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			seeds = append(seeds, trimmed)
		}
	}
	if len(seeds) == 0 {
		seeds = defaultRumorSeeds
	}

	pending := make(map[string]int)
	for i, seed := range seeds {
		owner := names[i%len(names)]
		ownerID := graph.MakeID(core.EntityNPC, owner)
		memID, created, err := store.AddMemory(ownerID, seed, 0.8, 0)
		if err != nil {
			logger.Warn().Err(err).Str("owner", owner).Msg("failed to seed rumor")
			continue
		}
		if created {
			for _, id := range matcher.Extract(seed) {
				if err := store.AddRelationship(memID, id, core.RelMentions, 1.0, nil, 0); err != nil {
					logger.Warn().Err(err).Msg("failed to link seed mention")
				}
			}
		}
		pending[owner]++
	}

	seedSrc := o.cfg.Seed
	if seedSrc == 0 {
		seedSrc = time.Now().UnixNano()
	}

	o.stateMu.Lock()
	o.store = store
	o.matcher = matcher
	o.retriever = retriever
	o.turn = 0
	o.world = NewWorldState(o.cfg, seeds[0])
	o.topic = seeds[0]
	o.history = nil
	o.thread = nil
	worldCopy := copyWorld(o.world)
	o.stateMu.Unlock()

	o.rng = rand.New(rand.NewSource(seedSrc))
	o.pending = pending

	o.registry.ResetMoods()
	o.tracker.Reset()
	o.tracker.SetParty(o.registry.Traits())

	o.bus.Publish(core.Event{Kind: core.EventReset, World: worldCopy})

	logger.Info().
		Int("party", len(names)).
		Int("seeds", len(seeds)).
		Msg("simulation reset")
}

// Subscribe returns a channel of simulation events. The cancel func must
// be called when the subscriber goes away.
func (o *Orchestrator) Subscribe() (<-chan core.Event, func()) {
	return o.bus.Subscribe()
}

func (o *Orchestrator) Snapshot() core.Snapshot {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()

	history := make([]core.DialogueTurn, len(o.history))
	copy(history, o.history)

	return core.Snapshot{
		Turn:          o.turn,
		State:         o.State(),
		World:         copyWorld(o.world),
		History:       history,
		Party:         o.registry.Names(),
		Topic:         o.topic,
		TrackerActive: o.tracker.Active(),
	}
}

// RecentHistory returns up to n most recent turns, oldest first.
func (o *Orchestrator) RecentHistory(n int) []core.DialogueTurn {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()

	if n <= 0 || n > len(o.history) {
		n = len(o.history)
	}
	out := make([]core.DialogueTurn, n)
	copy(out, o.history[len(o.history)-n:])
	return out
}

func (o *Orchestrator) GraphStats() core.GraphStats {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.store.Stats()
}

func (o *Orchestrator) Entity(id core.EntityID) (core.Entity, bool) {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.store.Get(id)
}

func (o *Orchestrator) Neighborhood(id core.EntityID, dir core.Direction, rels ...core.RelationType) ([]core.Neighbor, error) {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.store.Neighbors(id, dir, rels...)
}

func (o *Orchestrator) Party() []core.SpeakerProfile {
	return o.registry.Party()
}

func (o *Orchestrator) PropagationStats() (core.PropagationStats, bool) {
	return o.tracker.Stats()
}

func (o *Orchestrator) Timeline() []core.Trace {
	return o.tracker.Timeline()
}

func (o *Orchestrator) PropagationReport() (string, bool) {
	return o.tracker.Report()
}

func (o *Orchestrator) Experiment() (core.Experiment, bool) {
	return o.tracker.Experiment()
}
