package core

import "time"

const (
	AppName       = "RumorMill"
	AppVersion    = "0.1.0"
	RepositoryURL = "https://github.com/sandevgo/rumormill"
)

// EntityType is the kind of node stored in the knowledge graph.
type EntityType string

const (
	EntityNPC      EntityType = "npc"
	EntityLocation EntityType = "location"
	EntityObject   EntityType = "object"
	EntityEvent    EntityType = "event"
	EntityConcept  EntityType = "concept"
	EntityMemory   EntityType = "memory"
)

var validEntityTypes = map[EntityType]struct{}{
	EntityNPC:      {},
	EntityLocation: {},
	EntityObject:   {},
	EntityEvent:    {},
	EntityConcept:  {},
	EntityMemory:   {},
}

func (t EntityType) Valid() bool {
	_, ok := validEntityTypes[t]
	return ok
}

// RelationType is the kind of directed edge between two entities.
type RelationType string

const (
	RelRemembers RelationType = "remembers"
	RelMentions  RelationType = "mentions"
	RelTold      RelationType = "told"
	RelWitnessed RelationType = "witnessed"
	RelSuspects  RelationType = "suspects"
	RelKnows     RelationType = "knows"
	RelRelatedTo RelationType = "related_to"
)

var validRelationTypes = map[RelationType]struct{}{
	RelRemembers: {},
	RelMentions:  {},
	RelTold:      {},
	RelWitnessed: {},
	RelSuspects:  {},
	RelKnows:     {},
	RelRelatedTo: {},
}

func (t RelationType) Valid() bool {
	_, ok := validRelationTypes[t]
	return ok
}

// SocialRelations are the edge types hearsay retrieval may traverse
// between agents. Memory ownership (remembers) and references (mentions)
// are deliberately not part of the social surface.
var SocialRelations = []RelationType{RelTold, RelWitnessed, RelKnows, RelSuspects, RelRelatedTo}

// EntityID is stable and derived from type+name, e.g. "npc:mara".
type EntityID string

type Entity struct {
	ID          EntityID       `json:"id"`
	Type        EntityType     `json:"type"`
	Name        string         `json:"name"`
	Attrs       map[string]any `json:"attrs,omitempty"`
	CreatedTurn int            `json:"created_turn"`
}

type Relationship struct {
	Src         EntityID       `json:"src"`
	Dst         EntityID       `json:"dst"`
	Type        RelationType   `json:"type"`
	Weight      float64        `json:"weight,omitempty"`
	Attrs       map[string]any `json:"attrs,omitempty"`
	CreatedTurn int            `json:"created_turn"`
}

type Direction int

const (
	DirOut Direction = iota
	DirIn
	DirBoth
)

// Neighbor pairs an edge with the entity on its far side.
type Neighbor struct {
	Edge   Relationship `json:"edge"`
	Entity Entity       `json:"entity"`
}

type GraphStats struct {
	EntityCount    int                  `json:"entity_count"`
	EdgeCount      int                  `json:"edge_count"`
	EntitiesByType map[EntityType]int   `json:"entities_by_type"`
	EdgesByType    map[RelationType]int `json:"edges_by_type"`
}

// DialogueTurn is the immutable record of one completed exchange.
type DialogueTurn struct {
	Turn       int       `json:"turn"`
	Speaker    string    `json:"speaker"`
	Listener   string    `json:"listener"`
	SpeakerID  EntityID  `json:"speaker_id"`
	ListenerID EntityID  `json:"listener_id"`
	Profession string    `json:"profession"`
	Mood       string    `json:"mood"`
	Content    string    `json:"content"`
	Monologue  string    `json:"internal_monologue,omitempty"`
	Sentiment  string    `json:"sentiment"`
	RumorDelta float64   `json:"rumor_delta"`
	// GraphContext is the human-readable provenance of the memories that
	// informed the prompt, e.g. "Rylan told Mara about this two turns ago".
	GraphContext []string  `json:"graph_context,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

type RumorEntry struct {
	Turn    int     `json:"turn"`
	Speaker string  `json:"speaker"`
	Content string  `json:"content"`
	Delta   float64 `json:"delta"`
}

// WorldState is the shared mutable record updated once per completed turn.
// Values published to readers are always full copies.
type WorldState struct {
	RumorHeat         float64      `json:"rumor_heat"`
	GuardAlertLevel   float64      `json:"guard_alert_level"`
	ShopPriceModifier float64      `json:"shop_price_modifier"`
	LastEvent         string       `json:"last_event"`
	RumorLog          []RumorEntry `json:"rumor_log"`
}

// ContextMemory is one retrieved memory with its score and provenance.
type ContextMemory struct {
	MemoryID   EntityID `json:"memory_id"`
	Content    string   `json:"content"`
	Owner      EntityID `json:"owner"`
	Turn       int      `json:"turn"`
	PathLength int      `json:"path_length"`
	Score      float64  `json:"score"`
	Provenance string   `json:"provenance"`
}

// SpeakerProfile is the persona material handed to the generation boundary.
type SpeakerProfile struct {
	Name       string   `json:"name"`
	Title      string   `json:"title"`
	Profession string   `json:"profession"`
	Voice      string   `json:"voice"`
	Mood       string   `json:"mood"`
	RumorBias  float64  `json:"rumor_bias"`
	Traits     []string `json:"traits,omitempty"`
	Goals      []string `json:"goals,omitempty"`
	Forbidden  []string `json:"forbidden_topics,omitempty"`
}

type ExchangeLine struct {
	Speaker string `json:"speaker"`
	Content string `json:"content"`
}

// GenerationRequest is the envelope sent across the generation boundary.
// Strict marks the re-prompt after a malformed response.
type GenerationRequest struct {
	Speaker  SpeakerProfile  `json:"speaker"`
	Listener SpeakerProfile  `json:"listener"`
	Topic    string          `json:"topic"`
	History  []ExchangeLine  `json:"history,omitempty"`
	Context  []ContextMemory `json:"context,omitempty"`
	Strict   bool            `json:"-"`
}

// GenerationResult is the validated response from the generation boundary.
type GenerationResult struct {
	Utterance  string  `json:"utterance"`
	Monologue  string  `json:"internal_monologue,omitempty"`
	RumorDelta float64 `json:"rumor_delta"`
	NewMemory  string  `json:"new_memory,omitempty"`
	Sentiment  string  `json:"sentiment"`
}

// Chat roles used by LLM-backed dialogue providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type PersonalityType string

const (
	PersonalityGossip  PersonalityType = "gossip"
	PersonalityStoic   PersonalityType = "stoic"
	PersonalityNeutral PersonalityType = "neutral"
)

type MutationClass string

const (
	MutationUnchanged   MutationClass = "unchanged"
	MutationParaphrased MutationClass = "paraphrased"
	MutationMutated     MutationClass = "mutated"
)

// Trace records one turn whose utterance carried the injected secret.
type Trace struct {
	ExperimentID string          `json:"experiment_id"`
	Turn         int             `json:"turn"`
	Speaker      string          `json:"speaker"`
	Listener     string          `json:"listener"`
	Personality  PersonalityType `json:"personality"`
	Content      string          `json:"content"`
	Similarity   float64         `json:"similarity"`
	Class        MutationClass   `json:"classification"`
	NewlyReached bool            `json:"newly_reached"`
	At           time.Time       `json:"at"`
}

type Experiment struct {
	ID            string     `json:"id"`
	Secret        string     `json:"secret"`
	SeedAgent     string     `json:"seed_agent"`
	StartTurn     int        `json:"start_turn"`
	StartedAt     time.Time  `json:"started_at"`
	ConcludedAt   *time.Time `json:"concluded_at,omitempty"`
	Traces        []Trace    `json:"traces,omitempty"`
	AgentsReached []string   `json:"agents_reached,omitempty"`
}

type PersonalityStats struct {
	Traces         int     `json:"traces"`
	MeanSimilarity float64 `json:"mean_similarity"`
	MutationRate   float64 `json:"mutation_rate"`
	AgentsReached  int     `json:"agents_reached"`
	SpreadVelocity float64 `json:"spread_velocity"`
}

// PropagationStats aggregates an experiment's traces by carrier personality.
// GossipToStoicRatio is nil when the stoic spread velocity is zero.
type PropagationStats struct {
	ExperimentID       string                               `json:"experiment_id"`
	Secret             string                               `json:"secret"`
	SeedAgent          string                               `json:"seed_agent"`
	Active             bool                                 `json:"active"`
	TurnsElapsed       int                                  `json:"turns_elapsed"`
	TraceCount         int                                  `json:"trace_count"`
	MeanSimilarity     float64                              `json:"mean_similarity"`
	AgentsReached      []string                             `json:"agents_reached"`
	PropagationRate    float64                              `json:"propagation_rate"`
	ByPersonality      map[PersonalityType]PersonalityStats `json:"by_personality"`
	GossipToStoicRatio *float64                             `json:"gossip_to_stoic_ratio,omitempty"`
}

type EventKind string

const (
	EventTurn                EventKind = "turn"
	EventExperimentOpened    EventKind = "experiment_opened"
	EventExperimentConcluded EventKind = "experiment_concluded"
	EventReset               EventKind = "reset"
)

// Event is the per-turn envelope pushed to subscribers. Turn, Trace and
// Experiment are set depending on Kind; World is always a snapshot.
type Event struct {
	Kind       EventKind     `json:"kind"`
	Turn       *DialogueTurn `json:"turn,omitempty"`
	World      WorldState    `json:"world"`
	Trace      *Trace        `json:"trace,omitempty"`
	Experiment *Experiment   `json:"experiment,omitempty"`
}

// Snapshot is the pull-query view of the running simulation.
type Snapshot struct {
	Turn          int            `json:"turn"`
	State         string         `json:"state"`
	World         WorldState     `json:"world"`
	History       []DialogueTurn `json:"history,omitempty"`
	Party         []string       `json:"party"`
	Topic         string         `json:"topic"`
	TrackerActive bool           `json:"tracker_active"`
}
