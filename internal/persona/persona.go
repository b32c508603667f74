// Package persona loads the agent roster and tracks each agent's mood as
// conversations heat up or cool down.
package persona

import (
	_ "embed"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/sandevgo/rumormill/internal/core"
)

//go:embed personas.yaml
var embeddedRoster []byte

// Persona is one roster entry as declared in YAML. Moods are ordered from
// settled to agitated; position in the list is the mood ladder.
type Persona struct {
	Name            string   `yaml:"name"`
	Title           string   `yaml:"title"`
	Profession      string   `yaml:"profession"`
	Voice           string   `yaml:"voice"`
	RumorBias       float64  `yaml:"rumor_bias"`
	Traits          []string `yaml:"traits"`
	Moods           []string `yaml:"moods"`
	Goals           []string `yaml:"goals"`
	ForbiddenTopics []string `yaml:"forbidden_topics"`
	DefaultTopics   []string `yaml:"default_topics"`
}

type rosterFile struct {
	Personas []Persona `yaml:"personas"`
}

// Registry holds the active party and its mutable mood state.
type Registry struct {
	mu      sync.Mutex
	party   []Persona
	byName  map[string]int
	moodIdx map[string]int
}

// Load reads the roster from path, or from the embedded default roster when
// path is empty, and takes the first partySize entries as the party.
func Load(path string, partySize int) (*Registry, error) {
	raw := embeddedRoster
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read persona roster: %w", err)
		}
		raw = b
	}

	var file rosterFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse persona roster: %w", err)
	}
	if len(file.Personas) < 2 {
		return nil, fmt.Errorf("persona roster needs at least 2 entries, has %d", len(file.Personas))
	}

	seen := make(map[string]struct{}, len(file.Personas))
	for i, p := range file.Personas {
		if p.Name == "" {
			return nil, fmt.Errorf("persona %d has no name", i)
		}
		if _, dup := seen[p.Name]; dup {
			return nil, fmt.Errorf("duplicate persona name %q", p.Name)
		}
		seen[p.Name] = struct{}{}
		if len(p.Moods) == 0 {
			return nil, fmt.Errorf("persona %q has no moods", p.Name)
		}
		if p.Voice == "" {
			return nil, fmt.Errorf("persona %q has no voice", p.Name)
		}
	}

	if partySize < 2 {
		partySize = 2
	}
	if partySize > len(file.Personas) {
		partySize = len(file.Personas)
	}

	r := &Registry{
		party:   file.Personas[:partySize],
		byName:  make(map[string]int, partySize),
		moodIdx: make(map[string]int, partySize),
	}
	for i, p := range r.party {
		r.byName[p.Name] = i
		r.moodIdx[p.Name] = 0
	}
	return r, nil
}

// DefaultRoster returns the embedded roster file, for seeding a runtime
// directory with a copy the user can edit.
func DefaultRoster() []byte {
	return append([]byte(nil), embeddedRoster...)
}

// Names lists the party in roster order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.party))
	for _, p := range r.party {
		names = append(names, p.Name)
	}
	return names
}

func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.party)
}

// Profile renders the persona with its current mood applied.
func (r *Registry) Profile(name string) (core.SpeakerProfile, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.byName[name]
	if !ok {
		return core.SpeakerProfile{}, false
	}
	return r.profileLocked(r.party[i]), true
}

// Party renders the full roster with current moods, in roster order.
func (r *Registry) Party() []core.SpeakerProfile {
	r.mu.Lock()
	defer r.mu.Unlock()

	profiles := make([]core.SpeakerProfile, 0, len(r.party))
	for _, p := range r.party {
		profiles = append(profiles, r.profileLocked(p))
	}
	return profiles
}

func (r *Registry) profileLocked(p Persona) core.SpeakerProfile {
	return core.SpeakerProfile{
		Name:       p.Name,
		Title:      p.Title,
		Profession: p.Profession,
		Voice:      p.Voice,
		Mood:       p.Moods[r.moodIdx[p.Name]],
		RumorBias:  p.RumorBias,
		Traits:     append([]string(nil), p.Traits...),
		Goals:      append([]string(nil), p.Goals...),
		Forbidden:  append([]string(nil), p.ForbiddenTopics...),
	}
}

func (r *Registry) CurrentMood(name string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.byName[name]
	if !ok {
		return ""
	}
	return r.party[i].Moods[r.moodIdx[name]]
}

// AdvanceMood moves name's mood along its ladder in response to a turn's
// sentiment: urgent jumps two steps up, tense one, worried holds, anything
// else settles one step down.
func (r *Registry) AdvanceMood(name, sentiment string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.byName[name]
	if !ok {
		return
	}
	r.moodIdx[name] = nextMoodIndex(r.moodIdx[name], len(r.party[i].Moods)-1, sentiment)
}

// ResetMoods returns every party member to their baseline mood.
func (r *Registry) ResetMoods() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name := range r.moodIdx {
		r.moodIdx[name] = 0
	}
}

// DefaultTopics pools the party's conversation starters in roster order.
func (r *Registry) DefaultTopics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var topics []string
	for _, p := range r.party {
		topics = append(topics, p.DefaultTopics...)
	}
	return topics
}

// Traits returns the declared traits per party member, keyed by name.
func (r *Registry) Traits() map[string][]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string][]string, len(r.party))
	for _, p := range r.party {
		out[p.Name] = append([]string(nil), p.Traits...)
	}
	return out
}
