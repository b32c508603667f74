package dialogue

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"

	"github.com/sandevgo/rumormill/internal/core"
	"github.com/sandevgo/rumormill/internal/persona"
)

// Template is the offline dialogue provider: seeded, deterministic, zero
// network. It assembles lines from voice-specific fragments so demo runs
// still read in character.
type Template struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewTemplate builds the provider. Seed 0 falls back to a fixed seed so
// unconfigured runs stay reproducible.
func NewTemplate(seed int64) *Template {
	if seed == 0 {
		seed = 1
	}
	return &Template{rng: rand.New(rand.NewSource(seed))}
}

var openers = map[string][]string{
	"anxious":    {"Look, ", "Between you and me, ", "I shouldn't say this, but ", "Don't repeat this, "},
	"grumpy":     {"Hmph. ", "Typical. ", "You won't believe it. Actually, you will. ", "Silver says "},
	"smooth":     {"Hypothetically speaking... ", "A little bird mentioned ", "If one were curious... ", "Word at the docks is "},
	"theatrical": {"Picture this, my friend: ", "Ah, a tale unfolds! ", "Dear heart, have you heard? ", "The whispers compose themselves: "},
	"scattered":  {"No no no wait, ", "So here's the thing, three things actually, ", "I was just calibrating when, ", "Between explosions, I noticed "},
	"calm":       {"Interesting... ", "I've been noticing ", "The symptoms suggest ", "One hears things, tending to the unwell... "},
}

var reactions = map[string][]string{
	"worried":    {"and it keeps gnawing at me", "and I can't shake it", "and nobody's doing anything about it"},
	"suspicious": {"and I don't like what it implies", "and someone's covering tracks", "and the timing is too convenient"},
	"excited":    {"and this changes everything", "and we could turn this to our advantage", "and imagine the possibilities"},
	"bitter":     {"and of course nobody listens", "and here we are again", "and they'll blame us when it goes wrong"},
	"knowing":    {"and I've seen this pattern before", "and it connects to something bigger", "and you're smart enough to see it too"},
}

var monologues = map[string][]string{
	"worried":    {"I hope I'm wrong about this.", "Saying it out loud makes it worse.", "Should I even be telling them?"},
	"suspicious": {"They might already know more than they let on.", "Watch the eyes. The eyes always give it away."},
	"excited":    {"Oh, this is going to travel fast.", "Finally, something worth retelling."},
	"bitter":     {"Not that anyone will thank me for the warning.", "Same town, same blind eyes."},
	"knowing":    {"Let's see what they do with that.", "A seed planted in good soil."},
}

// moodReaction folds the roster's moods onto a reaction register.
var moodReaction = map[string]string{
	"suspicious": "suspicious",
	"paranoid":   "suspicious",
	"wary":       "suspicious",
	"defiant":    "bitter",
	"grumpy":     "bitter",
	"wired":      "excited",
	"melodramatic": "excited",
	"inspired":   "excited",
	"restless":   "excited",
	"serene":     "knowing",
	"knowing":    "knowing",
	"calculating": "knowing",
	"amused":     "knowing",
	"smooth":     "knowing",
	"charming":   "knowing",
	"attentive":  "knowing",
	"absorbed":   "knowing",
}

func (t *Template) Generate(_ context.Context, req core.GenerationRequest) (core.GenerationResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	snippet := req.Topic
	if len(req.Context) > 0 {
		snippet = req.Context[0].Content
	}
	if snippet == "" {
		snippet = "strange happenings"
	}
	topicHint := req.Topic
	if topicHint == "" {
		topicHint = snippet
	}

	voice := req.Speaker.Voice
	opener := t.pick(openers[voice])
	if opener == "" {
		opener = t.pick(openers["anxious"])
	}

	reactionType, ok := moodReaction[req.Speaker.Mood]
	if !ok {
		reactionType = "worried"
	}
	reaction := t.pick(reactions[reactionType])

	details := t.pick([]string{
		fmt.Sprintf("that business with %s", snippet),
		fmt.Sprintf("what happened with %s", snippet),
		fmt.Sprintf("the %s situation", strings.ToLower(snippet)),
	})
	connection := t.pick([]string{
		fmt.Sprintf("It ties back to %s", topicHint),
		fmt.Sprintf("Same pattern as %s", topicHint),
		fmt.Sprintf("Can't be coincidence with %s", topicHint),
		fmt.Sprintf("Right after %s? Please.", topicHint),
	})

	boost := 1.0
	switch req.Speaker.Mood {
	case "wired", "melodramatic", "defiant", "paranoid":
		boost = 1.15
	case "serene", "tired":
		boost = 0.9
	}
	delta := (0.05 + t.rng.Float64()*0.20) * req.Speaker.RumorBias * boost
	delta = math.Round(delta*100) / 100
	delta = math.Max(0.05, math.Min(0.35, delta))

	sentiment := persona.SentimentWorried
	switch {
	case delta > 0.28:
		sentiment = persona.SentimentUrgent
	case delta > 0.18:
		sentiment = persona.SentimentTense
	}

	utterance := fmt.Sprintf("%s%s. %s, %s.", opener, details, connection, reaction)
	memory := fmt.Sprintf("%s (%s) confided while feeling %s that %s connects to %s.",
		firstName(req.Speaker.Name), req.Speaker.Profession, req.Speaker.Mood, topicHint, snippet)

	return core.GenerationResult{
		Utterance:  utterance,
		Monologue:  t.pick(monologues[reactionType]),
		RumorDelta: delta,
		NewMemory:  memory,
		Sentiment:  sentiment,
	}, nil
}

func (t *Template) pick(options []string) string {
	if len(options) == 0 {
		return ""
	}
	return options[t.rng.Intn(len(options))]
}
