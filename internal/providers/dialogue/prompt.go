package dialogue

import (
	"fmt"
	"strings"

	"github.com/sandevgo/rumormill/internal/core"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const systemPrompt = `You are a master dialogue writer for a living medieval fantasy town.
Your job is to write ONE line of naturalistic, in-character dialogue.

CRITICAL RULES:
1. Write ONLY the spoken words in "utterance": no narration, no stage directions, no asterisks
2. Capture the speaker's distinct voice: vocabulary, sentence rhythm, verbal tics
3. Use contractions naturally, let characters trail off or interrupt themselves
4. Their profession colors what details they notice, their mood colors how they say it
5. AVOID generic phrases like "I heard a rumor", avoid exposition dumps
6. Never start with the listener's name, people rarely do that in real speech

The dialogue should feel like eavesdropping on a real conversation, not reading a script.

Respond with a single JSON object and nothing else, using exactly these keys:
{"utterance": "the spoken line", "monologue": "one short private thought", "rumor_delta": 0.15, "sentiment": "worried", "new_memory": "a brief note on the new information shared"}

- "rumor_delta" is a number between 0.05 (idle chat) and 0.35 (explosive revelation)
- "sentiment" is one of "worried", "tense", "urgent"
- "new_memory" must record something NEW, not repeat an existing memory`

const strictSuffix = `

Your previous answer could not be parsed. Output ONLY the JSON object, no markdown fences, no commentary.`

// BuildMessages renders a generation request into chat-completion messages.
func BuildMessages(req core.GenerationRequest) []chatMessage {
	system := systemPrompt
	if req.Strict {
		system += strictSuffix
	}

	var b strings.Builder

	fmt.Fprintf(&b, "SPEAKER (the one talking now):\n%s\n", profileCard(req.Speaker, true))
	fmt.Fprintf(&b, "\nLISTENER:\n%s\n", profileCard(req.Listener, false))

	fmt.Fprintf(&b, "\nWhat they're currently discussing: %s\n", req.Topic)

	b.WriteString("\nWHAT THE SPEAKER REMEMBERS:\n")
	if len(req.Context) == 0 {
		b.WriteString("- No prior memories\n")
	}
	for _, m := range req.Context {
		fmt.Fprintf(&b, "- %s (%s)\n", m.Content, m.Provenance)
	}

	if len(req.History) > 0 {
		b.WriteString("\nRECENT CONVERSATION (respond to this, don't repeat it):\n")
		for _, line := range req.History {
			fmt.Fprintf(&b, "%s: %q\n", line.Speaker, line.Content)
		}
		b.WriteString("\nBuild on what was just said. React, add new information, challenge it, or take it in a new direction.\n")
	}

	fmt.Fprintf(&b, "\nWrite what %s says to %s RIGHT NOW, then fill the other JSON keys.",
		firstName(req.Speaker.Name), firstName(req.Listener.Name))

	return []chatMessage{
		{Role: core.RoleSystem, Content: system},
		{Role: core.RoleUser, Content: b.String()},
	}
}

func profileCard(p core.SpeakerProfile, full bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s - %s\n", p.Title, p.Profession)
	fmt.Fprintf(&b, "Voice: %s\n", p.Voice)
	fmt.Fprintf(&b, "Current mood: %s", p.Mood)
	if !full {
		return b.String()
	}
	if len(p.Traits) > 0 {
		fmt.Fprintf(&b, "\nTraits: %s", strings.Join(p.Traits, ", "))
	}
	if len(p.Goals) > 0 {
		fmt.Fprintf(&b, "\nWhat drives them: %s", strings.Join(p.Goals, ", "))
	}
	if len(p.Forbidden) > 0 {
		fmt.Fprintf(&b, "\nThey will not speak of: %s", strings.Join(p.Forbidden, ", "))
	}
	return b.String()
}

func firstName(name string) string {
	if i := strings.IndexByte(name, ','); i >= 0 {
		return strings.TrimSpace(name[:i])
	}
	return name
}
