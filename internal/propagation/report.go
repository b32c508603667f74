package propagation

import (
	"fmt"
	"strings"

	"github.com/sandevgo/rumormill/internal/core"
)

// Report renders the experiment as markdown. Bullet lists instead of
// tables so the output survives Telegram's HTML subset unharmed.
func (t *Tracker) Report() (string, bool) {
	stats, ok := t.Stats()
	if !ok {
		return "", false
	}
	exp, _ := t.Experiment()

	var b strings.Builder
	b.WriteString("# Information Propagation Report\n\n")

	fmt.Fprintf(&b, "**Secret**: %q\n", stats.Secret)
	fmt.Fprintf(&b, "**Seed agent**: %s\n", stats.SeedAgent)
	if stats.Active {
		b.WriteString("**Status**: running\n")
	} else {
		b.WriteString("**Status**: concluded\n")
	}
	b.WriteString("\n## Spread\n\n")
	fmt.Fprintf(&b, "- Turns elapsed: %d\n", stats.TurnsElapsed)
	fmt.Fprintf(&b, "- Agents reached: %d", len(stats.AgentsReached))
	if len(stats.AgentsReached) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(stats.AgentsReached, ", "))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "- Propagation rate: %.3f agents/turn\n", stats.PropagationRate)
	fmt.Fprintf(&b, "- Traces recorded: %d\n", stats.TraceCount)
	fmt.Fprintf(&b, "- Overall fidelity: %.3f\n", stats.MeanSimilarity)

	b.WriteString("\n## By carrier personality\n")
	for _, p := range []core.PersonalityType{core.PersonalityGossip, core.PersonalityStoic, core.PersonalityNeutral} {
		ps := stats.ByPersonality[p]
		fmt.Fprintf(&b, "\n**%s**\n", capitalize(string(p)))
		fmt.Fprintf(&b, "- Traces: %d\n", ps.Traces)
		fmt.Fprintf(&b, "- Mean similarity: %.3f\n", ps.MeanSimilarity)
		fmt.Fprintf(&b, "- Mutation rate: %.3f\n", ps.MutationRate)
		fmt.Fprintf(&b, "- Agents reached: %d\n", ps.AgentsReached)
		fmt.Fprintf(&b, "- Spread velocity: %.3f agents/turn\n", ps.SpreadVelocity)
	}

	b.WriteString("\n## Findings\n\n")
	if stats.GossipToStoicRatio != nil {
		fmt.Fprintf(&b, "- Gossip-to-stoic spread ratio: %.2fx\n", *stats.GossipToStoicRatio)
	} else {
		b.WriteString("- Gossip-to-stoic spread ratio: not measurable, stoic carriers reached no one\n")
	}
	gossip := stats.ByPersonality[core.PersonalityGossip]
	stoic := stats.ByPersonality[core.PersonalityStoic]
	fmt.Fprintf(&b, "- Gossip personalities spread faster: %t\n", gossip.SpreadVelocity > stoic.SpreadVelocity)

	if len(exp.Traces) > 0 {
		b.WriteString("\n## Timeline\n\n")
		for _, tr := range exp.Traces {
			marker := ""
			if tr.NewlyReached {
				marker = " [new ear]"
			}
			fmt.Fprintf(&b, "- turn %d: %s to %s, similarity %.2f, %s%s\n",
				tr.Turn, tr.Speaker, tr.Listener, tr.Similarity, tr.Class, marker)
		}
	}

	return b.String(), true
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
