package telegram

import (
	"fmt"
	"strings"

	"github.com/sandevgo/rumormill/internal/core"
	"github.com/sandevgo/rumormill/internal/graph"
	"github.com/sandevgo/rumormill/internal/sim"
)

var entityOrder = []core.EntityType{
	core.EntityNPC, core.EntityLocation, core.EntityObject,
	core.EntityEvent, core.EntityConcept, core.EntityMemory,
}

var relationOrder = []core.RelationType{
	core.RelKnows, core.RelRemembers, core.RelMentions,
	core.RelTold, core.RelWitnessed, core.RelSuspects, core.RelRelatedTo,
}

func formatTurn(t core.DialogueTurn) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Turn %d: %s → %s** (%s, feeling %s)\n\n", t.Turn, t.Speaker, t.Listener, t.Profession, t.Mood)
	b.WriteString(t.Content)
	b.WriteString("\n")
	if t.Monologue != "" {
		fmt.Fprintf(&b, "\n_%s_\n", t.Monologue)
	}
	fmt.Fprintf(&b, "\nrumor %+.2f, sounding %s", t.RumorDelta, t.Sentiment)
	if len(t.GraphContext) > 0 {
		b.WriteString("\n\nDrawing on:\n")
		for _, p := range t.GraphContext {
			fmt.Fprintf(&b, "- %s\n", p)
		}
	}
	return b.String()
}

func formatTraceMark(tr core.Trace) string {
	mark := fmt.Sprintf("secret trace: %.2f similarity, %s", tr.Similarity, tr.Class)
	if tr.NewlyReached {
		mark += fmt.Sprintf(", new ear: %s", tr.Listener)
	}
	return mark
}

func formatTurnDigest(turns []core.DialogueTurn) string {
	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "**T%d %s → %s** (%+.2f): %s\n", t.Turn, t.Speaker, t.Listener, t.RumorDelta, t.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatState(s core.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**The town at turn %d** (%s)\n\n", s.Turn, s.State)
	fmt.Fprintf(&b, "Talk of the day: %s\n\n", s.Topic)
	fmt.Fprintf(&b, "rumor heat %.2f, guard alert %.2f, prices x%.2f\n", s.World.RumorHeat, s.World.GuardAlertLevel, s.World.ShopPriceModifier)
	fmt.Fprintf(&b, "last event: %s\n\n", s.World.LastEvent)
	fmt.Fprintf(&b, "Party: %s\n", strings.Join(s.Party, ", "))
	if s.TrackerActive {
		b.WriteString("A secret is being tracked, /spread for numbers\n")
	}
	return b.String()
}

func formatGraphStats(stats core.GraphStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Knowledge graph**: %d entities, %d edges\n\n", stats.EntityCount, stats.EdgeCount)
	for _, t := range entityOrder {
		if n := stats.EntitiesByType[t]; n > 0 {
			fmt.Fprintf(&b, "- %s: %d\n", t, n)
		}
	}
	b.WriteString("\n")
	for _, t := range relationOrder {
		if n := stats.EdgesByType[t]; n > 0 {
			fmt.Fprintf(&b, "- %s: %d\n", t, n)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatParty(party []core.SpeakerProfile) string {
	var b strings.Builder
	b.WriteString("**The party**\n\n")
	for _, p := range party {
		fmt.Fprintf(&b, "- **%s**, %s (%s), feeling %s\n", p.Name, p.Title, p.Profession, p.Mood)
	}
	b.WriteString("\n/who <name> for details")
	return b.String()
}

func formatAgent(orc *sim.Orchestrator, p core.SpeakerProfile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**, %s\n\n", p.Name, p.Title)
	fmt.Fprintf(&b, "%s with a %s voice, currently %s\n", p.Profession, p.Voice, p.Mood)
	if len(p.Traits) > 0 {
		fmt.Fprintf(&b, "traits: %s\n", strings.Join(p.Traits, ", "))
	}
	if len(p.Goals) > 0 {
		fmt.Fprintf(&b, "goals: %s\n", strings.Join(p.Goals, "; "))
	}
	fmt.Fprintf(&b, "gossip appetite x%.1f\n", p.RumorBias)

	neighbors, err := orc.Neighborhood(graph.MakeID(core.EntityNPC, p.Name), core.DirOut, core.RelRemembers)
	if err == nil && len(neighbors) > 0 {
		b.WriteString("\nRemembers:\n")
		for _, n := range neighbors {
			if content := graph.MemoryContent(n.Entity); content != "" {
				fmt.Fprintf(&b, "- %s\n", content)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatSpread(stats core.PropagationStats) string {
	var b strings.Builder
	status := "active"
	if !stats.Active {
		status = "concluded"
	}
	fmt.Fprintf(&b, "**Experiment `%s`** (%s)\n\n", stats.ExperimentID, status)
	fmt.Fprintf(&b, "Secret: %q, planted with %s\n", stats.Secret, stats.SeedAgent)
	fmt.Fprintf(&b, "%d turns, %d traces, mean fidelity %.2f\n", stats.TurnsElapsed, stats.TraceCount, stats.MeanSimilarity)
	if len(stats.AgentsReached) > 0 {
		fmt.Fprintf(&b, "Reached %s (rate %.3f per turn)\n", strings.Join(stats.AgentsReached, ", "), stats.PropagationRate)
	} else {
		b.WriteString("Nobody new has heard it yet\n")
	}
	if stats.GossipToStoicRatio != nil {
		fmt.Fprintf(&b, "Gossips spread it %.2fx the stoic pace\n", *stats.GossipToStoicRatio)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatTimeline(timeline []core.Trace) string {
	var b strings.Builder
	b.WriteString("**Secret timeline**\n\n")
	for _, tr := range timeline {
		fmt.Fprintf(&b, "- turn %d: %s → %s, %.2f %s", tr.Turn, tr.Speaker, tr.Listener, tr.Similarity, tr.Class)
		if tr.NewlyReached {
			b.WriteString(", new ear")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
