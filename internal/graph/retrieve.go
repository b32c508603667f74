package graph

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sandevgo/rumormill/internal/core"
)

// RetrieverConfig tunes hearsay depth and scoring.
type RetrieverConfig struct {
	// MaxHops bounds the social-edge walk away from the asking agent.
	MaxHops int
	// MaxResults caps how many memories a query returns.
	MaxResults int

	OverlapWeight float64
	PathWeight    float64
	RecencyWeight float64
}

func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		MaxHops:       2,
		MaxResults:    5,
		OverlapWeight: 2.0,
		PathWeight:    1.5,
		RecencyWeight: 1.0,
	}
}

// Retriever answers "what does this agent know about that" by combining the
// agent's own memories with hearsay reachable over social edges.
type Retriever struct {
	store   *Store
	matcher *Matcher
	cfg     RetrieverConfig
}

func NewRetriever(store *Store, matcher *Matcher, cfg RetrieverConfig) *Retriever {
	if cfg.MaxHops < 0 {
		cfg.MaxHops = 0
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultRetrieverConfig().MaxResults
	}
	return &Retriever{store: store, matcher: matcher, cfg: cfg}
}

type candidate struct {
	memory  core.Entity
	owner   core.Entity
	pathLen int
	// chain holds the npc ids from the asking agent to the memory owner,
	// inclusive, for provenance rendering. Empty for firsthand memories.
	chain   []core.EntityID
	overlap int
}

// Retrieve scores and ranks the memories relevant to topic from agentID's
// point of view. It also returns the topic entities recognized in the text.
// Identical inputs against an identical graph produce identical output.
func (r *Retriever) Retrieve(agentID core.EntityID, topic string, currentTurn int) ([]core.ContextMemory, []core.EntityID, error) {
	agent, ok := r.store.Get(agentID)
	if !ok {
		return nil, nil, fmt.Errorf("retrieve for %s: %w", agentID, core.ErrUnknownEntity)
	}
	if agent.Type != core.EntityNPC {
		return nil, nil, fmt.Errorf("retrieve for %s: agent must be an npc", agentID)
	}

	topicIDs := r.matcher.Extract(topic)
	if len(topicIDs) == 0 {
		return nil, topicIDs, nil
	}
	topicSet := make(map[core.EntityID]struct{}, len(topicIDs))
	for _, id := range topicIDs {
		topicSet[id] = struct{}{}
	}

	seen := make(map[core.EntityID]struct{})
	var candidates []candidate

	collect := func(owner core.Entity, pathLen int, chain []core.EntityID) {
		memories, err := r.store.Neighbors(owner.ID, core.DirOut, core.RelRemembers)
		if err != nil {
			return
		}
		for _, n := range memories {
			if _, dup := seen[n.Entity.ID]; dup {
				continue
			}
			overlap := r.mentionOverlap(n.Entity.ID, topicSet)
			if overlap == 0 {
				continue
			}
			seen[n.Entity.ID] = struct{}{}
			candidates = append(candidates, candidate{
				memory:  n.Entity,
				owner:   owner,
				pathLen: pathLen,
				chain:   chain,
				overlap: overlap,
			})
		}
	}

	// Firsthand memories sit at path length 1.
	collect(agent, 1, nil)

	// Hearsay: breadth-first over social edges in both directions, so an
	// agent can draw on what a confidant heard as well as what they told.
	// First discovery fixes the path, which keeps it shortest.
	visited := map[core.EntityID]struct{}{agentID: {}}
	cameFrom := make(map[core.EntityID]core.EntityID)
	frontier := []core.EntityID{agentID}

	for depth := 1; depth <= r.cfg.MaxHops && len(frontier) > 0; depth++ {
		var next []core.EntityID
		for _, id := range frontier {
			neighbors, err := r.store.Neighbors(id, core.DirBoth, core.SocialRelations...)
			if err != nil {
				continue
			}
			for _, n := range neighbors {
				if n.Entity.Type != core.EntityNPC {
					continue
				}
				if _, done := visited[n.Entity.ID]; done {
					continue
				}
				visited[n.Entity.ID] = struct{}{}
				cameFrom[n.Entity.ID] = id
				next = append(next, n.Entity.ID)
				collect(n.Entity, depth+1, rebuildChain(cameFrom, agentID, n.Entity.ID))
			}
		}
		frontier = next
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		si, sj := r.score(candidates[i], currentTurn), r.score(candidates[j], currentTurn)
		if si != sj {
			return si > sj
		}
		if candidates[i].pathLen != candidates[j].pathLen {
			return candidates[i].pathLen < candidates[j].pathLen
		}
		if candidates[i].memory.CreatedTurn != candidates[j].memory.CreatedTurn {
			return candidates[i].memory.CreatedTurn > candidates[j].memory.CreatedTurn
		}
		return candidates[i].memory.ID < candidates[j].memory.ID
	})

	if len(candidates) > r.cfg.MaxResults {
		candidates = candidates[:r.cfg.MaxResults]
	}

	result := make([]core.ContextMemory, 0, len(candidates))
	for _, c := range candidates {
		result = append(result, core.ContextMemory{
			MemoryID:   c.memory.ID,
			Content:    MemoryContent(c.memory),
			Owner:      c.owner.ID,
			Turn:       c.memory.CreatedTurn,
			PathLength: c.pathLen,
			Score:      r.score(c, currentTurn),
			Provenance: r.provenance(agent, c, currentTurn),
		})
	}
	return result, topicIDs, nil
}

func (r *Retriever) mentionOverlap(memID core.EntityID, topicSet map[core.EntityID]struct{}) int {
	mentions, err := r.store.Neighbors(memID, core.DirOut, core.RelMentions)
	if err != nil {
		return 0
	}
	overlap := 0
	counted := make(map[core.EntityID]struct{}, len(mentions))
	for _, n := range mentions {
		if _, dup := counted[n.Entity.ID]; dup {
			continue
		}
		counted[n.Entity.ID] = struct{}{}
		if _, ok := topicSet[n.Entity.ID]; ok {
			overlap++
		}
	}
	return overlap
}

func (r *Retriever) score(c candidate, currentTurn int) float64 {
	age := currentTurn - c.memory.CreatedTurn
	if age < 0 {
		age = 0
	}
	return float64(c.overlap)*r.cfg.OverlapWeight +
		(1.0/float64(c.pathLen))*r.cfg.PathWeight +
		(1.0/float64(1+age))*r.cfg.RecencyWeight
}

func rebuildChain(cameFrom map[core.EntityID]core.EntityID, from, to core.EntityID) []core.EntityID {
	var reversed []core.EntityID
	for at := to; ; {
		reversed = append(reversed, at)
		if at == from {
			break
		}
		at = cameFrom[at]
	}
	chain := make([]core.EntityID, 0, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		chain = append(chain, reversed[i])
	}
	return chain
}

// provenance renders a human-readable line describing how the agent came to
// hold this memory, e.g. "Rylan told Mara about this two turns ago".
func (r *Retriever) provenance(agent core.Entity, c candidate, currentTurn int) string {
	age := turnsAgoPhrase(currentTurn - c.memory.CreatedTurn)

	if c.pathLen <= 1 {
		return fmt.Sprintf("%s recalls this firsthand, %s", agent.Name, age)
	}

	if c.pathLen == 2 {
		if edge, ok := r.edgeBetween(agent.ID, c.owner.ID, core.RelTold); ok {
			teller, listener := agent.Name, c.owner.Name
			if edge.Src == c.owner.ID {
				teller, listener = c.owner.Name, agent.Name
			}
			return fmt.Sprintf("%s told %s about this %s", teller, listener, age)
		}
		if _, ok := r.edgeBetween(agent.ID, c.owner.ID, core.RelKnows); ok {
			return fmt.Sprintf("%s knows %s, who remembers this %s", agent.Name, c.owner.Name, age)
		}
		return fmt.Sprintf("%s heard this through %s, %s", agent.Name, c.owner.Name, age)
	}

	names := make([]string, 0, len(c.chain)-1)
	for _, id := range c.chain[1:] {
		if e, ok := r.store.Get(id); ok {
			names = append(names, e.Name)
		}
	}
	return fmt.Sprintf("%s heard it by way of %s, %s", agent.Name, strings.Join(names, " and then "), age)
}

// edgeBetween finds any edge of type t between a and b in either direction.
func (r *Retriever) edgeBetween(a, b core.EntityID, t core.RelationType) (core.Relationship, bool) {
	neighbors, err := r.store.Neighbors(a, core.DirBoth, t)
	if err != nil {
		return core.Relationship{}, false
	}
	for _, n := range neighbors {
		if n.Entity.ID == b {
			return n.Edge, true
		}
	}
	return core.Relationship{}, false
}

var smallNumbers = []string{"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine", "ten", "eleven", "twelve"}

func turnsAgoPhrase(d int) string {
	switch {
	case d <= 0:
		return "this turn"
	case d == 1:
		return "a turn ago"
	case d < len(smallNumbers):
		return smallNumbers[d] + " turns ago"
	default:
		return strconv.Itoa(d) + " turns ago"
	}
}
