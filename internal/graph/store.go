package graph

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/sandevgo/rumormill/internal/core"
)

// Store is the in-memory knowledge graph: a directed, labeled multigraph of
// typed entities. It only ever grows within a session; reset means building
// a fresh Store. The orchestrator is the single writer, readers may query
// concurrently and always receive copies.
type Store struct {
	mu       sync.RWMutex
	entities map[core.EntityID]*core.Entity
	byType   map[core.EntityType][]core.EntityID

	// Adjacency indexes so neighbor queries never scan the edge set.
	out map[core.EntityID][]*core.Relationship
	in  map[core.EntityID][]*core.Relationship

	edgeCount   int
	edgesByType map[core.RelationType]int

	// Memory bookkeeping: normalized content for dedup, per-owner sequence
	// for stable memory names.
	memoryByContent map[string]core.EntityID
	memorySeq       map[core.EntityID]int
}

func NewStore() *Store {
	return &Store{
		entities:        make(map[core.EntityID]*core.Entity),
		byType:          make(map[core.EntityType][]core.EntityID),
		out:             make(map[core.EntityID][]*core.Relationship),
		in:              make(map[core.EntityID][]*core.Relationship),
		edgesByType:     make(map[core.RelationType]int),
		memoryByContent: make(map[string]core.EntityID),
		memorySeq:       make(map[core.EntityID]int),
	}
}

// Slug normalizes an entity name into its id component: lowercased, with
// runs of non-alphanumeric characters collapsed to a single dash.
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// MakeID derives the stable entity id from type and name, e.g. "npc:mara".
func MakeID(t core.EntityType, name string) core.EntityID {
	return core.EntityID(string(t) + ":" + Slug(name))
}

// AddEntity inserts an entity, idempotent by (type, normalized name):
// re-adding returns the existing id without touching stored attributes.
func (s *Store) AddEntity(t core.EntityType, name string, attrs map[string]any, turn int) (core.EntityID, error) {
	if !t.Valid() {
		return "", fmt.Errorf("invalid entity type %q", t)
	}
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("entity name must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addEntityLocked(t, name, attrs, turn), nil
}

func (s *Store) addEntityLocked(t core.EntityType, name string, attrs map[string]any, turn int) core.EntityID {
	id := MakeID(t, name)
	if _, ok := s.entities[id]; ok {
		return id
	}
	s.entities[id] = &core.Entity{
		ID:          id,
		Type:        t,
		Name:        strings.TrimSpace(name),
		Attrs:       attrs,
		CreatedTurn: turn,
	}
	s.byType[t] = append(s.byType[t], id)
	return id
}

// AddRelationship inserts a directed edge. Both endpoints must exist;
// duplicate (src, dst, type) edges at different turns are legal, the store
// is a multigraph.
func (s *Store) AddRelationship(src, dst core.EntityID, t core.RelationType, weight float64, attrs map[string]any, turn int) error {
	if !t.Valid() {
		return fmt.Errorf("invalid relation type %q", t)
	}
	if math.IsNaN(weight) || math.IsInf(weight, 0) {
		return fmt.Errorf("relation weight must be finite")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[src]; !ok {
		return fmt.Errorf("relationship source %s: %w", src, core.ErrUnknownEntity)
	}
	if _, ok := s.entities[dst]; !ok {
		return fmt.Errorf("relationship target %s: %w", dst, core.ErrUnknownEntity)
	}
	s.addEdgeLocked(src, dst, t, weight, attrs, turn)
	return nil
}

func (s *Store) addEdgeLocked(src, dst core.EntityID, t core.RelationType, weight float64, attrs map[string]any, turn int) {
	edge := &core.Relationship{
		Src:         src,
		Dst:         dst,
		Type:        t,
		Weight:      weight,
		Attrs:       attrs,
		CreatedTurn: turn,
	}
	s.out[src] = append(s.out[src], edge)
	s.in[dst] = append(s.in[dst], edge)
	s.edgeCount++
	s.edgesByType[t]++
}

// AddMemory creates a memory entity owned by an npc, linked by exactly one
// remembers edge at creation. Identical normalized content is never stored
// twice: a re-store by a different owner attaches an additional remembers
// edge to the existing memory instead. The returned bool reports whether a
// new entity was created.
func (s *Store) AddMemory(owner core.EntityID, content string, importance float64, turn int) (core.EntityID, bool, error) {
	if strings.TrimSpace(content) == "" {
		return "", false, fmt.Errorf("memory content must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ownerEnt, ok := s.entities[owner]
	if !ok {
		return "", false, fmt.Errorf("memory owner %s: %w", owner, core.ErrUnknownEntity)
	}
	if ownerEnt.Type != core.EntityNPC {
		return "", false, fmt.Errorf("memory owner %s must be an npc", owner)
	}

	norm := normalizeContent(content)
	if memID, ok := s.memoryByContent[norm]; ok {
		if !s.hasEdgeLocked(owner, memID, core.RelRemembers) {
			s.addEdgeLocked(owner, memID, core.RelRemembers, importance, nil, turn)
		}
		return memID, false, nil
	}

	ownerSlug := Slug(ownerEnt.Name)
	var id core.EntityID
	for {
		s.memorySeq[owner]++
		name := fmt.Sprintf("%s-%d", ownerSlug, s.memorySeq[owner])
		id = MakeID(core.EntityMemory, name)
		if _, taken := s.entities[id]; !taken {
			s.addEntityLocked(core.EntityMemory, name, map[string]any{
				"content":    strings.TrimSpace(content),
				"owner":      string(owner),
				"importance": importance,
			}, turn)
			break
		}
	}

	s.addEdgeLocked(owner, id, core.RelRemembers, importance, nil, turn)
	s.memoryByContent[norm] = id
	return id, true, nil
}

func (s *Store) hasEdgeLocked(src, dst core.EntityID, t core.RelationType) bool {
	for _, e := range s.out[src] {
		if e.Dst == dst && e.Type == t {
			return true
		}
	}
	return false
}

// Neighbors returns the edges touching id in the given direction, optionally
// filtered by relation types, each paired with the entity on the far side.
func (s *Store) Neighbors(id core.EntityID, dir core.Direction, rels ...core.RelationType) ([]core.Neighbor, error) {
	var filter map[core.RelationType]struct{}
	if len(rels) > 0 {
		filter = make(map[core.RelationType]struct{}, len(rels))
		for _, r := range rels {
			filter[r] = struct{}{}
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.entities[id]; !ok {
		return nil, fmt.Errorf("neighbors of %s: %w", id, core.ErrUnknownEntity)
	}

	var result []core.Neighbor
	appendEdges := func(edges []*core.Relationship, pickFar func(*core.Relationship) core.EntityID) {
		for _, e := range edges {
			if filter != nil {
				if _, ok := filter[e.Type]; !ok {
					continue
				}
			}
			far := s.entities[pickFar(e)]
			result = append(result, core.Neighbor{Edge: *e, Entity: *far})
		}
	}

	if dir == core.DirOut || dir == core.DirBoth {
		appendEdges(s.out[id], func(e *core.Relationship) core.EntityID { return e.Dst })
	}
	if dir == core.DirIn || dir == core.DirBoth {
		appendEdges(s.in[id], func(e *core.Relationship) core.EntityID { return e.Src })
	}
	return result, nil
}

func (s *Store) EntitiesByType(t core.EntityType) []core.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byType[t]
	result := make([]core.Entity, 0, len(ids))
	for _, id := range ids {
		result = append(result, *s.entities[id])
	}
	return result
}

func (s *Store) Get(id core.EntityID) (core.Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entities[id]
	if !ok {
		return core.Entity{}, false
	}
	return *e, true
}

func (s *Store) Stats() core.GraphStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := core.GraphStats{
		EntityCount:    len(s.entities),
		EdgeCount:      s.edgeCount,
		EntitiesByType: make(map[core.EntityType]int, len(s.byType)),
		EdgesByType:    make(map[core.RelationType]int, len(s.edgesByType)),
	}
	for t, ids := range s.byType {
		stats.EntitiesByType[t] = len(ids)
	}
	for t, n := range s.edgesByType {
		stats.EdgesByType[t] = n
	}
	return stats
}

// VocabEntry is one matchable entity name, pre-lowercased.
type VocabEntry struct {
	Name string
	ID   core.EntityID
}

// Vocabulary lists the names of all non-memory entities. Memory names are
// synthetic and never appear in generated text.
func (s *Store) Vocabulary() []VocabEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var vocab []VocabEntry
	for t, ids := range s.byType {
		if t == core.EntityMemory {
			continue
		}
		for _, id := range ids {
			vocab = append(vocab, VocabEntry{
				Name: strings.ToLower(s.entities[id].Name),
				ID:   id,
			})
		}
	}
	return vocab
}

// MemoryContent reads the text carried by a memory entity.
func MemoryContent(e core.Entity) string {
	s, _ := e.Attrs["content"].(string)
	return s
}

// MemoryOwner reads the id of the npc that first stored a memory entity.
func MemoryOwner(e core.Entity) core.EntityID {
	s, _ := e.Attrs["owner"].(string)
	return core.EntityID(s)
}

func normalizeContent(content string) string {
	return strings.ToLower(strings.Join(strings.Fields(content), " "))
}
