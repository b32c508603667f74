package mcptool

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/sandevgo/rumormill/internal/config"
	"github.com/sandevgo/rumormill/internal/core"
	"github.com/sandevgo/rumormill/internal/graph"
	"github.com/sandevgo/rumormill/internal/persona"
	"github.com/sandevgo/rumormill/internal/providers/dialogue"
	"github.com/sandevgo/rumormill/internal/sim"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	appCfg := &config.AppConfig{PartySize: 4, HistorySize: 50}
	simCfg := &config.SimConfig{
		MaxHops:           2,
		MaxResults:        5,
		OverlapWeight:     2.0,
		PathWeight:        1.5,
		RecencyWeight:     1.0,
		StepTimeout:       5 * time.Second,
		LoopDelay:         5 * time.Millisecond,
		Seed:              11,
		MinRumorDelta:     0.05,
		MaxRumorDelta:     0.35,
		HeatDecay:         0.15,
		AlertCoupling:     0.3,
		AlertDecay:        0.1,
		AlertBaseline:     0.2,
		PriceCoupling:     0.1,
		PriceDecay:        0.05,
		PromptTokenBudget: 600,
		ThreadDepth:       10,
		RumorLogSize:      50,
		PendingWeight:     2,
	}
	propCfg := &config.PropagationConfig{
		TraceThreshold:   0.15,
		UnchangedFloor:   0.85,
		ParaphrasedFloor: 0.5,
		GossipTraits:     []string{"curious", "talkative"},
		StoicTraits:      []string{"reserved", "guarded"},
	}

	registry, err := persona.Load("", 4)
	if err != nil {
		t.Fatalf("loading embedded roster: %v", err)
	}
	orc := sim.New(context.Background(), appCfg, simCfg, propCfg, dialogue.NewTemplate(3), registry)
	return NewServer(orc)
}

func callReq(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func textOf(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("tool result has no content")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want mcp.TextContent", res.Content[0])
	}
	return tc.Text
}

func TestTownStateAndStep(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	res, err := s.townState(ctx, callReq(nil))
	if err != nil {
		t.Fatalf("town_state: %v", err)
	}
	var snap core.Snapshot
	if err := json.Unmarshal([]byte(textOf(t, res)), &snap); err != nil {
		t.Fatalf("town_state payload is not valid json: %v", err)
	}
	if snap.Turn != 0 || len(snap.Party) != 4 {
		t.Errorf("snapshot = turn %d, party %d, want a fresh 4-agent world", snap.Turn, len(snap.Party))
	}

	res, err = s.townStep(ctx, callReq(nil))
	if err != nil {
		t.Fatalf("town_step: %v", err)
	}
	if res.IsError {
		t.Fatalf("town_step returned tool error: %s", textOf(t, res))
	}
	var turn core.DialogueTurn
	if err := json.Unmarshal([]byte(textOf(t, res)), &turn); err != nil {
		t.Fatalf("town_step payload is not valid json: %v", err)
	}
	if turn.Turn != 1 || turn.Speaker == "" {
		t.Errorf("turn = %+v, want turn 1 with a speaker", turn)
	}
}

func TestTownRunHonorsStepsArgument(t *testing.T) {
	s := newTestServer(t)

	res, err := s.townRun(context.Background(), callReq(map[string]any{"steps": 3}))
	if err != nil {
		t.Fatalf("town_run: %v", err)
	}
	var payload struct {
		Turns        []core.DialogueTurn `json:"turns"`
		StoppedEarly string              `json:"stopped_early"`
	}
	if err := json.Unmarshal([]byte(textOf(t, res)), &payload); err != nil {
		t.Fatalf("town_run payload is not valid json: %v", err)
	}
	if len(payload.Turns) != 3 {
		t.Errorf("ran %d turns, want 3", len(payload.Turns))
	}
	if payload.StoppedEarly != "" {
		t.Errorf("unexpected early stop: %s", payload.StoppedEarly)
	}
}

func TestTownResetSeedsIncident(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	if _, err := s.townStep(ctx, callReq(nil)); err != nil {
		t.Fatalf("town_step: %v", err)
	}

	incident := "A courier vanished on the north road."
	res, err := s.townReset(ctx, callReq(map[string]any{"incident": incident}))
	if err != nil {
		t.Fatalf("town_reset: %v", err)
	}
	if res.IsError {
		t.Fatalf("town_reset returned tool error: %s", textOf(t, res))
	}
	if !strings.Contains(textOf(t, res), "north road") {
		t.Errorf("reset confirmation should echo the incident, got %q", textOf(t, res))
	}

	snap := s.orc.Snapshot()
	if snap.Turn != 0 {
		t.Errorf("turn = %d after reset, want 0", snap.Turn)
	}
	if snap.Topic != incident {
		t.Errorf("topic = %q, want the incident", snap.Topic)
	}
}

func TestEntityNeighborhoodValidation(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	res, _ := s.entityNeighborhood(ctx, callReq(nil))
	if !res.IsError {
		t.Error("missing id should be a tool error")
	}

	res, _ = s.entityNeighborhood(ctx, callReq(map[string]any{"id": "npc:nobody"}))
	if !res.IsError {
		t.Error("unknown entity should be a tool error")
	}

	name := s.orc.Snapshot().Party[0]
	id := graph.MakeID(core.EntityNPC, name)

	res, _ = s.entityNeighborhood(ctx, callReq(map[string]any{"id": string(id), "direction": "sideways"}))
	if !res.IsError {
		t.Error("bad direction should be a tool error")
	}

	res, err := s.entityNeighborhood(ctx, callReq(map[string]any{"id": string(id)}))
	if err != nil {
		t.Fatalf("entity_neighborhood: %v", err)
	}
	if res.IsError {
		t.Fatalf("valid lookup returned tool error: %s", textOf(t, res))
	}
	var payload struct {
		Entity    core.Entity     `json:"entity"`
		Neighbors []core.Neighbor `json:"neighbors"`
	}
	if err := json.Unmarshal([]byte(textOf(t, res)), &payload); err != nil {
		t.Fatalf("payload is not valid json: %v", err)
	}
	if payload.Entity.Name != name {
		t.Errorf("entity name = %q, want %q", payload.Entity.Name, name)
	}
	if len(payload.Neighbors) == 0 {
		t.Error("a seeded npc should have neighbors")
	}
}

func TestRunTrackedLifecycle(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	res, _ := s.propagationStats(ctx, callReq(nil))
	if !res.IsError {
		t.Error("propagation_stats before any experiment should be a tool error")
	}

	agent := s.orc.Snapshot().Party[0]
	res, err := s.runTracked(ctx, callReq(map[string]any{
		"agent":    agent,
		"secret":   "The mayor pays the smugglers' guild for silence.",
		"steps":    4,
		"conclude": true,
	}))
	if err != nil {
		t.Fatalf("run_tracked: %v", err)
	}
	if res.IsError {
		t.Fatalf("run_tracked returned tool error: %s", textOf(t, res))
	}

	var payload struct {
		ExperimentID string                `json:"experiment_id"`
		TurnsRun     int                   `json:"turns_run"`
		Stats        core.PropagationStats `json:"stats"`
		Report       string                `json:"report"`
	}
	if err := json.Unmarshal([]byte(textOf(t, res)), &payload); err != nil {
		t.Fatalf("payload is not valid json: %v", err)
	}
	if payload.ExperimentID == "" {
		t.Error("expected an experiment id")
	}
	if payload.TurnsRun != 4 {
		t.Errorf("turns_run = %d, want 4", payload.TurnsRun)
	}
	if payload.Stats.Active {
		t.Error("experiment should be concluded")
	}
	if !strings.Contains(payload.Report, "smugglers") {
		t.Errorf("report should quote the secret, got:\n%s", payload.Report)
	}
}
