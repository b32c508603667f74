package mcptool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/sandevgo/rumormill/internal/core"
	"github.com/sandevgo/rumormill/internal/sim"
	"github.com/sandevgo/rumormill/pkg/log"
)

// Server exposes the simulation as MCP tools over stdio, so an LLM agent
// can drive the town the same way the telegram owner does.
type Server struct {
	orc *sim.Orchestrator
	mcp *server.MCPServer
}

func NewServer(orc *sim.Orchestrator) *Server {
	s := &Server{orc: orc}

	m := server.NewMCPServer(core.AppName, core.AppVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	m.AddTool(mcp.NewTool("town_state",
		mcp.WithDescription("Current simulation snapshot: turn, world state, party, topic."),
	), s.townState)

	m.AddTool(mcp.NewTool("town_step",
		mcp.WithDescription("Run exactly one dialogue exchange and return the completed turn."),
	), s.townStep)

	m.AddTool(mcp.NewTool("town_run",
		mcp.WithDescription("Run several exchanges back to back."),
		mcp.WithNumber("steps", mcp.Description("How many exchanges to run (default 5, capped at 25).")),
	), s.townRun)

	m.AddTool(mcp.NewTool("town_reset",
		mcp.WithDescription("Rebuild the world from scratch: fresh graph, seed rumors, reset moods."),
		mcp.WithString("incident", mcp.Description("Optional opening incident seeded as the first rumor.")),
	), s.townReset)

	m.AddTool(mcp.NewTool("graph_stats",
		mcp.WithDescription("Knowledge graph totals by entity and relation type."),
	), s.graphStats)

	m.AddTool(mcp.NewTool("entity_neighborhood",
		mcp.WithDescription("One entity and its direct graph neighbors."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Entity id, e.g. npc:mara or object:the-vault.")),
		mcp.WithString("direction", mcp.Description("Edge direction: out, in or both (default both).")),
	), s.entityNeighborhood)

	m.AddTool(mcp.NewTool("inject_secret",
		mcp.WithDescription("Plant a secret as one agent's memory and start tracking its spread."),
		mcp.WithString("agent", mcp.Required(), mcp.Description("Name of the agent who learns the secret.")),
		mcp.WithString("secret", mcp.Required(), mcp.Description("The secret text.")),
	), s.injectSecret)

	m.AddTool(mcp.NewTool("propagation_stats",
		mcp.WithDescription("Spread metrics of the tracked secret, grouped by carrier personality."),
	), s.propagationStats)

	m.AddTool(mcp.NewTool("propagation_timeline",
		mcp.WithDescription("Every traced appearance of the tracked secret, in turn order."),
	), s.propagationTimeline)

	m.AddTool(mcp.NewTool("propagation_report",
		mcp.WithDescription("Markdown report of the current experiment."),
	), s.propagationReport)

	m.AddTool(mcp.NewTool("run_tracked",
		mcp.WithDescription("Inject a secret, run steps, and return spread stats in one call."),
		mcp.WithString("agent", mcp.Required(), mcp.Description("Name of the agent who learns the secret.")),
		mcp.WithString("secret", mcp.Required(), mcp.Description("The secret text.")),
		mcp.WithNumber("steps", mcp.Description("How many exchanges to run (default 10).")),
		mcp.WithBoolean("conclude", mcp.Description("Freeze the experiment afterwards (default false).")),
	), s.runTracked)

	s.mcp = m
	return s
}

func (s *Server) Start(ctx context.Context) error {
	log.FromCtx(ctx).Info().Msg("starting mcp server on stdio")

	stdio := server.NewStdioServer(s.mcp)
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp stdio server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) townState(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.orc.Snapshot())
}

func (s *Server) townStep(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	turn, err := s.orc.Step(ctx)
	if err != nil {
		if errors.Is(err, core.ErrBusy) {
			return mcp.NewToolResultError("simulation busy, a step is already in flight"), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("step failed: %v", err)), nil
	}
	return jsonResult(turn)
}

func (s *Server) townRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	steps := req.GetInt("steps", 5)

	turns, err := s.orc.RunSteps(ctx, steps)
	if err != nil && len(turns) == 0 {
		if errors.Is(err, core.ErrBusy) {
			return mcp.NewToolResultError("simulation busy, stop the loop first"), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("run failed: %v", err)), nil
	}

	payload := struct {
		Turns        []core.DialogueTurn `json:"turns"`
		StoppedEarly string              `json:"stopped_early,omitempty"`
	}{Turns: turns}
	if err != nil {
		payload.StoppedEarly = err.Error()
	}
	return jsonResult(payload)
}

func (s *Server) townReset(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	incident := req.GetString("incident", "")
	s.orc.Reset(ctx, incident)
	if incident != "" {
		return mcp.NewToolResultText(fmt.Sprintf("world rebuilt around a fresh incident: %q", incident)), nil
	}
	return mcp.NewToolResultText("world rebuilt: fresh graph, seeded rumors, moods restored"), nil
}

func (s *Server) graphStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.orc.GraphStats())
}

func (s *Server) entityNeighborhood(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var dir core.Direction
	switch req.GetString("direction", "both") {
	case "out":
		dir = core.DirOut
	case "in":
		dir = core.DirIn
	case "both":
		dir = core.DirBoth
	default:
		return mcp.NewToolResultError("direction must be out, in or both"), nil
	}

	entity, ok := s.orc.Entity(core.EntityID(id))
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("no entity with id %q", id)), nil
	}
	neighbors, err := s.orc.Neighborhood(entity.ID, dir)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	payload := struct {
		Entity    core.Entity     `json:"entity"`
		Neighbors []core.Neighbor `json:"neighbors"`
	}{Entity: entity, Neighbors: neighbors}
	return jsonResult(payload)
}

func (s *Server) injectSecret(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agent, err := req.RequireString("agent")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	secret, err := req.RequireString("secret")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	id, err := s.orc.InjectSecret(ctx, agent, secret)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("inject failed: %v", err)), nil
	}

	payload := struct {
		ExperimentID string `json:"experiment_id"`
		SeedAgent    string `json:"seed_agent"`
	}{ExperimentID: id, SeedAgent: agent}
	return jsonResult(payload)
}

func (s *Server) propagationStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, ok := s.orc.PropagationStats()
	if !ok {
		return mcp.NewToolResultError("no experiment yet, inject a secret first"), nil
	}
	return jsonResult(stats)
}

func (s *Server) propagationTimeline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	timeline := s.orc.Timeline()
	if timeline == nil {
		timeline = []core.Trace{}
	}
	return jsonResult(timeline)
}

func (s *Server) propagationReport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, ok := s.orc.PropagationReport()
	if !ok {
		return mcp.NewToolResultError("no experiment yet, inject a secret first"), nil
	}
	return mcp.NewToolResultText(report), nil
}

func (s *Server) runTracked(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agent, err := req.RequireString("agent")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	secret, err := req.RequireString("secret")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	steps := req.GetInt("steps", 10)
	conclude := req.GetBool("conclude", false)

	id, err := s.orc.InjectSecret(ctx, agent, secret)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("inject failed: %v", err)), nil
	}

	turns, runErr := s.orc.RunSteps(ctx, steps)

	if conclude {
		s.orc.ConcludeExperiment()
	}

	stats, _ := s.orc.PropagationStats()
	report, _ := s.orc.PropagationReport()

	payload := struct {
		ExperimentID string                `json:"experiment_id"`
		TurnsRun     int                   `json:"turns_run"`
		Stats        core.PropagationStats `json:"stats"`
		Report       string                `json:"report"`
		StoppedEarly string                `json:"stopped_early,omitempty"`
	}{ExperimentID: id, TurnsRun: len(turns), Stats: stats, Report: report}
	if runErr != nil {
		payload.StoppedEarly = runErr.Error()
	}
	return jsonResult(payload)
}
