package archive

import (
	"context"

	"github.com/sandevgo/rumormill/internal/core"
	"github.com/sandevgo/rumormill/pkg/log"
)

// EventSource is the orchestrator surface the archive needs.
type EventSource interface {
	Subscribe() (<-chan core.Event, func())
}

// Service persists completed turns and experiment traces. It subscribes
// at construction so nothing published between wiring and Start is lost.
// Write failures are logged and skipped; the simulation never waits on
// the database.
type Service struct {
	turns  core.TurnsRepository
	exps   core.ExperimentsRepository
	events <-chan core.Event
	cancel func()
}

func New(src EventSource, turns core.TurnsRepository, exps core.ExperimentsRepository) *Service {
	events, cancel := src.Subscribe()
	return &Service{
		turns:  turns,
		exps:   exps,
		events: events,
		cancel: cancel,
	}
}

func (s *Service) Start(ctx context.Context) error {
	logger := log.FromCtx(ctx).With().Str("component", "archive").Logger()
	logger.Info().Msg("starting turn archive")

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down turn archive")
			return nil
		case ev, ok := <-s.events:
			if !ok {
				return nil
			}
			s.handle(ctx, ev)
		}
	}
}

func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()
	return nil
}

func (s *Service) handle(ctx context.Context, ev core.Event) {
	logger := log.FromCtx(ctx)

	switch ev.Kind {
	case core.EventTurn:
		if ev.Turn != nil {
			if err := s.turns.AddTurn(ctx, *ev.Turn, ev.World); err != nil {
				logger.Error().Err(err).Int("turn", ev.Turn.Turn).Msg("failed to archive turn")
			}
		}
		if ev.Trace != nil {
			if err := s.exps.AddTrace(ctx, *ev.Trace); err != nil {
				logger.Error().Err(err).Str("experiment", ev.Trace.ExperimentID).Msg("failed to archive trace")
			}
		}
	case core.EventExperimentOpened:
		if ev.Experiment == nil {
			return
		}
		if err := s.exps.AddExperiment(ctx, *ev.Experiment); err != nil {
			logger.Error().Err(err).Str("experiment", ev.Experiment.ID).Msg("failed to archive experiment")
		}
	case core.EventExperimentConcluded:
		if ev.Experiment == nil || ev.Experiment.ConcludedAt == nil {
			return
		}
		if err := s.exps.ConcludeExperiment(ctx, ev.Experiment.ID, *ev.Experiment.ConcludedAt); err != nil {
			logger.Error().Err(err).Str("experiment", ev.Experiment.ID).Msg("failed to mark experiment concluded")
		}
	}
}
