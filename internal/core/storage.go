package core

import (
	"context"
	"time"
)

// TurnsRepository archives completed turns. The archive is write-mostly:
// core simulation state never depends on it.
type TurnsRepository interface {
	AddTurn(ctx context.Context, turn DialogueTurn, world WorldState) error
	RecentTurns(ctx context.Context, limit int) ([]DialogueTurn, error)
}

type ExperimentsRepository interface {
	AddExperiment(ctx context.Context, exp Experiment) error
	AddTrace(ctx context.Context, trace Trace) error
	ConcludeExperiment(ctx context.Context, id string, at time.Time) error
}
