package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sandevgo/rumormill/internal/core"
)

type ExperimentsRepo struct {
	db *sql.DB
}

func NewExperimentsRepo(db *sql.DB) *ExperimentsRepo {
	return &ExperimentsRepo{db: db}
}

func (r *ExperimentsRepo) AddExperiment(ctx context.Context, exp core.Experiment) error {
	query := `INSERT INTO experiments (id, secret, seed_agent, start_turn, started_at)
		VALUES (?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, exp.ID, exp.Secret, exp.SeedAgent, exp.StartTurn, exp.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to insert experiment: %w", err)
	}
	return nil
}

func (r *ExperimentsRepo) AddTrace(ctx context.Context, trace core.Trace) error {
	query := `INSERT INTO traces
		(experiment_id, turn, speaker, listener, personality, content, similarity, classification, newly_reached, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		trace.ExperimentID, trace.Turn, trace.Speaker, trace.Listener, string(trace.Personality),
		trace.Content, trace.Similarity, string(trace.Class), trace.NewlyReached, trace.At)
	if err != nil {
		return fmt.Errorf("failed to insert trace: %w", err)
	}
	return nil
}

func (r *ExperimentsRepo) ConcludeExperiment(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE experiments SET concluded_at = ? WHERE id = ?`, at, id)
	if err != nil {
		return fmt.Errorf("failed to conclude experiment: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("no experiment with id %s", id)
	}
	return nil
}
