package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/sandevgo/rumormill/internal/core"
	"github.com/sandevgo/rumormill/pkg/log"
)

type TurnsRepo struct {
	db *sql.DB
}

func NewTurnsRepo(db *sql.DB) *TurnsRepo {
	return &TurnsRepo{db: db}
}

func (r *TurnsRepo) AddTurn(ctx context.Context, turn core.DialogueTurn, world core.WorldState) error {
	ctxJSON, err := json.Marshal(turn.GraphContext)
	if err != nil {
		return fmt.Errorf("failed to marshal graph context: %w", err)
	}

	// Empty provenance serializes as "null"; store as empty string instead.
	ctxStr := string(ctxJSON)
	if ctxStr == "null" {
		ctxStr = ""
	}

	query := `INSERT INTO turns
		(turn, speaker, listener, profession, mood, sentiment, content, monologue,
		 rumor_delta, graph_context, rumor_heat, guard_alert_level, shop_price_modifier, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query,
		turn.Turn, turn.Speaker, turn.Listener, turn.Profession, turn.Mood, turn.Sentiment,
		turn.Content, turn.Monologue, turn.RumorDelta, ctxStr,
		world.RumorHeat, world.GuardAlertLevel, world.ShopPriceModifier, turn.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert turn: %w", err)
	}
	return nil
}

func (r *TurnsRepo) RecentTurns(ctx context.Context, limit int) ([]core.DialogueTurn, error) {
	// Fetch the LAST 'limit' turns by ordering DESC
	query := `SELECT turn, speaker, listener, profession, mood, sentiment, content, monologue,
		rumor_delta, graph_context, created_at
		FROM turns ORDER BY id DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var turns []core.DialogueTurn
	for rows.Next() {
		var t core.DialogueTurn
		var profession, mood, sentiment, monologue, graphCtx sql.NullString

		if err := rows.Scan(&t.Turn, &t.Speaker, &t.Listener, &profession, &mood, &sentiment,
			&t.Content, &monologue, &t.RumorDelta, &graphCtx, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}

		t.Profession = profession.String
		t.Mood = mood.String
		t.Sentiment = sentiment.String
		t.Monologue = monologue.String

		if graphCtx.Valid && graphCtx.String != "" && graphCtx.String != "null" {
			if err := json.Unmarshal([]byte(graphCtx.String), &t.GraphContext); err != nil {
				return nil, fmt.Errorf("failed to unmarshal graph context: %w", err)
			}
		}

		turns = append(turns, t)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Rows came back newest first; flip to chronological order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}

	log.FromCtx(ctx).Debug().Int("count", len(turns)).Msg("loaded archived turns")
	return turns, nil
}
