package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sandevgo/rumormill/internal/core"
)

func newTestDB(t *testing.T) *TurnsRepo {
	t.Helper()

	db, err := NewDB(context.Background(), filepath.Join(t.TempDir(), "rumormill.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewTurnsRepo(db)
}

func TestTurnRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestDB(t)

	first := core.DialogueTurn{
		Turn:         1,
		Speaker:      "Mara",
		Listener:     "Rylan",
		Profession:   "Quartermaster",
		Mood:         "grumpy",
		Sentiment:    "worried",
		Content:      "The vault sat open half the night.",
		Monologue:    "Someone is going to hang for this.",
		RumorDelta:   0.2,
		GraphContext: []string{"Mara recalls this firsthand, a turn ago"},
		Timestamp:    time.Now().UTC(),
	}
	second := core.DialogueTurn{
		Turn:      2,
		Speaker:   "Rylan",
		Listener:  "Iris",
		Content:   "I want names for the watch roster.",
		Sentiment: "tense",
		Timestamp: time.Now().UTC(),
	}

	world := core.WorldState{RumorHeat: 0.2, GuardAlertLevel: 0.26, ShopPriceModifier: 1.02}
	if err := repo.AddTurn(ctx, first, world); err != nil {
		t.Fatalf("AddTurn: %v", err)
	}
	if err := repo.AddTurn(ctx, second, world); err != nil {
		t.Fatalf("AddTurn: %v", err)
	}

	turns, err := repo.RecentTurns(ctx, 10)
	if err != nil {
		t.Fatalf("RecentTurns: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("got %d turns, want 2", len(turns))
	}

	// Chronological order, oldest first.
	if turns[0].Turn != 1 || turns[1].Turn != 2 {
		t.Errorf("order = %d, %d, want 1, 2", turns[0].Turn, turns[1].Turn)
	}

	got := turns[0]
	if got.Speaker != "Mara" || got.Listener != "Rylan" || got.Content != first.Content {
		t.Errorf("first turn = %+v", got)
	}
	if got.Profession != "Quartermaster" || got.Mood != "grumpy" || got.Monologue != first.Monologue {
		t.Errorf("persona fields lost: %+v", got)
	}
	if got.RumorDelta != 0.2 {
		t.Errorf("RumorDelta = %v", got.RumorDelta)
	}
	if len(got.GraphContext) != 1 || got.GraphContext[0] != first.GraphContext[0] {
		t.Errorf("GraphContext = %v", got.GraphContext)
	}
	if got.Timestamp.IsZero() {
		t.Error("Timestamp lost")
	}

	// Empty provenance stays empty instead of round-tripping as "null".
	if turns[1].GraphContext != nil {
		t.Errorf("second GraphContext = %v, want nil", turns[1].GraphContext)
	}
}

func TestRecentTurnsLimit(t *testing.T) {
	ctx := context.Background()
	repo := newTestDB(t)

	for i := 1; i <= 3; i++ {
		turn := core.DialogueTurn{Turn: i, Speaker: "Kel", Listener: "Suna", Content: "tick", Timestamp: time.Now().UTC()}
		if err := repo.AddTurn(ctx, turn, core.WorldState{}); err != nil {
			t.Fatalf("AddTurn %d: %v", i, err)
		}
	}

	turns, err := repo.RecentTurns(ctx, 2)
	if err != nil {
		t.Fatalf("RecentTurns: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("got %d turns, want 2", len(turns))
	}
	if turns[0].Turn != 2 || turns[1].Turn != 3 {
		t.Errorf("kept turns %d, %d, want the newest two in order", turns[0].Turn, turns[1].Turn)
	}
}

func TestExperimentRoundTrip(t *testing.T) {
	ctx := context.Background()

	db, err := NewDB(ctx, filepath.Join(t.TempDir(), "rumormill.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer db.Close()

	repo := NewExperimentsRepo(db)
	exp := core.Experiment{
		ID:        "exp-1",
		Secret:    "The mayor is secretly a vampire",
		SeedAgent: "Iris",
		StartTurn: 4,
		StartedAt: time.Now().UTC(),
	}
	if err := repo.AddExperiment(ctx, exp); err != nil {
		t.Fatalf("AddExperiment: %v", err)
	}

	for turn := 5; turn <= 6; turn++ {
		trace := core.Trace{
			ExperimentID: "exp-1",
			Turn:         turn,
			Speaker:      "Iris",
			Listener:     "Theron",
			Personality:  core.PersonalityGossip,
			Content:      exp.Secret,
			Similarity:   1.0,
			Class:        core.MutationUnchanged,
			NewlyReached: turn == 5,
			At:           time.Now().UTC(),
		}
		if err := repo.AddTrace(ctx, trace); err != nil {
			t.Fatalf("AddTrace turn %d: %v", turn, err)
		}
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM traces WHERE experiment_id = ?`, "exp-1").Scan(&count); err != nil {
		t.Fatalf("count traces: %v", err)
	}
	if count != 2 {
		t.Errorf("trace count = %d, want 2", count)
	}

	if err := repo.ConcludeExperiment(ctx, "exp-1", time.Now().UTC()); err != nil {
		t.Fatalf("ConcludeExperiment: %v", err)
	}
	var concluded bool
	if err := db.QueryRow(`SELECT concluded_at IS NOT NULL FROM experiments WHERE id = ?`, "exp-1").Scan(&concluded); err != nil {
		t.Fatalf("check concluded: %v", err)
	}
	if !concluded {
		t.Error("concluded_at not set")
	}

	if err := repo.ConcludeExperiment(ctx, "missing", time.Now().UTC()); err == nil {
		t.Error("concluding an unknown experiment should fail")
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rumormill.db")

	db, err := NewDB(ctx, path)
	if err != nil {
		t.Fatalf("first NewDB: %v", err)
	}
	db.Close()

	db, err = NewDB(ctx, path)
	if err != nil {
		t.Fatalf("second NewDB should reuse migrations: %v", err)
	}
	db.Close()
}
