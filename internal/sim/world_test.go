package sim

import (
	"math"
	"strings"
	"testing"

	"github.com/sandevgo/rumormill/internal/config"
	"github.com/sandevgo/rumormill/internal/core"
)

func worldConfig() *config.SimConfig {
	return &config.SimConfig{
		HeatDecay:     0.15,
		AlertCoupling: 0.3,
		AlertDecay:    0.1,
		AlertBaseline: 0.2,
		PriceCoupling: 0.1,
		PriceDecay:    0.05,
		RumorLogSize:  50,
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestNewWorldState(t *testing.T) {
	cfg := worldConfig()
	w := NewWorldState(cfg, "The vault door was left ajar last night.")

	if w.RumorHeat != 0 {
		t.Errorf("RumorHeat = %v, want 0", w.RumorHeat)
	}
	if w.GuardAlertLevel != 0.2 {
		t.Errorf("GuardAlertLevel = %v, want 0.2", w.GuardAlertLevel)
	}
	if w.ShopPriceModifier != 1.0 {
		t.Errorf("ShopPriceModifier = %v, want 1.0", w.ShopPriceModifier)
	}
	if w.LastEvent != "The vault door was left ajar last night." {
		t.Errorf("LastEvent = %q", w.LastEvent)
	}
	if len(w.RumorLog) != 0 {
		t.Errorf("RumorLog should start empty, got %d entries", len(w.RumorLog))
	}
}

func TestNewWorldStateTruncatesIncident(t *testing.T) {
	long := strings.Repeat("é", 300)
	w := NewWorldState(worldConfig(), long)

	if got := len([]rune(w.LastEvent)); got != lastEventLimit {
		t.Errorf("LastEvent rune length = %d, want %d", got, lastEventLimit)
	}
}

func TestApplyTurnCouplings(t *testing.T) {
	cfg := worldConfig()
	w := NewWorldState(cfg, "quiet morning")

	w = applyTurn(w, cfg, 1, "Mara", "Something moved in the vault.", 0.2)

	if !almostEqual(w.RumorHeat, 0.2) {
		t.Errorf("turn 1 RumorHeat = %v, want 0.2", w.RumorHeat)
	}
	if !almostEqual(w.GuardAlertLevel, 0.26) {
		t.Errorf("turn 1 GuardAlertLevel = %v, want 0.26", w.GuardAlertLevel)
	}
	if !almostEqual(w.ShopPriceModifier, 1.02) {
		t.Errorf("turn 1 ShopPriceModifier = %v, want 1.02", w.ShopPriceModifier)
	}
	if w.LastEvent != "Something moved in the vault." {
		t.Errorf("turn 1 LastEvent = %q", w.LastEvent)
	}

	w = applyTurn(w, cfg, 2, "Rylan", "I heard it too.", 0.35)

	// heat: 0.2*0.85 + 0.35, alert: 0.26 + 0.105 - 0.1*0.06, price: 1.02 + 0.035 - 0.05*0.02
	if !almostEqual(w.RumorHeat, 0.52) {
		t.Errorf("turn 2 RumorHeat = %v, want 0.52", w.RumorHeat)
	}
	if !almostEqual(w.GuardAlertLevel, 0.359) {
		t.Errorf("turn 2 GuardAlertLevel = %v, want 0.359", w.GuardAlertLevel)
	}
	if !almostEqual(w.ShopPriceModifier, 1.054) {
		t.Errorf("turn 2 ShopPriceModifier = %v, want 1.054", w.ShopPriceModifier)
	}

	if len(w.RumorLog) != 2 {
		t.Fatalf("RumorLog length = %d, want 2", len(w.RumorLog))
	}
	first := w.RumorLog[0]
	if first.Turn != 1 || first.Speaker != "Mara" || first.Delta != 0.2 {
		t.Errorf("first log entry = %+v", first)
	}
}

func TestApplyTurnDecaysTowardRest(t *testing.T) {
	cfg := worldConfig()
	w := core.WorldState{RumorHeat: 0.8, GuardAlertLevel: 0.9, ShopPriceModifier: 1.4}

	w = applyTurn(w, cfg, 1, "Kel", "nothing much", 0)

	if !almostEqual(w.RumorHeat, 0.68) {
		t.Errorf("RumorHeat = %v, want 0.68", w.RumorHeat)
	}
	if !almostEqual(w.GuardAlertLevel, 0.83) {
		t.Errorf("GuardAlertLevel = %v, want 0.83", w.GuardAlertLevel)
	}
	if !almostEqual(w.ShopPriceModifier, 1.38) {
		t.Errorf("ShopPriceModifier = %v, want 1.38", w.ShopPriceModifier)
	}
}

func TestApplyTurnClampsHeat(t *testing.T) {
	cfg := worldConfig()
	w := core.WorldState{RumorHeat: 0.9}

	w = applyTurn(w, cfg, 1, "Theron", "chaos!", 1.5)

	if w.RumorHeat != 1.0 {
		t.Errorf("RumorHeat = %v, want clamp at 1.0", w.RumorHeat)
	}
}

func TestApplyTurnBoundsRumorLog(t *testing.T) {
	cfg := worldConfig()
	cfg.RumorLogSize = 3
	w := core.WorldState{}

	for turn := 1; turn <= 5; turn++ {
		w = applyTurn(w, cfg, turn, "Iris", "entry", 0.1)
	}

	if len(w.RumorLog) != 3 {
		t.Fatalf("RumorLog length = %d, want 3", len(w.RumorLog))
	}
	if w.RumorLog[0].Turn != 3 || w.RumorLog[2].Turn != 5 {
		t.Errorf("RumorLog kept turns %d..%d, want 3..5", w.RumorLog[0].Turn, w.RumorLog[2].Turn)
	}
}

func TestApplyTurnTruncatesUtterance(t *testing.T) {
	cfg := worldConfig()
	long := strings.Repeat("a", 500)

	w := applyTurn(core.WorldState{}, cfg, 1, "Suna", long, 0.1)

	if got := len([]rune(w.LastEvent)); got != lastEventLimit {
		t.Errorf("LastEvent length = %d, want %d", got, lastEventLimit)
	}
	if got := len([]rune(w.RumorLog[0].Content)); got != lastEventLimit {
		t.Errorf("log content length = %d, want %d", got, lastEventLimit)
	}
}

func TestApplyTurnDoesNotMutateInput(t *testing.T) {
	cfg := worldConfig()
	orig := core.WorldState{RumorHeat: 0.5, RumorLog: []core.RumorEntry{{Turn: 1, Speaker: "Mara"}}}

	_ = applyTurn(orig, cfg, 2, "Rylan", "news", 0.2)

	if orig.RumorHeat != 0.5 || len(orig.RumorLog) != 1 {
		t.Errorf("input mutated: %+v", orig)
	}
}

func TestCopyWorldIsolatesRumorLog(t *testing.T) {
	orig := core.WorldState{RumorLog: []core.RumorEntry{{Speaker: "Mara"}, {Speaker: "Kel"}}}

	cp := copyWorld(orig)
	cp.RumorLog[0].Speaker = "changed"

	if orig.RumorLog[0].Speaker != "Mara" {
		t.Error("copy shares the rumor log backing array")
	}
}
