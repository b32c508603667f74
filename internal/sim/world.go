package sim

import (
	"github.com/sandevgo/rumormill/internal/config"
	"github.com/sandevgo/rumormill/internal/core"
)

const lastEventLimit = 120

// NewWorldState returns the world at rest: no heat, alert at its baseline,
// prices at par.
func NewWorldState(cfg *config.SimConfig, incident string) core.WorldState {
	return core.WorldState{
		RumorHeat:         0,
		GuardAlertLevel:   cfg.AlertBaseline,
		ShopPriceModifier: 1.0,
		LastEvent:         truncateRunes(incident, lastEventLimit),
	}
}

// applyTurn folds one turn's rumor delta into the world. Pure: the input
// is copied, never mutated. Heat decays toward zero, alert relaxes toward
// its baseline, prices toward par, so an unfed rumor dies down on its own.
func applyTurn(w core.WorldState, cfg *config.SimConfig, turn int, speaker, utterance string, delta float64) core.WorldState {
	next := w
	next.RumorLog = append(append([]core.RumorEntry(nil), w.RumorLog...), core.RumorEntry{
		Turn:    turn,
		Speaker: speaker,
		Content: truncateRunes(utterance, lastEventLimit),
		Delta:   delta,
	})
	if cfg.RumorLogSize > 0 && len(next.RumorLog) > cfg.RumorLogSize {
		next.RumorLog = next.RumorLog[len(next.RumorLog)-cfg.RumorLogSize:]
	}

	next.RumorHeat = clamp(w.RumorHeat*(1-cfg.HeatDecay)+delta, 0, 1)
	next.GuardAlertLevel = clamp(w.GuardAlertLevel+cfg.AlertCoupling*delta-cfg.AlertDecay*(w.GuardAlertLevel-cfg.AlertBaseline), 0, 1)
	next.ShopPriceModifier = clamp(w.ShopPriceModifier+cfg.PriceCoupling*delta-cfg.PriceDecay*(w.ShopPriceModifier-1.0), 0.5, 1.5)
	next.LastEvent = truncateRunes(utterance, lastEventLimit)

	return next
}

// copyWorld deep-copies the state so readers never share the rumor log
// backing array with the writer.
func copyWorld(w core.WorldState) core.WorldState {
	out := w
	out.RumorLog = append([]core.RumorEntry(nil), w.RumorLog...)
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
