package config

import (
	"context"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/rumormill/pkg/log"
)

// SimConfig collects the tunables of the retrieval scoring, the world-state
// couplings and the step pacing. Defaults match the documented heuristics.
type SimConfig struct {
	MaxHops    int `env:"SIM_MAX_HOPS" envDefault:"2"`
	MaxResults int `env:"SIM_MAX_RESULTS" envDefault:"5"`

	// Retrieval scoring weights: entity overlap, inverse path length,
	// recency decay.
	OverlapWeight float64 `env:"SIM_OVERLAP_WEIGHT" envDefault:"2.0"`
	PathWeight    float64 `env:"SIM_PATH_WEIGHT" envDefault:"1.5"`
	RecencyWeight float64 `env:"SIM_RECENCY_WEIGHT" envDefault:"1.0"`

	StepTimeout time.Duration `env:"SIM_STEP_TIMEOUT" envDefault:"30s"`
	LoopDelay   time.Duration `env:"SIM_LOOP_DELAY" envDefault:"4s"`
	// Seed of the pair-selection RNG; 0 derives one from the clock.
	Seed int64 `env:"SIM_SEED" envDefault:"0"`

	MinRumorDelta float64 `env:"SIM_MIN_RUMOR_DELTA" envDefault:"0.05"`
	MaxRumorDelta float64 `env:"SIM_MAX_RUMOR_DELTA" envDefault:"0.35"`

	// World-state couplings. Heat decays toward zero, alert toward its
	// baseline, price toward 1.0, so rumors fade when unreinforced.
	HeatDecay     float64 `env:"SIM_HEAT_DECAY" envDefault:"0.15"`
	AlertCoupling float64 `env:"SIM_ALERT_COUPLING" envDefault:"0.3"`
	AlertDecay    float64 `env:"SIM_ALERT_DECAY" envDefault:"0.1"`
	AlertBaseline float64 `env:"SIM_ALERT_BASELINE" envDefault:"0.2"`
	PriceCoupling float64 `env:"SIM_PRICE_COUPLING" envDefault:"0.1"`
	PriceDecay    float64 `env:"SIM_PRICE_DECAY" envDefault:"0.05"`

	PromptTokenBudget int `env:"SIM_PROMPT_TOKEN_BUDGET" envDefault:"600"`
	ThreadDepth       int `env:"SIM_THREAD_DEPTH" envDefault:"10"`
	RumorLogSize      int `env:"SIM_RUMOR_LOG_SIZE" envDefault:"50"`
	PendingWeight     int `env:"SIM_PENDING_WEIGHT" envDefault:"2"`
}

func NewSimConfig(ctx context.Context) *SimConfig {
	c := &SimConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Sim config")
	}
	return c
}
