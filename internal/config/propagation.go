package config

import (
	"context"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/rumormill/pkg/log"
)

// PropagationConfig holds the tracker thresholds and the trait sets used
// for personality classification. All of them are configuration rather
// than hardcoded branches so experiments stay reproducible across tunings.
type PropagationConfig struct {
	TraceThreshold   float64 `env:"PROP_TRACE_THRESHOLD" envDefault:"0.15"`
	UnchangedFloor   float64 `env:"PROP_UNCHANGED_FLOOR" envDefault:"0.85"`
	ParaphrasedFloor float64 `env:"PROP_PARAPHRASED_FLOOR" envDefault:"0.5"`

	GossipTraits []string `env:"PROP_GOSSIP_TRAITS" envSeparator:"," envDefault:"curious,talkative,dramatic,theatrical"`
	StoicTraits  []string `env:"PROP_STOIC_TRAITS" envSeparator:"," envDefault:"reserved,guarded,careful,quiet"`
}

func NewPropagationConfig(ctx context.Context) *PropagationConfig {
	c := &PropagationConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Propagation config")
	}
	return c
}
