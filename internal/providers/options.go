package providers

import (
	"math/rand/v2"
	"sync"
)

// MaxSeed bounds generated seeds to 31 bits.
const MaxSeed = 1<<31 - 1

// Options are the generation parameters forwarded upstream. Nil fields are
// unset and left to the upstream's own defaults.
type Options struct {
	Temperature   *float64 `json:"temperature,omitempty"`
	TopP          *float64 `json:"top_p,omitempty"`
	TopK          *int     `json:"top_k,omitempty"`
	NumPredict    *int     `json:"num_predict,omitempty"`
	RepeatPenalty *float64 `json:"repeat_penalty,omitempty"`
	Seed          *int64   `json:"seed,omitempty"`
	Stop          []string `json:"stop,omitempty"`

	// System travels as the top-level system instruction, not as an option.
	System *string `json:"system,omitempty"`
}

// Merge returns a copy of o with every field set in over taking precedence.
// Neither operand is modified.
func (o Options) Merge(over Options) Options {
	out := o
	if over.Temperature != nil {
		out.Temperature = over.Temperature
	}
	if over.TopP != nil {
		out.TopP = over.TopP
	}
	if over.TopK != nil {
		out.TopK = over.TopK
	}
	if over.NumPredict != nil {
		out.NumPredict = over.NumPredict
	}
	if over.RepeatPenalty != nil {
		out.RepeatPenalty = over.RepeatPenalty
	}
	if over.Seed != nil {
		out.Seed = over.Seed
	}
	if over.Stop != nil {
		out.Stop = append([]string(nil), over.Stop...)
	}
	if over.System != nil {
		out.System = over.System
	}
	return out
}

// IsZero reports whether no field is set.
func (o Options) IsZero() bool {
	return o.Temperature == nil && o.TopP == nil && o.TopK == nil &&
		o.NumPredict == nil && o.RepeatPenalty == nil && o.Seed == nil &&
		o.Stop == nil && o.System == nil
}

// Resolve layers defaults < caller overrides < forced fields.
func Resolve(defaults, caller, forced Options) Options {
	return defaults.Merge(caller).Merge(forced)
}

// SeedSource hands out generation seeds.
type SeedSource interface {
	Next() int64
}

// RandomSeeds draws 31-bit seeds and never returns the same seed twice in a
// row.
type RandomSeeds struct {
	mu   sync.Mutex
	last int64
	draw func() int64
}

// NewRandomSeeds returns a SeedSource backed by math/rand/v2.
func NewRandomSeeds() *RandomSeeds {
	return &RandomSeeds{
		last: -1,
		draw: func() int64 { return rand.Int64N(MaxSeed) },
	}
}

// Next returns a fresh seed.
func (s *RandomSeeds) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	seed := s.draw()
	for seed == s.last {
		seed = s.draw()
	}
	s.last = seed
	return seed
}

// Float returns a pointer to v, for building Options literals.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }
