package services

import "math/rand/v2"

// RandSource abstracts the single point of randomness in the system: the
// variant draw for a fresh session. Tests inject a deterministic source and
// assert exact split outcomes.
type RandSource interface {
	// Float64 returns a uniform value in [0, 1).
	Float64() float64
}

type systemRand struct{}

func (systemRand) Float64() float64 { return rand.Float64() }

// SystemRand is the unseeded production source.
func SystemRand() RandSource { return systemRand{} }
