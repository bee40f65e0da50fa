package contracts

import (
	"fmt"
	"math"
	"sort"
)

// Factor names
const (
	FactorTechnical      = "technical"
	FactorFundamental    = "fundamental"
	FactorMomentum       = "momentum"
	FactorMacro          = "macro"
	FactorVolumeDelivery = "volume_delivery"
)

// Weight bounds
const (
	MinWeight       = 0.02
	WeightTolerance = 1e-6
)

// WeightSet maps factor name to weight
// ⭐ SSOT: 팩터 가중치 불변식(합 1, 최소 0.02)은 여기서만 검증
type WeightSet map[string]float64

// DefaultWeights returns the static weights used before any adaptation
func DefaultWeights() WeightSet {
	return WeightSet{
		FactorTechnical:      0.30,
		FactorFundamental:    0.25,
		FactorMomentum:       0.20,
		FactorMacro:          0.15,
		FactorVolumeDelivery: 0.10,
	}
}

// Factors returns the factor names in sorted order
func (w WeightSet) Factors() []string {
	names := make([]string, 0, len(w))
	for name := range w {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sum returns the total weight
func (w WeightSet) Sum() float64 {
	total := 0.0
	for _, v := range w {
		total += v
	}
	return total
}

// Clone returns an independent copy
func (w WeightSet) Clone() WeightSet {
	out := make(WeightSet, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// Normalize rescales the weights to sum to 1. A zero-sum set becomes uniform.
func (w WeightSet) Normalize() WeightSet {
	out := make(WeightSet, len(w))
	if len(w) == 0 {
		return out
	}

	total := w.Sum()
	if total <= 0 {
		uniform := 1.0 / float64(len(w))
		for k := range w {
			out[k] = uniform
		}
		return out
	}

	for k, v := range w {
		out[k] = v / total
	}
	return out
}

// Validate checks Σ = 1 ± 1e-6 and every weight ≥ MinWeight
func (w WeightSet) Validate() error {
	if len(w) == 0 {
		return fmt.Errorf("%w: empty weight set", ErrInvalid)
	}
	for _, name := range w.Factors() {
		v := w[name]
		if math.IsNaN(v) || v < MinWeight-WeightTolerance {
			return fmt.Errorf("%w: weight %s=%.6f below floor %.2f", ErrInvalid, name, v, MinWeight)
		}
	}
	if sum := w.Sum(); math.Abs(sum-1) > WeightTolerance {
		return fmt.Errorf("%w: weights sum to %.8f", ErrInvalid, sum)
	}
	return nil
}
