package simulation

import (
	"errors"
	"fmt"
	"math"

	"meshnet-sim/internal/domain"
)

// ErrInvariantViolation is wrapped by every InvariantError.
var ErrInvariantViolation = errors.New("invariant violation")

// Invariant names.
const (
	InvariantSupplyConservation = "supply_conservation"
	InvariantCirculatingRange   = "circulating_in_range"
	InvariantPricePositive      = "price_positive"
	InvariantEmissionBounds     = "emission_within_bounds"
	InvariantTreasuryNonNeg     = "treasury_non_negative"
)

// conservationRelTol is the relative tolerance of the supply identity.
const conservationRelTol = 1e-9

// boundsTol absorbs rounding at the emission clamp edges.
const boundsTol = 1e-6

// InvariantError reports a violated state invariant. The run is aborted;
// the state is never clamped back into range.
type InvariantError struct {
	Timestep  int
	Invariant string
	Expected  float64
	Actual    float64
	State     domain.SimulationState // snapshot after the offending update
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s at t=%d: %s expected %g, got %g (S=%.2f C=%.2f T=%.2f P=%g E=%.2f B=%.2f)",
		ErrInvariantViolation, e.Timestep, e.Invariant, e.Expected, e.Actual,
		e.State.TotalSupply, e.State.Circulating, e.State.Treasury, e.State.Price, e.State.Emission, e.State.Burn)
}

func (e *InvariantError) Unwrap() error {
	return ErrInvariantViolation
}

// bounds is the allowed emission range; nil means unchecked.
type bounds struct {
	lo, hi float64
}

// checkInvariants verifies state after step t. prevSupply is S(t) before the
// update; state holds S(t+1) and the E, B that produced it.
func checkInvariants(t int, prevSupply float64, state *domain.SimulationState, emission *bounds) error {
	fail := func(name string, expected, actual float64) error {
		return &InvariantError{Timestep: t, Invariant: name, Expected: expected, Actual: actual, State: *state}
	}

	want := prevSupply + state.Emission - state.Burn
	tol := conservationRelTol * math.Max(1, math.Abs(prevSupply))
	if math.IsNaN(state.TotalSupply) || math.Abs(state.TotalSupply-want) > tol {
		return fail(InvariantSupplyConservation, want, state.TotalSupply)
	}
	if math.IsNaN(state.Circulating) || state.Circulating < 0 {
		return fail(InvariantCirculatingRange, 0, state.Circulating)
	}
	if state.Circulating > state.TotalSupply {
		return fail(InvariantCirculatingRange, state.TotalSupply, state.Circulating)
	}
	if math.IsNaN(state.Price) || state.Price <= 0 {
		return fail(InvariantPricePositive, 0, state.Price)
	}
	if math.IsNaN(state.Treasury) || state.Treasury < 0 {
		return fail(InvariantTreasuryNonNeg, 0, state.Treasury)
	}
	if emission != nil {
		if state.Emission < emission.lo-boundsTol {
			return fail(InvariantEmissionBounds, emission.lo, state.Emission)
		}
		if state.Emission > emission.hi+boundsTol {
			return fail(InvariantEmissionBounds, emission.hi, state.Emission)
		}
	}
	return nil
}

// InvariantName returns the violated invariant's name.
func (e *InvariantError) InvariantName() string {
	return e.Invariant
}
