package fleet

import "github.com/shopspring/decimal"

// =============================================================================
// CALCULATOR - Kind-specific derivation of consumption figures
// =============================================================================

// CalcInput is everything a Calculator needs to derive a record's figures:
// the resolved start state, the applicable norm, and the user-supplied
// fields of the incoming record.
type CalcInput struct {
	OdometerBefore      decimal.Decimal
	FuelBeforeDeparture decimal.Decimal
	Norm                Norm

	DistanceCity   decimal.Decimal
	DistanceArea   decimal.Decimal
	OdometerAfter  decimal.NullDecimal
	Times          TimeBuckets
	FuelRefueled   decimal.Decimal
	FuelUsedActual decimal.Decimal
}

// Derived is the frozen output of a calculation. OdometerAfter is always
// settled here: taken as given when supplied, otherwise before + distance.
type Derived struct {
	Norm           AppliedNorm
	OdometerAfter  decimal.Decimal
	DistanceTotal  decimal.Decimal
	FuelUsedByNorm decimal.Decimal
	FuelOnReturn   decimal.Decimal
}

// Calculator computes derived fields for one vehicle kind. Implementations
// live in the passenger and firetruck packages; the engine dispatches on
// Vehicle.Kind. Compute must be pure - validation errors only, no I/O.
type Calculator interface {
	Kind() VehicleKind
	Compute(in CalcInput) (Derived, error)
}

// FuelOnReturn is the remainder formula shared by every vehicle kind:
// before + refueled - actually used. The actual (fact) figure may differ
// from the by-norm figure; that discrepancy drives savings/overrun.
func FuelOnReturn(before, refueled, usedActual decimal.Decimal) decimal.Decimal {
	return before.Add(refueled).Sub(usedActual)
}
