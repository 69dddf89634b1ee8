/*
Package firetruck derives trip record figures for fire trucks.

PURPOSE:
  Fire truck consumption has two components: driven distance at a per-km
  rate, and stationary engine operation billed per minute at different
  rates with and without the auxiliary pump engaged. The odometer reading
  after the shift is mandatory; distance is derived from it rather than
  reported directly.
*/
package firetruck

import (
	"github.com/shopspring/decimal"

	"github.com/warp/fuel-engine/fleet"
)

type Calculator struct{}

func New() Calculator { return Calculator{} }

func (Calculator) Kind() fleet.VehicleKind { return fleet.KindFireTruck }

// Compute derives the frozen figures for one fire truck record:
//
//	distance_total    = odometer_after - odometer_before
//	fuel_used_by_norm = distance_total*km_rate
//	                  + minutes_with_pump*pump_rate
//	                  + minutes_without_pump*no_pump_rate
//	fuel_on_return    = before + refueled - used_actual
func (Calculator) Compute(in fleet.CalcInput) (fleet.Derived, error) {
	if !in.OdometerAfter.Valid {
		return fleet.Derived{}, &fleet.ValidationError{
			Field:   "odometer_after",
			Message: "required for fire trucks",
		}
	}

	distanceTotal := in.OdometerAfter.Decimal.Sub(in.OdometerBefore)
	if distanceTotal.IsNegative() {
		return fleet.Derived{}, &fleet.ValidationError{
			Field:   "odometer_after",
			Message: "below the starting reading",
		}
	}

	byNorm := distanceTotal.Mul(in.Norm.KmRate).
		Add(decimal.NewFromInt(int64(in.Times.MinutesWithPump())).Mul(in.Norm.PumpRate)).
		Add(decimal.NewFromInt(int64(in.Times.MinutesWithoutPump())).Mul(in.Norm.NoPumpRate))

	return fleet.Derived{
		Norm: fleet.AppliedNorm{
			NormID:     in.Norm.ID,
			KmRate:     in.Norm.KmRate,
			PumpRate:   in.Norm.PumpRate,
			NoPumpRate: in.Norm.NoPumpRate,
		},
		OdometerAfter:  in.OdometerAfter.Decimal,
		DistanceTotal:  distanceTotal,
		FuelUsedByNorm: byNorm,
		FuelOnReturn:   fleet.FuelOnReturn(in.FuelBeforeDeparture, in.FuelRefueled, in.FuelUsedActual),
	}, nil
}
