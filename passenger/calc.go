/*
Package passenger derives trip record figures for passenger cars.

PURPOSE:
  Passenger car consumption is distance-based: kilometers in the city and
  in the protected area each burn fuel at their own per-km rate. The
  odometer reading after the trip is optional on the paper form, so when
  absent it is derived as before + total distance.
*/
package passenger

import (
	"github.com/warp/fuel-engine/fleet"
)

type Calculator struct{}

func New() Calculator { return Calculator{} }

func (Calculator) Kind() fleet.VehicleKind { return fleet.KindPassenger }

// Compute derives the frozen figures for one passenger car record:
//
//	distance_total    = distance_city + distance_area
//	fuel_used_by_norm = distance_city*city_rate + distance_area*area_rate
//	odometer_after    = given reading, or before + distance_total
//	fuel_on_return    = before + refueled - used_actual
func (Calculator) Compute(in fleet.CalcInput) (fleet.Derived, error) {
	distanceTotal := in.DistanceCity.Add(in.DistanceArea)

	odometerAfter := in.OdometerBefore.Add(distanceTotal)
	if in.OdometerAfter.Valid {
		if in.OdometerAfter.Decimal.LessThan(in.OdometerBefore) {
			return fleet.Derived{}, &fleet.ValidationError{
				Field:   "odometer_after",
				Message: "below the starting reading",
			}
		}
		odometerAfter = in.OdometerAfter.Decimal
	}

	byNorm := in.DistanceCity.Mul(in.Norm.CityRate).
		Add(in.DistanceArea.Mul(in.Norm.AreaRate))

	return fleet.Derived{
		Norm: fleet.AppliedNorm{
			NormID:   in.Norm.ID,
			CityRate: in.Norm.CityRate,
			AreaRate: in.Norm.AreaRate,
		},
		OdometerAfter:  odometerAfter,
		DistanceTotal:  distanceTotal,
		FuelUsedByNorm: byNorm,
		FuelOnReturn:   fleet.FuelOnReturn(in.FuelBeforeDeparture, in.FuelRefueled, in.FuelUsedActual),
	}, nil
}
