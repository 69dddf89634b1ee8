package passenger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/fuel-engine/fleet"
	"github.com/warp/fuel-engine/passenger"
)

func summerNorm() fleet.Norm {
	return fleet.Norm{
		ID:       "norm-1",
		CityRate: fleet.MustDecimal("0.10"),
		AreaRate: fleet.MustDecimal("0.08"),
	}
}

func TestCompute_DistanceBasedConsumption(t *testing.T) {
	// GIVEN: 10 km city + 5 km area at 0.10/0.08 L per km
	// THEN: 1.4 L by norm, odometer derived from distance

	d, err := passenger.New().Compute(fleet.CalcInput{
		OdometerBefore:      fleet.MustDecimal("1000"),
		FuelBeforeDeparture: fleet.MustDecimal("50"),
		Norm:                summerNorm(),
		DistanceCity:        fleet.MustDecimal("10"),
		DistanceArea:        fleet.MustDecimal("5"),
		FuelUsedActual:      fleet.MustDecimal("1.6"),
	})
	require.NoError(t, err)

	assert.Equal(t, "15", d.DistanceTotal.String())
	assert.Equal(t, "1.4", d.FuelUsedByNorm.String())
	assert.Equal(t, "1015", d.OdometerAfter.String())
	assert.Equal(t, "48.4", d.FuelOnReturn.String())
	assert.Equal(t, fleet.NormID("norm-1"), d.Norm.NormID)
	assert.Equal(t, "0.1", d.Norm.CityRate.String(), "rates are frozen into the record")
}

func TestCompute_ExplicitOdometerWins(t *testing.T) {
	// A reported reading overrides the derived one (detours happen).

	d, err := passenger.New().Compute(fleet.CalcInput{
		OdometerBefore: fleet.MustDecimal("1000"),
		Norm:           summerNorm(),
		DistanceCity:   fleet.MustDecimal("10"),
		OdometerAfter:  fleet.NullDecimalFrom(fleet.MustDecimal("1018")),
	})
	require.NoError(t, err)
	assert.Equal(t, "1018", d.OdometerAfter.String())
	assert.Equal(t, "10", d.DistanceTotal.String(), "distance stays as reported")
}

func TestCompute_OdometerBelowStartRejected(t *testing.T) {
	_, err := passenger.New().Compute(fleet.CalcInput{
		OdometerBefore: fleet.MustDecimal("1000"),
		Norm:           summerNorm(),
		OdometerAfter:  fleet.NullDecimalFrom(fleet.MustDecimal("999")),
	})

	var vErr *fleet.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "odometer_after", vErr.Field)
}

func TestCompute_RefuelOnlyRecord(t *testing.T) {
	// Zero distance, just topping the tank up.

	d, err := passenger.New().Compute(fleet.CalcInput{
		OdometerBefore:      fleet.MustDecimal("1000"),
		FuelBeforeDeparture: fleet.MustDecimal("10"),
		Norm:                summerNorm(),
		FuelRefueled:        fleet.MustDecimal("35"),
	})
	require.NoError(t, err)
	assert.Equal(t, "0", d.FuelUsedByNorm.String())
	assert.Equal(t, "45", d.FuelOnReturn.String())
	assert.Equal(t, "1000", d.OdometerAfter.String())
}
