package firetruck_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/fuel-engine/firetruck"
	"github.com/warp/fuel-engine/fleet"
)

func truckNorm() fleet.Norm {
	return fleet.Norm{
		ID:         "norm-t1",
		KmRate:     fleet.MustDecimal("0.5"),
		PumpRate:   fleet.MustDecimal("0.2"),
		NoPumpRate: fleet.MustDecimal("0.1"),
	}
}

func TestCompute_DistancePlusOperatingMinutes(t *testing.T) {
	// GIVEN: 20 km driven, 30 min with pump, 10 min without
	// THEN: by norm = 20*0.5 + 30*0.2 + 10*0.1 = 17 L

	d, err := firetruck.New().Compute(fleet.CalcInput{
		OdometerBefore:      fleet.MustDecimal("1000"),
		FuelBeforeDeparture: fleet.MustDecimal("150"),
		Norm:                truckNorm(),
		OdometerAfter:       fleet.NullDecimalFrom(fleet.MustDecimal("1020")),
		Times: fleet.TimeBuckets{
			FireWithPump:        25,
			TrainingWithPump:    5,
			TrainingWithoutPump: 10,
		},
		FuelUsedActual: fleet.MustDecimal("16"),
	})
	require.NoError(t, err)

	assert.Equal(t, "20", d.DistanceTotal.String())
	assert.Equal(t, "17", d.FuelUsedByNorm.String())
	assert.Equal(t, "1020", d.OdometerAfter.String())
	assert.Equal(t, "134", d.FuelOnReturn.String())
	assert.Equal(t, fleet.NormID("norm-t1"), d.Norm.NormID)
}

func TestCompute_OdometerReadingRequired(t *testing.T) {
	// The shift form always carries a reading; distance is never reported
	// directly for trucks.

	_, err := firetruck.New().Compute(fleet.CalcInput{
		OdometerBefore: fleet.MustDecimal("1000"),
		Norm:           truckNorm(),
	})

	var vErr *fleet.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "odometer_after", vErr.Field)
	assert.ErrorIs(t, err, fleet.ErrValidation)
}

func TestCompute_OdometerBelowStartRejected(t *testing.T) {
	_, err := firetruck.New().Compute(fleet.CalcInput{
		OdometerBefore: fleet.MustDecimal("1000"),
		Norm:           truckNorm(),
		OdometerAfter:  fleet.NullDecimalFrom(fleet.MustDecimal("990")),
	})
	assert.ErrorIs(t, err, fleet.ErrValidation)
}

func TestCompute_StationaryShift(t *testing.T) {
	// A shift can burn fuel without moving: same reading, pump running.

	d, err := firetruck.New().Compute(fleet.CalcInput{
		OdometerBefore:      fleet.MustDecimal("1000"),
		FuelBeforeDeparture: fleet.MustDecimal("100"),
		Norm:                truckNorm(),
		OdometerAfter:       fleet.NullDecimalFrom(fleet.MustDecimal("1000")),
		Times:               fleet.TimeBuckets{OtherWithPump: 60},
		FuelUsedActual:      fleet.MustDecimal("12"),
	})
	require.NoError(t, err)
	assert.Equal(t, "0", d.DistanceTotal.String())
	assert.Equal(t, "12", d.FuelUsedByNorm.String())
	assert.Equal(t, "88", d.FuelOnReturn.String())
}
