package fleet_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/fuel-engine/fleet"
	"github.com/warp/fuel-engine/fleet/store"
)

func saveNorm(t *testing.T, mem *store.Memory, vehicleID fleet.VehicleID, season fleet.Season, effective fleet.Date, cityRate string) *fleet.Norm {
	t.Helper()
	n := &fleet.Norm{
		VehicleID:     vehicleID,
		Season:        season,
		EffectiveDate: effective,
		CityRate:      fleet.MustDecimal(cityRate),
	}
	require.NoError(t, mem.SaveNorm(context.Background(), n))
	return n
}

func TestNormStore_Resolve_LatestEffectiveWins(t *testing.T) {
	// GIVEN: Two summer vintages, effective Jan 1 and Jun 1
	// WHEN: Resolving as of various dates
	// THEN: The greatest effective date at or before the target wins

	mem := store.NewMemory()
	norms := fleet.NewNormStore(mem)
	ctx := context.Background()

	jan := saveNorm(t, mem, "car-1", fleet.SeasonSummer, fleet.NewDate(2025, 1, 1), "0.10")
	jun := saveNorm(t, mem, "car-1", fleet.SeasonSummer, fleet.NewDate(2025, 6, 1), "0.12")

	got, err := norms.Resolve(ctx, "car-1", fleet.SeasonSummer, fleet.NewDate(2025, 3, 15))
	require.NoError(t, err)
	assert.Equal(t, jan.ID, got.ID)

	// Boundary: a norm applies on its own effective date.
	got, err = norms.Resolve(ctx, "car-1", fleet.SeasonSummer, fleet.NewDate(2025, 6, 1))
	require.NoError(t, err)
	assert.Equal(t, jun.ID, got.ID)

	got, err = norms.Resolve(ctx, "car-1", fleet.SeasonSummer, fleet.NewDate(2025, 12, 31))
	require.NoError(t, err)
	assert.Equal(t, jun.ID, got.ID)
}

func TestNormStore_Resolve_SameDateTieBreaksOnInsertionOrder(t *testing.T) {
	// GIVEN: Two vintages with the same effective date
	// THEN: The later-created one (higher Seq) wins

	mem := store.NewMemory()
	norms := fleet.NewNormStore(mem)

	saveNorm(t, mem, "car-1", fleet.SeasonWinter, fleet.NewDate(2025, 1, 1), "0.10")
	second := saveNorm(t, mem, "car-1", fleet.SeasonWinter, fleet.NewDate(2025, 1, 1), "0.11")

	got, err := norms.Resolve(context.Background(), "car-1", fleet.SeasonWinter, fleet.NewDate(2025, 2, 1))
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
}

func TestNormStore_Resolve_SkipsTombstonedVintages(t *testing.T) {
	// GIVEN: A newer vintage that has been soft-deleted
	// THEN: Resolution falls back to the older live vintage

	mem := store.NewMemory()
	norms := fleet.NewNormStore(mem)
	ctx := context.Background()

	older := saveNorm(t, mem, "car-1", fleet.SeasonSummer, fleet.NewDate(2025, 1, 1), "0.10")
	newer := saveNorm(t, mem, "car-1", fleet.SeasonSummer, fleet.NewDate(2025, 6, 1), "0.12")

	require.NoError(t, mem.DeleteNorm(ctx, newer.ID, time.Now().UTC()))

	got, err := norms.Resolve(ctx, "car-1", fleet.SeasonSummer, fleet.NewDate(2025, 7, 1))
	require.NoError(t, err)
	assert.Equal(t, older.ID, got.ID)
}

func TestNormStore_Resolve_SeasonsAreIndependent(t *testing.T) {
	mem := store.NewMemory()
	norms := fleet.NewNormStore(mem)
	ctx := context.Background()

	saveNorm(t, mem, "car-1", fleet.SeasonSummer, fleet.NewDate(2025, 1, 1), "0.10")

	_, err := norms.Resolve(ctx, "car-1", fleet.SeasonWinter, fleet.NewDate(2025, 7, 1))
	assert.ErrorIs(t, err, fleet.ErrNormNotFound)
}

func TestNormStore_Resolve_NothingBeforeTarget(t *testing.T) {
	// GIVEN: Only a vintage effective after the target date
	// THEN: Resolution fails with a descriptive error - never defaults

	mem := store.NewMemory()
	norms := fleet.NewNormStore(mem)

	saveNorm(t, mem, "car-1", fleet.SeasonSummer, fleet.NewDate(2025, 6, 1), "0.10")

	_, err := norms.Resolve(context.Background(), "car-1", fleet.SeasonSummer, fleet.NewDate(2025, 5, 31))

	var nfErr *fleet.NormNotFoundError
	require.ErrorAs(t, err, &nfErr)
	assert.Equal(t, fleet.VehicleID("car-1"), nfErr.VehicleID)
	assert.Equal(t, fleet.SeasonSummer, nfErr.Season)
	assert.True(t, fleet.IsNotFound(err))
}

func TestNormStore_Resolve_InvalidSeason(t *testing.T) {
	mem := store.NewMemory()
	norms := fleet.NewNormStore(mem)

	_, err := norms.Resolve(context.Background(), "car-1", "spring", fleet.NewDate(2025, 5, 31))
	assert.ErrorIs(t, err, fleet.ErrValidation)
}
