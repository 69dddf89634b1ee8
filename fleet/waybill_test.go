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

// newWaybillFixture opens a waybill dated June 10 with 40 L on hand at
// issuance (snapshot dated June 1).
func newWaybillFixture(t *testing.T) (*store.Memory, *fleet.Waybill) {
	t.Helper()
	mem := store.NewMemory()
	ctx := context.Background()

	v := &fleet.Vehicle{Plate: "T 100 ST", Kind: fleet.KindPassenger}
	require.NoError(t, mem.SaveVehicle(ctx, v))

	require.NoError(t, mem.AppendSnapshot(ctx, &fleet.Snapshot{
		VehicleID: v.ID,
		Odometer:  fleet.MustDecimal("1000"),
		Fuel:      fleet.MustDecimal("40"),
		Date:      fleet.NewDate(2025, 6, 1),
	}))

	wb := &fleet.Waybill{
		VehicleID: v.ID,
		Date:      fleet.NewDate(2025, 6, 10),
		Season:    fleet.SeasonSummer,
	}
	require.NoError(t, mem.SaveWaybill(ctx, wb))
	return mem, wb
}

func addRecord(t *testing.T, mem *store.Memory, wb *fleet.Waybill, date fleet.Date, byNorm, actual, refueled, onReturn string) *fleet.TripRecord {
	t.Helper()
	r := &fleet.TripRecord{
		WaybillID:      wb.ID,
		Date:           date,
		FuelRefueled:   fleet.MustDecimal(refueled),
		FuelUsedActual: fleet.MustDecimal(actual),
		FuelUsedByNorm: fleet.MustDecimal(byNorm),
		FuelOnReturn:   fleet.MustDecimal(onReturn),
	}
	require.NoError(t, mem.SaveRecord(context.Background(), r))
	return r
}

func TestRecalcWaybill_SumsLiveRecords(t *testing.T) {
	// GIVEN: Two records (1.4/1.6 L by norm vs actual, one 20 L refuel)
	// THEN: Totals sum both; availability comes from the chain-last record

	mem, wb := newWaybillFixture(t)
	ctx := context.Background()

	addRecord(t, mem, wb, fleet.NewDate(2025, 6, 10), "1.4", "1.6", "0", "38.4")
	addRecord(t, mem, wb, fleet.NewDate(2025, 6, 11), "0.5", "0.4", "20", "58")

	totals, err := fleet.RecalcWaybill(ctx, mem, wb.ID)
	require.NoError(t, err)

	assertDec(t, "40", totals.UponIssuance)
	assertDec(t, "2", totals.TotalSpent)
	assertDec(t, "20", totals.TotalReceived)
	assertDec(t, "1.9", totals.RequiredByNorm)
	assertDec(t, "58", totals.AvailabilityUponDelivery)

	// Persisted, not just returned.
	got, err := mem.GetWaybill(ctx, wb.ID)
	require.NoError(t, err)
	assertDec(t, "2", got.Totals.TotalSpent)
}

func TestRecalcWaybill_Idempotent(t *testing.T) {
	mem, wb := newWaybillFixture(t)
	ctx := context.Background()

	addRecord(t, mem, wb, fleet.NewDate(2025, 6, 10), "1.4", "1.6", "0", "38.4")

	first, err := fleet.RecalcWaybill(ctx, mem, wb.ID)
	require.NoError(t, err)
	second, err := fleet.RecalcWaybill(ctx, mem, wb.ID)
	require.NoError(t, err)

	assert.Equal(t, *first, *second, "recalculating an unchanged waybill changes nothing")
}

func TestRecalcWaybill_SavingsAndOverrunAreExclusive(t *testing.T) {
	// Savings when the norm allowed more than was spent, overrun when it
	// allowed less. Never both nonzero.

	mem, wb := newWaybillFixture(t)
	ctx := context.Background()

	rec := addRecord(t, mem, wb, fleet.NewDate(2025, 6, 10), "2", "1.5", "0", "38.5")
	totals, err := fleet.RecalcWaybill(ctx, mem, wb.ID)
	require.NoError(t, err)
	assertDec(t, "0.5", totals.Savings)
	assertDec(t, "0", totals.Overrun)

	rec.FuelUsedActual = fleet.MustDecimal("2.5")
	require.NoError(t, mem.SaveRecord(ctx, rec))
	totals, err = fleet.RecalcWaybill(ctx, mem, wb.ID)
	require.NoError(t, err)
	assertDec(t, "0", totals.Savings)
	assertDec(t, "0.5", totals.Overrun)
}

func TestRecalcWaybill_NoRecords(t *testing.T) {
	// An empty waybill's availability equals its issuance state.

	mem, wb := newWaybillFixture(t)

	totals, err := fleet.RecalcWaybill(context.Background(), mem, wb.ID)
	require.NoError(t, err)
	assertDec(t, "40", totals.UponIssuance)
	assertDec(t, "40", totals.AvailabilityUponDelivery)
	assertDec(t, "0", totals.TotalSpent)
}

func TestRecalcWaybill_IgnoresOwnSnapshots(t *testing.T) {
	// GIVEN: A snapshot produced by this waybill's own record, dated before
	//        the waybill date
	// THEN: Issuance state still comes from the foreign snapshot only

	mem, wb := newWaybillFixture(t)
	ctx := context.Background()

	rec := addRecord(t, mem, wb, fleet.NewDate(2025, 6, 5), "1", "1", "0", "39")
	require.NoError(t, mem.AppendSnapshot(ctx, &fleet.Snapshot{
		VehicleID: wb.VehicleID,
		Odometer:  fleet.MustDecimal("1010"),
		Fuel:      fleet.MustDecimal("39"),
		Date:      fleet.NewDate(2025, 6, 5),
		WaybillID: wb.ID,
		RecordID:  rec.ID,
	}))

	totals, err := fleet.RecalcWaybill(ctx, mem, wb.ID)
	require.NoError(t, err)
	assertDec(t, "40", totals.UponIssuance, "own records never feed issuance state")
}

func TestRecalcWaybill_SkipsDeletedRecords(t *testing.T) {
	mem, wb := newWaybillFixture(t)
	ctx := context.Background()

	keep := addRecord(t, mem, wb, fleet.NewDate(2025, 6, 10), "1", "1", "0", "39")
	gone := addRecord(t, mem, wb, fleet.NewDate(2025, 6, 11), "5", "5", "0", "34")
	require.NoError(t, mem.DeleteRecord(ctx, gone.ID, time.Now().UTC()))

	totals, err := fleet.RecalcWaybill(ctx, mem, wb.ID)
	require.NoError(t, err)
	assertDec(t, "1", totals.TotalSpent)
	assertDec(t, keep.FuelOnReturn.String(), totals.AvailabilityUponDelivery)
}

func TestRecalcWaybill_UnknownWaybill(t *testing.T) {
	mem := store.NewMemory()

	_, err := fleet.RecalcWaybill(context.Background(), mem, "missing")
	assert.ErrorIs(t, err, fleet.ErrWaybillNotFound)
}
