/*
waybill.go - Waybill aggregate recalculation

PURPOSE:
  Recomputes a waybill's summary totals from its live trip records plus the
  ledger state at issuance. Called by the engine after every committed
  record; also callable directly (idempotent - recalculating an unchanged
  waybill yields bit-identical totals).

FIELDS:
  upon_issuance              ledger fuel at or before the waybill date,
                             ignoring the waybill's own records
  total_spent                sum of actual fuel used
  total_received             sum of refuels
  required_by_norm           sum of by-norm consumption
  availability_upon_delivery fuel_on_return of the chain-last record,
                             or upon_issuance when there are no records
  savings / overrun          sign split of required_by_norm - total_spent;
                             mutually exclusive, never both nonzero
*/
package fleet

import (
	"context"

	"github.com/shopspring/decimal"
)

// RecalcWaybill recomputes and persists the totals for one waybill,
// returning them. Missing waybill is the only error condition of its own;
// store failures propagate.
func RecalcWaybill(ctx context.Context, s Store, id WaybillID) (*WaybillTotals, error) {
	wb, err := s.GetWaybill(ctx, id)
	if err != nil {
		return nil, err
	}
	if wb == nil {
		return nil, ErrWaybillNotFound
	}

	totals, err := computeTotals(ctx, s, wb)
	if err != nil {
		return nil, err
	}

	if err := s.UpdateWaybillTotals(ctx, wb.ID, *totals); err != nil {
		return nil, err
	}
	return totals, nil
}

func computeTotals(ctx context.Context, s Store, wb *Waybill) (*WaybillTotals, error) {
	var totals WaybillTotals

	// Vehicle state at checkout: latest snapshot at or before the waybill
	// date, excluding snapshots this waybill's own records produced. Zero
	// when the vehicle has no earlier history.
	issuanceDate := wb.Date
	snap, err := s.LatestSnapshot(ctx, wb.VehicleID, &issuanceDate, wb.ID)
	if err != nil {
		return nil, err
	}
	if snap != nil {
		totals.UponIssuance = snap.Fuel
	}

	records, err := s.RecordsForWaybill(ctx, wb.ID)
	if err != nil {
		return nil, err
	}

	totals.TotalSpent = decimal.Zero
	totals.TotalReceived = decimal.Zero
	totals.RequiredByNorm = decimal.Zero
	for _, r := range records {
		totals.TotalSpent = totals.TotalSpent.Add(r.FuelUsedActual)
		totals.TotalReceived = totals.TotalReceived.Add(r.FuelRefueled)
		totals.RequiredByNorm = totals.RequiredByNorm.Add(r.FuelUsedByNorm)
	}

	if len(records) > 0 {
		totals.AvailabilityUponDelivery = records[len(records)-1].FuelOnReturn
	} else {
		totals.AvailabilityUponDelivery = totals.UponIssuance
	}

	diff := totals.RequiredByNorm.Sub(totals.TotalSpent)
	if diff.Sign() >= 0 {
		totals.Savings = diff
		totals.Overrun = decimal.Zero
	} else {
		totals.Savings = decimal.Zero
		totals.Overrun = diff.Neg()
	}

	return &totals, nil
}
