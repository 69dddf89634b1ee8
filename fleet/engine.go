/*
engine.go - The trip record commit pipeline

PURPOSE:
  Commit() is the only way trip records enter the system. Given a record's
  user-supplied fields it resolves the starting odometer/fuel from the prior
  ledger entry, resolves the norm vintage applicable on the waybill date,
  derives the consumption figures through the vehicle kind's calculator,
  persists the record with its derived fields frozen, appends a ledger
  snapshot, rolls the result into the vehicle's live state, and recomputes
  the waybill totals - all inside one store transaction.

ORDERED STEPS (all-or-nothing):
  1. Resolve start state   (edit path keeps the frozen before-values)
  2. Resolve norm          (waybill season + waybill date)
  3. Compute derived fields
  4. Persist record
  5. Append ledger snapshot (edit path rewrites the record's own snapshot)
  6. Update vehicle live state (odometer never regresses)
  7. Recalculate waybill totals

CONCURRENCY:
  Correctness requires commits for the same vehicle to be serialized - two
  racing commits could read the same predecessor and fork the chain. The
  store's WithTx provides that: both reference stores serialize writers, so
  the read-resolve-append sequence is atomic. Commits never retry; every
  failure here is a deterministic precondition, not a transient fault.
*/
package fleet

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// RecordInput carries the user-supplied fields of a trip record. Set
// RecordID to edit an existing record; the engine keeps its frozen
// before-values and recomputes everything downstream of them.
type RecordInput struct {
	RecordID  RecordID
	WaybillID WaybillID
	Date      Date
	DriverID  UserID

	DistanceCity   decimal.Decimal
	DistanceArea   decimal.Decimal
	OdometerAfter  decimal.NullDecimal
	Times          TimeBuckets
	FuelRefueled   decimal.Decimal
	FuelUsedActual decimal.Decimal

	// Actor identifies who performed the commit, for the audit log.
	Actor string
}

func (in *RecordInput) validate() error {
	if in.WaybillID == "" {
		return &ValidationError{Field: "waybill_id", Message: "required"}
	}
	if in.Date.IsZero() {
		return &ValidationError{Field: "date", Message: "required"}
	}
	if in.DistanceCity.IsNegative() {
		return &ValidationError{Field: "distance_city", Message: "must not be negative"}
	}
	if in.DistanceArea.IsNegative() {
		return &ValidationError{Field: "distance_area", Message: "must not be negative"}
	}
	if in.FuelRefueled.IsNegative() {
		return &ValidationError{Field: "fuel_refueled", Message: "must not be negative"}
	}
	if in.FuelUsedActual.IsNegative() {
		return &ValidationError{Field: "fuel_used_actual", Message: "must not be negative"}
	}
	return nil
}

// Engine is the trip record engine. Audit is optional; Log defaults to the
// standard logrus logger.
type Engine struct {
	Store TxStore
	Audit AuditLog
	Log   logrus.FieldLogger

	calcs map[VehicleKind]Calculator
}

// NewEngine wires an engine over a transactional store and the calculators
// for the vehicle kinds it should accept.
func NewEngine(store TxStore, calculators ...Calculator) *Engine {
	calcs := make(map[VehicleKind]Calculator, len(calculators))
	for _, c := range calculators {
		calcs[c.Kind()] = c
	}
	return &Engine{
		Store: store,
		Log:   logrus.StandardLogger(),
		calcs: calcs,
	}
}

// Commit runs the full pipeline for one record and returns it with all
// derived fields settled. Any failure aborts with zero partial writes.
func (e *Engine) Commit(ctx context.Context, in RecordInput) (*TripRecord, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var (
		committed *TripRecord
		vehicleID VehicleID
	)
	editing := in.RecordID != ""

	err := e.Store.WithTx(ctx, func(s Store) error {
		wb, err := s.GetWaybill(ctx, in.WaybillID)
		if err != nil {
			return err
		}
		if wb == nil {
			return ErrWaybillNotFound
		}

		vehicle, err := s.GetVehicle(ctx, wb.VehicleID)
		if err != nil {
			return err
		}
		if vehicle == nil {
			return ErrVehicleNotFound
		}
		vehicleID = vehicle.ID

		calc, ok := e.calcs[vehicle.Kind]
		if !ok {
			return ErrUnknownVehicleKind
		}

		var existing *TripRecord
		if editing {
			existing, err = s.GetRecord(ctx, in.RecordID)
			if err != nil {
				return err
			}
			if existing == nil {
				return ErrRecordNotFound
			}
		}

		// Step 1: start state.
		odoBefore, fuelBefore, err := resolveStartState(ctx, s, vehicle, existing)
		if err != nil {
			return err
		}

		// Step 2: norm, as of the waybill's date so one vintage governs
		// every record on the document.
		norm, err := NewNormStore(s).Resolve(ctx, vehicle.ID, wb.Season, wb.Date)
		if err != nil {
			return err
		}

		// Step 3: derived fields.
		derived, err := calc.Compute(CalcInput{
			OdometerBefore:      odoBefore,
			FuelBeforeDeparture: fuelBefore,
			Norm:                *norm,
			DistanceCity:        in.DistanceCity,
			DistanceArea:        in.DistanceArea,
			OdometerAfter:       in.OdometerAfter,
			Times:               in.Times,
			FuelRefueled:        in.FuelRefueled,
			FuelUsedActual:      in.FuelUsedActual,
		})
		if err != nil {
			return err
		}

		// Step 4: persist with derived fields frozen.
		rec := buildRecord(in, existing, wb, odoBefore, fuelBefore, derived)
		if err := s.SaveRecord(ctx, rec); err != nil {
			return err
		}

		// Step 5: exactly one snapshot per committed record.
		if editing {
			if err := s.UpdateSnapshotForRecord(ctx, rec.ID, derived.OdometerAfter, derived.FuelOnReturn, rec.Date); err != nil {
				return err
			}
		} else {
			if _, err := NewStateLedger(s).Append(ctx, Snapshot{
				VehicleID: vehicle.ID,
				Odometer:  derived.OdometerAfter,
				Fuel:      derived.FuelOnReturn,
				Date:      rec.Date,
				WaybillID: wb.ID,
				RecordID:  rec.ID,
			}); err != nil {
				return err
			}
		}

		// Step 6: live state. The odometer never regresses, even when a
		// historical record is inserted out of date order.
		newOdometer := derived.OdometerAfter
		if vehicle.Odometer.Valid && vehicle.Odometer.Decimal.GreaterThan(newOdometer) {
			newOdometer = vehicle.Odometer.Decimal
		}
		if err := s.UpdateVehicleState(ctx, vehicle.ID, newOdometer, derived.FuelOnReturn); err != nil {
			return err
		}

		// Step 7: aggregates.
		if _, err := RecalcWaybill(ctx, s, wb.ID); err != nil {
			return err
		}

		committed = rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	action := AuditRecordCommitted
	if editing {
		action = AuditRecordEdited
	}
	e.audit(ctx, AuditEntry{
		Actor:     in.Actor,
		Action:    action,
		VehicleID: vehicleID,
		WaybillID: committed.WaybillID,
		RecordID:  committed.ID,
	})
	e.Log.WithFields(logrus.Fields{
		"record":  committed.ID,
		"waybill": committed.WaybillID,
		"date":    committed.Date.String(),
		"edit":    editing,
	}).Info("trip record committed")

	return committed, nil
}

// SeedState initializes (or corrects) a vehicle's state with a seed
// snapshot, making it eligible for its first trip record.
func (e *Engine) SeedState(ctx context.Context, vehicleID VehicleID, odometer, fuel decimal.Decimal, date Date, actor string) (*Snapshot, error) {
	if odometer.IsNegative() {
		return nil, &ValidationError{Field: "odometer", Message: "must not be negative"}
	}
	if date.IsZero() {
		return nil, &ValidationError{Field: "date", Message: "required"}
	}

	var seeded *Snapshot
	err := e.Store.WithTx(ctx, func(s Store) error {
		vehicle, err := s.GetVehicle(ctx, vehicleID)
		if err != nil {
			return err
		}
		if vehicle == nil {
			return ErrVehicleNotFound
		}

		seeded, err = NewStateLedger(s).Append(ctx, Snapshot{
			VehicleID: vehicleID,
			Odometer:  odometer,
			Fuel:      fuel,
			Date:      date,
		})
		if err != nil {
			return err
		}
		return s.UpdateVehicleState(ctx, vehicleID, odometer, fuel)
	})
	if err != nil {
		return nil, err
	}

	e.audit(ctx, AuditEntry{
		Actor:     actor,
		Action:    AuditStateSeeded,
		VehicleID: vehicleID,
	})
	return seeded, nil
}

// Recalc recomputes one waybill's totals inside a transaction. Exposed for
// callers that change records outside Commit (e.g. soft-deleting one).
func (e *Engine) Recalc(ctx context.Context, id WaybillID) (*WaybillTotals, error) {
	var totals *WaybillTotals
	err := e.Store.WithTx(ctx, func(s Store) error {
		var err error
		totals, err = RecalcWaybill(ctx, s, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return totals, nil
}

// resolveStartState implements step 1. The edit path keeps the record's
// frozen before-values; otherwise the latest ledger snapshot wins, then the
// vehicle's cached live state, then NoPriorState.
func resolveStartState(ctx context.Context, s Store, vehicle *Vehicle, existing *TripRecord) (odometer, fuel decimal.Decimal, err error) {
	if existing != nil {
		return existing.OdometerBefore, existing.FuelBeforeDeparture, nil
	}

	snap, err := s.LatestSnapshot(ctx, vehicle.ID, nil, "")
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if snap != nil {
		return snap.Odometer, snap.Fuel, nil
	}

	if vehicle.HasState() {
		return vehicle.Odometer.Decimal, vehicle.Fuel.Decimal, nil
	}

	return decimal.Zero, decimal.Zero, &NoPriorStateError{VehicleID: vehicle.ID}
}

func buildRecord(in RecordInput, existing *TripRecord, wb *Waybill, odoBefore, fuelBefore decimal.Decimal, d Derived) *TripRecord {
	rec := &TripRecord{
		WaybillID: wb.ID,
		Date:      in.Date,
		DriverID:  in.DriverID,

		DistanceCity:   in.DistanceCity,
		DistanceArea:   in.DistanceArea,
		OdometerAfter:  NullDecimalFrom(d.OdometerAfter),
		Times:          in.Times,
		FuelRefueled:   in.FuelRefueled,
		FuelUsedActual: in.FuelUsedActual,

		OdometerBefore:      odoBefore,
		FuelBeforeDeparture: fuelBefore,
		Norm:                d.Norm,
		DistanceTotal:       d.DistanceTotal,
		FuelUsedByNorm:      d.FuelUsedByNorm,
		FuelOnReturn:        d.FuelOnReturn,
	}
	if existing != nil {
		rec.ID = existing.ID
		rec.Seq = existing.Seq
		rec.CreatedAt = existing.CreatedAt
	}
	return rec
}

func (e *Engine) audit(ctx context.Context, entry AuditEntry) {
	if e.Audit == nil {
		return
	}
	entry.ID = NewID()
	entry.At = time.Now().UTC()
	if err := e.Audit.AppendAudit(ctx, entry); err != nil {
		e.Log.WithError(err).Warn("audit append failed")
	}
}
