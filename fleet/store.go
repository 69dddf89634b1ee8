/*
store.go - Persistence interfaces for the fuel engine

PURPOSE:
  Defines the interface between the engine and the database. Different
  implementations back it with SQLite or in-memory maps; the engine only
  sees these contracts.

KEY INTERFACES:
  Store:    Entity persistence (vehicles, norms, snapshots, waybills, records)
  TxStore:  Store plus WithTx for atomic multi-table commits
  AuditLog: Append-only record of who committed what

CHAIN SEMANTICS:
  Stores assign monotonically increasing Seq values to norms, snapshots and
  trip records at insert time. Seq is the tie-break for same-date rows in
  every as-of lookup, so insertion order is part of the data model, not an
  implementation detail.

SNAPSHOT CONTRACT:
  AppendSnapshot never mutates prior snapshots. The single exception to
  immutability is UpdateSnapshotForRecord, used by the explicit edit path to
  keep the one-snapshot-per-record invariant while recomputing.

SOFT DELETE:
  Point lookups (Get*) and resolution queries exclude tombstoned rows.
  List operations take a Visibility to opt in to tombstones.
*/
package fleet

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store handles persistence of engine entities. Lookups return (nil, nil)
// when the entity doesn't exist (or is tombstoned); the engine translates
// that into its sentinel errors.
type Store interface {
	// ------ vehicles ------

	// SaveVehicle inserts a vehicle, assigning an ID if empty, or updates
	// its identity fields. Live state is NOT written here; use
	// UpdateVehicleState.
	SaveVehicle(ctx context.Context, v *Vehicle) error
	GetVehicle(ctx context.Context, id VehicleID) (*Vehicle, error)
	ListVehicles(ctx context.Context, vis Visibility) ([]Vehicle, error)

	// UpdateVehicleState overwrites the cached live odometer/fuel pair.
	// Callers are responsible for the monotonic-odometer rule.
	UpdateVehicleState(ctx context.Context, id VehicleID, odometer, fuel decimal.Decimal) error
	DeleteVehicle(ctx context.Context, id VehicleID, at time.Time) error

	// ------ norms ------

	// SaveNorm inserts a norm vintage, assigning ID and Seq.
	SaveNorm(ctx context.Context, n *Norm) error
	ListNorms(ctx context.Context, vehicleID VehicleID, season Season, vis Visibility) ([]Norm, error)

	// ResolveNorm returns the live norm for vehicle/season with the greatest
	// EffectiveDate <= asOf, ties broken by highest Seq, or nil if none.
	ResolveNorm(ctx context.Context, vehicleID VehicleID, season Season, asOf Date) (*Norm, error)
	DeleteNorm(ctx context.Context, id NormID, at time.Time) error

	// ------ ledger snapshots ------

	// AppendSnapshot inserts an immutable snapshot, assigning ID and Seq.
	AppendSnapshot(ctx context.Context, s *Snapshot) error

	// LatestSnapshot returns the chain-latest snapshot at or before asOf
	// (globally latest if asOf is nil), ordered by (date desc, seq desc).
	// Snapshots belonging to excludeWaybill are skipped when it is set,
	// so a waybill's issuance state ignores its own records.
	LatestSnapshot(ctx context.Context, vehicleID VehicleID, asOf *Date, excludeWaybill WaybillID) (*Snapshot, error)

	// UpdateSnapshotForRecord rewrites the snapshot produced by a record.
	// Only the explicit edit path calls this.
	UpdateSnapshotForRecord(ctx context.Context, recordID RecordID, odometer, fuel decimal.Decimal, date Date) error
	SnapshotsFor(ctx context.Context, vehicleID VehicleID) ([]Snapshot, error)

	// ------ waybills ------

	SaveWaybill(ctx context.Context, w *Waybill) error
	GetWaybill(ctx context.Context, id WaybillID) (*Waybill, error)
	ListWaybills(ctx context.Context, vehicleID VehicleID, vis Visibility) ([]Waybill, error)
	UpdateWaybillTotals(ctx context.Context, id WaybillID, totals WaybillTotals) error
	DeleteWaybill(ctx context.Context, id WaybillID, at time.Time) error

	// ------ trip records ------

	// SaveRecord inserts (assigning ID and Seq) or, when the ID already
	// exists, updates the record in place. Derived fields are stored as
	// given; the engine owns their correctness.
	SaveRecord(ctx context.Context, r *TripRecord) error
	GetRecord(ctx context.Context, id RecordID) (*TripRecord, error)

	// RecordsForWaybill returns live records in chain order (date asc, seq asc).
	RecordsForWaybill(ctx context.Context, waybillID WaybillID) ([]TripRecord, error)
	DeleteRecord(ctx context.Context, id RecordID, at time.Time) error
}

// TxStore wraps Store with transaction support. The engine runs every commit
// inside WithTx so that a failure at any step leaves vehicle, ledger and
// waybill untouched. Implementations must serialize concurrent transactions
// touching the same vehicle; the reference implementations serialize all
// writers, which satisfies that trivially.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// AUDIT LOG - Append-only, separate from the state ledger
// =============================================================================

type AuditAction string

const (
	AuditRecordCommitted AuditAction = "record_committed"
	AuditRecordEdited    AuditAction = "record_edited"
	AuditStateSeeded     AuditAction = "state_seeded"
	AuditWaybillSigned   AuditAction = "waybill_signed"
)

// AuditEntry records who did what when. IDs are ULIDs so the log reads in
// commit order without a sequence column.
type AuditEntry struct {
	ID        string
	At        time.Time
	Actor     string
	Action    AuditAction
	VehicleID VehicleID
	WaybillID WaybillID
	RecordID  RecordID
	Details   map[string]string
}

// AuditLog stores audit entries. Append-only.
type AuditLog interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	AuditEntries(ctx context.Context, vehicleID VehicleID) ([]AuditEntry, error)
}
