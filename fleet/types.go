/*
Package fleet provides the core fuel/odometer ledger engine.

PURPOSE:
  This package contains the types and algorithms that track fuel consumption
  and odometer state for a vehicle fleet. Every trip record committed through
  the engine derives its starting state from the prior ledger entry, applies
  the season-dependent consumption norm in force on the waybill date, freezes
  the derived figures as a historical snapshot, and rolls the result forward
  into the vehicle's live state and the waybill's aggregate totals.

KEY CONCEPTS IN THIS FILE (types.go):
  - Vehicle: A passenger car or fire truck with cached live odometer/fuel state
  - Norm: A seasonally-versioned consumption rate, resolved "as of" a date
  - Waybill: A trip-sheet document with derived fuel totals
  - TripRecord: One logged journey with user-supplied and engine-derived fields
  - Snapshot: An immutable (odometer, fuel) ledger entry

DESIGN PRINCIPLES:
  1. Precision: All quantities use decimal.Decimal - no floating-point drift
     across repeated ledger appends
  2. Immutability: Derived record fields are frozen at commit; edits recompute
     explicitly, never silently
  3. Soft delete: Entities are tombstoned, never destroyed; reads filter
     tombstones by default
  4. Chain continuity: Each record's before-state equals the prior snapshot's
     after-state

SEE ALSO:
  - engine.go: Trip record commit pipeline
  - ledger.go: State ledger (latest/append)
  - norms.go: As-of norm resolution
  - waybill.go: Aggregate recalculation
*/
package fleet

import (
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type VehicleID string
type NormID string
type WaybillID string
type RecordID string
type SnapshotID string
type UserID string

// NewID generates a lexicographically sortable unique identifier.
// ULIDs keep generated IDs ordered by creation time, which makes
// store listings stable without an extra column.
func NewID() string {
	return ulid.Make().String()
}

// =============================================================================
// VEHICLE - Passenger car or fire truck with cached live state
// =============================================================================

type VehicleKind string

const (
	KindPassenger VehicleKind = "passenger"
	KindFireTruck VehicleKind = "fire_truck"
)

func (k VehicleKind) Valid() bool {
	return k == KindPassenger || k == KindFireTruck
}

// Vehicle is a fleet vehicle. Odometer and Fuel are the cached live state:
// they are NullDecimal because a freshly registered vehicle has no state
// until an operator seeds it with an initial ledger snapshot.
//
// LIFECYCLE: created once; Odometer/Fuel mutated only by the engine as a
// side effect of committing a trip record (odometer never regresses, fuel
// is set to the latest computed remainder) or by the explicit seed operation.
type Vehicle struct {
	ID        VehicleID
	Plate     string
	Brand     string
	Model     string
	Kind      VehicleKind
	TruckType string // fire trucks only, e.g. "АЦ-40"

	Odometer decimal.NullDecimal // km
	Fuel     decimal.NullDecimal // liters

	CreatedAt time.Time
	Tombstone
}

// HasState reports whether the vehicle carries usable live state.
func (v *Vehicle) HasState() bool {
	return v.Odometer.Valid && v.Fuel.Valid
}

// =============================================================================
// NORM - Seasonally-versioned consumption rate
// =============================================================================

type Season string

const (
	SeasonWinter Season = "winter"
	SeasonSummer Season = "summer"
)

func (s Season) Valid() bool {
	return s == SeasonWinter || s == SeasonSummer
}

// Norm is one consumption-rate vintage for a vehicle and season. Multiple
// norms may exist per vehicle/season; the applicable one for a date is the
// one with the greatest EffectiveDate <= target, ties broken by highest Seq
// (latest-created wins). Norms are never updated in place - superseded
// vintages are shadowed by newer rows or tombstoned.
//
// Passenger cars use CityRate/AreaRate (liters per km). Fire trucks use
// KmRate (liters per km) plus PumpRate/NoPumpRate (liters per minute of
// operation with/without the auxiliary pump).
type Norm struct {
	ID            NormID
	VehicleID     VehicleID
	Season        Season
	EffectiveDate Date
	Seq           int64 // store-assigned insertion order, tie-break key

	CityRate decimal.Decimal
	AreaRate decimal.Decimal

	KmRate     decimal.Decimal
	PumpRate   decimal.Decimal
	NoPumpRate decimal.Decimal

	CreatedAt time.Time
	Tombstone
}

// =============================================================================
// WAYBILL - Trip-sheet document with derived totals
// =============================================================================

// WaybillTotals are the aggregate fields recomputed by the aggregator after
// every committed record. They are derived, never user-edited.
type WaybillTotals struct {
	UponIssuance             decimal.Decimal // fuel on hand at checkout
	TotalSpent               decimal.Decimal // sum of actual fuel used
	TotalReceived            decimal.Decimal // sum of refuels
	RequiredByNorm           decimal.Decimal // sum of by-norm consumption
	AvailabilityUponDelivery decimal.Decimal // fuel remaining after last record
	Savings                  decimal.Decimal
	Overrun                  decimal.Decimal
}

type Waybill struct {
	ID        WaybillID
	Number    int64
	VehicleID VehicleID
	DriverID  UserID
	Date      Date
	Season    Season // selects which norm family applies to all records

	Totals WaybillTotals

	CreatedAt time.Time
	Tombstone
}

// =============================================================================
// TRIP RECORD - One logged journey/shift
// =============================================================================

// TimeBuckets holds the operating minutes a fire-truck record reports,
// broken down the way the paper waybill form does. The engine only cares
// about the with/without-pump totals.
type TimeBuckets struct {
	FireWithPump           int
	FireWithoutPump        int
	TrainingWithPump       int
	TrainingWithoutPump    int
	ShiftChangeWithPump    int
	ShiftChangeWithoutPump int
	OtherWithPump          int
	OtherWithoutPump       int
}

func (b TimeBuckets) MinutesWithPump() int {
	return b.FireWithPump + b.TrainingWithPump + b.ShiftChangeWithPump + b.OtherWithPump
}

func (b TimeBuckets) MinutesWithoutPump() int {
	return b.FireWithoutPump + b.TrainingWithoutPump + b.ShiftChangeWithoutPump + b.OtherWithoutPump
}

// AppliedNorm is the slice of norm rates frozen into a record at commit time.
// Keeping the values (not just the NormID) makes the record a self-contained
// historical document even if the norm row is later shadowed.
type AppliedNorm struct {
	NormID     NormID
	CityRate   decimal.Decimal
	AreaRate   decimal.Decimal
	KmRate     decimal.Decimal
	PumpRate   decimal.Decimal
	NoPumpRate decimal.Decimal
}

// TripRecord is one journey (passenger car) or shift (fire truck) on a
// waybill. User-supplied fields come from the caller; derived fields are
// computed once by the engine and persisted as a durable snapshot - they are
// never recomputed retroactively unless the record is explicitly edited.
type TripRecord struct {
	ID        RecordID
	WaybillID WaybillID
	Seq       int64 // insertion order, tie-break for same-date records
	Date      Date
	DriverID  UserID

	// ------ user-supplied ------

	DistanceCity  decimal.Decimal     // km, passenger cars
	DistanceArea  decimal.Decimal     // km, passenger cars
	OdometerAfter decimal.NullDecimal // km; required for trucks, optional for cars
	Times         TimeBuckets         // fire trucks
	FuelRefueled  decimal.Decimal     // liters
	FuelUsedActual decimal.Decimal    // liters, the reported "fact" figure

	// ------ derived, frozen at commit ------

	OdometerBefore      decimal.Decimal
	FuelBeforeDeparture decimal.Decimal
	Norm                AppliedNorm
	DistanceTotal       decimal.Decimal
	FuelUsedByNorm      decimal.Decimal
	FuelOnReturn        decimal.Decimal

	CreatedAt time.Time
	Tombstone
}

// OdometerResult returns the post-trip odometer reading the record settled
// on. For cars without an explicit reading this is before + distance.
func (r *TripRecord) OdometerResult() decimal.Decimal {
	if r.OdometerAfter.Valid {
		return r.OdometerAfter.Decimal
	}
	return r.OdometerBefore.Add(r.DistanceTotal)
}

// =============================================================================
// LEDGER SNAPSHOT - Immutable point-in-time (odometer, fuel) entry
// =============================================================================

// Snapshot is one entry in a vehicle's state chain. The chain is totally
// ordered by (Date, Seq); each committed trip record appends exactly one
// snapshot, and seed snapshots (no RecordID) initialize a vehicle.
type Snapshot struct {
	ID        SnapshotID
	VehicleID VehicleID
	Odometer  decimal.Decimal
	Fuel      decimal.Decimal
	Date      Date
	Seq       int64 // store-assigned, tie-break for same-date entries

	WaybillID WaybillID // empty for seed snapshots
	RecordID  RecordID  // empty for seed snapshots

	CreatedAt time.Time
}

// =============================================================================
// DECIMAL HELPERS
// =============================================================================

// MustDecimal parses a decimal literal, returning zero on malformed input.
// Intended for constants and tests, not user input.
func MustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// NullDecimalFrom wraps a value in a valid NullDecimal.
func NullDecimalFrom(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}
