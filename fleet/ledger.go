/*
ledger.go - The vehicle state ledger

PURPOSE:
  The state ledger is the source of truth for every vehicle's odometer/fuel
  history. Each committed trip record appends exactly one snapshot; a seed
  snapshot initializes a vehicle before its first record.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: Append never mutates prior snapshots.
  2. TOTAL ORDER: For a given vehicle the chain is ordered by (date, seq).
  3. CONTINUITY: Each record's before-state equals the latest prior
     snapshot's after-state (or the vehicle's live state if the chain is
     empty - which only happens for vehicles migrated in with cached state).

CORRECTIONS:
  Editing a trip record recomputes its derived fields and rewrites the
  snapshot that record produced (UpdateSnapshotForRecord). That is an
  explicit, engine-mediated recomputation - never a silent overwrite.
*/
package fleet

import "context"

// StateLedger exposes the per-vehicle snapshot chain.
type StateLedger interface {
	// Latest returns the chain-latest snapshot at or before asOf (globally
	// latest if nil), or nil if the vehicle has no snapshots.
	Latest(ctx context.Context, vehicleID VehicleID, asOf *Date) (*Snapshot, error)

	// Append inserts a new immutable snapshot and returns it with its
	// store-assigned ID and Seq filled in.
	Append(ctx context.Context, s Snapshot) (*Snapshot, error)
}

type stateLedger struct {
	store Store
}

// NewStateLedger returns the default StateLedger over a persistence Store.
func NewStateLedger(store Store) StateLedger {
	return &stateLedger{store: store}
}

func (l *stateLedger) Latest(ctx context.Context, vehicleID VehicleID, asOf *Date) (*Snapshot, error) {
	return l.store.LatestSnapshot(ctx, vehicleID, asOf, "")
}

func (l *stateLedger) Append(ctx context.Context, s Snapshot) (*Snapshot, error) {
	if s.VehicleID == "" {
		return nil, &ValidationError{Field: "vehicle_id", Message: "required"}
	}
	if s.Date.IsZero() {
		return nil, &ValidationError{Field: "date", Message: "required"}
	}
	if err := l.store.AppendSnapshot(ctx, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
