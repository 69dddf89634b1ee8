package fleet

import "context"

// =============================================================================
// NORM STORE - As-of resolution of consumption rates
// =============================================================================

// NormStore resolves the applicable consumption norm for a vehicle and
// season as of a date.
//
// CONTRACT: selects the norm row with the greatest effective date at or
// before asOf; ties broken by highest insertion sequence (latest-created
// wins). Tombstoned vintages never resolve. Fails with NormNotFoundError
// when nothing qualifies - this is a hard stop for the commit pipeline, no
// norm is ever defaulted. No side effects.
type NormStore interface {
	Resolve(ctx context.Context, vehicleID VehicleID, season Season, asOf Date) (*Norm, error)
}

type normStore struct {
	store Store
}

// NewNormStore returns the default NormStore over a persistence Store.
func NewNormStore(store Store) NormStore {
	return &normStore{store: store}
}

func (s *normStore) Resolve(ctx context.Context, vehicleID VehicleID, season Season, asOf Date) (*Norm, error) {
	if !season.Valid() {
		return nil, &ValidationError{Field: "season", Message: "must be winter or summer"}
	}
	norm, err := s.store.ResolveNorm(ctx, vehicleID, season, asOf)
	if err != nil {
		return nil, err
	}
	if norm == nil {
		return nil, &NormNotFoundError{VehicleID: vehicleID, Season: season, AsOf: asOf}
	}
	return norm, nil
}
