package fleet

import "time"

// =============================================================================
// SOFT DELETE - Tombstone trait composed into every entity
// =============================================================================

// Tombstone marks an entity as soft-deleted. Nothing in the system hard
// deletes: a tombstoned norm is merely shadowed for as-of resolution, a
// tombstoned record drops out of waybill totals, a tombstoned signature
// frees its slot. Reads exclude tombstoned rows unless the caller asks for
// them explicitly.
type Tombstone struct {
	DeletedAt *time.Time
}

func (t Tombstone) Deleted() bool {
	return t.DeletedAt != nil
}

func (t *Tombstone) MarkDeleted(at time.Time) {
	if t.DeletedAt == nil {
		t.DeletedAt = &at
	}
}

func (t *Tombstone) Restore() {
	t.DeletedAt = nil
}

// SoftDeletable is implemented by any entity embedding Tombstone.
type SoftDeletable interface {
	Deleted() bool
}

// Visibility selects which rows a read returns with respect to tombstones.
type Visibility int

const (
	// LiveOnly is the default: tombstoned rows are filtered out.
	LiveOnly Visibility = iota
	// WithDeleted is the escape hatch: return everything.
	WithDeleted
	// DeletedOnly returns only tombstoned rows.
	DeletedOnly
)

// Admits reports whether an entity passes the visibility filter.
func (v Visibility) Admits(e SoftDeletable) bool {
	switch v {
	case WithDeleted:
		return true
	case DeletedOnly:
		return e.Deleted()
	default:
		return !e.Deleted()
	}
}
