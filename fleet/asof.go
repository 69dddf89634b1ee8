package fleet

// =============================================================================
// AS-OF RESOLUTION - Latest-row-before-date, shared by norms and snapshots
// =============================================================================

// ChainKey orders versioned rows: primarily by date, ties broken by the
// store-assigned insertion sequence. Both the norm store ("applicable norm
// as of a date") and the state ledger ("latest snapshot at or before a
// date") resolve against the same ordering, so the lookup lives here once.
type ChainKey struct {
	Date Date
	Seq  int64
}

func (k ChainKey) Less(other ChainKey) bool {
	if !k.Date.Equal(other.Date) {
		return k.Date.Before(other.Date)
	}
	return k.Seq < other.Seq
}

// LatestAsOf returns the index of the chain-greatest item whose key date is
// at or before target (any date if target is nil), or -1 if none qualifies.
// A single linear pass; in-memory stores resolve over slices, the SQL store
// expresses the same ordering as ORDER BY date DESC, seq DESC LIMIT 1.
func LatestAsOf[T any](items []T, keyOf func(T) ChainKey, target *Date) int {
	best := -1
	var bestKey ChainKey
	for i, item := range items {
		k := keyOf(item)
		if target != nil && k.Date.After(*target) {
			continue
		}
		if best == -1 || bestKey.Less(k) {
			best = i
			bestKey = k
		}
	}
	return best
}
