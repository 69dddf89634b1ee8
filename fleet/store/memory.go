// Package store provides in-memory Store implementations for testing/dev.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/fuel-engine/fleet"
	"github.com/warp/fuel-engine/signing"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements fleet.TxStore, signing.Store and fleet.AuditLog over
// maps and slices. Transactions are simulated with snapshot + rollback, so
// a failed commit leaves every table as it was. Signing and audit tables
// sit outside the transactional state; the engine never writes them inside
// WithTx.
type Memory struct {
	mu sync.RWMutex
	d  memData

	roles         map[signing.RoleID]*signing.Role
	perms         map[signing.RoleID]signing.PermissionSet
	users         map[fleet.UserID]*signing.User
	substitutions []*signing.Substitution
	required      []*signing.RequiredRole
	signatures    []*signing.Signature

	audit []fleet.AuditEntry
}

func NewMemory() *Memory {
	return &Memory{
		d: memData{
			vehicles: make(map[fleet.VehicleID]*fleet.Vehicle),
			waybills: make(map[fleet.WaybillID]*fleet.Waybill),
		},
		roles: make(map[signing.RoleID]*signing.Role),
		perms: make(map[signing.RoleID]signing.PermissionSet),
		users: make(map[fleet.UserID]*signing.User),
	}
}

// memData holds the transactional tables. Its methods implement fleet.Store
// without locking; Memory wraps them with the lock, and WithTx hands fn the
// bare memData while holding the write lock for the whole transaction.
type memData struct {
	vehicles map[fleet.VehicleID]*fleet.Vehicle
	waybills map[fleet.WaybillID]*fleet.Waybill

	norms     []*fleet.Norm
	snapshots []*fleet.Snapshot
	records   []*fleet.TripRecord

	normSeq int64
	snapSeq int64
	recSeq  int64
}

func (d *memData) clone() memData {
	out := memData{
		vehicles: make(map[fleet.VehicleID]*fleet.Vehicle, len(d.vehicles)),
		waybills: make(map[fleet.WaybillID]*fleet.Waybill, len(d.waybills)),
		normSeq:  d.normSeq,
		snapSeq:  d.snapSeq,
		recSeq:   d.recSeq,
	}
	for id, v := range d.vehicles {
		c := *v
		out.vehicles[id] = &c
	}
	for id, w := range d.waybills {
		c := *w
		out.waybills[id] = &c
	}
	out.norms = make([]*fleet.Norm, len(d.norms))
	for i, n := range d.norms {
		c := *n
		out.norms[i] = &c
	}
	out.snapshots = make([]*fleet.Snapshot, len(d.snapshots))
	for i, s := range d.snapshots {
		c := *s
		out.snapshots[i] = &c
	}
	out.records = make([]*fleet.TripRecord, len(d.records))
	for i, r := range d.records {
		c := *r
		out.records[i] = &c
	}
	return out
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a simulated transaction: the write lock is held
// for the duration, and any error restores the pre-transaction state.
func (m *Memory) WithTx(ctx context.Context, fn func(fleet.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.d.clone()
	if err := fn(&m.d); err != nil {
		m.d = snapshot
		return err
	}
	return nil
}

// =============================================================================
// FLEET STORE - locking wrappers over memData
// =============================================================================

func (m *Memory) SaveVehicle(ctx context.Context, v *fleet.Vehicle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.SaveVehicle(ctx, v)
}

func (m *Memory) GetVehicle(ctx context.Context, id fleet.VehicleID) (*fleet.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.GetVehicle(ctx, id)
}

func (m *Memory) ListVehicles(ctx context.Context, vis fleet.Visibility) ([]fleet.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.ListVehicles(ctx, vis)
}

func (m *Memory) UpdateVehicleState(ctx context.Context, id fleet.VehicleID, odometer, fuel decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.UpdateVehicleState(ctx, id, odometer, fuel)
}

func (m *Memory) DeleteVehicle(ctx context.Context, id fleet.VehicleID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.DeleteVehicle(ctx, id, at)
}

func (m *Memory) SaveNorm(ctx context.Context, n *fleet.Norm) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.SaveNorm(ctx, n)
}

func (m *Memory) ListNorms(ctx context.Context, vehicleID fleet.VehicleID, season fleet.Season, vis fleet.Visibility) ([]fleet.Norm, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.ListNorms(ctx, vehicleID, season, vis)
}

func (m *Memory) ResolveNorm(ctx context.Context, vehicleID fleet.VehicleID, season fleet.Season, asOf fleet.Date) (*fleet.Norm, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.ResolveNorm(ctx, vehicleID, season, asOf)
}

func (m *Memory) DeleteNorm(ctx context.Context, id fleet.NormID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.DeleteNorm(ctx, id, at)
}

func (m *Memory) AppendSnapshot(ctx context.Context, s *fleet.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.AppendSnapshot(ctx, s)
}

func (m *Memory) LatestSnapshot(ctx context.Context, vehicleID fleet.VehicleID, asOf *fleet.Date, excludeWaybill fleet.WaybillID) (*fleet.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.LatestSnapshot(ctx, vehicleID, asOf, excludeWaybill)
}

func (m *Memory) UpdateSnapshotForRecord(ctx context.Context, recordID fleet.RecordID, odometer, fuel decimal.Decimal, date fleet.Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.UpdateSnapshotForRecord(ctx, recordID, odometer, fuel, date)
}

func (m *Memory) SnapshotsFor(ctx context.Context, vehicleID fleet.VehicleID) ([]fleet.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.SnapshotsFor(ctx, vehicleID)
}

func (m *Memory) SaveWaybill(ctx context.Context, w *fleet.Waybill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.SaveWaybill(ctx, w)
}

func (m *Memory) GetWaybill(ctx context.Context, id fleet.WaybillID) (*fleet.Waybill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.GetWaybill(ctx, id)
}

func (m *Memory) ListWaybills(ctx context.Context, vehicleID fleet.VehicleID, vis fleet.Visibility) ([]fleet.Waybill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.ListWaybills(ctx, vehicleID, vis)
}

func (m *Memory) UpdateWaybillTotals(ctx context.Context, id fleet.WaybillID, totals fleet.WaybillTotals) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.UpdateWaybillTotals(ctx, id, totals)
}

func (m *Memory) DeleteWaybill(ctx context.Context, id fleet.WaybillID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.DeleteWaybill(ctx, id, at)
}

func (m *Memory) SaveRecord(ctx context.Context, r *fleet.TripRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.SaveRecord(ctx, r)
}

func (m *Memory) GetRecord(ctx context.Context, id fleet.RecordID) (*fleet.TripRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.GetRecord(ctx, id)
}

func (m *Memory) RecordsForWaybill(ctx context.Context, waybillID fleet.WaybillID) ([]fleet.TripRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.RecordsForWaybill(ctx, waybillID)
}

func (m *Memory) DeleteRecord(ctx context.Context, id fleet.RecordID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.DeleteRecord(ctx, id, at)
}

// =============================================================================
// FLEET STORE - unlocked implementations
// =============================================================================

func (d *memData) SaveVehicle(_ context.Context, v *fleet.Vehicle) error {
	if v.ID == "" {
		v.ID = fleet.VehicleID(fleet.NewID())
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	c := *v
	d.vehicles[v.ID] = &c
	return nil
}

func (d *memData) GetVehicle(_ context.Context, id fleet.VehicleID) (*fleet.Vehicle, error) {
	v, ok := d.vehicles[id]
	if !ok || v.Deleted() {
		return nil, nil
	}
	c := *v
	return &c, nil
}

func (d *memData) ListVehicles(_ context.Context, vis fleet.Visibility) ([]fleet.Vehicle, error) {
	var out []fleet.Vehicle
	for _, v := range d.vehicles {
		if vis.Admits(v) {
			out = append(out, *v)
		}
	}
	// ULIDs sort by creation time
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *memData) UpdateVehicleState(_ context.Context, id fleet.VehicleID, odometer, fuel decimal.Decimal) error {
	v, ok := d.vehicles[id]
	if !ok || v.Deleted() {
		return fleet.ErrVehicleNotFound
	}
	v.Odometer = fleet.NullDecimalFrom(odometer)
	v.Fuel = fleet.NullDecimalFrom(fuel)
	return nil
}

func (d *memData) DeleteVehicle(_ context.Context, id fleet.VehicleID, at time.Time) error {
	v, ok := d.vehicles[id]
	if !ok || v.Deleted() {
		return fleet.ErrVehicleNotFound
	}
	v.MarkDeleted(at)
	return nil
}

func (d *memData) SaveNorm(_ context.Context, n *fleet.Norm) error {
	if n.ID == "" {
		n.ID = fleet.NormID(fleet.NewID())
	}
	d.normSeq++
	n.Seq = d.normSeq
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	c := *n
	d.norms = append(d.norms, &c)
	return nil
}

func (d *memData) ListNorms(_ context.Context, vehicleID fleet.VehicleID, season fleet.Season, vis fleet.Visibility) ([]fleet.Norm, error) {
	var out []fleet.Norm
	for _, n := range d.norms {
		if n.VehicleID != vehicleID || !vis.Admits(n) {
			continue
		}
		if season != "" && n.Season != season {
			continue
		}
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool {
		ki := fleet.ChainKey{Date: out[i].EffectiveDate, Seq: out[i].Seq}
		kj := fleet.ChainKey{Date: out[j].EffectiveDate, Seq: out[j].Seq}
		return ki.Less(kj)
	})
	return out, nil
}

func (d *memData) ResolveNorm(_ context.Context, vehicleID fleet.VehicleID, season fleet.Season, asOf fleet.Date) (*fleet.Norm, error) {
	var candidates []*fleet.Norm
	for _, n := range d.norms {
		if n.VehicleID == vehicleID && n.Season == season && !n.Deleted() {
			candidates = append(candidates, n)
		}
	}
	i := fleet.LatestAsOf(candidates, func(n *fleet.Norm) fleet.ChainKey {
		return fleet.ChainKey{Date: n.EffectiveDate, Seq: n.Seq}
	}, &asOf)
	if i < 0 {
		return nil, nil
	}
	c := *candidates[i]
	return &c, nil
}

func (d *memData) DeleteNorm(_ context.Context, id fleet.NormID, at time.Time) error {
	for _, n := range d.norms {
		if n.ID == id && !n.Deleted() {
			n.MarkDeleted(at)
			return nil
		}
	}
	return fleet.ErrNormNotFound
}

func (d *memData) AppendSnapshot(_ context.Context, s *fleet.Snapshot) error {
	if s.ID == "" {
		s.ID = fleet.SnapshotID(fleet.NewID())
	}
	d.snapSeq++
	s.Seq = d.snapSeq
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	c := *s
	d.snapshots = append(d.snapshots, &c)
	return nil
}

func (d *memData) LatestSnapshot(_ context.Context, vehicleID fleet.VehicleID, asOf *fleet.Date, excludeWaybill fleet.WaybillID) (*fleet.Snapshot, error) {
	var candidates []*fleet.Snapshot
	for _, s := range d.snapshots {
		if s.VehicleID != vehicleID {
			continue
		}
		if excludeWaybill != "" && s.WaybillID == excludeWaybill {
			continue
		}
		candidates = append(candidates, s)
	}
	i := fleet.LatestAsOf(candidates, func(s *fleet.Snapshot) fleet.ChainKey {
		return fleet.ChainKey{Date: s.Date, Seq: s.Seq}
	}, asOf)
	if i < 0 {
		return nil, nil
	}
	c := *candidates[i]
	return &c, nil
}

func (d *memData) UpdateSnapshotForRecord(_ context.Context, recordID fleet.RecordID, odometer, fuel decimal.Decimal, date fleet.Date) error {
	for _, s := range d.snapshots {
		if s.RecordID == recordID {
			s.Odometer = odometer
			s.Fuel = fuel
			s.Date = date
			return nil
		}
	}
	return fleet.ErrRecordNotFound
}

func (d *memData) SnapshotsFor(_ context.Context, vehicleID fleet.VehicleID) ([]fleet.Snapshot, error) {
	var out []fleet.Snapshot
	for _, s := range d.snapshots {
		if s.VehicleID == vehicleID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ki := fleet.ChainKey{Date: out[i].Date, Seq: out[i].Seq}
		kj := fleet.ChainKey{Date: out[j].Date, Seq: out[j].Seq}
		return ki.Less(kj)
	})
	return out, nil
}

func (d *memData) SaveWaybill(_ context.Context, w *fleet.Waybill) error {
	if w.ID == "" {
		w.ID = fleet.WaybillID(fleet.NewID())
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	c := *w
	d.waybills[w.ID] = &c
	return nil
}

func (d *memData) GetWaybill(_ context.Context, id fleet.WaybillID) (*fleet.Waybill, error) {
	w, ok := d.waybills[id]
	if !ok || w.Deleted() {
		return nil, nil
	}
	c := *w
	return &c, nil
}

func (d *memData) ListWaybills(_ context.Context, vehicleID fleet.VehicleID, vis fleet.Visibility) ([]fleet.Waybill, error) {
	var out []fleet.Waybill
	for _, w := range d.waybills {
		if vehicleID != "" && w.VehicleID != vehicleID {
			continue
		}
		if vis.Admits(w) {
			out = append(out, *w)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (d *memData) UpdateWaybillTotals(_ context.Context, id fleet.WaybillID, totals fleet.WaybillTotals) error {
	w, ok := d.waybills[id]
	if !ok || w.Deleted() {
		return fleet.ErrWaybillNotFound
	}
	w.Totals = totals
	return nil
}

func (d *memData) DeleteWaybill(_ context.Context, id fleet.WaybillID, at time.Time) error {
	w, ok := d.waybills[id]
	if !ok || w.Deleted() {
		return fleet.ErrWaybillNotFound
	}
	w.MarkDeleted(at)
	return nil
}

func (d *memData) SaveRecord(_ context.Context, r *fleet.TripRecord) error {
	if r.ID != "" {
		for _, existing := range d.records {
			if existing.ID == r.ID {
				r.Seq = existing.Seq
				r.CreatedAt = existing.CreatedAt
				*existing = *r
				return nil
			}
		}
	}
	if r.ID == "" {
		r.ID = fleet.RecordID(fleet.NewID())
	}
	d.recSeq++
	r.Seq = d.recSeq
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	c := *r
	d.records = append(d.records, &c)
	return nil
}

func (d *memData) GetRecord(_ context.Context, id fleet.RecordID) (*fleet.TripRecord, error) {
	for _, r := range d.records {
		if r.ID == id && !r.Deleted() {
			c := *r
			return &c, nil
		}
	}
	return nil, nil
}

func (d *memData) RecordsForWaybill(_ context.Context, waybillID fleet.WaybillID) ([]fleet.TripRecord, error) {
	var out []fleet.TripRecord
	for _, r := range d.records {
		if r.WaybillID == waybillID && !r.Deleted() {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ki := fleet.ChainKey{Date: out[i].Date, Seq: out[i].Seq}
		kj := fleet.ChainKey{Date: out[j].Date, Seq: out[j].Seq}
		return ki.Less(kj)
	})
	return out, nil
}

func (d *memData) DeleteRecord(_ context.Context, id fleet.RecordID, at time.Time) error {
	for _, r := range d.records {
		if r.ID == id && !r.Deleted() {
			r.MarkDeleted(at)
			return nil
		}
	}
	return fleet.ErrRecordNotFound
}

// =============================================================================
// SIGNING STORE
// =============================================================================

func (m *Memory) SaveRole(_ context.Context, r *signing.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = signing.RoleID(fleet.NewID())
	}
	c := *r
	m.roles[r.ID] = &c
	return nil
}

func (m *Memory) GetRole(_ context.Context, id signing.RoleID) (*signing.Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.roles[id]
	if !ok || r.Deleted() {
		return nil, nil
	}
	c := *r
	return &c, nil
}

func (m *Memory) FindRoleByName(_ context.Context, name string) (*signing.Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.roles {
		if r.Name == name && !r.Deleted() {
			c := *r
			return &c, nil
		}
	}
	return nil, nil
}

func (m *Memory) ListRoles(_ context.Context, vis fleet.Visibility) ([]signing.Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []signing.Role
	for _, r := range m.roles {
		if vis.Admits(r) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) Permissions(_ context.Context, id signing.RoleID) (signing.PermissionSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.perms[id]
	if !ok {
		return signing.PermissionSet{}, nil
	}
	return p.Clone(), nil
}

func (m *Memory) SetPermissions(_ context.Context, id signing.RoleID, perms signing.PermissionSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.perms[id] = perms.Clone()
	return nil
}

func (m *Memory) SaveUser(_ context.Context, u *signing.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		u.ID = fleet.UserID(fleet.NewID())
	}
	c := *u
	m.users[u.ID] = &c
	return nil
}

func (m *Memory) GetUser(_ context.Context, id fleet.UserID) (*signing.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok || u.Deleted() {
		return nil, nil
	}
	c := *u
	return &c, nil
}

func (m *Memory) FindUserByLogin(_ context.Context, login string) (*signing.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Login == login && !u.Deleted() {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (m *Memory) ListUsers(_ context.Context, vis fleet.Visibility) ([]signing.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []signing.User
	for _, u := range m.users {
		if vis.Admits(u) {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Login < out[j].Login })
	return out, nil
}

func (m *Memory) DeleteUser(_ context.Context, id fleet.UserID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.Deleted() {
		return fleet.ErrPermissionDenied
	}
	u.MarkDeleted(at)
	return nil
}

func (m *Memory) SaveSubstitution(_ context.Context, s *signing.Substitution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = fleet.NewID()
	}
	c := *s
	m.substitutions = append(m.substitutions, &c)
	return nil
}

func (m *Memory) HasSubstitution(_ context.Context, main, substitute signing.RoleID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.substitutions {
		if s.MainRole == main && s.SubstituteRole == substitute && !s.Deleted() {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) ListSubstitutions(_ context.Context, vis fleet.Visibility) ([]signing.Substitution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []signing.Substitution
	for _, s := range m.substitutions {
		if vis.Admits(s) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *Memory) SaveRequiredRole(_ context.Context, r *signing.RequiredRole) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *r
	m.required = append(m.required, &c)
	return nil
}

func (m *Memory) RequiredRoles(_ context.Context) ([]signing.RequiredRole, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []signing.RequiredRole
	for _, r := range m.required {
		if !r.Deleted() {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (m *Memory) SaveSignature(_ context.Context, s *signing.Signature) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.signatures {
		if existing.WaybillID == s.WaybillID && existing.RoleID == s.RoleID && !existing.Deleted() {
			return fleet.ErrPermissionDenied
		}
	}
	if s.ID == "" {
		s.ID = fleet.NewID()
	}
	c := *s
	m.signatures = append(m.signatures, &c)
	return nil
}

func (m *Memory) GetSignature(_ context.Context, waybillID fleet.WaybillID, roleID signing.RoleID) (*signing.Signature, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.signatures {
		if s.WaybillID == waybillID && s.RoleID == roleID && !s.Deleted() {
			c := *s
			return &c, nil
		}
	}
	return nil, nil
}

func (m *Memory) SignaturesFor(_ context.Context, waybillID fleet.WaybillID) ([]signing.Signature, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []signing.Signature
	for _, s := range m.signatures {
		if s.WaybillID == waybillID && !s.Deleted() {
			out = append(out, *s)
		}
	}
	return out, nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (m *Memory) AppendAudit(_ context.Context, entry fleet.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, entry)
	return nil
}

func (m *Memory) AuditEntries(_ context.Context, vehicleID fleet.VehicleID) ([]fleet.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []fleet.AuditEntry
	for _, e := range m.audit {
		if vehicleID == "" || e.VehicleID == vehicleID {
			out = append(out, e)
		}
	}
	return out, nil
}
