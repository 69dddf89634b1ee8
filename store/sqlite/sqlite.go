/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements all persistence interfaces (fleet.TxStore, signing.Store,
  fleet.AuditLog) using SQLite. In production, the same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

CHAIN ORDERING:
  Norms, snapshots and trip records carry a store-assigned seq that breaks
  same-date ties in every as-of lookup. Here seq is the AUTOINCREMENT rowid
  of each table, so "latest vintage at or before date" is a single
  ORDER BY date DESC, seq DESC LIMIT 1.

ENCODING:
  Decimals are stored as TEXT (exact, no float drift), calendar days as
  "YYYY-MM-DD" (lexicographic order == chronological order), timestamps as
  RFC3339.

SOFT DELETE:
  Rows carry deleted_at; point lookups and resolution queries filter it,
  list queries map the Visibility argument onto a WHERE fragment. The
  one-signature-per-slot rule is a partial unique index over live rows, so
  voiding a signature frees its slot.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety; WithTx holds the write lock for the
  whole transaction, which serializes commits - the engine's chain
  resolution depends on that.

USAGE:
  store, err := sqlite.New("./data/fuel.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := fleet.NewEngine(store, passenger.New(), firetruck.New())

SEE ALSO:
  - fleet/store.go: Interface definitions
  - fleet/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/fuel-engine/fleet"
	"github.com/warp/fuel-engine/signing"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: writers are serialized by s.mu anyway, and :memory:
	// databases exist per connection.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Vehicles (live state cached on the row, ledger is source of truth)
	CREATE TABLE IF NOT EXISTS vehicles (
		id TEXT PRIMARY KEY,
		plate TEXT NOT NULL,
		brand TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL,
		truck_type TEXT NOT NULL DEFAULT '',
		odometer TEXT,
		fuel TEXT,
		created_at TEXT NOT NULL,
		deleted_at TEXT
	);

	-- Consumption norm vintages. seq (rowid) breaks same-date ties:
	-- latest-created vintage wins.
	CREATE TABLE IF NOT EXISTS norms (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		vehicle_id TEXT NOT NULL,
		season TEXT NOT NULL,
		effective_date TEXT NOT NULL,
		city_rate TEXT NOT NULL DEFAULT '0',
		area_rate TEXT NOT NULL DEFAULT '0',
		km_rate TEXT NOT NULL DEFAULT '0',
		pump_rate TEXT NOT NULL DEFAULT '0',
		no_pump_rate TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL,
		deleted_at TEXT
	);

	-- Hot path: as-of norm resolution
	CREATE INDEX IF NOT EXISTS idx_norms_resolution
		ON norms(vehicle_id, season, effective_date DESC, seq DESC);

	-- State ledger (append-only; the edit path rewrites a record's own row)
	CREATE TABLE IF NOT EXISTS snapshots (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		vehicle_id TEXT NOT NULL,
		odometer TEXT NOT NULL,
		fuel TEXT NOT NULL,
		date TEXT NOT NULL,
		waybill_id TEXT NOT NULL DEFAULT '',
		record_id TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	-- Hot path: latest snapshot at or before a date
	CREATE INDEX IF NOT EXISTS idx_snapshots_chain
		ON snapshots(vehicle_id, date DESC, seq DESC);
	CREATE INDEX IF NOT EXISTS idx_snapshots_record
		ON snapshots(record_id) WHERE record_id != '';

	-- Waybills with denormalized totals (recomputed by the aggregator)
	CREATE TABLE IF NOT EXISTS waybills (
		id TEXT PRIMARY KEY,
		number INTEGER NOT NULL,
		vehicle_id TEXT NOT NULL,
		driver_id TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL,
		season TEXT NOT NULL,
		upon_issuance TEXT NOT NULL DEFAULT '0',
		total_spent TEXT NOT NULL DEFAULT '0',
		total_received TEXT NOT NULL DEFAULT '0',
		required_by_norm TEXT NOT NULL DEFAULT '0',
		availability_upon_delivery TEXT NOT NULL DEFAULT '0',
		savings TEXT NOT NULL DEFAULT '0',
		overrun TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL,
		deleted_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_waybills_vehicle
		ON waybills(vehicle_id, date);

	-- Trip records: user-supplied fields plus derived fields frozen at commit
	CREATE TABLE IF NOT EXISTS trip_records (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		waybill_id TEXT NOT NULL,
		date TEXT NOT NULL,
		driver_id TEXT NOT NULL DEFAULT '',
		distance_city TEXT NOT NULL DEFAULT '0',
		distance_area TEXT NOT NULL DEFAULT '0',
		odometer_after TEXT,
		times_json TEXT NOT NULL DEFAULT '{}',
		fuel_refueled TEXT NOT NULL DEFAULT '0',
		fuel_used_actual TEXT NOT NULL DEFAULT '0',
		odometer_before TEXT NOT NULL DEFAULT '0',
		fuel_before_departure TEXT NOT NULL DEFAULT '0',
		norm_id TEXT NOT NULL DEFAULT '',
		norm_city_rate TEXT NOT NULL DEFAULT '0',
		norm_area_rate TEXT NOT NULL DEFAULT '0',
		norm_km_rate TEXT NOT NULL DEFAULT '0',
		norm_pump_rate TEXT NOT NULL DEFAULT '0',
		norm_no_pump_rate TEXT NOT NULL DEFAULT '0',
		distance_total TEXT NOT NULL DEFAULT '0',
		fuel_used_by_norm TEXT NOT NULL DEFAULT '0',
		fuel_on_return TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL,
		deleted_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_records_waybill
		ON trip_records(waybill_id, date, seq);

	-- Roles and users
	CREATE TABLE IF NOT EXISTS roles (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		mobile_booking BOOLEAN NOT NULL DEFAULT FALSE,
		deleted_at TEXT
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_roles_name
		ON roles(name) WHERE deleted_at IS NULL;

	CREATE TABLE IF NOT EXISTS role_permissions (
		role_id TEXT PRIMARY KEY,
		perms_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		surname TEXT NOT NULL DEFAULT '',
		patronymic TEXT NOT NULL DEFAULT '',
		login TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		role_id TEXT NOT NULL,
		deleted_at TEXT
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_users_login
		ON users(login) WHERE deleted_at IS NULL;

	CREATE TABLE IF NOT EXISTS role_substitutions (
		id TEXT PRIMARY KEY,
		main_role TEXT NOT NULL,
		substitute_role TEXT NOT NULL,
		deleted_at TEXT
	);

	-- Signature slots and signatures
	CREATE TABLE IF NOT EXISTS required_roles (
		role_id TEXT PRIMARY KEY,
		sign_order INTEGER NOT NULL,
		deleted_at TEXT
	);

	CREATE TABLE IF NOT EXISTS signatures (
		id TEXT PRIMARY KEY,
		waybill_id TEXT NOT NULL,
		role_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		signed_at TEXT NOT NULL,
		deleted_at TEXT
	);

	-- CRITICAL: one live signature per (waybill, slot). Voiding a
	-- signature (soft delete) frees the slot.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_signatures_slot
		ON signatures(waybill_id, role_id) WHERE deleted_at IS NULL;

	-- Audit log (append-only, separate from the state ledger)
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		at TEXT NOT NULL,
		actor TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL,
		vehicle_id TEXT NOT NULL DEFAULT '',
		waybill_id TEXT NOT NULL DEFAULT '',
		record_id TEXT NOT NULL DEFAULT '',
		details_json TEXT NOT NULL DEFAULT '{}'
	);

	CREATE INDEX IF NOT EXISTS idx_audit_vehicle
		ON audit_log(vehicle_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx so every statement is
// written once and shared by the plain store and the transactional view.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// TRANSACTIONS (fleet.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction. The write lock
// is held for the duration, serializing commits.
func (s *Store) WithTx(ctx context.Context, fn func(fleet.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx, parent: s}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore is the view of the store inside a transaction. It shares every
// statement with the parent, bound to the open *sql.Tx.
type txStore struct {
	tx     *sql.Tx
	parent *Store
}

func (ts *txStore) SaveVehicle(ctx context.Context, v *fleet.Vehicle) error {
	return ts.parent.saveVehicle(ctx, ts.tx, v)
}
func (ts *txStore) GetVehicle(ctx context.Context, id fleet.VehicleID) (*fleet.Vehicle, error) {
	return ts.parent.getVehicle(ctx, ts.tx, id)
}
func (ts *txStore) ListVehicles(ctx context.Context, vis fleet.Visibility) ([]fleet.Vehicle, error) {
	return ts.parent.listVehicles(ctx, ts.tx, vis)
}
func (ts *txStore) UpdateVehicleState(ctx context.Context, id fleet.VehicleID, odometer, fuel decimal.Decimal) error {
	return ts.parent.updateVehicleState(ctx, ts.tx, id, odometer, fuel)
}
func (ts *txStore) DeleteVehicle(ctx context.Context, id fleet.VehicleID, at time.Time) error {
	return ts.parent.deleteVehicle(ctx, ts.tx, id, at)
}
func (ts *txStore) SaveNorm(ctx context.Context, n *fleet.Norm) error {
	return ts.parent.saveNorm(ctx, ts.tx, n)
}
func (ts *txStore) ListNorms(ctx context.Context, vehicleID fleet.VehicleID, season fleet.Season, vis fleet.Visibility) ([]fleet.Norm, error) {
	return ts.parent.listNorms(ctx, ts.tx, vehicleID, season, vis)
}
func (ts *txStore) ResolveNorm(ctx context.Context, vehicleID fleet.VehicleID, season fleet.Season, asOf fleet.Date) (*fleet.Norm, error) {
	return ts.parent.resolveNorm(ctx, ts.tx, vehicleID, season, asOf)
}
func (ts *txStore) DeleteNorm(ctx context.Context, id fleet.NormID, at time.Time) error {
	return ts.parent.deleteNorm(ctx, ts.tx, id, at)
}
func (ts *txStore) AppendSnapshot(ctx context.Context, snap *fleet.Snapshot) error {
	return ts.parent.appendSnapshot(ctx, ts.tx, snap)
}
func (ts *txStore) LatestSnapshot(ctx context.Context, vehicleID fleet.VehicleID, asOf *fleet.Date, excludeWaybill fleet.WaybillID) (*fleet.Snapshot, error) {
	return ts.parent.latestSnapshot(ctx, ts.tx, vehicleID, asOf, excludeWaybill)
}
func (ts *txStore) UpdateSnapshotForRecord(ctx context.Context, recordID fleet.RecordID, odometer, fuel decimal.Decimal, date fleet.Date) error {
	return ts.parent.updateSnapshotForRecord(ctx, ts.tx, recordID, odometer, fuel, date)
}
func (ts *txStore) SnapshotsFor(ctx context.Context, vehicleID fleet.VehicleID) ([]fleet.Snapshot, error) {
	return ts.parent.snapshotsFor(ctx, ts.tx, vehicleID)
}
func (ts *txStore) SaveWaybill(ctx context.Context, w *fleet.Waybill) error {
	return ts.parent.saveWaybill(ctx, ts.tx, w)
}
func (ts *txStore) GetWaybill(ctx context.Context, id fleet.WaybillID) (*fleet.Waybill, error) {
	return ts.parent.getWaybill(ctx, ts.tx, id)
}
func (ts *txStore) ListWaybills(ctx context.Context, vehicleID fleet.VehicleID, vis fleet.Visibility) ([]fleet.Waybill, error) {
	return ts.parent.listWaybills(ctx, ts.tx, vehicleID, vis)
}
func (ts *txStore) UpdateWaybillTotals(ctx context.Context, id fleet.WaybillID, totals fleet.WaybillTotals) error {
	return ts.parent.updateWaybillTotals(ctx, ts.tx, id, totals)
}
func (ts *txStore) DeleteWaybill(ctx context.Context, id fleet.WaybillID, at time.Time) error {
	return ts.parent.deleteWaybill(ctx, ts.tx, id, at)
}
func (ts *txStore) SaveRecord(ctx context.Context, r *fleet.TripRecord) error {
	return ts.parent.saveRecord(ctx, ts.tx, r)
}
func (ts *txStore) GetRecord(ctx context.Context, id fleet.RecordID) (*fleet.TripRecord, error) {
	return ts.parent.getRecord(ctx, ts.tx, id)
}
func (ts *txStore) RecordsForWaybill(ctx context.Context, waybillID fleet.WaybillID) ([]fleet.TripRecord, error) {
	return ts.parent.recordsForWaybill(ctx, ts.tx, waybillID)
}
func (ts *txStore) DeleteRecord(ctx context.Context, id fleet.RecordID, at time.Time) error {
	return ts.parent.deleteRecord(ctx, ts.tx, id, at)
}

// =============================================================================
// VEHICLES
// =============================================================================

func (s *Store) SaveVehicle(ctx context.Context, v *fleet.Vehicle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveVehicle(ctx, s.db, v)
}

func (s *Store) saveVehicle(ctx context.Context, q querier, v *fleet.Vehicle) error {
	if v.ID == "" {
		v.ID = fleet.VehicleID(fleet.NewID())
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO vehicles (id, plate, brand, model, kind, truck_type, odometer, fuel, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			plate = excluded.plate,
			brand = excluded.brand,
			model = excluded.model,
			kind = excluded.kind,
			truck_type = excluded.truck_type
	`

	_, err := q.ExecContext(ctx, query,
		v.ID, v.Plate, v.Brand, v.Model, v.Kind, v.TruckType,
		nullDecArg(v.Odometer), nullDecArg(v.Fuel),
		v.CreatedAt.Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetVehicle(ctx context.Context, id fleet.VehicleID) (*fleet.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getVehicle(ctx, s.db, id)
}

const vehicleColumns = `id, plate, brand, model, kind, truck_type, odometer, fuel, created_at, deleted_at`

func (s *Store) getVehicle(ctx context.Context, q querier, id fleet.VehicleID) (*fleet.Vehicle, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+vehicleColumns+` FROM vehicles WHERE id = ? AND deleted_at IS NULL`, id)
	v, err := scanVehicle(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Store) ListVehicles(ctx context.Context, vis fleet.Visibility) ([]fleet.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listVehicles(ctx, s.db, vis)
}

func (s *Store) listVehicles(ctx context.Context, q querier, vis fleet.Visibility) ([]fleet.Vehicle, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+vehicleColumns+` FROM vehicles WHERE 1=1 `+visClause(vis)+` ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vehicles []fleet.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		vehicles = append(vehicles, *v)
	}
	return vehicles, rows.Err()
}

func (s *Store) UpdateVehicleState(ctx context.Context, id fleet.VehicleID, odometer, fuel decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateVehicleState(ctx, s.db, id, odometer, fuel)
}

func (s *Store) updateVehicleState(ctx context.Context, q querier, id fleet.VehicleID, odometer, fuel decimal.Decimal) error {
	res, err := q.ExecContext(ctx,
		`UPDATE vehicles SET odometer = ?, fuel = ? WHERE id = ? AND deleted_at IS NULL`,
		odometer.String(), fuel.String(), id)
	if err != nil {
		return err
	}
	return requireRow(res, fleet.ErrVehicleNotFound)
}

func (s *Store) DeleteVehicle(ctx context.Context, id fleet.VehicleID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteVehicle(ctx, s.db, id, at)
}

func (s *Store) deleteVehicle(ctx context.Context, q querier, id fleet.VehicleID, at time.Time) error {
	res, err := q.ExecContext(ctx,
		`UPDATE vehicles SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		at.UTC().Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	return requireRow(res, fleet.ErrVehicleNotFound)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVehicle(row rowScanner) (*fleet.Vehicle, error) {
	var (
		v              fleet.Vehicle
		odometer, fuel sql.NullString
		createdAt      string
		deletedAt      sql.NullString
	)
	err := row.Scan(&v.ID, &v.Plate, &v.Brand, &v.Model, &v.Kind, &v.TruckType,
		&odometer, &fuel, &createdAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	v.Odometer = scanNullDec(odometer)
	v.Fuel = scanNullDec(fuel)
	v.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	v.Tombstone = scanTombstone(deletedAt)
	return &v, nil
}

// =============================================================================
// NORMS
// =============================================================================

func (s *Store) SaveNorm(ctx context.Context, n *fleet.Norm) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveNorm(ctx, s.db, n)
}

func (s *Store) saveNorm(ctx context.Context, q querier, n *fleet.Norm) error {
	if n.ID == "" {
		n.ID = fleet.NormID(fleet.NewID())
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO norms
		(id, vehicle_id, season, effective_date, city_rate, area_rate,
		 km_rate, pump_rate, no_pump_rate, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := q.ExecContext(ctx, query,
		n.ID, n.VehicleID, n.Season, n.EffectiveDate.String(),
		n.CityRate.String(), n.AreaRate.String(),
		n.KmRate.String(), n.PumpRate.String(), n.NoPumpRate.String(),
		n.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert norm: %w", err)
	}
	n.Seq, _ = res.LastInsertId()
	return nil
}

const normColumns = `seq, id, vehicle_id, season, effective_date, city_rate, area_rate,
	km_rate, pump_rate, no_pump_rate, created_at, deleted_at`

func (s *Store) ListNorms(ctx context.Context, vehicleID fleet.VehicleID, season fleet.Season, vis fleet.Visibility) ([]fleet.Norm, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listNorms(ctx, s.db, vehicleID, season, vis)
}

func (s *Store) listNorms(ctx context.Context, q querier, vehicleID fleet.VehicleID, season fleet.Season, vis fleet.Visibility) ([]fleet.Norm, error) {
	query := `SELECT ` + normColumns + ` FROM norms WHERE vehicle_id = ?` + visClause(vis)
	args := []any{vehicleID}
	if season != "" {
		query += ` AND season = ?`
		args = append(args, season)
	}
	query += ` ORDER BY effective_date ASC, seq ASC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var norms []fleet.Norm
	for rows.Next() {
		n, err := scanNorm(rows)
		if err != nil {
			return nil, err
		}
		norms = append(norms, *n)
	}
	return norms, rows.Err()
}

func (s *Store) ResolveNorm(ctx context.Context, vehicleID fleet.VehicleID, season fleet.Season, asOf fleet.Date) (*fleet.Norm, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolveNorm(ctx, s.db, vehicleID, season, asOf)
}

func (s *Store) resolveNorm(ctx context.Context, q querier, vehicleID fleet.VehicleID, season fleet.Season, asOf fleet.Date) (*fleet.Norm, error) {
	query := `
		SELECT ` + normColumns + `
		FROM norms
		WHERE vehicle_id = ? AND season = ? AND effective_date <= ? AND deleted_at IS NULL
		ORDER BY effective_date DESC, seq DESC
		LIMIT 1
	`
	n, err := scanNorm(q.QueryRowContext(ctx, query, vehicleID, season, asOf.String()))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (s *Store) DeleteNorm(ctx context.Context, id fleet.NormID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteNorm(ctx, s.db, id, at)
}

func (s *Store) deleteNorm(ctx context.Context, q querier, id fleet.NormID, at time.Time) error {
	res, err := q.ExecContext(ctx,
		`UPDATE norms SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		at.UTC().Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	return requireRow(res, fleet.ErrNormNotFound)
}

func scanNorm(row rowScanner) (*fleet.Norm, error) {
	var (
		n                            fleet.Norm
		effectiveDate, createdAt     string
		city, area, km, pump, noPump string
		deletedAt                    sql.NullString
	)
	err := row.Scan(&n.Seq, &n.ID, &n.VehicleID, &n.Season, &effectiveDate,
		&city, &area, &km, &pump, &noPump, &createdAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	n.EffectiveDate, _ = fleet.ParseDate(effectiveDate)
	n.CityRate = fleet.MustDecimal(city)
	n.AreaRate = fleet.MustDecimal(area)
	n.KmRate = fleet.MustDecimal(km)
	n.PumpRate = fleet.MustDecimal(pump)
	n.NoPumpRate = fleet.MustDecimal(noPump)
	n.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	n.Tombstone = scanTombstone(deletedAt)
	return &n, nil
}

// =============================================================================
// LEDGER SNAPSHOTS
// =============================================================================

func (s *Store) AppendSnapshot(ctx context.Context, snap *fleet.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendSnapshot(ctx, s.db, snap)
}

func (s *Store) appendSnapshot(ctx context.Context, q querier, snap *fleet.Snapshot) error {
	if snap.ID == "" {
		snap.ID = fleet.SnapshotID(fleet.NewID())
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO snapshots (id, vehicle_id, odometer, fuel, date, waybill_id, record_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := q.ExecContext(ctx, query,
		snap.ID, snap.VehicleID, snap.Odometer.String(), snap.Fuel.String(),
		snap.Date.String(), snap.WaybillID, snap.RecordID,
		snap.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to append snapshot: %w", err)
	}
	snap.Seq, _ = res.LastInsertId()
	return nil
}

const snapshotColumns = `seq, id, vehicle_id, odometer, fuel, date, waybill_id, record_id, created_at`

func (s *Store) LatestSnapshot(ctx context.Context, vehicleID fleet.VehicleID, asOf *fleet.Date, excludeWaybill fleet.WaybillID) (*fleet.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestSnapshot(ctx, s.db, vehicleID, asOf, excludeWaybill)
}

func (s *Store) latestSnapshot(ctx context.Context, q querier, vehicleID fleet.VehicleID, asOf *fleet.Date, excludeWaybill fleet.WaybillID) (*fleet.Snapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM snapshots WHERE vehicle_id = ?`
	args := []any{vehicleID}
	if asOf != nil {
		query += ` AND date <= ?`
		args = append(args, asOf.String())
	}
	if excludeWaybill != "" {
		query += ` AND waybill_id != ?`
		args = append(args, excludeWaybill)
	}
	query += ` ORDER BY date DESC, seq DESC LIMIT 1`

	snap, err := scanSnapshot(q.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *Store) UpdateSnapshotForRecord(ctx context.Context, recordID fleet.RecordID, odometer, fuel decimal.Decimal, date fleet.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateSnapshotForRecord(ctx, s.db, recordID, odometer, fuel, date)
}

func (s *Store) updateSnapshotForRecord(ctx context.Context, q querier, recordID fleet.RecordID, odometer, fuel decimal.Decimal, date fleet.Date) error {
	res, err := q.ExecContext(ctx,
		`UPDATE snapshots SET odometer = ?, fuel = ?, date = ? WHERE record_id = ?`,
		odometer.String(), fuel.String(), date.String(), recordID)
	if err != nil {
		return err
	}
	return requireRow(res, fleet.ErrRecordNotFound)
}

func (s *Store) SnapshotsFor(ctx context.Context, vehicleID fleet.VehicleID) ([]fleet.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotsFor(ctx, s.db, vehicleID)
}

func (s *Store) snapshotsFor(ctx context.Context, q querier, vehicleID fleet.VehicleID) ([]fleet.Snapshot, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots WHERE vehicle_id = ? ORDER BY date ASC, seq ASC`,
		vehicleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []fleet.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, *snap)
	}
	return snaps, rows.Err()
}

func scanSnapshot(row rowScanner) (*fleet.Snapshot, error) {
	var (
		snap                     fleet.Snapshot
		odometer, fuel, date     string
		createdAt                string
	)
	err := row.Scan(&snap.Seq, &snap.ID, &snap.VehicleID, &odometer, &fuel,
		&date, &snap.WaybillID, &snap.RecordID, &createdAt)
	if err != nil {
		return nil, err
	}
	snap.Odometer = fleet.MustDecimal(odometer)
	snap.Fuel = fleet.MustDecimal(fuel)
	snap.Date, _ = fleet.ParseDate(date)
	snap.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &snap, nil
}

// =============================================================================
// WAYBILLS
// =============================================================================

func (s *Store) SaveWaybill(ctx context.Context, w *fleet.Waybill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveWaybill(ctx, s.db, w)
}

func (s *Store) saveWaybill(ctx context.Context, q querier, w *fleet.Waybill) error {
	if w.ID == "" {
		w.ID = fleet.WaybillID(fleet.NewID())
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO waybills (id, number, vehicle_id, driver_id, date, season, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			number = excluded.number,
			driver_id = excluded.driver_id,
			date = excluded.date,
			season = excluded.season
	`

	_, err := q.ExecContext(ctx, query,
		w.ID, w.Number, w.VehicleID, w.DriverID, w.Date.String(), w.Season,
		w.CreatedAt.Format(time.RFC3339),
	)
	return err
}

const waybillColumns = `id, number, vehicle_id, driver_id, date, season,
	upon_issuance, total_spent, total_received, required_by_norm,
	availability_upon_delivery, savings, overrun, created_at, deleted_at`

func (s *Store) GetWaybill(ctx context.Context, id fleet.WaybillID) (*fleet.Waybill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getWaybill(ctx, s.db, id)
}

func (s *Store) getWaybill(ctx context.Context, q querier, id fleet.WaybillID) (*fleet.Waybill, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+waybillColumns+` FROM waybills WHERE id = ? AND deleted_at IS NULL`, id)
	w, err := scanWaybill(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (s *Store) ListWaybills(ctx context.Context, vehicleID fleet.VehicleID, vis fleet.Visibility) ([]fleet.Waybill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listWaybills(ctx, s.db, vehicleID, vis)
}

func (s *Store) listWaybills(ctx context.Context, q querier, vehicleID fleet.VehicleID, vis fleet.Visibility) ([]fleet.Waybill, error) {
	query := `SELECT ` + waybillColumns + ` FROM waybills WHERE 1=1` + visClause(vis)
	args := []any{}
	if vehicleID != "" {
		query += ` AND vehicle_id = ?`
		args = append(args, vehicleID)
	}
	query += ` ORDER BY date ASC, id ASC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var waybills []fleet.Waybill
	for rows.Next() {
		w, err := scanWaybill(rows)
		if err != nil {
			return nil, err
		}
		waybills = append(waybills, *w)
	}
	return waybills, rows.Err()
}

func (s *Store) UpdateWaybillTotals(ctx context.Context, id fleet.WaybillID, totals fleet.WaybillTotals) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateWaybillTotals(ctx, s.db, id, totals)
}

func (s *Store) updateWaybillTotals(ctx context.Context, q querier, id fleet.WaybillID, totals fleet.WaybillTotals) error {
	query := `
		UPDATE waybills SET
			upon_issuance = ?,
			total_spent = ?,
			total_received = ?,
			required_by_norm = ?,
			availability_upon_delivery = ?,
			savings = ?,
			overrun = ?
		WHERE id = ? AND deleted_at IS NULL
	`
	res, err := q.ExecContext(ctx, query,
		totals.UponIssuance.String(), totals.TotalSpent.String(),
		totals.TotalReceived.String(), totals.RequiredByNorm.String(),
		totals.AvailabilityUponDelivery.String(),
		totals.Savings.String(), totals.Overrun.String(),
		id)
	if err != nil {
		return err
	}
	return requireRow(res, fleet.ErrWaybillNotFound)
}

func (s *Store) DeleteWaybill(ctx context.Context, id fleet.WaybillID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteWaybill(ctx, s.db, id, at)
}

func (s *Store) deleteWaybill(ctx context.Context, q querier, id fleet.WaybillID, at time.Time) error {
	res, err := q.ExecContext(ctx,
		`UPDATE waybills SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		at.UTC().Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	return requireRow(res, fleet.ErrWaybillNotFound)
}

func scanWaybill(row rowScanner) (*fleet.Waybill, error) {
	var (
		w                        fleet.Waybill
		date, createdAt          string
		issuance, spent, received, required, availability, savings, overrun string
		deletedAt                sql.NullString
	)
	err := row.Scan(&w.ID, &w.Number, &w.VehicleID, &w.DriverID, &date, &w.Season,
		&issuance, &spent, &received, &required, &availability, &savings, &overrun,
		&createdAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	w.Date, _ = fleet.ParseDate(date)
	w.Totals = fleet.WaybillTotals{
		UponIssuance:             fleet.MustDecimal(issuance),
		TotalSpent:               fleet.MustDecimal(spent),
		TotalReceived:            fleet.MustDecimal(received),
		RequiredByNorm:           fleet.MustDecimal(required),
		AvailabilityUponDelivery: fleet.MustDecimal(availability),
		Savings:                  fleet.MustDecimal(savings),
		Overrun:                  fleet.MustDecimal(overrun),
	}
	w.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	w.Tombstone = scanTombstone(deletedAt)
	return &w, nil
}

// =============================================================================
// TRIP RECORDS
// =============================================================================

func (s *Store) SaveRecord(ctx context.Context, r *fleet.TripRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveRecord(ctx, s.db, r)
}

func (s *Store) saveRecord(ctx context.Context, q querier, r *fleet.TripRecord) error {
	timesJSON, _ := json.Marshal(r.Times)

	if r.ID != "" {
		// Edit path: rewrite in place, keeping seq and created_at.
		query := `
			UPDATE trip_records SET
				waybill_id = ?, date = ?, driver_id = ?,
				distance_city = ?, distance_area = ?, odometer_after = ?,
				times_json = ?, fuel_refueled = ?, fuel_used_actual = ?,
				odometer_before = ?, fuel_before_departure = ?,
				norm_id = ?, norm_city_rate = ?, norm_area_rate = ?,
				norm_km_rate = ?, norm_pump_rate = ?, norm_no_pump_rate = ?,
				distance_total = ?, fuel_used_by_norm = ?, fuel_on_return = ?
			WHERE id = ?
		`
		res, err := q.ExecContext(ctx, query,
			r.WaybillID, r.Date.String(), r.DriverID,
			r.DistanceCity.String(), r.DistanceArea.String(), nullDecArg(r.OdometerAfter),
			string(timesJSON), r.FuelRefueled.String(), r.FuelUsedActual.String(),
			r.OdometerBefore.String(), r.FuelBeforeDeparture.String(),
			r.Norm.NormID, r.Norm.CityRate.String(), r.Norm.AreaRate.String(),
			r.Norm.KmRate.String(), r.Norm.PumpRate.String(), r.Norm.NoPumpRate.String(),
			r.DistanceTotal.String(), r.FuelUsedByNorm.String(), r.FuelOnReturn.String(),
			r.ID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
	}

	if r.ID == "" {
		r.ID = fleet.RecordID(fleet.NewID())
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO trip_records
		(id, waybill_id, date, driver_id,
		 distance_city, distance_area, odometer_after, times_json,
		 fuel_refueled, fuel_used_actual,
		 odometer_before, fuel_before_departure,
		 norm_id, norm_city_rate, norm_area_rate, norm_km_rate,
		 norm_pump_rate, norm_no_pump_rate,
		 distance_total, fuel_used_by_norm, fuel_on_return, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := q.ExecContext(ctx, query,
		r.ID, r.WaybillID, r.Date.String(), r.DriverID,
		r.DistanceCity.String(), r.DistanceArea.String(), nullDecArg(r.OdometerAfter),
		string(timesJSON),
		r.FuelRefueled.String(), r.FuelUsedActual.String(),
		r.OdometerBefore.String(), r.FuelBeforeDeparture.String(),
		r.Norm.NormID, r.Norm.CityRate.String(), r.Norm.AreaRate.String(),
		r.Norm.KmRate.String(), r.Norm.PumpRate.String(), r.Norm.NoPumpRate.String(),
		r.DistanceTotal.String(), r.FuelUsedByNorm.String(), r.FuelOnReturn.String(),
		r.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert trip record: %w", err)
	}
	r.Seq, _ = res.LastInsertId()
	return nil
}

const recordColumns = `seq, id, waybill_id, date, driver_id,
	distance_city, distance_area, odometer_after, times_json,
	fuel_refueled, fuel_used_actual,
	odometer_before, fuel_before_departure,
	norm_id, norm_city_rate, norm_area_rate, norm_km_rate,
	norm_pump_rate, norm_no_pump_rate,
	distance_total, fuel_used_by_norm, fuel_on_return, created_at, deleted_at`

func (s *Store) GetRecord(ctx context.Context, id fleet.RecordID) (*fleet.TripRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getRecord(ctx, s.db, id)
}

func (s *Store) getRecord(ctx context.Context, q querier, id fleet.RecordID) (*fleet.TripRecord, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM trip_records WHERE id = ? AND deleted_at IS NULL`, id)
	r, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) RecordsForWaybill(ctx context.Context, waybillID fleet.WaybillID) ([]fleet.TripRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recordsForWaybill(ctx, s.db, waybillID)
}

func (s *Store) recordsForWaybill(ctx context.Context, q querier, waybillID fleet.WaybillID) ([]fleet.TripRecord, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM trip_records
		 WHERE waybill_id = ? AND deleted_at IS NULL
		 ORDER BY date ASC, seq ASC`,
		waybillID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []fleet.TripRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

func (s *Store) DeleteRecord(ctx context.Context, id fleet.RecordID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteRecord(ctx, s.db, id, at)
}

func (s *Store) deleteRecord(ctx context.Context, q querier, id fleet.RecordID, at time.Time) error {
	res, err := q.ExecContext(ctx,
		`UPDATE trip_records SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		at.UTC().Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	return requireRow(res, fleet.ErrRecordNotFound)
}

func scanRecord(row rowScanner) (*fleet.TripRecord, error) {
	var (
		r                                                fleet.TripRecord
		date, createdAt, timesJSON                       string
		distCity, distArea                               string
		odoAfter                                         sql.NullString
		refueled, usedActual                             string
		odoBefore, fuelBefore                            string
		cityRate, areaRate, kmRate, pumpRate, noPumpRate string
		distTotal, byNorm, onReturn                      string
		deletedAt                                        sql.NullString
	)
	err := row.Scan(&r.Seq, &r.ID, &r.WaybillID, &date, &r.DriverID,
		&distCity, &distArea, &odoAfter, &timesJSON,
		&refueled, &usedActual,
		&odoBefore, &fuelBefore,
		&r.Norm.NormID, &cityRate, &areaRate, &kmRate, &pumpRate, &noPumpRate,
		&distTotal, &byNorm, &onReturn, &createdAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	r.Date, _ = fleet.ParseDate(date)
	r.DistanceCity = fleet.MustDecimal(distCity)
	r.DistanceArea = fleet.MustDecimal(distArea)
	r.OdometerAfter = scanNullDec(odoAfter)
	json.Unmarshal([]byte(timesJSON), &r.Times)
	r.FuelRefueled = fleet.MustDecimal(refueled)
	r.FuelUsedActual = fleet.MustDecimal(usedActual)
	r.OdometerBefore = fleet.MustDecimal(odoBefore)
	r.FuelBeforeDeparture = fleet.MustDecimal(fuelBefore)
	r.Norm.CityRate = fleet.MustDecimal(cityRate)
	r.Norm.AreaRate = fleet.MustDecimal(areaRate)
	r.Norm.KmRate = fleet.MustDecimal(kmRate)
	r.Norm.PumpRate = fleet.MustDecimal(pumpRate)
	r.Norm.NoPumpRate = fleet.MustDecimal(noPumpRate)
	r.DistanceTotal = fleet.MustDecimal(distTotal)
	r.FuelUsedByNorm = fleet.MustDecimal(byNorm)
	r.FuelOnReturn = fleet.MustDecimal(onReturn)
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	r.Tombstone = scanTombstone(deletedAt)
	return &r, nil
}

// =============================================================================
// SIGNING STORE (signing.Store interface)
// =============================================================================

func (s *Store) SaveRole(ctx context.Context, r *signing.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = signing.RoleID(fleet.NewID())
	}
	query := `
		INSERT INTO roles (id, name, mobile_booking)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			mobile_booking = excluded.mobile_booking
	`
	_, err := s.db.ExecContext(ctx, query, r.ID, r.Name, r.CanUseMobileBooking)
	return err
}

func (s *Store) GetRole(ctx context.Context, id signing.RoleID) (*signing.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanOneRole(ctx,
		`SELECT id, name, mobile_booking, deleted_at FROM roles WHERE id = ? AND deleted_at IS NULL`, id)
}

func (s *Store) FindRoleByName(ctx context.Context, name string) (*signing.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanOneRole(ctx,
		`SELECT id, name, mobile_booking, deleted_at FROM roles WHERE name = ? AND deleted_at IS NULL`, name)
}

func (s *Store) scanOneRole(ctx context.Context, query string, arg any) (*signing.Role, error) {
	var (
		r         signing.Role
		deletedAt sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&r.ID, &r.Name, &r.CanUseMobileBooking, &deletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.Tombstone = scanTombstone(deletedAt)
	return &r, nil
}

func (s *Store) ListRoles(ctx context.Context, vis fleet.Visibility) ([]signing.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, mobile_booking, deleted_at FROM roles WHERE 1=1`+visClause(vis)+` ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []signing.Role
	for rows.Next() {
		var (
			r         signing.Role
			deletedAt sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.CanUseMobileBooking, &deletedAt); err != nil {
			return nil, err
		}
		r.Tombstone = scanTombstone(deletedAt)
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

func (s *Store) Permissions(ctx context.Context, id signing.RoleID) (signing.PermissionSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var permsJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT perms_json FROM role_permissions WHERE role_id = ?`, id).Scan(&permsJSON)
	if err == sql.ErrNoRows {
		return signing.PermissionSet{}, nil
	}
	if err != nil {
		return nil, err
	}

	perms := signing.PermissionSet{}
	if err := json.Unmarshal([]byte(permsJSON), &perms); err != nil {
		return nil, fmt.Errorf("corrupt permissions for role %s: %w", id, err)
	}
	return perms, nil
}

func (s *Store) SetPermissions(ctx context.Context, id signing.RoleID, perms signing.PermissionSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	permsJSON, _ := json.Marshal(perms)
	query := `
		INSERT INTO role_permissions (role_id, perms_json)
		VALUES (?, ?)
		ON CONFLICT(role_id) DO UPDATE SET perms_json = excluded.perms_json
	`
	_, err := s.db.ExecContext(ctx, query, id, string(permsJSON))
	return err
}

func (s *Store) SaveUser(ctx context.Context, u *signing.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == "" {
		u.ID = fleet.UserID(fleet.NewID())
	}
	query := `
		INSERT INTO users (id, name, surname, patronymic, login, password_hash, phone, role_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			surname = excluded.surname,
			patronymic = excluded.patronymic,
			login = excluded.login,
			password_hash = excluded.password_hash,
			phone = excluded.phone,
			role_id = excluded.role_id
	`
	_, err := s.db.ExecContext(ctx, query,
		u.ID, u.Name, u.Surname, u.Patronymic, u.Login, u.PasswordHash, u.Phone, u.RoleID)
	if isUniqueConstraintError(err) {
		return &fleet.ValidationError{Field: "login", Message: "already taken"}
	}
	return err
}

const userColumns = `id, name, surname, patronymic, login, password_hash, phone, role_id, deleted_at`

func (s *Store) GetUser(ctx context.Context, id fleet.UserID) (*signing.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanOneUser(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ? AND deleted_at IS NULL`, id)
}

func (s *Store) FindUserByLogin(ctx context.Context, login string) (*signing.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanOneUser(ctx,
		`SELECT `+userColumns+` FROM users WHERE login = ? AND deleted_at IS NULL`, login)
}

func (s *Store) scanOneUser(ctx context.Context, query string, arg any) (*signing.User, error) {
	var (
		u         signing.User
		deletedAt sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Name, &u.Surname, &u.Patronymic, &u.Login, &u.PasswordHash, &u.Phone, &u.RoleID, &deletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.Tombstone = scanTombstone(deletedAt)
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context, vis fleet.Visibility) ([]signing.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE 1=1`+visClause(vis)+` ORDER BY login`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []signing.User
	for rows.Next() {
		var (
			u         signing.User
			deletedAt sql.NullString
		)
		if err := rows.Scan(&u.ID, &u.Name, &u.Surname, &u.Patronymic, &u.Login,
			&u.PasswordHash, &u.Phone, &u.RoleID, &deletedAt); err != nil {
			return nil, err
		}
		u.Tombstone = scanTombstone(deletedAt)
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) DeleteUser(ctx context.Context, id fleet.UserID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		at.UTC().Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	return requireRow(res, fleet.ErrPermissionDenied)
}

func (s *Store) SaveSubstitution(ctx context.Context, sub *signing.Substitution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub.ID == "" {
		sub.ID = fleet.NewID()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO role_substitutions (id, main_role, substitute_role) VALUES (?, ?, ?)`,
		sub.ID, sub.MainRole, sub.SubstituteRole)
	return err
}

func (s *Store) HasSubstitution(ctx context.Context, main, substitute signing.RoleID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM role_substitutions
		 WHERE main_role = ? AND substitute_role = ? AND deleted_at IS NULL`,
		main, substitute).Scan(&count)
	return count > 0, err
}

func (s *Store) ListSubstitutions(ctx context.Context, vis fleet.Visibility) ([]signing.Substitution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, main_role, substitute_role, deleted_at FROM role_substitutions WHERE 1=1`+visClause(vis))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []signing.Substitution
	for rows.Next() {
		var (
			sub       signing.Substitution
			deletedAt sql.NullString
		)
		if err := rows.Scan(&sub.ID, &sub.MainRole, &sub.SubstituteRole, &deletedAt); err != nil {
			return nil, err
		}
		sub.Tombstone = scanTombstone(deletedAt)
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (s *Store) SaveRequiredRole(ctx context.Context, r *signing.RequiredRole) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO required_roles (role_id, sign_order)
		VALUES (?, ?)
		ON CONFLICT(role_id) DO UPDATE SET sign_order = excluded.sign_order
	`
	_, err := s.db.ExecContext(ctx, query, r.RoleID, r.Order)
	return err
}

func (s *Store) RequiredRoles(ctx context.Context) ([]signing.RequiredRole, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT role_id, sign_order, deleted_at FROM required_roles
		 WHERE deleted_at IS NULL ORDER BY sign_order ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []signing.RequiredRole
	for rows.Next() {
		var (
			r         signing.RequiredRole
			deletedAt sql.NullString
		)
		if err := rows.Scan(&r.RoleID, &r.Order, &deletedAt); err != nil {
			return nil, err
		}
		r.Tombstone = scanTombstone(deletedAt)
		slots = append(slots, r)
	}
	return slots, rows.Err()
}

func (s *Store) SaveSignature(ctx context.Context, sig *signing.Signature) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sig.ID == "" {
		sig.ID = fleet.NewID()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO signatures (id, waybill_id, role_id, user_id, signed_at) VALUES (?, ?, ?, ?, ?)`,
		sig.ID, sig.WaybillID, sig.RoleID, sig.UserID, sig.SignedAt.UTC().Format(time.RFC3339))
	if isUniqueConstraintError(err) {
		return fleet.ErrPermissionDenied
	}
	return err
}

func (s *Store) GetSignature(ctx context.Context, waybillID fleet.WaybillID, roleID signing.RoleID) (*signing.Signature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		sig       signing.Signature
		signedAt  string
		deletedAt sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, waybill_id, role_id, user_id, signed_at, deleted_at FROM signatures
		 WHERE waybill_id = ? AND role_id = ? AND deleted_at IS NULL`,
		waybillID, roleID).Scan(&sig.ID, &sig.WaybillID, &sig.RoleID, &sig.UserID, &signedAt, &deletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sig.SignedAt, _ = time.Parse(time.RFC3339, signedAt)
	sig.Tombstone = scanTombstone(deletedAt)
	return &sig, nil
}

func (s *Store) SignaturesFor(ctx context.Context, waybillID fleet.WaybillID) ([]signing.Signature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, waybill_id, role_id, user_id, signed_at, deleted_at FROM signatures
		 WHERE waybill_id = ? AND deleted_at IS NULL ORDER BY signed_at ASC`,
		waybillID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sigs []signing.Signature
	for rows.Next() {
		var (
			sig       signing.Signature
			signedAt  string
			deletedAt sql.NullString
		)
		if err := rows.Scan(&sig.ID, &sig.WaybillID, &sig.RoleID, &sig.UserID, &signedAt, &deletedAt); err != nil {
			return nil, err
		}
		sig.SignedAt, _ = time.Parse(time.RFC3339, signedAt)
		sig.Tombstone = scanTombstone(deletedAt)
		sigs = append(sigs, sig)
	}
	return sigs, rows.Err()
}

// =============================================================================
// AUDIT LOG (fleet.AuditLog interface)
// =============================================================================

func (s *Store) AppendAudit(ctx context.Context, entry fleet.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	detailsJSON, _ := json.Marshal(entry.Details)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, at, actor, action, vehicle_id, waybill_id, record_id, details_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.At.UTC().Format(time.RFC3339), entry.Actor, entry.Action,
		entry.VehicleID, entry.WaybillID, entry.RecordID, string(detailsJSON))
	return err
}

func (s *Store) AuditEntries(ctx context.Context, vehicleID fleet.VehicleID) ([]fleet.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, at, actor, action, vehicle_id, waybill_id, record_id, details_json FROM audit_log`
	args := []any{}
	if vehicleID != "" {
		query += ` WHERE vehicle_id = ?`
		args = append(args, vehicleID)
	}
	query += ` ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []fleet.AuditEntry
	for rows.Next() {
		var (
			e           fleet.AuditEntry
			at          string
			detailsJSON string
		)
		if err := rows.Scan(&e.ID, &at, &e.Actor, &e.Action, &e.VehicleID, &e.WaybillID, &e.RecordID, &detailsJSON); err != nil {
			return nil, err
		}
		e.At, _ = time.Parse(time.RFC3339, at)
		if detailsJSON != "" && detailsJSON != "null" {
			json.Unmarshal([]byte(detailsJSON), &e.Details)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func visClause(vis fleet.Visibility) string {
	switch vis {
	case fleet.WithDeleted:
		return ``
	case fleet.DeletedOnly:
		return ` AND deleted_at IS NOT NULL`
	default:
		return ` AND deleted_at IS NULL`
	}
}

func requireRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}

func nullDecArg(nd decimal.NullDecimal) any {
	if !nd.Valid {
		return nil
	}
	return nd.Decimal.String()
}

func scanNullDec(ns sql.NullString) decimal.NullDecimal {
	if !ns.Valid {
		return decimal.NullDecimal{}
	}
	return fleet.NullDecimalFrom(fleet.MustDecimal(ns.String))
}

func scanTombstone(deletedAt sql.NullString) fleet.Tombstone {
	if !deletedAt.Valid {
		return fleet.Tombstone{}
	}
	t, err := time.Parse(time.RFC3339, deletedAt.String)
	if err != nil {
		return fleet.Tombstone{}
	}
	return fleet.Tombstone{DeletedAt: &t}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
