/*
handlers.go - HTTP API handlers for the fleet fuel ledger

PURPOSE:
  Exposes the fuel engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Auth:
    POST   /api/auth/login                     Exchange credentials for a token

  Users & roles:
    GET    /api/users                          List users
    POST   /api/users                          Create user
    GET    /api/roles                          List roles

  Vehicles:
    GET    /api/vehicles                       List vehicles
    POST   /api/vehicles                       Register vehicle
    GET    /api/vehicles/{id}                  Vehicle with live state
    DELETE /api/vehicles/{id}                  Soft delete
    POST   /api/vehicles/{id}/state            Seed odometer/fuel state
    GET    /api/vehicles/{id}/snapshots        Ledger chain
    GET    /api/vehicles/{id}/audit            Audit trail

  Norms:
    POST   /api/vehicles/{id}/norms            Create norm vintage
    GET    /api/vehicles/{id}/norms            List vintages (?season=)
    GET    /api/vehicles/{id}/norms/resolve    As-of lookup (?season=&date=)
    DELETE /api/norms/{id}                     Soft delete (shadow a vintage)

  Waybills & records:
    POST   /api/waybills                       Open waybill
    GET    /api/waybills/{id}                  Waybill + records + signatures
    GET    /api/vehicles/{id}/waybills         Waybills of a vehicle
    POST   /api/waybills/{id}/recalc           Recompute totals
    DELETE /api/waybills/{id}                  Soft delete
    POST   /api/waybills/{id}/records          Commit a trip record
    PUT    /api/records/{id}                   Edit (explicit recomputation)
    DELETE /api/records/{id}                   Soft delete + recalc

  Signatures:
    POST   /api/waybills/{id}/signatures       Fill a slot
    GET    /api/waybills/{id}/signatures       Slot status

ERROR HANDLING:
  Domain errors map onto HTTP status via the fleet error taxonomy:
  - 400: Validation errors, invalid input
  - 401: Missing/invalid token
  - 403: Signature slot violations
  - 404: Entity not found (vehicle, norm, waybill, record)
  - 409: No prior state (vehicle must be seeded first)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/warp/fuel-engine/auth"
	"github.com/warp/fuel-engine/fleet"
	"github.com/warp/fuel-engine/signing"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine  *fleet.Engine
	Signing signing.Store
	Flow    *signing.Workflow
	Audit   fleet.AuditLog
	Tokens  *auth.TokenIssuer
	Log     logrus.FieldLogger
}

// NewHandler wires a handler over the engine and the signing store.
func NewHandler(engine *fleet.Engine, signingStore signing.Store, audit fleet.AuditLog, tokens *auth.TokenIssuer) *Handler {
	flow := signing.NewWorkflow(signingStore)
	flow.Audit = audit
	return &Handler{
		Engine:  engine,
		Signing: signingStore,
		Flow:    flow,
		Audit:   audit,
		Tokens:  tokens,
		Log:     logrus.StandardLogger(),
	}
}

func (h *Handler) store() fleet.Store {
	return h.Engine.Store
}

// =============================================================================
// AUTH
// =============================================================================

// Login exchanges credentials for a bearer token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	user, err := h.Signing.FindUserByLogin(r.Context(), req.Login)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "login failed", err)
		return
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, "invalid credentials", nil)
		return
	}

	role, err := h.Signing.GetRole(r.Context(), user.RoleID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "login failed", err)
		return
	}
	if req.Client == "mobile" && (role == nil || !role.CanUseMobileBooking) {
		writeError(w, http.StatusForbidden, "role is not allowed on the mobile client", nil)
		return
	}

	token, err := h.Tokens.Issue(string(user.ID), user.Login, string(user.RoleID), req.Client)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "login failed", err)
		return
	}

	dto := toUserDTO(*user)
	if role != nil {
		dto.RoleName = role.Name
	}
	writeJSON(w, http.StatusOK, LoginResponse{Token: token, User: dto})
}

// =============================================================================
// USERS AND ROLES
// =============================================================================

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Signing.ListUsers(r.Context(), fleet.LiveOnly)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list users", err)
		return
	}

	dtos := make([]UserDTO, len(users))
	for i, u := range users {
		dtos[i] = toUserDTO(u)
		if role, err := h.Signing.GetRole(r.Context(), u.RoleID); err == nil && role != nil {
			dtos[i].RoleName = role.Name
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Login == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "login and password are required", nil)
		return
	}

	role, err := h.Signing.FindRoleByName(r.Context(), req.RoleName)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create user", err)
		return
	}
	if role == nil {
		writeError(w, http.StatusBadRequest, "unknown role "+req.RoleName, nil)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create user", err)
		return
	}

	user := &signing.User{
		Name:         req.Name,
		Surname:      req.Surname,
		Patronymic:   req.Patronymic,
		Login:        req.Login,
		PasswordHash: hash,
		Phone:        req.Phone,
		RoleID:       role.ID,
	}
	if err := h.Signing.SaveUser(r.Context(), user); err != nil {
		writeDomainError(w, err)
		return
	}

	dto := toUserDTO(*user)
	dto.RoleName = role.Name
	writeJSON(w, http.StatusCreated, dto)
}

func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.Signing.ListRoles(r.Context(), fleet.LiveOnly)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list roles", err)
		return
	}

	dtos := make([]RoleDTO, len(roles))
	for i, role := range roles {
		dtos[i] = RoleDTO{
			ID:                  string(role.ID),
			Name:                role.Name,
			CanUseMobileBooking: role.CanUseMobileBooking,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// VEHICLES
// =============================================================================

func (h *Handler) ListVehicles(w http.ResponseWriter, r *http.Request) {
	vehicles, err := h.store().ListVehicles(r.Context(), fleet.LiveOnly)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list vehicles", err)
		return
	}

	dtos := make([]VehicleDTO, len(vehicles))
	for i, v := range vehicles {
		dtos[i] = toVehicleDTO(v)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateVehicle(w http.ResponseWriter, r *http.Request) {
	var req CreateVehicleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	kind := fleet.VehicleKind(req.Kind)
	if !kind.Valid() {
		writeError(w, http.StatusBadRequest, "kind must be passenger or fire_truck", nil)
		return
	}
	if req.Plate == "" {
		writeError(w, http.StatusBadRequest, "plate is required", nil)
		return
	}

	v := &fleet.Vehicle{
		Plate:     req.Plate,
		Brand:     req.Brand,
		Model:     req.Model,
		Kind:      kind,
		TruckType: req.TruckType,
	}
	if err := h.store().SaveVehicle(r.Context(), v); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create vehicle", err)
		return
	}
	writeJSON(w, http.StatusCreated, toVehicleDTO(*v))
}

func (h *Handler) GetVehicle(w http.ResponseWriter, r *http.Request) {
	id := fleet.VehicleID(chi.URLParam(r, "id"))

	v, err := h.store().GetVehicle(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get vehicle", err)
		return
	}
	if v == nil {
		writeError(w, http.StatusNotFound, "vehicle not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toVehicleDTO(*v))
}

func (h *Handler) DeleteVehicle(w http.ResponseWriter, r *http.Request) {
	id := fleet.VehicleID(chi.URLParam(r, "id"))
	if err := h.store().DeleteVehicle(r.Context(), id, time.Now().UTC()); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SeedState initializes a vehicle's odometer/fuel state, making it
// eligible for its first trip record.
func (h *Handler) SeedState(w http.ResponseWriter, r *http.Request) {
	id := fleet.VehicleID(chi.URLParam(r, "id"))

	var req SeedStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	odometer, err := parseDec("odometer", req.Odometer)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	fuel, err := parseDec("fuel", req.Fuel)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	date, err := parseDateField("date", req.Date)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	snap, err := h.Engine.SeedState(r.Context(), id, odometer, fuel, date, actorFrom(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSnapshotDTO(*snap))
}

func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	id := fleet.VehicleID(chi.URLParam(r, "id"))

	snaps, err := h.store().SnapshotsFor(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list snapshots", err)
		return
	}

	dtos := make([]SnapshotDTO, len(snaps))
	for i, s := range snaps {
		dtos[i] = toSnapshotDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	id := fleet.VehicleID(chi.URLParam(r, "id"))

	entries, err := h.Audit.AuditEntries(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list audit entries", err)
		return
	}

	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = AuditEntryDTO{
			ID:        e.ID,
			At:        e.At.Format(time.RFC3339),
			Actor:     e.Actor,
			Action:    string(e.Action),
			VehicleID: string(e.VehicleID),
			WaybillID: string(e.WaybillID),
			RecordID:  string(e.RecordID),
			Details:   e.Details,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// NORMS
// =============================================================================

func (h *Handler) CreateNorm(w http.ResponseWriter, r *http.Request) {
	vehicleID := fleet.VehicleID(chi.URLParam(r, "id"))

	var req CreateNormRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	season := fleet.Season(req.Season)
	if !season.Valid() {
		writeError(w, http.StatusBadRequest, "season must be winter or summer", nil)
		return
	}
	effective, err := parseDateField("effective_date", req.EffectiveDate)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	vehicle, err := h.store().GetVehicle(r.Context(), vehicleID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create norm", err)
		return
	}
	if vehicle == nil {
		writeError(w, http.StatusNotFound, "vehicle not found", nil)
		return
	}

	n := &fleet.Norm{
		VehicleID:     vehicleID,
		Season:        season,
		EffectiveDate: effective,
	}
	for _, f := range []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"city_rate", req.CityRate, &n.CityRate},
		{"area_rate", req.AreaRate, &n.AreaRate},
		{"km_rate", req.KmRate, &n.KmRate},
		{"pump_rate", req.PumpRate, &n.PumpRate},
		{"no_pump_rate", req.NoPumpRate, &n.NoPumpRate},
	} {
		d, err := parseDec(f.name, f.raw)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		*f.dst = d
	}

	if err := h.store().SaveNorm(r.Context(), n); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create norm", err)
		return
	}
	writeJSON(w, http.StatusCreated, toNormDTO(*n))
}

func (h *Handler) ListNorms(w http.ResponseWriter, r *http.Request) {
	vehicleID := fleet.VehicleID(chi.URLParam(r, "id"))
	season := fleet.Season(r.URL.Query().Get("season"))
	if season != "" && !season.Valid() {
		writeError(w, http.StatusBadRequest, "season must be winter or summer", nil)
		return
	}

	norms, err := h.store().ListNorms(r.Context(), vehicleID, season, fleet.LiveOnly)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list norms", err)
		return
	}

	dtos := make([]NormDTO, len(norms))
	for i, n := range norms {
		dtos[i] = toNormDTO(n)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ResolveNorm answers "which vintage governs this vehicle/season on this
// date" - the exact lookup the engine itself performs at commit time.
func (h *Handler) ResolveNorm(w http.ResponseWriter, r *http.Request) {
	vehicleID := fleet.VehicleID(chi.URLParam(r, "id"))
	season := fleet.Season(r.URL.Query().Get("season"))

	asOf := fleet.Today()
	if raw := r.URL.Query().Get("date"); raw != "" {
		var err error
		asOf, err = parseDateField("date", raw)
		if err != nil {
			writeDomainError(w, err)
			return
		}
	}

	norm, err := fleet.NewNormStore(h.store()).Resolve(r.Context(), vehicleID, season, asOf)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toNormDTO(*norm))
}

func (h *Handler) DeleteNorm(w http.ResponseWriter, r *http.Request) {
	id := fleet.NormID(chi.URLParam(r, "id"))
	if err := h.store().DeleteNorm(r.Context(), id, time.Now().UTC()); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// WAYBILLS
// =============================================================================

func (h *Handler) CreateWaybill(w http.ResponseWriter, r *http.Request) {
	var req CreateWaybillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	season := fleet.Season(req.Season)
	if !season.Valid() {
		writeError(w, http.StatusBadRequest, "season must be winter or summer", nil)
		return
	}
	date, err := parseDateField("date", req.Date)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	vehicle, err := h.store().GetVehicle(r.Context(), fleet.VehicleID(req.VehicleID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create waybill", err)
		return
	}
	if vehicle == nil {
		writeError(w, http.StatusNotFound, "vehicle not found", nil)
		return
	}

	wb := &fleet.Waybill{
		Number:    req.Number,
		VehicleID: vehicle.ID,
		DriverID:  fleet.UserID(req.DriverID),
		Date:      date,
		Season:    season,
	}
	if err := h.store().SaveWaybill(r.Context(), wb); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create waybill", err)
		return
	}

	// Totals start from the issuance state even before the first record.
	if _, err := h.Engine.Recalc(r.Context(), wb.ID); err != nil {
		writeDomainError(w, err)
		return
	}
	wb, err = h.store().GetWaybill(r.Context(), wb.ID)
	if err != nil || wb == nil {
		writeError(w, http.StatusInternalServerError, "failed to create waybill", err)
		return
	}
	writeJSON(w, http.StatusCreated, toWaybillDTO(*wb))
}

func (h *Handler) GetWaybill(w http.ResponseWriter, r *http.Request) {
	id := fleet.WaybillID(chi.URLParam(r, "id"))

	wb, err := h.store().GetWaybill(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get waybill", err)
		return
	}
	if wb == nil {
		writeError(w, http.StatusNotFound, "waybill not found", nil)
		return
	}

	dto := toWaybillDTO(*wb)

	records, err := h.store().RecordsForWaybill(r.Context(), wb.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get waybill", err)
		return
	}
	dto.Records = make([]RecordDTO, len(records))
	for i, rec := range records {
		dto.Records[i] = toRecordDTO(rec)
	}

	slots, err := h.Flow.Status(r.Context(), wb.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get waybill", err)
		return
	}
	dto.Signatures = make([]SlotDTO, len(slots))
	for i, s := range slots {
		dto.Signatures[i] = toSlotDTO(s)
	}

	writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) ListWaybills(w http.ResponseWriter, r *http.Request) {
	vehicleID := fleet.VehicleID(chi.URLParam(r, "id"))

	waybills, err := h.store().ListWaybills(r.Context(), vehicleID, fleet.LiveOnly)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list waybills", err)
		return
	}

	dtos := make([]WaybillDTO, len(waybills))
	for i, wb := range waybills {
		dtos[i] = toWaybillDTO(wb)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) RecalcWaybill(w http.ResponseWriter, r *http.Request) {
	id := fleet.WaybillID(chi.URLParam(r, "id"))

	if _, err := h.Engine.Recalc(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	wb, err := h.store().GetWaybill(r.Context(), id)
	if err != nil || wb == nil {
		writeError(w, http.StatusInternalServerError, "failed to recalc waybill", err)
		return
	}
	writeJSON(w, http.StatusOK, toWaybillDTO(*wb))
}

func (h *Handler) DeleteWaybill(w http.ResponseWriter, r *http.Request) {
	id := fleet.WaybillID(chi.URLParam(r, "id"))
	if err := h.store().DeleteWaybill(r.Context(), id, time.Now().UTC()); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// TRIP RECORDS
// =============================================================================

// CommitRecord runs the full commit pipeline for a new trip record.
func (h *Handler) CommitRecord(w http.ResponseWriter, r *http.Request) {
	waybillID := fleet.WaybillID(chi.URLParam(r, "id"))

	input, err := h.recordInput(r, waybillID, "")
	if err != nil {
		writeDomainError(w, err)
		return
	}

	rec, err := h.Engine.Commit(r.Context(), *input)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRecordDTO(*rec))
}

// EditRecord recomputes an existing record with new user-supplied fields,
// keeping its frozen before-values.
func (h *Handler) EditRecord(w http.ResponseWriter, r *http.Request) {
	recordID := fleet.RecordID(chi.URLParam(r, "id"))

	existing, err := h.store().GetRecord(r.Context(), recordID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to edit record", err)
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "trip record not found", nil)
		return
	}

	input, err := h.recordInput(r, existing.WaybillID, recordID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	rec, err := h.Engine.Commit(r.Context(), *input)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTO(*rec))
}

// DeleteRecord tombstones a record and drops it out of the waybill totals.
// The ledger snapshot the record produced stays - history is not rewritten.
func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	recordID := fleet.RecordID(chi.URLParam(r, "id"))

	rec, err := h.store().GetRecord(r.Context(), recordID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete record", err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "trip record not found", nil)
		return
	}

	if err := h.store().DeleteRecord(r.Context(), recordID, time.Now().UTC()); err != nil {
		writeDomainError(w, err)
		return
	}
	if _, err := h.Engine.Recalc(r.Context(), rec.WaybillID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) recordInput(r *http.Request, waybillID fleet.WaybillID, recordID fleet.RecordID) (*fleet.RecordInput, error) {
	var req RecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, &fleet.ValidationError{Field: "body", Message: "invalid JSON"}
	}

	date, err := parseDateField("date", req.Date)
	if err != nil {
		return nil, err
	}

	input := fleet.RecordInput{
		RecordID:  recordID,
		WaybillID: waybillID,
		Date:      date,
		Times:     req.Times.toDomain(),
		Actor:     actorFrom(r),
	}
	if claims := ClaimsFrom(r.Context()); claims != nil {
		input.DriverID = fleet.UserID(claims.UserID)
	}

	if input.DistanceCity, err = parseDec("distance_city", req.DistanceCity); err != nil {
		return nil, err
	}
	if input.DistanceArea, err = parseDec("distance_area", req.DistanceArea); err != nil {
		return nil, err
	}
	if input.FuelRefueled, err = parseDec("fuel_refueled", req.FuelRefueled); err != nil {
		return nil, err
	}
	if input.FuelUsedActual, err = parseDec("fuel_used_actual", req.FuelUsedActual); err != nil {
		return nil, err
	}
	if req.OdometerAfter != nil {
		d, err := parseDec("odometer_after", *req.OdometerAfter)
		if err != nil {
			return nil, err
		}
		input.OdometerAfter = fleet.NullDecimalFrom(d)
	}
	return &input, nil
}

// =============================================================================
// SIGNATURES
// =============================================================================

// SignWaybill fills a signature slot on behalf of the authenticated user.
func (h *Handler) SignWaybill(w http.ResponseWriter, r *http.Request) {
	waybillID := fleet.WaybillID(chi.URLParam(r, "id"))

	claims := ClaimsFrom(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing bearer token", nil)
		return
	}
	user, err := h.Signing.GetUser(r.Context(), fleet.UserID(claims.UserID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to sign waybill", err)
		return
	}
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unknown user", nil)
		return
	}

	// Body is optional: without a role_id the signer claims their own slot.
	var req SignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	slot := signing.RoleID(req.RoleID)
	if slot == "" {
		// Default slot: the signer's own role.
		slot = user.RoleID
	}

	wb, err := h.store().GetWaybill(r.Context(), waybillID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to sign waybill", err)
		return
	}
	if wb == nil {
		writeError(w, http.StatusNotFound, "waybill not found", nil)
		return
	}

	sig, created, err := h.Flow.Sign(r.Context(), wb, slot, user)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	uid := string(sig.UserID)
	at := sig.SignedAt.Format(time.RFC3339)
	writeJSON(w, status, SlotDTO{
		RoleID:   string(sig.RoleID),
		UserID:   &uid,
		SignedAt: &at,
	})
}

// SignatureStatus returns every required slot with its current signature.
func (h *Handler) SignatureStatus(w http.ResponseWriter, r *http.Request) {
	waybillID := fleet.WaybillID(chi.URLParam(r, "id"))

	slots, err := h.Flow.Status(r.Context(), waybillID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get signature status", err)
		return
	}

	dtos := make([]SlotDTO, len(slots))
	for i, s := range slots {
		dtos[i] = toSlotDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func actorFrom(r *http.Request) string {
	if claims := ClaimsFrom(r.Context()); claims != nil {
		return claims.Login
	}
	return ""
}

func parseDec(field, raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, &fleet.ValidationError{Field: field, Message: "not a decimal"}
	}
	return d, nil
}

func parseDateField(field, raw string) (fleet.Date, error) {
	d, err := fleet.ParseDate(raw)
	if err != nil {
		return fleet.Date{}, &fleet.ValidationError{Field: field, Message: "use YYYY-MM-DD"}
	}
	return d, nil
}

// writeDomainError maps the fleet error taxonomy onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, fleet.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, fleet.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, err.Error(), nil)
	case errors.Is(err, fleet.ErrNoPriorState):
		writeError(w, http.StatusConflict, err.Error(), nil)
	case fleet.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, "internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
