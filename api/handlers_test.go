package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/fuel-engine/api"
	"github.com/warp/fuel-engine/auth"
	"github.com/warp/fuel-engine/firetruck"
	"github.com/warp/fuel-engine/fleet"
	"github.com/warp/fuel-engine/fleet/store"
	"github.com/warp/fuel-engine/passenger"
	"github.com/warp/fuel-engine/signing"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testAPI struct {
	router http.Handler
	mem    *store.Memory
	token  string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	ctx := context.Background()

	mem := store.NewMemory()
	require.NoError(t, signing.EnsureDefaults(ctx, mem, nil))

	role, err := mem.FindRoleByName(ctx, signing.RoleAdministrator)
	require.NoError(t, err)
	hash, err := auth.HashPassword("secret")
	require.NoError(t, err)
	require.NoError(t, mem.SaveUser(ctx, &signing.User{
		Name: "Admin", Login: "admin", PasswordHash: hash, RoleID: role.ID,
	}))

	engine := fleet.NewEngine(mem, passenger.New(), firetruck.New())
	engine.Audit = mem

	h := api.NewHandler(engine, mem, mem, auth.NewTokenIssuer("test-secret"))
	a := &testAPI{router: api.NewRouter(h), mem: mem}

	// Log in once; most tests need an authenticated session.
	rr := a.do(t, http.MethodPost, "/api/auth/login", api.LoginRequest{Login: "admin", Password: "secret"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var login api.LoginResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &login))
	a.token = login.Token
	return a
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func decodeAs[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

// createCar registers a passenger car with a summer norm and seeds it at
// 1000 km / 50 L.
func (a *testAPI) createCar(t *testing.T) api.VehicleDTO {
	t.Helper()

	rr := a.do(t, http.MethodPost, "/api/vehicles", api.CreateVehicleRequest{
		Plate: "A 123 BC", Brand: "UAZ", Kind: "passenger",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	car := decodeAs[api.VehicleDTO](t, rr)

	rr = a.do(t, http.MethodPost, "/api/vehicles/"+car.ID+"/norms", api.CreateNormRequest{
		Season: "summer", EffectiveDate: "2025-01-01",
		CityRate: "0.10", AreaRate: "0.08",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = a.do(t, http.MethodPost, "/api/vehicles/"+car.ID+"/state", api.SeedStateRequest{
		Odometer: "1000", Fuel: "50", Date: "2025-06-01",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return car
}

// =============================================================================
// AUTH
// =============================================================================

func TestAPI_Login_BadCredentials(t *testing.T) {
	a := newTestAPI(t)
	a.token = ""

	rr := a.do(t, http.MethodPost, "/api/auth/login", api.LoginRequest{Login: "admin", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = a.do(t, http.MethodPost, "/api/auth/login", api.LoginRequest{Login: "ghost", Password: "secret"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAPI_RequiresToken(t *testing.T) {
	a := newTestAPI(t)
	a.token = ""

	rr := a.do(t, http.MethodGet, "/api/vehicles", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	a.token = "garbage"
	rr = a.do(t, http.MethodGet, "/api/vehicles", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAPI_Login_MobileGatedByRole(t *testing.T) {
	a := newTestAPI(t)
	ctx := context.Background()

	desk := &signing.Role{Name: "dispatcher", CanUseMobileBooking: false}
	require.NoError(t, a.mem.SaveRole(ctx, desk))
	hash, err := auth.HashPassword("secret")
	require.NoError(t, err)
	require.NoError(t, a.mem.SaveUser(ctx, &signing.User{
		Login: "desk", PasswordHash: hash, RoleID: desk.ID,
	}))

	a.token = ""
	rr := a.do(t, http.MethodPost, "/api/auth/login", api.LoginRequest{
		Login: "desk", Password: "secret", Client: "mobile",
	})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = a.do(t, http.MethodPost, "/api/auth/login", api.LoginRequest{
		Login: "desk", Password: "secret",
	})
	assert.Equal(t, http.StatusOK, rr.Code, "the web client is not gated")
}

// =============================================================================
// VEHICLES AND NORMS
// =============================================================================

func TestAPI_CreateVehicle_Validation(t *testing.T) {
	a := newTestAPI(t)

	rr := a.do(t, http.MethodPost, "/api/vehicles", api.CreateVehicleRequest{Plate: "X", Kind: "bicycle"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = a.do(t, http.MethodPost, "/api/vehicles", api.CreateVehicleRequest{Kind: "passenger"})
	assert.Equal(t, http.StatusBadRequest, rr.Code, "plate is required")
}

func TestAPI_NormResolve(t *testing.T) {
	a := newTestAPI(t)
	car := a.createCar(t)

	rr := a.do(t, http.MethodGet, "/api/vehicles/"+car.ID+"/norms/resolve?season=summer&date=2025-06-10", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	norm := decodeAs[api.NormDTO](t, rr)
	assert.Equal(t, "0.1", norm.CityRate)

	rr = a.do(t, http.MethodGet, "/api/vehicles/"+car.ID+"/norms/resolve?season=winter&date=2025-12-01", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code, "no winter vintage exists")

	rr = a.do(t, http.MethodGet, "/api/vehicles/"+car.ID+"/norms/resolve?season=summer&date=2024-01-01", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code, "nothing effective that early")
}

// =============================================================================
// WAYBILL LIFECYCLE
// =============================================================================

func TestAPI_WaybillLifecycle(t *testing.T) {
	// The full paper-form flow: open a waybill, log a trip, check totals,
	// sign, void the record.

	a := newTestAPI(t)
	car := a.createCar(t)

	rr := a.do(t, http.MethodPost, "/api/waybills", api.CreateWaybillRequest{
		Number: 101, VehicleID: car.ID, Date: "2025-06-10", Season: "summer",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	wb := decodeAs[api.WaybillDTO](t, rr)
	assert.Equal(t, "50", wb.Totals.UponIssuance, "issuance state precedes any record")

	rr = a.do(t, http.MethodPost, "/api/waybills/"+wb.ID+"/records", api.RecordRequest{
		Date:         "2025-06-10",
		DistanceCity: "10", DistanceArea: "5",
		FuelUsedActual: "1.6",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	rec := decodeAs[api.RecordDTO](t, rr)
	assert.Equal(t, "1000", rec.OdometerBefore)
	assert.Equal(t, "1.4", rec.FuelUsedByNorm)
	assert.Equal(t, "48.4", rec.FuelOnReturn)

	// The waybill view embeds records, totals and signature slots.
	rr = a.do(t, http.MethodGet, "/api/waybills/"+wb.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	full := decodeAs[api.WaybillDTO](t, rr)
	require.Len(t, full.Records, 1)
	assert.Equal(t, "0.2", full.Totals.Overrun)
	assert.Equal(t, "48.4", full.Totals.AvailabilityUponDelivery)
	require.Len(t, full.Signatures, 3)
	for _, slot := range full.Signatures {
		assert.Nil(t, slot.UserID, "slots start open")
	}

	// The admin signs their own slot.
	rr = a.do(t, http.MethodPost, "/api/waybills/"+wb.ID+"/signatures", api.SignRequest{})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	// Signing the same slot again is a no-op, not an error.
	rr = a.do(t, http.MethodPost, "/api/waybills/"+wb.ID+"/signatures", api.SignRequest{})
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = a.do(t, http.MethodGet, "/api/waybills/"+wb.ID+"/signatures", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	slots := decodeAs[[]api.SlotDTO](t, rr)
	filled := 0
	for _, s := range slots {
		if s.UserID != nil {
			filled++
		}
	}
	assert.Equal(t, 1, filled)

	// Voiding the record drops it from the totals.
	rr = a.do(t, http.MethodDelete, "/api/records/"+rec.ID, nil)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = a.do(t, http.MethodGet, "/api/waybills/"+wb.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	after := decodeAs[api.WaybillDTO](t, rr)
	assert.Empty(t, after.Records)
	assert.Equal(t, "0", after.Totals.TotalSpent)
	assert.Equal(t, "50", after.Totals.AvailabilityUponDelivery)
}

func TestAPI_EditRecord(t *testing.T) {
	a := newTestAPI(t)
	car := a.createCar(t)

	rr := a.do(t, http.MethodPost, "/api/waybills", api.CreateWaybillRequest{
		Number: 102, VehicleID: car.ID, Date: "2025-06-10", Season: "summer",
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	wb := decodeAs[api.WaybillDTO](t, rr)

	rr = a.do(t, http.MethodPost, "/api/waybills/"+wb.ID+"/records", api.RecordRequest{
		Date: "2025-06-10", DistanceCity: "10", FuelUsedActual: "1.5",
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	rec := decodeAs[api.RecordDTO](t, rr)

	rr = a.do(t, http.MethodPut, "/api/records/"+rec.ID, api.RecordRequest{
		Date: "2025-06-10", DistanceCity: "2", FuelUsedActual: "0.1",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	edited := decodeAs[api.RecordDTO](t, rr)
	assert.Equal(t, rec.ID, edited.ID)
	assert.Equal(t, "1000", edited.OdometerBefore, "before-values stay frozen")
	assert.Equal(t, "0.2", edited.FuelUsedByNorm)

	rr = a.do(t, http.MethodPut, "/api/records/missing", api.RecordRequest{Date: "2025-06-10"})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAPI_CommitErrors(t *testing.T) {
	a := newTestAPI(t)

	// Unknown waybill.
	rr := a.do(t, http.MethodPost, "/api/waybills/missing/records", api.RecordRequest{Date: "2025-06-10"})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	// Unseeded vehicle: commits conflict until the state is seeded.
	rr = a.do(t, http.MethodPost, "/api/vehicles", api.CreateVehicleRequest{Plate: "N 100 EW", Kind: "passenger"})
	require.Equal(t, http.StatusCreated, rr.Code)
	car := decodeAs[api.VehicleDTO](t, rr)

	rr = a.do(t, http.MethodPost, "/api/vehicles/"+car.ID+"/norms", api.CreateNormRequest{
		Season: "summer", EffectiveDate: "2025-01-01", CityRate: "0.10",
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = a.do(t, http.MethodPost, "/api/waybills", api.CreateWaybillRequest{
		Number: 1, VehicleID: car.ID, Date: "2025-06-10", Season: "summer",
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	wb := decodeAs[api.WaybillDTO](t, rr)

	rr = a.do(t, http.MethodPost, "/api/waybills/"+wb.ID+"/records", api.RecordRequest{
		Date: "2025-06-10", DistanceCity: "5",
	})
	assert.Equal(t, http.StatusConflict, rr.Code, rr.Body.String())

	// Malformed decimal input.
	rr = a.do(t, http.MethodPost, "/api/waybills/"+wb.ID+"/records", api.RecordRequest{
		Date: "2025-06-10", DistanceCity: "ten",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

// =============================================================================
// USERS
// =============================================================================

func TestAPI_CreateUser(t *testing.T) {
	a := newTestAPI(t)

	rr := a.do(t, http.MethodPost, "/api/users", api.CreateUserRequest{
		Name: "Ivan", Surname: "Ivanov", Login: "ivanov",
		Password: "secret", RoleName: signing.RoleDriver,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	u := decodeAs[api.UserDTO](t, rr)
	assert.Equal(t, signing.RoleDriver, u.RoleName)

	rr = a.do(t, http.MethodPost, "/api/users", api.CreateUserRequest{
		Login: "x", Password: "y", RoleName: "astronaut",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code, "unknown role")

	// The new driver can log in and sees the vehicle list.
	a.token = ""
	rr = a.do(t, http.MethodPost, "/api/auth/login", api.LoginRequest{Login: "ivanov", Password: "secret"})
	require.Equal(t, http.StatusOK, rr.Code)
	login := decodeAs[api.LoginResponse](t, rr)
	a.token = login.Token

	rr = a.do(t, http.MethodGet, "/api/vehicles", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}
