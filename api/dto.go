/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

ENCODING:
  All fuel/odometer quantities travel as decimal strings ("48.4"), never
  floats - the ledger is exact and the API keeps it that way. Dates are
  "YYYY-MM-DD".

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/fuel-engine/fleet"
	"github.com/warp/fuel-engine/signing"
)

// =============================================================================
// AUTH
// =============================================================================

type LoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Client   string `json:"client,omitempty"` // "web" (default) or "mobile"
}

type LoginResponse struct {
	Token string  `json:"token"`
	User  UserDTO `json:"user"`
}

type UserDTO struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Surname    string `json:"surname"`
	Patronymic string `json:"patronymic,omitempty"`
	Login      string `json:"login"`
	Phone      string `json:"phone,omitempty"`
	RoleID     string `json:"role_id"`
	RoleName   string `json:"role_name,omitempty"`
}

type CreateUserRequest struct {
	Name       string `json:"name"`
	Surname    string `json:"surname"`
	Patronymic string `json:"patronymic,omitempty"`
	Login      string `json:"login"`
	Password   string `json:"password"`
	Phone      string `json:"phone,omitempty"`
	RoleName   string `json:"role_name"`
}

type RoleDTO struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	CanUseMobileBooking bool   `json:"can_use_mobile_booking"`
}

// =============================================================================
// VEHICLES
// =============================================================================

type VehicleDTO struct {
	ID        string `json:"id"`
	Plate     string `json:"plate"`
	Brand     string `json:"brand,omitempty"`
	Model     string `json:"model,omitempty"`
	Kind      string `json:"kind"`
	TruckType string `json:"truck_type,omitempty"`

	// Live state; null until the vehicle is seeded.
	Odometer *string `json:"odometer"`
	Fuel     *string `json:"fuel"`

	CreatedAt string `json:"created_at,omitempty"`
}

type CreateVehicleRequest struct {
	Plate     string `json:"plate"`
	Brand     string `json:"brand,omitempty"`
	Model     string `json:"model,omitempty"`
	Kind      string `json:"kind"`
	TruckType string `json:"truck_type,omitempty"`
}

// SeedStateRequest initializes a vehicle's odometer/fuel state.
type SeedStateRequest struct {
	Odometer string `json:"odometer"`
	Fuel     string `json:"fuel"`
	Date     string `json:"date"`
}

type SnapshotDTO struct {
	ID        string `json:"id"`
	VehicleID string `json:"vehicle_id"`
	Odometer  string `json:"odometer"`
	Fuel      string `json:"fuel"`
	Date      string `json:"date"`
	Seq       int64  `json:"seq"`
	WaybillID string `json:"waybill_id,omitempty"`
	RecordID  string `json:"record_id,omitempty"`
}

// =============================================================================
// NORMS
// =============================================================================

type NormDTO struct {
	ID            string `json:"id"`
	VehicleID     string `json:"vehicle_id"`
	Season        string `json:"season"`
	EffectiveDate string `json:"effective_date"`

	CityRate   string `json:"city_rate,omitempty"`
	AreaRate   string `json:"area_rate,omitempty"`
	KmRate     string `json:"km_rate,omitempty"`
	PumpRate   string `json:"pump_rate,omitempty"`
	NoPumpRate string `json:"no_pump_rate,omitempty"`

	CreatedAt string `json:"created_at,omitempty"`
}

type CreateNormRequest struct {
	Season        string `json:"season"`
	EffectiveDate string `json:"effective_date"`

	CityRate   string `json:"city_rate,omitempty"`
	AreaRate   string `json:"area_rate,omitempty"`
	KmRate     string `json:"km_rate,omitempty"`
	PumpRate   string `json:"pump_rate,omitempty"`
	NoPumpRate string `json:"no_pump_rate,omitempty"`
}

// =============================================================================
// WAYBILLS AND TRIP RECORDS
// =============================================================================

type WaybillDTO struct {
	ID        string `json:"id"`
	Number    int64  `json:"number"`
	VehicleID string `json:"vehicle_id"`
	DriverID  string `json:"driver_id,omitempty"`
	Date      string `json:"date"`
	Season    string `json:"season"`

	Totals WaybillTotalsDTO `json:"totals"`

	Records    []RecordDTO `json:"records,omitempty"`
	Signatures []SlotDTO   `json:"signatures,omitempty"`

	CreatedAt string `json:"created_at,omitempty"`
}

type WaybillTotalsDTO struct {
	UponIssuance             string `json:"upon_issuance"`
	TotalSpent               string `json:"total_spent"`
	TotalReceived            string `json:"total_received"`
	RequiredByNorm           string `json:"required_by_norm"`
	AvailabilityUponDelivery string `json:"availability_upon_delivery"`
	Savings                  string `json:"savings"`
	Overrun                  string `json:"overrun"`
}

type CreateWaybillRequest struct {
	Number    int64  `json:"number"`
	VehicleID string `json:"vehicle_id"`
	DriverID  string `json:"driver_id,omitempty"`
	Date      string `json:"date"`
	Season    string `json:"season"`
}

type TimeBucketsDTO struct {
	FireWithPump           int `json:"fire_with_pump,omitempty"`
	FireWithoutPump        int `json:"fire_without_pump,omitempty"`
	TrainingWithPump       int `json:"training_with_pump,omitempty"`
	TrainingWithoutPump    int `json:"training_without_pump,omitempty"`
	ShiftChangeWithPump    int `json:"shift_change_with_pump,omitempty"`
	ShiftChangeWithoutPump int `json:"shift_change_without_pump,omitempty"`
	OtherWithPump          int `json:"other_with_pump,omitempty"`
	OtherWithoutPump       int `json:"other_without_pump,omitempty"`
}

// RecordRequest carries the user-supplied fields of a trip record. The same
// shape serves create (POST) and edit (PUT).
type RecordRequest struct {
	Date string `json:"date"`

	DistanceCity   string         `json:"distance_city,omitempty"`
	DistanceArea   string         `json:"distance_area,omitempty"`
	OdometerAfter  *string        `json:"odometer_after,omitempty"`
	Times          TimeBucketsDTO `json:"times,omitempty"`
	FuelRefueled   string         `json:"fuel_refueled,omitempty"`
	FuelUsedActual string         `json:"fuel_used_actual,omitempty"`
}

type RecordDTO struct {
	ID        string `json:"id"`
	WaybillID string `json:"waybill_id"`
	Date      string `json:"date"`
	DriverID  string `json:"driver_id,omitempty"`

	DistanceCity   string         `json:"distance_city"`
	DistanceArea   string         `json:"distance_area"`
	OdometerAfter  *string        `json:"odometer_after"`
	Times          TimeBucketsDTO `json:"times"`
	FuelRefueled   string         `json:"fuel_refueled"`
	FuelUsedActual string         `json:"fuel_used_actual"`

	OdometerBefore      string `json:"odometer_before"`
	FuelBeforeDeparture string `json:"fuel_before_departure"`
	NormID              string `json:"norm_id"`
	DistanceTotal       string `json:"distance_total"`
	FuelUsedByNorm      string `json:"fuel_used_by_norm"`
	FuelOnReturn        string `json:"fuel_on_return"`
}

// =============================================================================
// SIGNATURES
// =============================================================================

type SignRequest struct {
	RoleID string `json:"role_id"`
}

// SlotDTO is one required signature slot and whoever filled it.
type SlotDTO struct {
	RoleID   string  `json:"role_id"`
	RoleName string  `json:"role_name"`
	Order    int     `json:"order"`
	UserID   *string `json:"user_id"`
	SignedAt *string `json:"signed_at"`
}

// =============================================================================
// AUDIT
// =============================================================================

type AuditEntryDTO struct {
	ID        string            `json:"id"`
	At        string            `json:"at"`
	Actor     string            `json:"actor,omitempty"`
	Action    string            `json:"action"`
	VehicleID string            `json:"vehicle_id,omitempty"`
	WaybillID string            `json:"waybill_id,omitempty"`
	RecordID  string            `json:"record_id,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toVehicleDTO(v fleet.Vehicle) VehicleDTO {
	return VehicleDTO{
		ID:        string(v.ID),
		Plate:     v.Plate,
		Brand:     v.Brand,
		Model:     v.Model,
		Kind:      string(v.Kind),
		TruckType: v.TruckType,
		Odometer:  nullDecStr(v.Odometer),
		Fuel:      nullDecStr(v.Fuel),
		CreatedAt: v.CreatedAt.Format(time.RFC3339),
	}
}

func toNormDTO(n fleet.Norm) NormDTO {
	return NormDTO{
		ID:            string(n.ID),
		VehicleID:     string(n.VehicleID),
		Season:        string(n.Season),
		EffectiveDate: n.EffectiveDate.String(),
		CityRate:      n.CityRate.String(),
		AreaRate:      n.AreaRate.String(),
		KmRate:        n.KmRate.String(),
		PumpRate:      n.PumpRate.String(),
		NoPumpRate:    n.NoPumpRate.String(),
		CreatedAt:     n.CreatedAt.Format(time.RFC3339),
	}
}

func toWaybillDTO(w fleet.Waybill) WaybillDTO {
	return WaybillDTO{
		ID:        string(w.ID),
		Number:    w.Number,
		VehicleID: string(w.VehicleID),
		DriverID:  string(w.DriverID),
		Date:      w.Date.String(),
		Season:    string(w.Season),
		Totals: WaybillTotalsDTO{
			UponIssuance:             w.Totals.UponIssuance.String(),
			TotalSpent:               w.Totals.TotalSpent.String(),
			TotalReceived:            w.Totals.TotalReceived.String(),
			RequiredByNorm:           w.Totals.RequiredByNorm.String(),
			AvailabilityUponDelivery: w.Totals.AvailabilityUponDelivery.String(),
			Savings:                  w.Totals.Savings.String(),
			Overrun:                  w.Totals.Overrun.String(),
		},
		CreatedAt: w.CreatedAt.Format(time.RFC3339),
	}
}

func toRecordDTO(r fleet.TripRecord) RecordDTO {
	return RecordDTO{
		ID:        string(r.ID),
		WaybillID: string(r.WaybillID),
		Date:      r.Date.String(),
		DriverID:  string(r.DriverID),

		DistanceCity:   r.DistanceCity.String(),
		DistanceArea:   r.DistanceArea.String(),
		OdometerAfter:  nullDecStr(r.OdometerAfter),
		Times:          toTimesDTO(r.Times),
		FuelRefueled:   r.FuelRefueled.String(),
		FuelUsedActual: r.FuelUsedActual.String(),

		OdometerBefore:      r.OdometerBefore.String(),
		FuelBeforeDeparture: r.FuelBeforeDeparture.String(),
		NormID:              string(r.Norm.NormID),
		DistanceTotal:       r.DistanceTotal.String(),
		FuelUsedByNorm:      r.FuelUsedByNorm.String(),
		FuelOnReturn:        r.FuelOnReturn.String(),
	}
}

func toSnapshotDTO(s fleet.Snapshot) SnapshotDTO {
	return SnapshotDTO{
		ID:        string(s.ID),
		VehicleID: string(s.VehicleID),
		Odometer:  s.Odometer.String(),
		Fuel:      s.Fuel.String(),
		Date:      s.Date.String(),
		Seq:       s.Seq,
		WaybillID: string(s.WaybillID),
		RecordID:  string(s.RecordID),
	}
}

func toSlotDTO(s signing.SlotStatus) SlotDTO {
	dto := SlotDTO{
		RoleID:   string(s.Role.ID),
		RoleName: s.Role.Name,
		Order:    s.Order,
	}
	if s.Signature != nil {
		uid := string(s.Signature.UserID)
		at := s.Signature.SignedAt.Format(time.RFC3339)
		dto.UserID = &uid
		dto.SignedAt = &at
	}
	return dto
}

func toUserDTO(u signing.User) UserDTO {
	return UserDTO{
		ID:         string(u.ID),
		Name:       u.Name,
		Surname:    u.Surname,
		Patronymic: u.Patronymic,
		Login:      u.Login,
		Phone:      u.Phone,
		RoleID:     string(u.RoleID),
	}
}

func toTimesDTO(t fleet.TimeBuckets) TimeBucketsDTO {
	return TimeBucketsDTO(t)
}

func (t TimeBucketsDTO) toDomain() fleet.TimeBuckets {
	return fleet.TimeBuckets(t)
}

func nullDecStr(nd decimal.NullDecimal) *string {
	if !nd.Valid {
		return nil
	}
	s := nd.Decimal.String()
	return &s
}
