/*
Package signing implements the waybill signature/authorization workflow.

PURPOSE:
  A waybill is only valid once every required role slot carries a signature.
  This package decides who may fill a slot (the role itself, or a registered
  substitute role) and enforces at-most-one signer per slot with
  get-or-create semantics: re-signing by the same user is a no-op, a second
  user is rejected.

  The workflow operates on a document-approval axis independent of the fuel
  ledger; it shares only the soft-delete trait and the error taxonomy with
  the fleet package.

SEE ALSO:
  - workflow.go: CanSign / Sign
  - defaults.go: Idempotent seeding of baseline roles and permissions
*/
package signing

import (
	"time"

	"github.com/warp/fuel-engine/fleet"
)

// =============================================================================
// ROLES AND USERS
// =============================================================================

type RoleID string

type Role struct {
	ID                  RoleID
	Name                string
	CanUseMobileBooking bool
	fleet.Tombstone
}

// PermissionSet is the named capability flags attached to a role. Stored as
// an opaque set so operators can extend it without schema changes.
type PermissionSet map[string]bool

func (p PermissionSet) Clone() PermissionSet {
	out := make(PermissionSet, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

type User struct {
	ID           fleet.UserID
	Name         string
	Surname      string
	Patronymic   string
	Login        string
	PasswordHash string
	Phone        string
	RoleID       RoleID
	fleet.Tombstone
}

// Substitution registers that SubstituteRole may sign in place of MainRole.
type Substitution struct {
	ID             string
	MainRole       RoleID
	SubstituteRole RoleID
	fleet.Tombstone
}

// =============================================================================
// SIGNATURE SLOTS
// =============================================================================

// RequiredRole is a slot: a role whose signature every waybill must carry.
// Order controls slot display order on the printed form.
type RequiredRole struct {
	RoleID RoleID
	Order  int
	fleet.Tombstone
}

// Signature fills one required-role slot on one waybill. At most one live
// signature exists per (waybill, slot); the store backs that with a
// uniqueness constraint.
type Signature struct {
	ID        string
	WaybillID fleet.WaybillID
	RoleID    RoleID // the slot being filled
	UserID    fleet.UserID
	SignedAt  time.Time
	fleet.Tombstone
}
