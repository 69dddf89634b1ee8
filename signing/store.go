package signing

import (
	"context"
	"time"

	"github.com/warp/fuel-engine/fleet"
)

// Store handles persistence for the signing workflow. Lookups return
// (nil, nil) when the entity doesn't exist or is tombstoned, matching the
// fleet store convention.
type Store interface {
	// ------ roles ------

	// SaveRole inserts a role (assigning an ID if empty) or updates it.
	SaveRole(ctx context.Context, r *Role) error
	GetRole(ctx context.Context, id RoleID) (*Role, error)

	// FindRoleByName resolves a live role by its unique name.
	FindRoleByName(ctx context.Context, name string) (*Role, error)
	ListRoles(ctx context.Context, vis fleet.Visibility) ([]Role, error)

	// Permissions returns the capability flags for a role; empty set if
	// none were ever stored.
	Permissions(ctx context.Context, id RoleID) (PermissionSet, error)
	SetPermissions(ctx context.Context, id RoleID, perms PermissionSet) error

	// ------ users ------

	SaveUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id fleet.UserID) (*User, error)

	// FindUserByLogin resolves a live user by login, for authentication.
	FindUserByLogin(ctx context.Context, login string) (*User, error)
	ListUsers(ctx context.Context, vis fleet.Visibility) ([]User, error)
	DeleteUser(ctx context.Context, id fleet.UserID, at time.Time) error

	// ------ substitutions ------

	SaveSubstitution(ctx context.Context, s *Substitution) error

	// HasSubstitution reports whether substitute may sign in place of main.
	HasSubstitution(ctx context.Context, main, substitute RoleID) (bool, error)
	ListSubstitutions(ctx context.Context, vis fleet.Visibility) ([]Substitution, error)

	// ------ signature slots ------

	SaveRequiredRole(ctx context.Context, r *RequiredRole) error

	// RequiredRoles returns the live slots ordered by Order asc.
	RequiredRoles(ctx context.Context) ([]RequiredRole, error)

	// SaveSignature inserts a signature. Implementations enforce at most
	// one live signature per (waybill, slot).
	SaveSignature(ctx context.Context, s *Signature) error

	// GetSignature returns the live signature filling a slot on a waybill,
	// or nil.
	GetSignature(ctx context.Context, waybillID fleet.WaybillID, roleID RoleID) (*Signature, error)
	SignaturesFor(ctx context.Context, waybillID fleet.WaybillID) ([]Signature, error)
}
