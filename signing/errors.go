package signing

import (
	"fmt"

	"github.com/warp/fuel-engine/fleet"
)

// PermissionDeniedError reports why a user may not fill a signature slot.
// Unwraps to fleet.ErrPermissionDenied so callers branch with errors.Is.
type PermissionDeniedError struct {
	UserID fleet.UserID
	RoleID RoleID
	Reason string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("user %s may not sign slot %s: %s", e.UserID, e.RoleID, e.Reason)
}

func (e *PermissionDeniedError) Unwrap() error { return fleet.ErrPermissionDenied }
