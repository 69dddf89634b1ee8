/*
workflow.go - Slot authorization and get-or-create signing

PURPOSE:
  Sign() is the only way signatures enter the system. It authorizes the
  user against the slot (own role, or a registered substitution), then
  applies get-or-create semantics: the first signer claims the slot,
  re-signing by the same user returns the existing signature unchanged, and
  any other user is rejected. Claimed slots never change hands except by an
  operator voiding the signature (soft delete) first.
*/
package signing

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/fuel-engine/fleet"
)

// Workflow drives the signature process. Audit is optional; Log defaults to
// the standard logrus logger.
type Workflow struct {
	Store Store
	Audit fleet.AuditLog
	Log   logrus.FieldLogger
}

func NewWorkflow(store Store) *Workflow {
	return &Workflow{
		Store: store,
		Log:   logrus.StandardLogger(),
	}
}

// SlotStatus pairs a required-role slot with the signature filling it, nil
// while the slot is open.
type SlotStatus struct {
	Role      Role
	Order     int
	Signature *Signature
}

// CanSign reports whether user may fill the slot: either the slot is their
// own role, or their role is registered as a substitute for it.
func (w *Workflow) CanSign(ctx context.Context, user *User, slot RoleID) (bool, error) {
	if user.RoleID == slot {
		return true, nil
	}
	return w.Store.HasSubstitution(ctx, slot, user.RoleID)
}

// Sign fills a slot on wb on behalf of user. Returns the signature and
// whether it was newly created. Re-signing by the slot holder is a no-op;
// an unauthorized user or a slot held by someone else yields a
// PermissionDeniedError. The caller passes the waybill whole so the audit
// entry lands in its vehicle's trail.
func (w *Workflow) Sign(ctx context.Context, wb *fleet.Waybill, slot RoleID, user *User) (*Signature, bool, error) {
	if wb == nil || wb.ID == "" {
		return nil, false, &fleet.ValidationError{Field: "waybill_id", Message: "required"}
	}

	role, err := w.Store.GetRole(ctx, slot)
	if err != nil {
		return nil, false, err
	}
	if role == nil {
		return nil, false, &fleet.ValidationError{Field: "role_id", Message: "unknown signature slot"}
	}

	ok, err := w.CanSign(ctx, user, slot)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, &PermissionDeniedError{
			UserID: user.ID,
			RoleID: slot,
			Reason: "role does not match and no substitution is registered",
		}
	}

	existing, err := w.Store.GetSignature(ctx, wb.ID, slot)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		if existing.UserID == user.ID {
			return existing, false, nil
		}
		return nil, false, &PermissionDeniedError{
			UserID: user.ID,
			RoleID: slot,
			Reason: "slot already signed by another user",
		}
	}

	sig := &Signature{
		ID:        fleet.NewID(),
		WaybillID: wb.ID,
		RoleID:    slot,
		UserID:    user.ID,
		SignedAt:  time.Now().UTC(),
	}
	if err := w.Store.SaveSignature(ctx, sig); err != nil {
		return nil, false, err
	}

	w.audit(ctx, fleet.AuditEntry{
		Actor:     user.Login,
		Action:    fleet.AuditWaybillSigned,
		VehicleID: wb.VehicleID,
		WaybillID: wb.ID,
		Details:   map[string]string{"slot": string(slot)},
	})
	w.log().WithFields(logrus.Fields{
		"waybill": wb.ID,
		"slot":    slot,
		"user":    user.Login,
	}).Info("waybill signed")

	return sig, true, nil
}

// Status returns every required slot with its current signature, in slot
// order. A waybill is fully signed when no entry has a nil Signature.
func (w *Workflow) Status(ctx context.Context, waybillID fleet.WaybillID) ([]SlotStatus, error) {
	slots, err := w.Store.RequiredRoles(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]SlotStatus, 0, len(slots))
	for _, slot := range slots {
		role, err := w.Store.GetRole(ctx, slot.RoleID)
		if err != nil {
			return nil, err
		}
		if role == nil {
			continue
		}
		sig, err := w.Store.GetSignature(ctx, waybillID, slot.RoleID)
		if err != nil {
			return nil, err
		}
		out = append(out, SlotStatus{Role: *role, Order: slot.Order, Signature: sig})
	}
	return out, nil
}

func (w *Workflow) audit(ctx context.Context, entry fleet.AuditEntry) {
	if w.Audit == nil {
		return
	}
	entry.ID = fleet.NewID()
	entry.At = time.Now().UTC()
	if err := w.Audit.AppendAudit(ctx, entry); err != nil {
		w.log().WithError(err).Warn("audit append failed")
	}
}

func (w *Workflow) log() logrus.FieldLogger {
	if w.Log != nil {
		return w.Log
	}
	return logrus.StandardLogger()
}
