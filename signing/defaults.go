/*
defaults.go - Baseline roles and permissions

PURPOSE:
  A fresh deployment needs the three baseline roles before anyone can log
  in or sign anything. EnsureDefaults seeds them, their permission sets and
  the waybill signature slots. It is idempotent: roles are matched by name,
  existing ones are left untouched (operators may have customized their
  permissions), and rerunning on a seeded store is a no-op.
*/
package signing

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Baseline role names.
const (
	RoleAdministrator = "administrator"
	RoleMechanic      = "mechanic"
	RoleDriver        = "driver"
)

// Permission flags known to the engine.
const (
	PermManageUsers    = "manage_users"
	PermViewUsers      = "view_users"
	PermManageVehicles = "manage_vehicles"
	PermViewVehicles   = "view_vehicles"
	PermManageNorms    = "manage_norms"
	PermViewNorms      = "view_norms"
	PermManageWaybills = "manage_waybills"
	PermViewWaybills   = "view_waybills"
	PermManageRecords  = "manage_records"
	PermViewReports    = "view_reports"
)

type defaultRole struct {
	name   string
	mobile bool
	perms  PermissionSet
	// slot order on the waybill form; -1 means the role doesn't sign
	slotOrder int
}

func defaultRoles() []defaultRole {
	return []defaultRole{
		{
			name:   RoleAdministrator,
			mobile: true,
			perms: PermissionSet{
				PermManageUsers: true, PermViewUsers: true,
				PermManageVehicles: true, PermViewVehicles: true,
				PermManageNorms: true, PermViewNorms: true,
				PermManageWaybills: true, PermViewWaybills: true,
				PermManageRecords: true, PermViewReports: true,
			},
			slotOrder: 1,
		},
		{
			name:   RoleMechanic,
			mobile: true,
			perms: PermissionSet{
				PermViewUsers: true, PermViewVehicles: true,
				PermManageNorms: true, PermViewNorms: true,
				PermViewWaybills: true, PermManageRecords: true,
				PermViewReports: true,
			},
			slotOrder: 2,
		},
		{
			name:   RoleDriver,
			mobile: true,
			perms: PermissionSet{
				PermViewVehicles: true, PermViewWaybills: true,
				PermManageRecords: true,
			},
			slotOrder: 3,
		},
	}
}

// EnsureDefaults seeds the baseline roles, permissions and signature slots.
// Safe to run on every startup.
func EnsureDefaults(ctx context.Context, s Store, log logrus.FieldLogger) error {
	if log == nil {
		log = logrus.StandardLogger()
	}

	for _, def := range defaultRoles() {
		role, err := s.FindRoleByName(ctx, def.name)
		if err != nil {
			return err
		}
		if role == nil {
			role = &Role{Name: def.name, CanUseMobileBooking: def.mobile}
			if err := s.SaveRole(ctx, role); err != nil {
				return err
			}
			if err := s.SetPermissions(ctx, role.ID, def.perms.Clone()); err != nil {
				return err
			}
			log.WithField("role", def.name).Info("seeded default role")
		}

		if def.slotOrder < 0 {
			continue
		}
		if err := ensureSlot(ctx, s, role.ID, def.slotOrder); err != nil {
			return err
		}
	}
	return nil
}

func ensureSlot(ctx context.Context, s Store, id RoleID, order int) error {
	slots, err := s.RequiredRoles(ctx)
	if err != nil {
		return err
	}
	for _, slot := range slots {
		if slot.RoleID == id {
			return nil
		}
	}
	return s.SaveRequiredRole(ctx, &RequiredRole{RoleID: id, Order: order})
}
