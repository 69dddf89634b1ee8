package signing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/fuel-engine/fleet"
	"github.com/warp/fuel-engine/fleet/store"
	"github.com/warp/fuel-engine/signing"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestWorkflow(t *testing.T) (*signing.Workflow, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	require.NoError(t, signing.EnsureDefaults(context.Background(), mem, nil))

	flow := signing.NewWorkflow(mem)
	flow.Audit = mem
	return flow, mem
}

func userWithRole(t *testing.T, mem *store.Memory, login, roleName string) *signing.User {
	t.Helper()
	ctx := context.Background()
	role, err := mem.FindRoleByName(ctx, roleName)
	require.NoError(t, err)
	require.NotNil(t, role)

	u := &signing.User{Login: login, RoleID: role.ID}
	require.NoError(t, mem.SaveUser(ctx, u))
	return u
}

func waybillFor(id fleet.WaybillID) *fleet.Waybill {
	return &fleet.Waybill{ID: id, VehicleID: "car-1"}
}

// =============================================================================
// DEFAULTS
// =============================================================================

func TestEnsureDefaults_SeedsRolesAndSlots(t *testing.T) {
	_, mem := newTestWorkflow(t)
	ctx := context.Background()

	roles, err := mem.ListRoles(ctx, fleet.LiveOnly)
	require.NoError(t, err)
	assert.Len(t, roles, 3)

	slots, err := mem.RequiredRoles(ctx)
	require.NoError(t, err)
	require.Len(t, slots, 3)
	for i := 1; i < len(slots); i++ {
		assert.Less(t, slots[i-1].Order, slots[i].Order, "slots come back in form order")
	}

	admin, err := mem.FindRoleByName(ctx, signing.RoleAdministrator)
	require.NoError(t, err)
	perms, err := mem.Permissions(ctx, admin.ID)
	require.NoError(t, err)
	assert.True(t, perms[signing.PermManageUsers])

	driver, err := mem.FindRoleByName(ctx, signing.RoleDriver)
	require.NoError(t, err)
	perms, err = mem.Permissions(ctx, driver.ID)
	require.NoError(t, err)
	assert.False(t, perms[signing.PermManageUsers])
	assert.True(t, perms[signing.PermManageRecords])
}

func TestEnsureDefaults_Idempotent(t *testing.T) {
	// Rerunning on a seeded store must not duplicate anything or clobber
	// customized permissions.

	_, mem := newTestWorkflow(t)
	ctx := context.Background()

	mech, err := mem.FindRoleByName(ctx, signing.RoleMechanic)
	require.NoError(t, err)
	require.NoError(t, mem.SetPermissions(ctx, mech.ID, signing.PermissionSet{signing.PermViewReports: true}))

	require.NoError(t, signing.EnsureDefaults(ctx, mem, nil))

	roles, err := mem.ListRoles(ctx, fleet.LiveOnly)
	require.NoError(t, err)
	assert.Len(t, roles, 3)

	slots, err := mem.RequiredRoles(ctx)
	require.NoError(t, err)
	assert.Len(t, slots, 3)

	perms, err := mem.Permissions(ctx, mech.ID)
	require.NoError(t, err)
	assert.Equal(t, signing.PermissionSet{signing.PermViewReports: true}, perms,
		"customized permissions survive reseeding")
}

// =============================================================================
// SIGNING
// =============================================================================

func TestSign_OwnSlot(t *testing.T) {
	flow, mem := newTestWorkflow(t)
	ctx := context.Background()
	driver := userWithRole(t, mem, "ivanov", signing.RoleDriver)

	sig, created, err := flow.Sign(ctx, waybillFor("wb-1"), driver.RoleID, driver)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, driver.ID, sig.UserID)
	assert.Equal(t, driver.RoleID, sig.RoleID)
	assert.False(t, sig.SignedAt.IsZero())
}

func TestSign_SameUserAgainIsNoOp(t *testing.T) {
	flow, mem := newTestWorkflow(t)
	ctx := context.Background()
	driver := userWithRole(t, mem, "ivanov", signing.RoleDriver)

	first, _, err := flow.Sign(ctx, waybillFor("wb-1"), driver.RoleID, driver)
	require.NoError(t, err)

	second, created, err := flow.Sign(ctx, waybillFor("wb-1"), driver.RoleID, driver)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.SignedAt, second.SignedAt, "timestamp never refreshes")
}

func TestSign_ClaimedSlotRejectsOtherUsers(t *testing.T) {
	flow, mem := newTestWorkflow(t)
	ctx := context.Background()
	first := userWithRole(t, mem, "ivanov", signing.RoleDriver)
	second := userWithRole(t, mem, "petrov", signing.RoleDriver)

	_, _, err := flow.Sign(ctx, waybillFor("wb-1"), first.RoleID, first)
	require.NoError(t, err)

	_, _, err = flow.Sign(ctx, waybillFor("wb-1"), second.RoleID, second)
	assert.ErrorIs(t, err, fleet.ErrPermissionDenied)

	var pErr *signing.PermissionDeniedError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, second.ID, pErr.UserID)
}

func TestSign_WrongRoleDenied(t *testing.T) {
	flow, mem := newTestWorkflow(t)
	ctx := context.Background()
	driver := userWithRole(t, mem, "ivanov", signing.RoleDriver)

	mech, err := mem.FindRoleByName(ctx, signing.RoleMechanic)
	require.NoError(t, err)

	_, _, err = flow.Sign(ctx, waybillFor("wb-1"), mech.ID, driver)
	assert.ErrorIs(t, err, fleet.ErrPermissionDenied)
}

func TestSign_SubstitutionAllowsCrossRoleSigning(t *testing.T) {
	// GIVEN: Administrators registered as substitutes for the mechanic slot
	// WHEN: An administrator signs the mechanic slot
	// THEN: The signature lands in the mechanic slot under the admin's name

	flow, mem := newTestWorkflow(t)
	ctx := context.Background()
	admin := userWithRole(t, mem, "boss", signing.RoleAdministrator)

	mech, err := mem.FindRoleByName(ctx, signing.RoleMechanic)
	require.NoError(t, err)
	require.NoError(t, mem.SaveSubstitution(ctx, &signing.Substitution{
		MainRole:       mech.ID,
		SubstituteRole: admin.RoleID,
	}))

	sig, created, err := flow.Sign(ctx, waybillFor("wb-1"), mech.ID, admin)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, mech.ID, sig.RoleID, "slot stays the mechanic's")
	assert.Equal(t, admin.ID, sig.UserID)
}

func TestSign_SubstitutionIsDirectional(t *testing.T) {
	// Mechanic-for-admin does not imply admin-for-mechanic.

	flow, mem := newTestWorkflow(t)
	ctx := context.Background()
	mechanic := userWithRole(t, mem, "wrench", signing.RoleMechanic)

	admin, err := mem.FindRoleByName(ctx, signing.RoleAdministrator)
	require.NoError(t, err)
	require.NoError(t, mem.SaveSubstitution(ctx, &signing.Substitution{
		MainRole:       mechanic.RoleID,
		SubstituteRole: admin.ID,
	}))

	_, _, err = flow.Sign(ctx, waybillFor("wb-1"), admin.ID, mechanic)
	assert.ErrorIs(t, err, fleet.ErrPermissionDenied)
}

func TestSign_UnknownSlot(t *testing.T) {
	flow, mem := newTestWorkflow(t)
	driver := userWithRole(t, mem, "ivanov", signing.RoleDriver)

	_, _, err := flow.Sign(context.Background(), waybillFor("wb-1"), "nonsense", driver)
	assert.ErrorIs(t, err, fleet.ErrValidation)
}

func TestSign_AuditEntryLandsInVehicleTrail(t *testing.T) {
	// GIVEN: A signed waybill belonging to a vehicle
	// WHEN: The vehicle's audit trail is read
	// THEN: The signature entry is there, scoped to that vehicle

	flow, mem := newTestWorkflow(t)
	ctx := context.Background()
	driver := userWithRole(t, mem, "ivanov", signing.RoleDriver)

	_, _, err := flow.Sign(ctx, waybillFor("wb-1"), driver.RoleID, driver)
	require.NoError(t, err)

	entries, err := mem.AuditEntries(ctx, "car-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, fleet.AuditWaybillSigned, entries[0].Action)
	assert.Equal(t, fleet.WaybillID("wb-1"), entries[0].WaybillID)
	assert.Equal(t, driver.Login, entries[0].Actor)

	other, err := mem.AuditEntries(ctx, "car-2")
	require.NoError(t, err)
	assert.Empty(t, other, "no leakage into other vehicles' trails")
}

func TestSign_SlotsAreIndependentPerWaybill(t *testing.T) {
	flow, mem := newTestWorkflow(t)
	ctx := context.Background()
	driver := userWithRole(t, mem, "ivanov", signing.RoleDriver)
	other := userWithRole(t, mem, "petrov", signing.RoleDriver)

	_, _, err := flow.Sign(ctx, waybillFor("wb-1"), driver.RoleID, driver)
	require.NoError(t, err)

	_, created, err := flow.Sign(ctx, waybillFor("wb-2"), other.RoleID, other)
	require.NoError(t, err)
	assert.True(t, created, "a different waybill's slot is open")
}

// =============================================================================
// STATUS
// =============================================================================

func TestStatus_TracksSlotFilling(t *testing.T) {
	flow, mem := newTestWorkflow(t)
	ctx := context.Background()
	driver := userWithRole(t, mem, "ivanov", signing.RoleDriver)

	slots, err := flow.Status(ctx, "wb-1")
	require.NoError(t, err)
	require.Len(t, slots, 3)
	for _, s := range slots {
		assert.Nil(t, s.Signature, "everything starts open")
	}

	_, _, err = flow.Sign(ctx, waybillFor("wb-1"), driver.RoleID, driver)
	require.NoError(t, err)

	slots, err = flow.Status(ctx, "wb-1")
	require.NoError(t, err)

	filled := 0
	for _, s := range slots {
		if s.Signature != nil {
			filled++
			assert.Equal(t, signing.RoleDriver, s.Role.Name)
			assert.Equal(t, driver.ID, s.Signature.UserID)
		}
	}
	assert.Equal(t, 1, filled)
}
