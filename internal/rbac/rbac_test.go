package rbac

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/and161185/visitguard/internal/errs"
)

func TestAdminIsStrictSuperset(t *testing.T) {
	t.Parallel()

	admin := RolePermissions(RoleAdmin)
	for _, r := range Roles {
		if r == RoleAdmin {
			continue
		}
		perms := RolePermissions(r)
		assert.Greater(t, len(admin), len(perms), "role %s", r)
		for _, p := range perms {
			assert.True(t, HasPermission(RoleAdmin, p), "admin lacks %s granted to %s", p, r)
		}
	}
}

func TestSystemAdminGrantedToNobody(t *testing.T) {
	t.Parallel()

	for _, r := range Roles {
		assert.False(t, HasPermission(r, SystemAdmin), "role %s", r)
	}
	assert.Contains(t, Permissions, SystemAdmin)
}

func TestEveryGrantIsDefined(t *testing.T) {
	t.Parallel()

	for _, r := range Roles {
		for _, p := range RolePermissions(r) {
			assert.Contains(t, Permissions, p)
		}
	}
}

func TestReceptionist(t *testing.T) {
	t.Parallel()

	assert.False(t, HasPermission(RoleReceptionist, VisitorDelete))
	assert.True(t, HasPermission(RoleReceptionist, VisitCheckIn))
	assert.True(t, CanAccessPII(RoleReceptionist))
	assert.False(t, CanPerformGDPR(RoleReceptionist))
}

func TestAnyAll(t *testing.T) {
	t.Parallel()

	assert.True(t, HasAnyPermission(RoleSecurity, VisitorDelete, VisitCheckOut))
	assert.False(t, HasAnyPermission(RoleSecurity, VisitorDelete, GDPRExport))
	assert.False(t, HasAnyPermission(RoleSecurity))

	assert.True(t, HasAllPermissions(RoleManager, ReportView, ReportExport))
	assert.False(t, HasAllPermissions(RoleManager, ReportView, GDPRDelete))
	assert.True(t, HasAllPermissions(RoleManager))
}

func TestUnknownRole(t *testing.T) {
	t.Parallel()

	r := Role("JANITOR")
	assert.Empty(t, RolePermissions(r))
	assert.False(t, HasPermission(r, VisitorRead))
	assert.False(t, CanAccessPII(r))
	assert.Equal(t, Scope{Type: ScopeNone, SubjectID: "x"}, DataScope(r, "x"))
}

func TestRolePermissionsIsCopy(t *testing.T) {
	t.Parallel()

	p := RolePermissions(RoleSecurity)
	p[0] = SystemAdmin
	assert.False(t, HasPermission(RoleSecurity, SystemAdmin))
}

func TestGDPRAndScope(t *testing.T) {
	t.Parallel()

	assert.True(t, CanPerformGDPR(RoleAdmin))
	assert.True(t, CanPerformGDPR(RoleManager))
	assert.False(t, CanPerformGDPR(RoleSecurity))

	assert.True(t, DataScope(RoleAdmin, "o1").CanViewPII)
	assert.True(t, DataScope(RoleReceptionist, "o1").CanViewPII)
	s := DataScope(RoleManager, "o1")
	assert.Equal(t, ScopeOrganization, s.Type)
	assert.False(t, s.CanViewPII)
	assert.False(t, DataScope(RoleSecurity, "o1").CanViewPII)
}

func TestParseRoleAndHasRole(t *testing.T) {
	t.Parallel()

	r, err := ParseRole(" security ")
	require.NoError(t, err)
	assert.Equal(t, RoleSecurity, r)

	_, err = ParseRole("root")
	require.ErrorIs(t, err, errs.ErrValidation)

	assert.True(t, HasRole(RoleManager, RoleAdmin, RoleManager))
	assert.False(t, HasRole(RoleManager, RoleAdmin))
}

func TestAuthorizeAndGuard(t *testing.T) {
	t.Parallel()

	require.NoError(t, Authorize(RoleAdmin, WebhookManage))
	require.NoError(t, Authorize(RoleSecurity))
	require.ErrorIs(t, Authorize(RoleSecurity, WebhookManage), errs.ErrForbidden)
	require.ErrorIs(t, Authorize(Role("x")), errs.ErrForbidden)

	called := false
	_, err := Guard(RoleReceptionist, []Permission{VisitorDelete}, func() (int, error) {
		called = true
		return 1, nil
	})
	require.ErrorIs(t, err, errs.ErrForbidden)
	assert.False(t, called)

	boom := errors.New("boom")
	v, err := Guard(RoleReceptionist, []Permission{VisitorRead}, func() (int, error) { return 7, boom })
	assert.Equal(t, 7, v)
	require.ErrorIs(t, err, boom)
}
