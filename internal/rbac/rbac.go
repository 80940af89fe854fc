// Package rbac answers permission queries from a fixed role table.
//
// Every function here is pure. The matrix is built once at init and never mutated,
// so callers may use it from any goroutine without locking.
package rbac

import (
	"fmt"
	"slices"
	"strings"

	"github.com/and161185/visitguard/internal/errs"
)

// Role is a staff role.
type Role string

const (
	RoleAdmin        Role = "ADMIN"
	RoleReceptionist Role = "RECEPTIONIST"
	RoleSecurity     Role = "SECURITY"
	RoleManager      Role = "MANAGER"
)

// Roles lists every known role.
var Roles = []Role{RoleAdmin, RoleReceptionist, RoleSecurity, RoleManager}

// Permission is a resource:action pair.
type Permission string

const (
	VisitorCreate  Permission = "visitor:create"
	VisitorRead    Permission = "visitor:read"
	VisitorUpdate  Permission = "visitor:update"
	VisitorDelete  Permission = "visitor:delete"
	VisitorPIIView Permission = "visitor:pii:view"

	VisitCreate   Permission = "visit:create"
	VisitRead     Permission = "visit:read"
	VisitUpdate   Permission = "visit:update"
	VisitCheckIn  Permission = "visit:checkin"
	VisitCheckOut Permission = "visit:checkout"

	OrganizationRead   Permission = "organization:read"
	OrganizationUpdate Permission = "organization:update"
	LocationManage     Permission = "location:manage"
	KioskManage        Permission = "kiosk:manage"
	UserManage         Permission = "user:manage"

	ReportView   Permission = "report:view"
	ReportExport Permission = "report:export"
	AuditView    Permission = "audit:view"

	NotificationSend   Permission = "notification:send"
	NotificationManage Permission = "notification:manage"
	WebhookManage      Permission = "webhook:manage"

	GDPRExport Permission = "gdpr:export"
	GDPRDelete Permission = "gdpr:delete"

	// SystemAdmin is reserved. No role is granted it.
	SystemAdmin Permission = "system:admin"
)

// Permissions lists every defined permission.
var Permissions = []Permission{
	VisitorCreate, VisitorRead, VisitorUpdate, VisitorDelete, VisitorPIIView,
	VisitCreate, VisitRead, VisitUpdate, VisitCheckIn, VisitCheckOut,
	OrganizationRead, OrganizationUpdate, LocationManage, KioskManage, UserManage,
	ReportView, ReportExport, AuditView,
	NotificationSend, NotificationManage, WebhookManage,
	GDPRExport, GDPRDelete,
	SystemAdmin,
}

var grants = map[Role][]Permission{
	RoleAdmin: {
		VisitorCreate, VisitorRead, VisitorUpdate, VisitorDelete, VisitorPIIView,
		VisitCreate, VisitRead, VisitUpdate, VisitCheckIn, VisitCheckOut,
		OrganizationRead, OrganizationUpdate, LocationManage, KioskManage, UserManage,
		ReportView, ReportExport, AuditView,
		NotificationSend, NotificationManage, WebhookManage,
		GDPRExport, GDPRDelete,
	},
	RoleReceptionist: {
		VisitorCreate, VisitorRead, VisitorUpdate, VisitorPIIView,
		VisitCreate, VisitRead, VisitUpdate, VisitCheckIn, VisitCheckOut,
		OrganizationRead,
		NotificationSend,
	},
	RoleSecurity: {
		VisitorRead,
		VisitRead, VisitCheckIn, VisitCheckOut,
		OrganizationRead,
		ReportView, AuditView,
		NotificationSend,
	},
	RoleManager: {
		VisitorRead,
		VisitCreate, VisitRead,
		OrganizationRead, OrganizationUpdate, LocationManage, KioskManage,
		ReportView, ReportExport, AuditView,
		NotificationSend, NotificationManage,
		GDPRExport,
	},
}

var matrix = buildMatrix(grants)

func buildMatrix(g map[Role][]Permission) map[Role]map[Permission]struct{} {
	m := make(map[Role]map[Permission]struct{}, len(g))
	for role, perms := range g {
		set := make(map[Permission]struct{}, len(perms))
		for _, p := range perms {
			set[p] = struct{}{}
		}
		m[role] = set
	}
	return m
}

// ParseRole accepts a role name in any case.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := matrix[r]; !ok {
		return "", fmt.Errorf("%w: unknown role %q", errs.ErrValidation, s)
	}
	return r, nil
}

// HasPermission reports whether role is granted p.
func HasPermission(role Role, p Permission) bool {
	_, ok := matrix[role][p]
	return ok
}

// HasAnyPermission reports whether role is granted at least one of perms.
func HasAnyPermission(role Role, perms ...Permission) bool {
	for _, p := range perms {
		if HasPermission(role, p) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether role is granted every one of perms.
func HasAllPermissions(role Role, perms ...Permission) bool {
	for _, p := range perms {
		if !HasPermission(role, p) {
			return false
		}
	}
	return true
}

// RolePermissions returns a sorted copy of the role's grants. Unknown roles get an empty slice.
func RolePermissions(role Role) []Permission {
	out := make([]Permission, 0, len(matrix[role]))
	for p := range matrix[role] {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// HasRole reports whether role is one of roles.
func HasRole(role Role, roles ...Role) bool {
	return slices.Contains(roles, role)
}

func CanAccessPII(role Role) bool { return HasPermission(role, VisitorPIIView) }

func CanPerformGDPR(role Role) bool { return HasAnyPermission(role, GDPRExport, GDPRDelete) }

// ScopeType is the breadth of data a role may see.
type ScopeType string

const (
	ScopeOrganization ScopeType = "organization"
	ScopeLocation     ScopeType = "location"
	ScopeSelf         ScopeType = "self"
	ScopeNone         ScopeType = "none"
)

// Scope describes what a role sees for a given subject.
type Scope struct {
	Type       ScopeType
	SubjectID  string
	CanViewPII bool
}

// DataScope maps a role to its data scope. subjectID is carried through unchanged.
func DataScope(role Role, subjectID string) Scope {
	switch role {
	case RoleAdmin, RoleReceptionist:
		return Scope{Type: ScopeOrganization, SubjectID: subjectID, CanViewPII: true}
	case RoleSecurity, RoleManager:
		return Scope{Type: ScopeOrganization, SubjectID: subjectID}
	default:
		return Scope{Type: ScopeNone, SubjectID: subjectID}
	}
}
