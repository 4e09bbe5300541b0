package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleUser       = "user"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
	RoleBilling    = "billing" // hidden role: the billing backend's service account
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }

func IsHiddenRole(role string) bool { return role == RoleBilling }

// CanViewOthers reports whether role may read another user's calls, wallet or reports.
func CanViewOthers(role string) bool { return role == RoleAdmin || role == RoleSuperAdmin }

func IsKnownRole(role string) bool {
	switch role {
	case RoleUser, RoleAdmin, RoleSuperAdmin, RoleBilling:
		return true
	}
	return false
}
