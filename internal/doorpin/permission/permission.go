// Package permission holds the static role → capability table that decides
// who may manage the credentials the verifier later trusts.
package permission

type Role string

const (
	RoleAdmin          Role = "admin"
	RoleApartmentAdmin Role = "apartment_admin"
	RoleUser           Role = "user"
	RoleGuest          Role = "guest"
)

// ParseRole returns the Role for s and whether it is one of the known roles.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	switch r {
	case RoleAdmin, RoleApartmentAdmin, RoleUser, RoleGuest:
		return r, true
	}
	return r, false
}

type Permission string

const (
	UsersCreate        Permission = "users:create"
	UsersListAll       Permission = "users:list_all"
	UsersListApartment Permission = "users:list_apartment"
	UsersViewOther     Permission = "users:view_other"
	UsersViewOwn       Permission = "users:view_own"
	UsersUpdateOther   Permission = "users:update_other"
	UsersUpdateOwn     Permission = "users:update_own"
	UsersDeleteOther   Permission = "users:delete_other"

	PinsCreateOther   Permission = "pins:create_other"
	PinsCreateOwn     Permission = "pins:create_own"
	PinsListAll       Permission = "pins:list_all"
	PinsListApartment Permission = "pins:list_apartment"
	PinsViewOwn       Permission = "pins:view_own"
	PinsUpdateOther   Permission = "pins:update_other"
	PinsUpdateOwn     Permission = "pins:update_own"
	PinsDeleteOther   Permission = "pins:delete_other"
	PinsDeleteOwn     Permission = "pins:delete_own"

	RfidsCreateOther   Permission = "rfids:create_other"
	RfidsCreateOwn     Permission = "rfids:create_own"
	RfidsListAll       Permission = "rfids:list_all"
	RfidsListApartment Permission = "rfids:list_apartment"
	RfidsViewOwn       Permission = "rfids:view_own"
	RfidsDeleteOther   Permission = "rfids:delete_other"
	RfidsDeleteOwn     Permission = "rfids:delete_own"

	APIKeysCreateOther   Permission = "api_keys:create_other"
	APIKeysCreateOwn     Permission = "api_keys:create_own"
	APIKeysListAll       Permission = "api_keys:list_all"
	APIKeysListApartment Permission = "api_keys:list_apartment"
	APIKeysListOwn       Permission = "api_keys:list_own"
	APIKeysDeleteOther   Permission = "api_keys:delete_other"
	APIKeysDeleteOwn     Permission = "api_keys:delete_own"

	GuestsManageSchedules Permission = "guests:manage_schedules"
	GuestsViewSchedules   Permission = "guests:view_schedules"

	ReaderControl Permission = "reader:control"
	LogsView      Permission = "logs:view"
)

// All lists every Permission in declaration order.
var All = []Permission{
	UsersCreate, UsersListAll, UsersListApartment, UsersViewOther, UsersViewOwn,
	UsersUpdateOther, UsersUpdateOwn, UsersDeleteOther,
	PinsCreateOther, PinsCreateOwn, PinsListAll, PinsListApartment, PinsViewOwn,
	PinsUpdateOther, PinsUpdateOwn, PinsDeleteOther, PinsDeleteOwn,
	RfidsCreateOther, RfidsCreateOwn, RfidsListAll, RfidsListApartment, RfidsViewOwn,
	RfidsDeleteOther, RfidsDeleteOwn,
	APIKeysCreateOther, APIKeysCreateOwn, APIKeysListAll, APIKeysListApartment,
	APIKeysListOwn, APIKeysDeleteOther, APIKeysDeleteOwn,
	GuestsManageSchedules, GuestsViewSchedules,
	ReaderControl, LogsView,
}

type set map[Permission]struct{}

func setOf(ps ...Permission) set {
	s := make(set, len(ps))
	for _, p := range ps {
		s[p] = struct{}{}
	}
	return s
}

// rolePermissions is total over the known roles. Apartment admins hold the
// "_other" permissions only for users of their own apartment; that scoping
// is enforced by CanActForUser, not by the table.
var rolePermissions = map[Role]set{
	RoleAdmin: setOf(All...),
	RoleApartmentAdmin: setOf(
		UsersCreate, UsersListApartment, UsersViewOther, UsersViewOwn,
		UsersUpdateOther, UsersUpdateOwn, UsersDeleteOther,
		PinsCreateOther, PinsCreateOwn, PinsListApartment, PinsViewOwn,
		PinsUpdateOther, PinsUpdateOwn, PinsDeleteOther, PinsDeleteOwn,
		RfidsCreateOther, RfidsCreateOwn, RfidsListApartment, RfidsViewOwn,
		RfidsDeleteOther, RfidsDeleteOwn,
		APIKeysCreateOther, APIKeysCreateOwn, APIKeysListApartment, APIKeysListOwn,
		APIKeysDeleteOther, APIKeysDeleteOwn,
		GuestsManageSchedules, GuestsViewSchedules,
	),
	RoleUser: setOf(
		UsersViewOwn, UsersUpdateOwn,
		PinsCreateOwn, PinsViewOwn, PinsUpdateOwn, PinsDeleteOwn,
		RfidsCreateOwn, RfidsViewOwn, RfidsDeleteOwn,
		APIKeysCreateOwn, APIKeysListOwn, APIKeysDeleteOwn,
	),
	RoleGuest: setOf(
		UsersViewOwn,
		PinsViewOwn, PinsDeleteOwn,
		RfidsViewOwn, RfidsDeleteOwn,
		APIKeysListOwn, APIKeysDeleteOwn,
		GuestsViewSchedules,
	),
}

// HasPermission reports whether role grants p. Unknown roles grant nothing.
func HasPermission(role Role, p Permission) bool {
	_, ok := rolePermissions[role][p]
	return ok
}

// Permissions returns the permissions granted to role, in All order.
func Permissions(role Role) []Permission {
	var out []Permission
	for _, p := range All {
		if HasPermission(role, p) {
			out = append(out, p)
		}
	}
	return out
}

// Subject identifies a user for ownership checks. ApartmentID is zero when
// the user belongs to no apartment.
type Subject struct {
	ID          int64
	Role        Role
	ApartmentID int64
}

func sameApartment(a, b Subject) bool {
	return a.ApartmentID != 0 && a.ApartmentID == b.ApartmentID
}

// CanAccessResource reports whether actor may touch a resource owned by
// owner: actors own their resources, admins access everything and
// apartment admins access their own apartment.
func CanAccessResource(actor, owner Subject) bool {
	if actor.ID == owner.ID {
		return true
	}
	switch actor.Role {
	case RoleAdmin:
		return true
	case RoleApartmentAdmin:
		return sameApartment(actor, owner)
	}
	return false
}

// CanActForUser adds the base permission check to the ownership rule. Users
// and guests may only act for themselves.
func CanActForUser(actor, target Subject, p Permission) bool {
	if !HasPermission(actor.Role, p) {
		return false
	}
	switch actor.Role {
	case RoleAdmin:
		return true
	case RoleApartmentAdmin:
		return actor.ID == target.ID || sameApartment(actor, target)
	}
	return actor.ID == target.ID
}
