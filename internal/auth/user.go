// Package auth validates RS256 bearer tokens issued by the identity
// provider and exposes the authenticated user through the request context.
package auth

import "context"

// Role names granted through the identity provider's client roles.
const (
	RoleAccessAgreements = "ACCESS_AGREEMENTS"
	RoleCreateAgreements = "CREATE_AGREEMENTS"
	RoleModifyAgreements = "MODIFY_AGREEMENTS"
	RoleDeleteAgreements = "DELETE_AGREEMENTS"
	RoleAccessProcesses  = "ACCESS_PROCESSES"
	RoleAccessSellout    = "ACCESS_SELLOUT"
)

// User is the authenticated caller extracted from a verified token plus the
// request's country header.
type User struct {
	Name           string
	Email          string
	Subject        string
	Country        string
	BusinessUnitID int
	Roles          []string
}

// HasRole reports whether the user carries every one of the given roles.
func (u User) HasRole(roles ...string) bool {
	set := make(map[string]struct{}, len(u.Roles))
	for _, r := range u.Roles {
		set[r] = struct{}{}
	}
	for _, want := range roles {
		if _, ok := set[want]; !ok {
			return false
		}
	}
	return true
}

// BusinessUnitForCountry maps a country ISO code to its business unit id.
// Zero means the country is not supported.
func BusinessUnitForCountry(country string) int {
	switch country {
	case "CL":
		return 4
	case "PE":
		return 5
	default:
		return 0
	}
}

type userKey struct{}

func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// UserFromContext returns the authenticated user and whether one is present.
func UserFromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(userKey{}).(User)
	return u, ok
}
