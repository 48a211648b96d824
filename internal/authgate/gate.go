// Package authgate maps a session snapshot and a role allowlist to an access
// decision. Decide is pure and total; callers translate the two deny variants
// into a login redirect versus an access-denied response.
package authgate

import "posadmin/backend/internal/domain"

type Decision int

const (
	// Wait means role resolution is still in progress and no decision can be
	// trusted yet.
	Wait Decision = iota
	// DenyUnauthenticated means no subject is signed in; callers should
	// redirect to login.
	DenyUnauthenticated
	// DenyForbidden means a subject is signed in but its role is not on the
	// allowlist.
	DenyForbidden
	Allow
)

func (d Decision) String() string {
	switch d {
	case Wait:
		return "wait"
	case DenyUnauthenticated:
		return "deny_unauthenticated"
	case DenyForbidden:
		return "deny_forbidden"
	case Allow:
		return "allow"
	}
	return "unknown"
}

// Decide gates access to a resource guarded by requiredRoles. An empty
// allowlist admits any authenticated session.
func Decide(session domain.Session, requiredRoles []string) Decision {
	if session.IsResolving {
		return Wait
	}
	if !session.IsAuthenticated {
		return DenyUnauthenticated
	}
	if len(requiredRoles) > 0 && !roleAllowed(session.Role, requiredRoles) {
		return DenyForbidden
	}
	return Allow
}

func roleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}
