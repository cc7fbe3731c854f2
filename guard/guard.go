// Package guard evaluates route access against a session snapshot. The
// decision logic is transport-agnostic; an HTTP middleware adapter lives in
// middleware.go.
package guard

import (
	"github.com/fatenhq/authcore"
)

// Action is what the caller should do with the current request.
type Action uint8

const (
	// ActionRenderLoading means the session is still being restored and the
	// caller should show a transient loading state, never a redirect.
	ActionRenderLoading Action = iota
	// ActionRender means access is granted.
	ActionRender
	// ActionRedirect means access is denied and the caller should send the
	// visitor to [Decision.Target].
	ActionRedirect
)

// Route is a symbolic redirect destination. Callers map routes onto their
// own paths; [Paths] carries the default HTTP mapping.
type Route uint8

const (
	// RouteSignIn is the destination for visitors with no session.
	RouteSignIn Route = iota
	// RouteVerification is the destination for signed-in users who have not
	// confirmed a verification code yet.
	RouteVerification
	// RouteUserHome is the home destination for the plain user role.
	RouteUserHome
	// RouteExpertHome is the home destination for the expert role.
	RouteExpertHome
	// RouteAdminHome is the home destination for the admin role.
	RouteAdminHome
)

// Requirement describes what a route demands of the visitor. An empty Roles
// slice admits every role.
type Requirement struct {
	Roles           []authcore.Role
	RequireVerified bool
}

// Decision is the evaluated outcome. Target is meaningful only for
// [ActionRedirect].
type Decision struct {
	Action Action
	Target Route
}

// Evaluate applies the access rules in fixed precedence order: loading
// first, then authentication, then verification, then role. The first rule
// that fires decides; later rules are not consulted.
//
// A visitor holding the wrong role is redirected to their own home rather
// than to the sign-in page, since they are authenticated, just misplaced.
// Unverified plain users bounce to the verification route instead of a home
// they could not enter.
func Evaluate(session authcore.Session, req Requirement) Decision {
	if session.State() == authcore.StateLoading {
		return Decision{Action: ActionRenderLoading}
	}

	if session.State() != authcore.StateAuthenticated {
		return Decision{Action: ActionRedirect, Target: RouteSignIn}
	}

	profile := session.Profile

	if req.RequireVerified && !profile.Verified {
		return Decision{Action: ActionRedirect, Target: RouteVerification}
	}

	if len(req.Roles) > 0 && !roleAllowed(profile.Role, req.Roles) {
		return Decision{Action: ActionRedirect, Target: homeFor(profile)}
	}

	return Decision{Action: ActionRender}
}

// HomeRoute returns the landing route for a profile, the same destination a
// role mismatch redirects to.
func HomeRoute(profile *authcore.Profile) Route {
	if profile == nil {
		return RouteSignIn
	}
	return homeFor(profile)
}

func roleAllowed(role authcore.Role, allowed []authcore.Role) bool {
	for _, a := range allowed {
		if role == a {
			return true
		}
	}
	return false
}

func homeFor(profile *authcore.Profile) Route {
	switch profile.Role {
	case authcore.RoleAdmin:
		return RouteAdminHome
	case authcore.RoleExpert:
		return RouteExpertHome
	case authcore.RoleUser:
		if !profile.Verified {
			return RouteVerification
		}
		return RouteUserHome
	default:
		return RouteSignIn
	}
}
