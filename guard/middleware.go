package guard

import (
	"net/http"

	"github.com/fatenhq/authcore"
)

// Paths maps symbolic routes to URL paths for the HTTP middleware.
type Paths struct {
	SignIn       string
	Verification string
	UserHome     string
	ExpertHome   string
	AdminHome    string
}

// DefaultPaths returns the path layout the platform ships with.
func DefaultPaths() Paths {
	return Paths{
		SignIn:       "/login",
		Verification: "/two-factor-verification",
		UserHome:     "/dashboard",
		ExpertHome:   "/expert-dashboard",
		AdminHome:    "/admin-dashboard",
	}
}

func (p Paths) resolve(route Route) string {
	switch route {
	case RouteSignIn:
		return p.SignIn
	case RouteVerification:
		return p.Verification
	case RouteUserHome:
		return p.UserHome
	case RouteExpertHome:
		return p.ExpertHome
	case RouteAdminHome:
		return p.AdminHome
	default:
		return p.SignIn
	}
}

// SessionSource supplies the current session snapshot. *authcore.Orchestrator
// satisfies it.
type SessionSource interface {
	Session() authcore.Session
}

// Middleware wraps an http.Handler with the access rules of [Evaluate].
// Denied requests get a 303 redirect to the mapped path. While the session
// is still restoring the middleware answers 503 with a Retry-After hint
// instead of guessing at a redirect.
func Middleware(source SessionSource, req Requirement, paths Paths) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := Evaluate(source.Session(), req)

			switch decision.Action {
			case ActionRender:
				next.ServeHTTP(w, r)
			case ActionRedirect:
				http.Redirect(w, r, paths.resolve(decision.Target), http.StatusSeeOther)
			case ActionRenderLoading:
				w.Header().Set("Retry-After", "1")
				http.Error(w, "session restoring", http.StatusServiceUnavailable)
			}
		})
	}
}
