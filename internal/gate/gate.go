// Package gate decides which views a session may reach.
package gate

import (
	"strings"

	"github.com/edusync/edusync/internal/session"
)

// Decision is the outcome of Decide.
type Decision int

const (
	// Hold means the session is still being verified; show a loading state.
	Hold Decision = iota
	Render
	RedirectToLogin
	RedirectToHome
	// NotFound hides a view from users lacking its role, so they cannot tell
	// it exists.
	NotFound
)

func (d Decision) String() string {
	switch d {
	case Hold:
		return "hold"
	case Render:
		return "render"
	case RedirectToLogin:
		return "redirect_to_login"
	case RedirectToHome:
		return "redirect_to_home"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Route describes a view and what it requires.
type Route struct {
	Path  string
	Title string
	// GuestOnly marks the login view, which authenticated users skip.
	GuestOnly bool
	// RequireAuth marks views that need a signed-in user.
	RequireAuth bool
	// Role, when set, restricts the view to users with that role.
	Role string
	// InMenu lists the view in the navigation menu.
	InMenu bool
}

// Paths of the known views.
const (
	LoginPath    = "/login"
	HomePath     = "/dashboard"
	RegistryPath = "/dashboard/registrar"
	UploadPath   = "/dashboard/subir"
	HistoryPath  = "/dashboard/historial"
)

// Routes is the navigation table, in menu order.
var Routes = []Route{
	{Path: LoginPath, Title: "Login", GuestOnly: true},
	{Path: HomePath, Title: "Home", RequireAuth: true, InMenu: true},
	{Path: RegistryPath, Title: "Teacher accounts", RequireAuth: true, Role: session.RoleAdmin, InMenu: true},
	{Path: UploadPath, Title: "Upload exam", RequireAuth: true, InMenu: true},
	{Path: HistoryPath, Title: "History", RequireAuth: true, InMenu: true},
}

// Decide applies the gate rules in order: hold while verifying, send guests
// to login, send signed-in users away from login, hide role-restricted views.
func Decide(s session.Session, r Route) Decision {
	if s.Status == session.Verifying {
		return Hold
	}
	authed := s.IsAuthenticated()
	if !authed && (r.RequireAuth || r.Role != "") {
		return RedirectToLogin
	}
	if authed && r.GuestOnly {
		return RedirectToHome
	}
	if r.Role != "" && !s.HasRole(r.Role) {
		return NotFound
	}
	return Render
}

// Lookup finds the route registered for path.
func Lookup(path string) (Route, bool) {
	path = normalize(path)
	for _, r := range Routes {
		if r.Path == path {
			return r, true
		}
	}
	return Route{}, false
}

// Resolve decides for a raw path. Unknown paths redirect home or to login
// depending on the session.
func Resolve(s session.Session, path string) Decision {
	r, ok := Lookup(path)
	if !ok {
		switch {
		case s.Status == session.Verifying:
			return Hold
		case s.IsAuthenticated():
			return RedirectToHome
		default:
			return RedirectToLogin
		}
	}
	return Decide(s, r)
}

// Menu returns the navigation entries the session may render.
func Menu(s session.Session) []Route {
	var out []Route
	for _, r := range Routes {
		if r.InMenu && Decide(s, r) == Render {
			out = append(out, r)
		}
	}
	return out
}

func normalize(path string) string {
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	return path
}
