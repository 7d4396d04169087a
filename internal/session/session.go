// Package session owns the signed-in user state: login, logout and the
// silent revalidation of a stored token at startup.
package session

import "github.com/edusync/edusync/internal/apiclient"

// Status is the position of the session state machine.
type Status int

const (
	Unauthenticated Status = iota
	Verifying
	Authenticated
)

func (s Status) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Verifying:
		return "verifying"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Known roles.
const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
)

// User is the backend's view of the signed-in account. It is replaced
// wholesale, never patched.
type User struct {
	ID    apiclient.ID `json:"id"`
	Name  string       `json:"name"`
	Email string       `json:"email"`
	Role  string       `json:"role"`
}

// Session is an immutable snapshot of the state machine.
type Session struct {
	Status Status
	User   *User
}

// IsAuthenticated reports whether a user is signed in.
func (s Session) IsAuthenticated() bool {
	return s.Status == Authenticated && s.User != nil
}

// HasRole reports whether the signed-in user has role.
func (s Session) HasRole(role string) bool {
	return s.IsAuthenticated() && s.User.Role == role
}
