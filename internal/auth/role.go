package auth

import "fmt"

// Role is the closed set of account kinds the service knows about.
type Role string

const (
	RoleTeacher Role = "Teacher"
	RoleStudent Role = "Student"
	RoleAdmin   Role = "Admin"
)

// ParseRole maps a stored or claimed role string onto a Role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleTeacher, RoleStudent, RoleAdmin:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Actor is the authenticated caller of a request.
type Actor struct {
	ID   string
	Role Role
}

func (a Actor) IsTeacher() bool { return a.Role == RoleTeacher }

func (a Actor) IsStudent() bool { return a.Role == RoleStudent }
