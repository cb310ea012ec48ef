package domain

// Role is the closed set of participant kinds. The wire protocol carries
// it as the legacy is_student boolean.
type Role string

const (
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
)

// RoleFromIsStudent maps the wire boolean onto a Role.
func RoleFromIsStudent(isStudent bool) Role {
	if isStudent {
		return RoleStudent
	}
	return RoleInstructor
}

// IsStudent is the inverse, for DTOs that keep the boolean form.
func (r Role) IsStudent() bool { return r != RoleInstructor }
