package authroles

import (
	domainauth "github.com/aiqualifier/aiq-api/internal/domain/auth"
)

// StaticRoleMapper maps groups by simple string membership rules.
// Highest matching role wins: admin over instructor over user.
type StaticRoleMapper struct {
	AdminGroup      string
	InstructorGroup string
	UserGroup       string
}

func (m StaticRoleMapper) Map(groups []string) domainauth.Role {
	for _, g := range groups {
		if m.AdminGroup != "" && g == m.AdminGroup {
			return domainauth.RoleAdmin
		}
	}
	for _, g := range groups {
		if m.InstructorGroup != "" && g == m.InstructorGroup {
			return domainauth.RoleInstructor
		}
	}
	for _, g := range groups {
		if m.UserGroup != "" && g == m.UserGroup {
			return domainauth.RoleUser
		}
	}
	return domainauth.RoleGuest
}
