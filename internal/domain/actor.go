package domain

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleAdmin        Role = "admin"
	RoleStateAdmin   Role = "state_admin"
	RoleOrganization Role = "organization"
	RoleManager      Role = "manager"
	RoleCaseWorker   Role = "case_worker"
	RoleFieldOfficer Role = "field_officer"
	RoleViewer       Role = "viewer"
)

var roles = map[Role]bool{
	RoleAdmin: true, RoleStateAdmin: true, RoleOrganization: true, RoleManager: true,
	RoleCaseWorker: true, RoleFieldOfficer: true, RoleViewer: true,
}

func ParseRole(s string) (Role, error) {
	r := Role(strings.TrimSpace(s))
	if !roles[r] {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Actor is the principal invoking a workflow operation.
type Actor struct {
	ID             string `json:"id"`
	Role           Role   `json:"role"`
	OrganizationID string `json:"organization_id,omitempty"`
}

// CentralAuthority reports whether the actor may approve, reject and assign
// across the whole system.
func (a Actor) CentralAuthority() bool {
	return a.Role == RoleAdmin || a.Role == RoleStateAdmin
}

// ActsForOrganization reports whether the actor speaks for orgID.
func (a Actor) ActsForOrganization(orgID string) bool {
	if a.Role != RoleOrganization && a.Role != RoleManager {
		return false
	}
	return a.OrganizationID != "" && a.OrganizationID == orgID
}

type AssigneeType string

const (
	AssigneeUser         AssigneeType = "user"
	AssigneeOrganization AssigneeType = "organization"
)

// Assignee is the resolved target of a Case or Registration assignment.
type Assignee struct {
	Type AssigneeType `json:"type" enum:"user,organization"`
	ID   string       `json:"id"`
}

// ParseAssignee resolves an explicit (type, id) pair. The type is never
// inferred from the shape of the id.
func ParseAssignee(typ, id string) (Assignee, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Assignee{}, fmt.Errorf("assignee id required")
	}
	switch AssigneeType(typ) {
	case AssigneeUser, AssigneeOrganization:
		return Assignee{Type: AssigneeType(typ), ID: id}, nil
	}
	return Assignee{}, fmt.Errorf("assignee type must be user or organization, got %q", typ)
}
