package auth

import (
	"caseline/internal/domain"
)

// Target is the slice of a record the gate needs to decide.
type Target struct {
	Kind      domain.EntityKind
	ID        string
	CreatedBy string
	// OrganizationID is the organization the record is currently assigned
	// to, empty when unassigned or assigned to a user.
	OrganizationID string
	// UserID is set when a Case is assigned to an individual.
	UserID string
}

func CaseTarget(c domain.Case) Target {
	t := Target{Kind: domain.EntityCase, ID: c.ID, CreatedBy: c.CreatedBy}
	if a, ok := c.Assignee(); ok {
		switch a.Type {
		case domain.AssigneeOrganization:
			t.OrganizationID = a.ID
		case domain.AssigneeUser:
			t.UserID = a.ID
		}
	}
	return t
}

func RegistrationTarget(g domain.Registration) Target {
	t := Target{Kind: domain.EntityRegistration, ID: g.ID, CreatedBy: g.CreatedBy}
	if g.AssignedOrganizationID != nil {
		t.OrganizationID = *g.AssignedOrganizationID
	}
	return t
}

func ReferralTarget(f domain.Referral) Target {
	t := Target{Kind: domain.EntityReferral, ID: f.ID, CreatedBy: f.CreatedBy}
	if f.AssignedOrganizationID != nil {
		t.OrganizationID = *f.AssignedOrganizationID
	}
	return t
}

func OrganizationTarget(o domain.Organization) Target {
	return Target{Kind: domain.EntityOrganization, ID: o.ID, CreatedBy: o.CreatedBy, OrganizationID: o.ID}
}

func deny(kind domain.Kind, t Target, tr domain.Transition) error {
	return &domain.Error{Kind: kind, Op: string(tr), Entity: string(t.Kind), ID: t.ID}
}

// Authenticated reports whether the actor carries an id and a known role.
func Authenticated(a domain.Actor) bool {
	if a.ID == "" {
		return false
	}
	_, err := domain.ParseRole(string(a.Role))
	return err == nil
}

// OrganizationBound reports whether the actor only acts and reads within
// its own organization.
func OrganizationBound(a domain.Actor) bool {
	return a.Role == domain.RoleOrganization || (a.Role == domain.RoleManager && a.OrganizationID != "")
}

// CanCreate decides whether the actor may create a record of kind.
// Organizations may also be created by an organization actor signing up.
func CanCreate(a domain.Actor, kind domain.EntityKind) error {
	t := Target{Kind: kind}
	if !Authenticated(a) || a.Role == domain.RoleViewer {
		return deny(domain.KindNotAuthorized, t, domain.TransitionCreate)
	}
	if kind == domain.EntityOrganization && !a.CentralAuthority() && a.Role != domain.RoleOrganization {
		return deny(domain.KindNotAuthorized, t, domain.TransitionCreate)
	}
	return nil
}

// CanView decides read access. Organization-bound actors see records
// assigned to their organization or created by them.
func CanView(a domain.Actor, t Target) error {
	if !Authenticated(a) {
		return deny(domain.KindNotAuthorized, t, "view")
	}
	if !OrganizationBound(a) || t.Kind == domain.EntityOrganization {
		return nil
	}
	if t.CreatedBy == a.ID || (t.OrganizationID != "" && t.OrganizationID == a.OrganizationID) {
		return nil
	}
	return deny(domain.KindWrongOrganization, t, "view")
}

// CanTransition returns nil when the actor may invoke tr on t, otherwise a
// *domain.Error carrying not_authorized, wrong_organization or not_owner.
// Record state is not consulted.
func CanTransition(a domain.Actor, t Target, tr domain.Transition) error {
	if !Authenticated(a) {
		return deny(domain.KindNotAuthorized, t, tr)
	}
	switch tr {
	case domain.TransitionEdit, domain.TransitionDelete:
		if a.Role == domain.RoleAdmin || a.Role == domain.RoleCaseWorker || (t.CreatedBy != "" && t.CreatedBy == a.ID) {
			return nil
		}
		return deny(domain.KindNotOwner, t, tr)
	}

	switch t.Kind {
	case domain.EntityCase, domain.EntityRegistration:
		return caseLike(a, t, tr)
	case domain.EntityReferral:
		return referral(a, t, tr)
	case domain.EntityOrganization:
		if (tr == domain.TransitionActivate || tr == domain.TransitionDeactivate) && a.CentralAuthority() {
			return nil
		}
	}
	return deny(domain.KindNotAuthorized, t, tr)
}

func caseLike(a domain.Actor, t Target, tr domain.Transition) error {
	switch tr {
	case domain.TransitionApprove, domain.TransitionReject, domain.TransitionAssign:
		if a.CentralAuthority() {
			return nil
		}
		if a.Role == domain.RoleOrganization {
			if inScope(a, t) {
				return nil
			}
			return deny(domain.KindWrongOrganization, t, tr)
		}
	case domain.TransitionAdvance:
		if a.CentralAuthority() || a.Role == domain.RoleCaseWorker || t.CreatedBy == a.ID || t.UserID == a.ID {
			return nil
		}
		if OrganizationBound(a) && inScope(a, t) {
			return nil
		}
	}
	return deny(domain.KindNotAuthorized, t, tr)
}

func referral(a domain.Actor, t Target, tr domain.Transition) error {
	switch tr {
	case domain.TransitionAssign:
		if a.CentralAuthority() {
			return nil
		}
	case domain.TransitionAccept, domain.TransitionDecline:
		if a.Role != domain.RoleOrganization && a.Role != domain.RoleManager {
			break
		}
		if a.ActsForOrganization(t.OrganizationID) {
			return nil
		}
		return deny(domain.KindWrongOrganization, t, tr)
	case domain.TransitionComplete:
		if a.CentralAuthority() {
			return nil
		}
		if a.Role != domain.RoleOrganization && a.Role != domain.RoleManager {
			break
		}
		if a.ActsForOrganization(t.OrganizationID) {
			return nil
		}
		return deny(domain.KindWrongOrganization, t, tr)
	}
	return deny(domain.KindNotAuthorized, t, tr)
}

func inScope(a domain.Actor, t Target) bool {
	return a.OrganizationID != "" && t.OrganizationID == a.OrganizationID
}

// Allowed lists the transitions the actor may invoke on t, ignoring state.
func Allowed(a domain.Actor, t Target) []domain.Transition {
	var res []domain.Transition
	for _, tr := range domain.Transitions[t.Kind] {
		if CanTransition(a, t, tr) == nil {
			res = append(res, tr)
		}
	}
	return res
}
