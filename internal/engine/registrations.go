package engine

import (
	"context"
	"database/sql"
	"strings"

	"caseline/internal/domain"
	"caseline/internal/engine/auth"
	"caseline/internal/events"
	"caseline/internal/ids"
	"caseline/internal/repo"
)

func (e Engine) registrations() store[domain.Registration] {
	return store[domain.Registration]{
		kind:   domain.EntityRegistration,
		get:    e.Repo.GetRegistration,
		update: e.Repo.UpdateRegistration,
		remove: e.Repo.DeleteRegistration,
		target: auth.RegistrationTarget,
		meta:   func(g *domain.Registration) (*int, *string) { return &g.Version, &g.UpdatedAt },
	}
}

type RegistrationCreateOptions struct {
	FullName      string
	Phone         string
	Email         string
	Address       string
	Category      string
	Description   string
	HouseholdSize *int
}

func (e Engine) CreateRegistration(ctx context.Context, actor domain.Actor, opts RegistrationCreateOptions) (domain.Registration, error) {
	if err := auth.CanCreate(actor, domain.EntityRegistration); err != nil {
		return domain.Registration{}, err
	}
	g := domain.Registration{
		FullName:      strings.TrimSpace(opts.FullName),
		Phone:         strings.TrimSpace(opts.Phone),
		Email:         strings.TrimSpace(opts.Email),
		Address:       strings.TrimSpace(opts.Address),
		Category:      strings.TrimSpace(opts.Category),
		Description:   strings.TrimSpace(opts.Description),
		HouseholdSize: opts.HouseholdSize,
	}
	if err := validateRegistration(g, domain.TransitionCreate); err != nil {
		return domain.Registration{}, err
	}
	now := e.stamp()
	g.ID = ids.New()
	g.RegistrationNumber = ids.Number(ids.PrefixRegistration, e.now())
	g.CreatedBy = actor.ID
	g.Version = 1
	g.CreatedAt, g.UpdatedAt = now, now
	g.SetState(domain.RegistrationSubmitted)
	err := e.create(ctx, actor, domain.EntityRegistration, g.ID, func(tx *sql.Tx) error {
		return e.Repo.InsertRegistration(ctx, tx, g)
	}, events.EventPayload{"registration_number": g.RegistrationNumber})
	if err != nil {
		return domain.Registration{}, err
	}
	return g, nil
}

func validateRegistration(g domain.Registration, tr domain.Transition) error {
	if g.FullName == "" {
		return validation(domain.EntityRegistration, tr, "full_name is required")
	}
	if g.Phone == "" {
		return validation(domain.EntityRegistration, tr, "phone is required")
	}
	if g.HouseholdSize != nil && *g.HouseholdSize < 1 {
		return validation(domain.EntityRegistration, tr, "household_size must be positive")
	}
	return nil
}

func registrationState(g domain.Registration) (domain.RegistrationState, error) {
	s, err := g.State()
	if err != nil {
		return "", invalid(domain.EntityRegistration, "", g.ID, err.Error())
	}
	return s, nil
}

func (e Engine) ApproveRegistration(ctx context.Context, actor domain.Actor, id string, expectedVersion int) (domain.Registration, error) {
	return transition(ctx, e, e.registrations(), actor, id, domain.TransitionApprove, expectedVersion,
		func(_ *sql.Tx, g *domain.Registration) (bool, events.EventPayload, error) {
			s, err := registrationState(*g)
			if err != nil {
				return false, nil, err
			}
			switch s {
			case domain.RegistrationSubmitted:
				g.SetState(domain.RegistrationApproved)
				g.ApprovedBy, g.ApprovedAt = strPtr(actor.ID), strPtr(e.stamp())
				return true, events.EventPayload{"status": g.Status}, nil
			case domain.RegistrationApproved:
				return false, nil, nil
			}
			return false, nil, closed(domain.EntityRegistration, domain.TransitionApprove, g.ID)
		})
}

func (e Engine) RejectRegistration(ctx context.Context, actor domain.Actor, id, reason string, expectedVersion int) (domain.Registration, error) {
	reason, err := requireReason(domain.EntityRegistration, domain.TransitionReject, reason)
	if err != nil {
		return domain.Registration{}, err
	}
	return transition(ctx, e, e.registrations(), actor, id, domain.TransitionReject, expectedVersion,
		func(_ *sql.Tx, g *domain.Registration) (bool, events.EventPayload, error) {
			s, err := registrationState(*g)
			if err != nil {
				return false, nil, err
			}
			switch s {
			case domain.RegistrationSubmitted:
			case domain.RegistrationRejected:
				return false, nil, closed(domain.EntityRegistration, domain.TransitionReject, g.ID)
			default:
				return false, nil, invalid(domain.EntityRegistration, domain.TransitionReject, g.ID, "approval is not pending")
			}
			g.SetState(domain.RegistrationRejected)
			g.RejectionReason = strPtr(reason)
			g.ApprovedBy, g.ApprovedAt = strPtr(actor.ID), strPtr(e.stamp())
			return true, events.EventPayload{"reason": reason}, nil
		})
}

// AdvanceRegistration always fails for actors the gate admits:
// registrations have no in_progress or closed status.
func (e Engine) AdvanceRegistration(ctx context.Context, actor domain.Actor, id, status string, expectedVersion int) (domain.Registration, error) {
	return transition(ctx, e, e.registrations(), actor, id, domain.TransitionAdvance, expectedVersion,
		func(_ *sql.Tx, g *domain.Registration) (bool, events.EventPayload, error) {
			s, err := registrationState(*g)
			if err != nil {
				return false, nil, err
			}
			if s.Terminal() {
				return false, nil, closed(domain.EntityRegistration, domain.TransitionAdvance, g.ID)
			}
			return false, nil, invalid(domain.EntityRegistration, domain.TransitionAdvance, g.ID, "registrations cannot advance to "+status)
		})
}

// AssignRegistration assigns the registration to an active organization.
func (e Engine) AssignRegistration(ctx context.Context, actor domain.Actor, id, orgID string, expectedVersion int) (domain.Registration, error) {
	return transition(ctx, e, e.registrations(), actor, id, domain.TransitionAssign, expectedVersion,
		func(tx *sql.Tx, g *domain.Registration) (bool, events.EventPayload, error) {
			s, err := registrationState(*g)
			if err != nil {
				return false, nil, err
			}
			if s.Terminal() {
				return false, nil, closed(domain.EntityRegistration, domain.TransitionAssign, g.ID)
			}
			org, err := e.Router.ValidateTarget(ctx, tx, orgID)
			if err != nil {
				return false, nil, err
			}
			if g.AssignedOrganizationID != nil && *g.AssignedOrganizationID == org.ID {
				return false, nil, nil
			}
			g.AssignedOrganizationID = strPtr(org.ID)
			g.AssignmentDate = strPtr(e.stamp())
			return true, events.EventPayload{"organization_id": org.ID}, nil
		})
}

type RegistrationEdit struct {
	FullName      *string
	Phone         *string
	Email         *string
	Address       *string
	Category      *string
	Description   *string
	HouseholdSize *int
}

func (e Engine) EditRegistration(ctx context.Context, actor domain.Actor, id string, edit RegistrationEdit, expectedVersion int) (domain.Registration, error) {
	return transition(ctx, e, e.registrations(), actor, id, domain.TransitionEdit, expectedVersion,
		func(_ *sql.Tx, g *domain.Registration) (bool, events.EventPayload, error) {
			s, err := registrationState(*g)
			if err != nil {
				return false, nil, err
			}
			if s.Terminal() {
				return false, nil, closed(domain.EntityRegistration, domain.TransitionEdit, g.ID)
			}
			var changed []string
			set := func(field string, dst *string, v *string) {
				if v != nil && strings.TrimSpace(*v) != *dst {
					*dst = strings.TrimSpace(*v)
					changed = append(changed, field)
				}
			}
			set("full_name", &g.FullName, edit.FullName)
			set("phone", &g.Phone, edit.Phone)
			set("email", &g.Email, edit.Email)
			set("address", &g.Address, edit.Address)
			set("category", &g.Category, edit.Category)
			set("description", &g.Description, edit.Description)
			if edit.HouseholdSize != nil && (g.HouseholdSize == nil || *g.HouseholdSize != *edit.HouseholdSize) {
				n := *edit.HouseholdSize
				g.HouseholdSize = &n
				changed = append(changed, "household_size")
			}
			if err := validateRegistration(*g, domain.TransitionEdit); err != nil {
				return false, nil, err
			}
			return len(changed) > 0, events.EventPayload{"fields": changed}, nil
		})
}

func (e Engine) DeleteRegistration(ctx context.Context, actor domain.Actor, id string, expectedVersion int) error {
	return remove(ctx, e, e.registrations(), actor, id, expectedVersion)
}

func (e Engine) GetRegistration(ctx context.Context, actor domain.Actor, id string) (domain.Registration, error) {
	g, err := e.Repo.GetRegistration(ctx, nil, id)
	if err != nil {
		return domain.Registration{}, storeErr(domain.EntityRegistration, "get", id, err)
	}
	if err := auth.CanView(actor, auth.RegistrationTarget(g)); err != nil {
		return domain.Registration{}, err
	}
	return g, nil
}

func (e Engine) ListRegistrations(ctx context.Context, actor domain.Actor, f repo.RegistrationFilters) (domain.Page[domain.Registration], error) {
	if !auth.Authenticated(actor) {
		return domain.Page[domain.Registration]{}, domain.NewError(domain.KindNotAuthorized, "")
	}
	f.Visibility = visibility(actor)
	items, total, err := e.Repo.ListRegistrations(ctx, f)
	if err != nil {
		return domain.Page[domain.Registration]{}, err
	}
	if items == nil {
		items = []domain.Registration{}
	}
	return domain.Page[domain.Registration]{Items: items, Total: total}, nil
}
