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

// DefaultReferredFrom is stored when a referral does not name its source.
const DefaultReferredFrom = "Internal"

func (e Engine) referrals() store[domain.Referral] {
	return store[domain.Referral]{
		kind:   domain.EntityReferral,
		get:    e.Repo.GetReferral,
		update: e.Repo.UpdateReferral,
		remove: e.Repo.DeleteReferral,
		target: auth.ReferralTarget,
		meta:   func(f *domain.Referral) (*int, *string) { return &f.Version, &f.UpdatedAt },
	}
}

type ReferralCreateOptions struct {
	CaseID       string
	ReferredFrom string
	ClientName   string
	ClientPhone  string
	Category     string
	Priority     string
	Reason       string
	Notes        string
}

// CreateReferral stores a pending, unassigned referral.
func (e Engine) CreateReferral(ctx context.Context, actor domain.Actor, opts ReferralCreateOptions) (domain.Referral, error) {
	if err := auth.CanCreate(actor, domain.EntityReferral); err != nil {
		return domain.Referral{}, err
	}
	reason, err := requireReason(domain.EntityReferral, domain.TransitionCreate, opts.Reason)
	if err != nil {
		return domain.Referral{}, err
	}
	priority, err := normalizePriority(domain.EntityReferral, domain.TransitionCreate, opts.Priority)
	if err != nil {
		return domain.Referral{}, err
	}
	from := strings.TrimSpace(opts.ReferredFrom)
	if from == "" {
		from = DefaultReferredFrom
	}
	now := e.stamp()
	f := domain.Referral{
		ID:             ids.New(),
		ReferralNumber: ids.Number(ids.PrefixReferral, e.now()),
		CaseID:         optionalString(strings.TrimSpace(opts.CaseID)),
		ReferredFrom:   from,
		ClientName:     strings.TrimSpace(opts.ClientName),
		ClientPhone:    strings.TrimSpace(opts.ClientPhone),
		Category:       strings.TrimSpace(opts.Category),
		Priority:       priority,
		Reason:         reason,
		Notes:          strings.TrimSpace(opts.Notes),
		CreatedBy:      actor.ID,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	f.SetState(domain.ReferralOpen)
	err = e.create(ctx, actor, domain.EntityReferral, f.ID, func(tx *sql.Tx) error {
		if f.CaseID != nil {
			if _, err := e.Repo.GetCase(ctx, tx, *f.CaseID); err != nil {
				return storeErr(domain.EntityCase, domain.TransitionCreate, *f.CaseID, err)
			}
		}
		return e.Repo.InsertReferral(ctx, tx, f)
	}, events.EventPayload{"referral_number": f.ReferralNumber, "priority": f.Priority})
	if err != nil {
		return domain.Referral{}, err
	}
	return f, nil
}

func referralState(f domain.Referral) (domain.ReferralState, error) {
	s, err := f.State()
	if err != nil {
		return "", invalid(domain.EntityReferral, "", f.ID, err.Error())
	}
	return s, nil
}

// AssignReferral routes a pending or declined referral to an active
// organization. Assigning to the organization that just declined is allowed.
func (e Engine) AssignReferral(ctx context.Context, actor domain.Actor, id, orgID string, expectedVersion int) (domain.Referral, error) {
	return transition(ctx, e, e.referrals(), actor, id, domain.TransitionAssign, expectedVersion,
		func(tx *sql.Tx, f *domain.Referral) (bool, events.EventPayload, error) {
			s, err := referralState(*f)
			if err != nil {
				return false, nil, err
			}
			if s.Terminal() {
				return false, nil, closed(domain.EntityReferral, domain.TransitionAssign, f.ID)
			}
			if s != domain.ReferralOpen && !(s == domain.ReferralDeclined && f.CanBeReassigned) {
				return false, nil, invalid(domain.EntityReferral, domain.TransitionAssign, f.ID, "referral is "+f.Status)
			}
			org, err := e.Router.ValidateTarget(ctx, tx, orgID)
			if err != nil {
				return false, nil, err
			}
			if s == domain.ReferralOpen && f.AssignedOrganizationID != nil && *f.AssignedOrganizationID == org.ID {
				return false, nil, nil
			}
			var previous string
			if f.AssignedOrganizationID != nil {
				previous = *f.AssignedOrganizationID
			}
			f.AssignedOrganizationID = strPtr(org.ID)
			f.ReferredTo = org.Name
			f.AssignedBy = strPtr(actor.ID)
			f.SetState(domain.ReferralOpen)
			return true, events.EventPayload{"organization_id": org.ID, "previous_organization_id": previous}, nil
		})
}

// AcceptReferral is idempotent for the assigned organization.
func (e Engine) AcceptReferral(ctx context.Context, actor domain.Actor, id string, expectedVersion int) (domain.Referral, error) {
	return transition(ctx, e, e.referrals(), actor, id, domain.TransitionAccept, expectedVersion,
		func(_ *sql.Tx, f *domain.Referral) (bool, events.EventPayload, error) {
			s, err := referralState(*f)
			if err != nil {
				return false, nil, err
			}
			switch s {
			case domain.ReferralAccepted:
				return false, nil, nil
			case domain.ReferralCompleted:
				return false, nil, closed(domain.EntityReferral, domain.TransitionAccept, f.ID)
			case domain.ReferralOpen:
			default:
				return false, nil, invalid(domain.EntityReferral, domain.TransitionAccept, f.ID, "referral is "+f.Status)
			}
			f.SetState(domain.ReferralAccepted)
			f.ApprovedBy, f.ApprovedAt = strPtr(actor.ID), strPtr(e.stamp())
			return true, events.EventPayload{"organization_id": actor.OrganizationID}, nil
		})
}

// DeclineReferral records the reason and opens the referral for
// reassignment. A second decline fails.
func (e Engine) DeclineReferral(ctx context.Context, actor domain.Actor, id, reason string, expectedVersion int) (domain.Referral, error) {
	reason, err := requireReason(domain.EntityReferral, domain.TransitionDecline, reason)
	if err != nil {
		return domain.Referral{}, err
	}
	return transition(ctx, e, e.referrals(), actor, id, domain.TransitionDecline, expectedVersion,
		func(_ *sql.Tx, f *domain.Referral) (bool, events.EventPayload, error) {
			s, err := referralState(*f)
			if err != nil {
				return false, nil, err
			}
			if s.Terminal() {
				return false, nil, closed(domain.EntityReferral, domain.TransitionDecline, f.ID)
			}
			if s != domain.ReferralOpen {
				return false, nil, invalid(domain.EntityReferral, domain.TransitionDecline, f.ID, "referral is "+f.Status)
			}
			f.SetState(domain.ReferralDeclined)
			f.DeclineReason, f.RejectionReason = strPtr(reason), strPtr(reason)
			return true, events.EventPayload{"organization_id": actor.OrganizationID, "reason": reason}, nil
		})
}

// CompleteReferral closes an accepted referral.
func (e Engine) CompleteReferral(ctx context.Context, actor domain.Actor, id string, expectedVersion int) (domain.Referral, error) {
	return transition(ctx, e, e.referrals(), actor, id, domain.TransitionComplete, expectedVersion,
		func(_ *sql.Tx, f *domain.Referral) (bool, events.EventPayload, error) {
			s, err := referralState(*f)
			if err != nil {
				return false, nil, err
			}
			switch s {
			case domain.ReferralAccepted:
			case domain.ReferralCompleted:
				return false, nil, closed(domain.EntityReferral, domain.TransitionComplete, f.ID)
			default:
				return false, nil, invalid(domain.EntityReferral, domain.TransitionComplete, f.ID, "referral is "+f.Status)
			}
			f.SetState(domain.ReferralCompleted)
			return true, nil, nil
		})
}

type ReferralEdit struct {
	ReferredFrom *string
	ClientName   *string
	ClientPhone  *string
	Category     *string
	Priority     *string
	Reason       *string
	Notes        *string
}

func (e Engine) EditReferral(ctx context.Context, actor domain.Actor, id string, edit ReferralEdit, expectedVersion int) (domain.Referral, error) {
	if edit.Reason != nil && strings.TrimSpace(*edit.Reason) == "" {
		return domain.Referral{}, validation(domain.EntityReferral, domain.TransitionEdit, "reason cannot be blank")
	}
	if edit.Priority != nil {
		p, err := normalizePriority(domain.EntityReferral, domain.TransitionEdit, *edit.Priority)
		if err != nil {
			return domain.Referral{}, err
		}
		edit.Priority = &p
	}
	return transition(ctx, e, e.referrals(), actor, id, domain.TransitionEdit, expectedVersion,
		func(_ *sql.Tx, f *domain.Referral) (bool, events.EventPayload, error) {
			s, err := referralState(*f)
			if err != nil {
				return false, nil, err
			}
			if s.Terminal() {
				return false, nil, closed(domain.EntityReferral, domain.TransitionEdit, f.ID)
			}
			var changed []string
			set := func(field string, dst *string, v *string) {
				if v != nil && strings.TrimSpace(*v) != *dst {
					*dst = strings.TrimSpace(*v)
					changed = append(changed, field)
				}
			}
			set("referred_from", &f.ReferredFrom, edit.ReferredFrom)
			set("client_name", &f.ClientName, edit.ClientName)
			set("client_phone", &f.ClientPhone, edit.ClientPhone)
			set("category", &f.Category, edit.Category)
			set("priority", &f.Priority, edit.Priority)
			set("reason", &f.Reason, edit.Reason)
			set("notes", &f.Notes, edit.Notes)
			if f.ReferredFrom == "" {
				f.ReferredFrom = DefaultReferredFrom
			}
			return len(changed) > 0, events.EventPayload{"fields": changed}, nil
		})
}

func (e Engine) DeleteReferral(ctx context.Context, actor domain.Actor, id string, expectedVersion int) error {
	return remove(ctx, e, e.referrals(), actor, id, expectedVersion)
}

func (e Engine) GetReferral(ctx context.Context, actor domain.Actor, id string) (domain.Referral, error) {
	f, err := e.Repo.GetReferral(ctx, nil, id)
	if err != nil {
		return domain.Referral{}, storeErr(domain.EntityReferral, "get", id, err)
	}
	if err := auth.CanView(actor, auth.ReferralTarget(f)); err != nil {
		return domain.Referral{}, err
	}
	return f, nil
}

func (e Engine) ListReferrals(ctx context.Context, actor domain.Actor, f repo.ReferralFilters) (domain.Page[domain.Referral], error) {
	if !auth.Authenticated(actor) {
		return domain.Page[domain.Referral]{}, domain.NewError(domain.KindNotAuthorized, "")
	}
	f.Visibility = visibility(actor)
	items, total, err := e.Repo.ListReferrals(ctx, f)
	if err != nil {
		return domain.Page[domain.Referral]{}, err
	}
	if items == nil {
		items = []domain.Referral{}
	}
	return domain.Page[domain.Referral]{Items: items, Total: total}, nil
}

// ListReassignableReferrals returns declined referrals waiting for a new
// organization.
func (e Engine) ListReassignableReferrals(ctx context.Context, actor domain.Actor, limit, offset int) (domain.Page[domain.Referral], error) {
	return e.ListReferrals(ctx, actor, repo.ReferralFilters{Reassignable: true, Limit: limit, Offset: offset})
}
