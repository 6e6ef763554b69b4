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

func (e Engine) cases() store[domain.Case] {
	return store[domain.Case]{
		kind:   domain.EntityCase,
		get:    e.Repo.GetCase,
		update: e.Repo.UpdateCase,
		remove: e.Repo.DeleteCase,
		target: auth.CaseTarget,
		meta:   func(c *domain.Case) (*int, *string) { return &c.Version, &c.UpdatedAt },
	}
}

type CaseCreateOptions struct {
	Title       string
	Description string
	Category    string
	Priority    string
}

func (e Engine) CreateCase(ctx context.Context, actor domain.Actor, opts CaseCreateOptions) (domain.Case, error) {
	if err := auth.CanCreate(actor, domain.EntityCase); err != nil {
		return domain.Case{}, err
	}
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		return domain.Case{}, validation(domain.EntityCase, domain.TransitionCreate, "title is required")
	}
	priority, err := normalizePriority(domain.EntityCase, domain.TransitionCreate, opts.Priority)
	if err != nil {
		return domain.Case{}, err
	}
	now := e.stamp()
	c := domain.Case{
		ID:          ids.New(),
		CaseNumber:  ids.Number(ids.PrefixCase, e.now()),
		Title:       title,
		Description: strings.TrimSpace(opts.Description),
		Category:    strings.TrimSpace(opts.Category),
		Priority:    priority,
		CreatedBy:   actor.ID,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	c.SetState(domain.CaseSubmitted)
	err = e.create(ctx, actor, domain.EntityCase, c.ID, func(tx *sql.Tx) error {
		return e.Repo.InsertCase(ctx, tx, c)
	}, events.EventPayload{"case_number": c.CaseNumber, "priority": c.Priority})
	if err != nil {
		return domain.Case{}, err
	}
	return c, nil
}

func caseState(c domain.Case) (domain.CaseState, error) {
	s, err := c.State()
	if err != nil {
		return "", invalid(domain.EntityCase, "", c.ID, err.Error())
	}
	return s, nil
}

// ApproveCase approves a pending case. Approving an already approved case
// succeeds without writing.
func (e Engine) ApproveCase(ctx context.Context, actor domain.Actor, id string, expectedVersion int) (domain.Case, error) {
	return transition(ctx, e, e.cases(), actor, id, domain.TransitionApprove, expectedVersion,
		func(_ *sql.Tx, c *domain.Case) (bool, events.EventPayload, error) {
			s, err := caseState(*c)
			if err != nil {
				return false, nil, err
			}
			switch s {
			case domain.CaseSubmitted:
				c.SetState(domain.CaseApproved)
				c.ApprovedBy, c.ApprovedAt = strPtr(actor.ID), strPtr(e.stamp())
				return true, events.EventPayload{"status": c.Status}, nil
			case domain.CaseApproved, domain.CaseInProgress:
				return false, nil, nil
			}
			return false, nil, closed(domain.EntityCase, domain.TransitionApprove, c.ID)
		})
}

func (e Engine) RejectCase(ctx context.Context, actor domain.Actor, id, reason string, expectedVersion int) (domain.Case, error) {
	reason, err := requireReason(domain.EntityCase, domain.TransitionReject, reason)
	if err != nil {
		return domain.Case{}, err
	}
	return transition(ctx, e, e.cases(), actor, id, domain.TransitionReject, expectedVersion,
		func(_ *sql.Tx, c *domain.Case) (bool, events.EventPayload, error) {
			s, err := caseState(*c)
			if err != nil {
				return false, nil, err
			}
			switch {
			case s == domain.CaseSubmitted:
			case s.Terminal():
				return false, nil, closed(domain.EntityCase, domain.TransitionReject, c.ID)
			default:
				return false, nil, invalid(domain.EntityCase, domain.TransitionReject, c.ID, "approval is not pending")
			}
			c.SetState(domain.CaseRejected)
			c.RejectionReason = strPtr(reason)
			c.ApprovedBy, c.ApprovedAt = strPtr(actor.ID), strPtr(e.stamp())
			return true, events.EventPayload{"reason": reason}, nil
		})
}

// AdvanceCase moves an approved case to in_progress or closed.
func (e Engine) AdvanceCase(ctx context.Context, actor domain.Actor, id, status string, expectedVersion int) (domain.Case, error) {
	return transition(ctx, e, e.cases(), actor, id, domain.TransitionAdvance, expectedVersion,
		func(_ *sql.Tx, c *domain.Case) (bool, events.EventPayload, error) {
			s, err := caseState(*c)
			if err != nil {
				return false, nil, err
			}
			if s.Terminal() {
				return false, nil, closed(domain.EntityCase, domain.TransitionAdvance, c.ID)
			}
			var to domain.CaseState
			switch status {
			case domain.StatusInProgress:
				to = domain.CaseInProgress
			case domain.StatusClosed:
				to = domain.CaseClosed
			default:
				return false, nil, invalid(domain.EntityCase, domain.TransitionAdvance, c.ID, "cannot advance to "+status)
			}
			if s != domain.CaseApproved && s != domain.CaseInProgress {
				return false, nil, invalid(domain.EntityCase, domain.TransitionAdvance, c.ID, "case is not approved")
			}
			if s == to {
				return false, nil, nil
			}
			from := c.Status
			c.SetState(to)
			return true, events.EventPayload{"from": from, "to": c.Status}, nil
		})
}

// AssignCase sets the assignee. Organization targets must be active.
func (e Engine) AssignCase(ctx context.Context, actor domain.Actor, id string, to domain.Assignee, expectedVersion int) (domain.Case, error) {
	if strings.TrimSpace(to.ID) == "" {
		return domain.Case{}, validation(domain.EntityCase, domain.TransitionAssign, "assignee id required")
	}
	return transition(ctx, e, e.cases(), actor, id, domain.TransitionAssign, expectedVersion,
		func(tx *sql.Tx, c *domain.Case) (bool, events.EventPayload, error) {
			s, err := caseState(*c)
			if err != nil {
				return false, nil, err
			}
			if s.Terminal() {
				return false, nil, closed(domain.EntityCase, domain.TransitionAssign, c.ID)
			}
			switch to.Type {
			case domain.AssigneeOrganization:
				if _, err := e.Router.ValidateTarget(ctx, tx, to.ID); err != nil {
					return false, nil, err
				}
			case domain.AssigneeUser:
			default:
				return false, nil, validation(domain.EntityCase, domain.TransitionAssign, "assignee type must be user or organization")
			}
			if cur, ok := c.Assignee(); ok && cur == to {
				return false, nil, nil
			}
			typ := to.Type
			c.AssignedTo, c.AssignedToType = strPtr(to.ID), &typ
			return true, events.EventPayload{"assigned_to": to.ID, "assigned_to_type": string(to.Type)}, nil
		})
}

// CaseEdit carries the editable fields; nil leaves a field unchanged.
type CaseEdit struct {
	Title       *string
	Description *string
	Category    *string
	Priority    *string
}

func (e Engine) EditCase(ctx context.Context, actor domain.Actor, id string, edit CaseEdit, expectedVersion int) (domain.Case, error) {
	if edit.Title != nil && strings.TrimSpace(*edit.Title) == "" {
		return domain.Case{}, validation(domain.EntityCase, domain.TransitionEdit, "title cannot be blank")
	}
	var priority string
	if edit.Priority != nil {
		p, err := normalizePriority(domain.EntityCase, domain.TransitionEdit, *edit.Priority)
		if err != nil {
			return domain.Case{}, err
		}
		priority = p
	}
	return transition(ctx, e, e.cases(), actor, id, domain.TransitionEdit, expectedVersion,
		func(_ *sql.Tx, c *domain.Case) (bool, events.EventPayload, error) {
			s, err := caseState(*c)
			if err != nil {
				return false, nil, err
			}
			if s.Terminal() {
				return false, nil, closed(domain.EntityCase, domain.TransitionEdit, c.ID)
			}
			changed := []string{}
			if edit.Title != nil && strings.TrimSpace(*edit.Title) != c.Title {
				c.Title = strings.TrimSpace(*edit.Title)
				changed = append(changed, "title")
			}
			if edit.Description != nil && *edit.Description != c.Description {
				c.Description = *edit.Description
				changed = append(changed, "description")
			}
			if edit.Category != nil && *edit.Category != c.Category {
				c.Category = *edit.Category
				changed = append(changed, "category")
			}
			if edit.Priority != nil && priority != c.Priority {
				c.Priority = priority
				changed = append(changed, "priority")
			}
			return len(changed) > 0, events.EventPayload{"fields": changed}, nil
		})
}

func (e Engine) DeleteCase(ctx context.Context, actor domain.Actor, id string, expectedVersion int) error {
	return remove(ctx, e, e.cases(), actor, id, expectedVersion)
}

func (e Engine) GetCase(ctx context.Context, actor domain.Actor, id string) (domain.Case, error) {
	c, err := e.Repo.GetCase(ctx, nil, id)
	if err != nil {
		return domain.Case{}, storeErr(domain.EntityCase, "get", id, err)
	}
	if err := auth.CanView(actor, auth.CaseTarget(c)); err != nil {
		return domain.Case{}, err
	}
	return c, nil
}

func (e Engine) ListCases(ctx context.Context, actor domain.Actor, f repo.CaseFilters) (domain.Page[domain.Case], error) {
	if !auth.Authenticated(actor) {
		return domain.Page[domain.Case]{}, domain.NewError(domain.KindNotAuthorized, "")
	}
	f.Visibility = visibility(actor)
	items, total, err := e.Repo.ListCases(ctx, f)
	if err != nil {
		return domain.Page[domain.Case]{}, err
	}
	if items == nil {
		items = []domain.Case{}
	}
	return domain.Page[domain.Case]{Items: items, Total: total}, nil
}
