package engine

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"caseline/internal/domain"
	"caseline/internal/engine/auth"
	"caseline/internal/events"
	"caseline/internal/ids"
	"caseline/internal/repo"
	"caseline/internal/router"
)

type OrganizationCreateOptions struct {
	Name             string
	Type             string
	Email            string
	Phone            string
	Address          string
	Description      string
	SectorsProvided  []string
	LocationsCovered []string
	Active           bool
}

// CreateOrganization registers an organization. Self sign-ups by an
// organization actor always start inactive.
func (e Engine) CreateOrganization(ctx context.Context, actor domain.Actor, opts OrganizationCreateOptions) (domain.Organization, error) {
	if err := auth.CanCreate(actor, domain.EntityOrganization); err != nil {
		return domain.Organization{}, err
	}
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return domain.Organization{}, validation(domain.EntityOrganization, domain.TransitionCreate, "name is required")
	}
	now := e.stamp()
	o := domain.Organization{
		ID:               ids.New(),
		Name:             name,
		Type:             strings.TrimSpace(opts.Type),
		Email:            strings.TrimSpace(opts.Email),
		Phone:            strings.TrimSpace(opts.Phone),
		Address:          strings.TrimSpace(opts.Address),
		Description:      strings.TrimSpace(opts.Description),
		SectorsProvided:  cleanTags(opts.SectorsProvided),
		LocationsCovered: cleanTags(opts.LocationsCovered),
		IsActive:         opts.Active && actor.CentralAuthority(),
		CreatedBy:        actor.ID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	err := e.create(ctx, actor, domain.EntityOrganization, o.ID, func(tx *sql.Tx) error {
		return e.Repo.InsertOrganization(ctx, tx, o)
	}, events.EventPayload{"name": o.Name, "is_active": o.IsActive})
	if err != nil {
		return domain.Organization{}, err
	}
	return o, nil
}

func cleanTags(in []string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, t := range in {
		t = strings.TrimSpace(t)
		if t == "" || seen[strings.ToLower(t)] {
			continue
		}
		seen[strings.ToLower(t)] = true
		out = append(out, t)
	}
	return out
}

// SetOrganizationActive toggles eligibility as an assignment target.
// Existing assignments to the organization are not touched.
func (e Engine) SetOrganizationActive(ctx context.Context, actor domain.Actor, id string, active bool) (o domain.Organization, err error) {
	tr := domain.TransitionDeactivate
	if active {
		tr = domain.TransitionActivate
	}
	start := time.Now()
	defer func() { e.observe(domain.EntityOrganization, tr, id, actor, start, err) }()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return o, err
	}
	defer tx.Rollback()
	o, err = e.Repo.GetOrganization(ctx, tx, id)
	if err != nil {
		return o, storeErr(domain.EntityOrganization, tr, id, err)
	}
	if err := auth.CanTransition(actor, auth.OrganizationTarget(o), tr); err != nil {
		return domain.Organization{}, err
	}
	if o.IsActive == active {
		return o, nil
	}
	o.IsActive = active
	o.UpdatedAt = e.stamp()
	if err := e.Repo.SetOrganizationActive(ctx, tx, id, active, o.UpdatedAt); err != nil {
		return domain.Organization{}, storeErr(domain.EntityOrganization, tr, id, err)
	}
	if err := e.events().Append(ctx, tx, events.Type(domain.EntityOrganization, tr), domain.EntityOrganization, id, actor.ID, events.EventPayload{"is_active": active}); err != nil {
		return domain.Organization{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Organization{}, err
	}
	return o, nil
}

func (e Engine) GetOrganization(ctx context.Context, actor domain.Actor, id string) (domain.Organization, error) {
	if !auth.Authenticated(actor) {
		return domain.Organization{}, domain.NewError(domain.KindNotAuthorized, "")
	}
	o, err := e.Repo.GetOrganization(ctx, nil, id)
	if err != nil {
		return domain.Organization{}, storeErr(domain.EntityOrganization, "get", id, err)
	}
	return o, nil
}

func (e Engine) ListOrganizations(ctx context.Context, actor domain.Actor, f repo.OrganizationFilters) (domain.Page[domain.Organization], error) {
	if !auth.Authenticated(actor) {
		return domain.Page[domain.Organization]{}, domain.NewError(domain.KindNotAuthorized, "")
	}
	items, total, err := e.Repo.ListOrganizations(ctx, f)
	if err != nil {
		return domain.Page[domain.Organization]{}, err
	}
	if items == nil {
		items = []domain.Organization{}
	}
	return domain.Page[domain.Organization]{Items: items, Total: total}, nil
}

// FindCandidates lists active organizations matching the filters.
func (e Engine) FindCandidates(ctx context.Context, actor domain.Actor, f router.Filters) ([]domain.Organization, error) {
	if !auth.Authenticated(actor) {
		return nil, domain.NewError(domain.KindNotAuthorized, "")
	}
	return e.Router.FindCandidates(ctx, f)
}
