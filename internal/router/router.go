package router

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"caseline/internal/domain"
	"caseline/internal/repo"
)

// Filters narrow the candidate organizations. Each non-empty field is a
// case-insensitive substring match; all given fields must match.
type Filters struct {
	Sector   string
	Location string
	// Query matches name, description or any tag.
	Query string
}

// Router selects and validates assignment targets.
type Router struct {
	Repo repo.Repo
}

// FindCandidates returns active organizations matching f. The result is a
// snapshot; ValidateTarget is authoritative at assignment time.
func (r Router) FindCandidates(ctx context.Context, f Filters) ([]domain.Organization, error) {
	active := true
	orgs, _, err := r.Repo.ListOrganizations(ctx, repo.OrganizationFilters{Active: &active})
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	res := []domain.Organization{}
	for _, o := range orgs {
		if Match(o, f) {
			res = append(res, o)
		}
	}
	return res, nil
}

// Match reports whether o satisfies f, ignoring is_active.
func Match(o domain.Organization, f Filters) bool {
	if f.Sector != "" && !anyContains(o.SectorsProvided, f.Sector) {
		return false
	}
	if f.Location != "" && !anyContains(o.LocationsCovered, f.Location) {
		return false
	}
	if f.Query != "" {
		q := strings.ToLower(strings.TrimSpace(f.Query))
		if !strings.Contains(strings.ToLower(o.Name), q) &&
			!strings.Contains(strings.ToLower(o.Description), q) &&
			!anyContains(o.SectorsProvided, q) &&
			!anyContains(o.LocationsCovered, q) {
			return false
		}
	}
	return true
}

func anyContains(tags []string, needle string) bool {
	needle = strings.ToLower(strings.TrimSpace(needle))
	for _, t := range tags {
		if strings.Contains(strings.ToLower(t), needle) {
			return true
		}
	}
	return false
}

// ValidateTarget re-reads the organization inside tx and fails with
// not_found or organization_inactive.
func (r Router) ValidateTarget(ctx context.Context, tx *sql.Tx, orgID string) (domain.Organization, error) {
	if strings.TrimSpace(orgID) == "" {
		return domain.Organization{}, &domain.Error{Kind: domain.KindValidationFailed, Op: "assign", Reason: "organization id required"}
	}
	o, err := r.Repo.GetOrganization(ctx, tx, orgID)
	if errors.Is(err, repo.ErrNotFound) {
		return o, &domain.Error{Kind: domain.KindNotFound, Op: "assign", Entity: string(domain.EntityOrganization), ID: orgID}
	}
	if err != nil {
		return o, fmt.Errorf("read organization %s: %w", orgID, err)
	}
	if !o.IsActive {
		return o, &domain.Error{Kind: domain.KindOrganizationInactive, Op: "assign", Entity: string(domain.EntityOrganization), ID: orgID}
	}
	return o, nil
}
