package engine

import (
	"context"

	"caseline/internal/domain"
	"caseline/internal/engine/auth"
	"caseline/internal/repo"
)

// ListEvents reads the activity log. Organization-bound actors are refused.
func (e Engine) ListEvents(ctx context.Context, actor domain.Actor, f repo.EventFilters) ([]domain.Event, error) {
	if !auth.Authenticated(actor) || auth.OrganizationBound(actor) {
		return nil, domain.NewError(domain.KindNotAuthorized, "")
	}
	evts, err := e.Repo.ListEvents(ctx, f)
	if err != nil {
		return nil, err
	}
	if evts == nil {
		evts = []domain.Event{}
	}
	return evts, nil
}
