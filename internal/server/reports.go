package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"caseline/internal/domain"
	"caseline/internal/engine"
	"caseline/internal/repo"
)

func registerDashboard(api huma.API, e engine.Engine) {
	handle(api, huma.Operation{
		OperationID: "dashboard",
		Method:      http.MethodGet,
		Path:        "/dashboard",
		Summary:     "Aggregate counters",
		Description: "Counts are computed from current records on every call.",
		Tags:        []string{"reports"},
	}, func(ctx context.Context, actor domain.Actor, in *struct {
		CreatedBy      string `query:"created_by"`
		OrganizationID string `query:"organization_id"`
	}) (engine.Dashboard, error) {
		return e.Dashboard(ctx, actor, repo.Scope{CreatedBy: in.CreatedBy, OrganizationID: in.OrganizationID})
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	handle(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Activity log, newest first",
		Tags:        []string{"reports"},
	}, func(ctx context.Context, actor domain.Actor, in *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"case,registration,referral,organization,api_key"`
		EntityID   string `query:"entity_id"`
		ActorID    string `query:"actor_id"`
		Limit      int    `query:"limit" default:"50" minimum:"0" maximum:"200"`
		Cursor     string `query:"cursor" doc:"next_cursor of the previous page"`
	}) (paginatedEvents, error) {
		before, err := parseCursor(in.Cursor)
		if err != nil {
			return paginatedEvents{}, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		limit := normalizeLimit(in.Limit)
		evts, err := e.ListEvents(ctx, actor, repo.EventFilters{
			Type:       in.Type,
			EntityKind: in.EntityKind,
			EntityID:   in.EntityID,
			ActorID:    in.ActorID,
			Before:     before,
			Limit:      limit + 1,
		})
		if err != nil {
			return paginatedEvents{}, err
		}
		out := paginatedEvents{Items: make([]EventResponse, 0, len(evts))}
		if len(evts) > limit {
			evts = evts[:limit]
			out.NextCursor = strconv.FormatInt(evts[len(evts)-1].ID, 10)
		}
		for _, ev := range evts {
			out.Items = append(out.Items, eventResponse(ev))
		}
		return out, nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	tags := []string{"api-keys"}

	handle(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/api-keys",
		Summary:       "Issue API key",
		Description:   "The plaintext key is returned once and never stored.",
		DefaultStatus: http.StatusCreated,
		Tags:          tags,
	}, func(ctx context.Context, actor domain.Actor, in *struct {
		Body CreateAPIKeyRequest
	}) (CreatedAPIKeyResponse, error) {
		k, plain, err := e.CreateAPIKey(ctx, actor, engine.APIKeyCreateOptions{
			ActorID:        in.Body.ActorID,
			Role:           in.Body.Role,
			OrganizationID: in.Body.OrganizationID,
			Name:           in.Body.Name,
		})
		if err != nil {
			return CreatedAPIKeyResponse{}, err
		}
		return CreatedAPIKeyResponse{APIKey: k, Key: plain}, nil
	})

	handle(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/api-keys",
		Summary:     "List API keys",
		Tags:        tags,
	}, func(ctx context.Context, actor domain.Actor, in *struct {
		ActorID string `query:"actor_id"`
	}) ([]domain.APIKey, error) {
		return e.ListAPIKeys(ctx, actor, in.ActorID)
	})

	handleNoContent(api, huma.Operation{
		OperationID: "revoke-api-key",
		Method:      http.MethodDelete,
		Path:        "/api-keys/{id}",
		Summary:     "Revoke API key",
		Tags:        tags,
	}, func(ctx context.Context, actor domain.Actor, in *idPath) error {
		return e.RevokeAPIKey(ctx, actor, in.ID)
	})
}
