package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"caseline/internal/domain"
	"caseline/internal/engine"
	"caseline/internal/repo"
	"caseline/internal/router"
)

func registerOrganizations(api huma.API, e engine.Engine) {
	tags := []string{"organizations"}

	handle(api, huma.Operation{
		OperationID:   "create-organization",
		Method:        http.MethodPost,
		Path:          "/organizations",
		Summary:       "Register organization",
		Description:   "Sign-ups by organization actors start inactive until a central authority activates them.",
		DefaultStatus: http.StatusCreated,
		Tags:          tags,
	}, func(ctx context.Context, actor domain.Actor, in *struct {
		Body CreateOrganizationRequest
	}) (domain.Organization, error) {
		return e.CreateOrganization(ctx, actor, in.Body.options())
	})

	handle(api, huma.Operation{
		OperationID: "list-organizations",
		Method:      http.MethodGet,
		Path:        "/organizations",
		Summary:     "List organizations",
		Tags:        tags,
	}, func(ctx context.Context, actor domain.Actor, in *struct {
		pageQuery
		Active string `query:"active" enum:"true,false"`
		Type   string `query:"type"`
	}) (domain.Page[domain.Organization], error) {
		f := repo.OrganizationFilters{Type: in.Type, Limit: normalizeLimit(in.Limit), Offset: in.Offset}
		if in.Active != "" {
			active, _ := strconv.ParseBool(in.Active)
			f.Active = &active
		}
		return e.ListOrganizations(ctx, actor, f)
	})

	handle(api, huma.Operation{
		OperationID: "organization-candidates",
		Method:      http.MethodGet,
		Path:        "/organizations/candidates",
		Summary:     "Active organizations eligible for assignment",
		Tags:        tags,
	}, func(ctx context.Context, actor domain.Actor, in *struct {
		Sector   string `query:"sector"`
		Location string `query:"location"`
		Query    string `query:"q"`
	}) ([]domain.Organization, error) {
		return e.FindCandidates(ctx, actor, router.Filters{Sector: in.Sector, Location: in.Location, Query: in.Query})
	})

	handle(api, huma.Operation{
		OperationID: "get-organization",
		Method:      http.MethodGet,
		Path:        "/organizations/{id}",
		Summary:     "Get organization",
		Tags:        tags,
	}, func(ctx context.Context, actor domain.Actor, in *idPath) (domain.Organization, error) {
		return e.GetOrganization(ctx, actor, in.ID)
	})

	for name, active := range map[string]bool{"activate": true, "deactivate": false} {
		summary := "Activate organization"
		if !active {
			summary = "Deactivate organization"
		}
		handle(api, huma.Operation{
			OperationID: name + "-organization",
			Method:      http.MethodPost,
			Path:        "/organizations/{id}/" + name,
			Summary:     summary,
			Description: "Does not touch records already assigned to the organization.",
			Tags:        tags,
		}, func(ctx context.Context, actor domain.Actor, in *idPath) (domain.Organization, error) {
			return e.SetOrganizationActive(ctx, actor, in.ID, active)
		})
	}
}
