package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"caseline/internal/domain"
	"caseline/internal/engine"
	"caseline/internal/engine/auth"
	"caseline/internal/repo"
)

func registerReferrals(api huma.API, e engine.Engine) {
	tags := []string{"referrals"}

	handle(api, huma.Operation{
		OperationID:   "create-referral",
		Method:        http.MethodPost,
		Path:          "/referrals",
		Summary:       "Create referral",
		DefaultStatus: http.StatusCreated,
		Tags:          tags,
	}, func(ctx context.Context, actor domain.Actor, in *struct {
		Body CreateReferralRequest
	}) (domain.Referral, error) {
		return e.CreateReferral(ctx, actor, in.Body.options())
	})

	handle(api, huma.Operation{
		OperationID: "list-referrals",
		Method:      http.MethodGet,
		Path:        "/referrals",
		Summary:     "List referrals",
		Tags:        tags,
	}, func(ctx context.Context, actor domain.Actor, in *struct {
		pageQuery
		Status                 string `query:"status" enum:"pending,accepted,rejected,completed"`
		Priority               string `query:"priority" enum:"low,medium,high,urgent"`
		Category               string `query:"category"`
		CaseID                 string `query:"case_id"`
		CreatedBy              string `query:"created_by"`
		AssignedOrganizationID string `query:"assigned_organization_id"`
		Reassignable           bool   `query:"reassignable" doc:"only declined referrals awaiting a new organization"`
		Query                  string `query:"q"`
	}) (domain.Page[domain.Referral], error) {
		return e.ListReferrals(ctx, actor, repo.ReferralFilters{
			Status:                 in.Status,
			Priority:               in.Priority,
			Category:               in.Category,
			CaseID:                 in.CaseID,
			CreatedBy:              in.CreatedBy,
			AssignedOrganizationID: in.AssignedOrganizationID,
			Reassignable:           in.Reassignable,
			Query:                  in.Query,
			Limit:                  normalizeLimit(in.Limit),
			Offset:                 in.Offset,
		})
	})

	handle(api, huma.Operation{
		OperationID: "list-reassignable-referrals",
		Method:      http.MethodGet,
		Path:        "/referrals/reassignable",
		Summary:     "Declined referrals awaiting a new organization",
		Tags:        tags,
	}, func(ctx context.Context, actor domain.Actor, in *pageQuery) (domain.Page[domain.Referral], error) {
		return e.ListReassignableReferrals(ctx, actor, normalizeLimit(in.Limit), in.Offset)
	})

	handle(api, huma.Operation{
		OperationID: "get-referral",
		Method:      http.MethodGet,
		Path:        "/referrals/{id}",
		Summary:     "Get referral",
		Tags:        tags,
	}, func(ctx context.Context, actor domain.Actor, in *idPath) (domain.Referral, error) {
		return e.GetReferral(ctx, actor, in.ID)
	})

	handle(api, huma.Operation{
		OperationID: "referral-transitions",
		Method:      http.MethodGet,
		Path:        "/referrals/{id}/transitions",
		Summary:     "Transitions the caller may invoke",
		Tags:        tags,
	}, func(ctx context.Context, actor domain.Actor, in *idPath) (TransitionsResponse, error) {
		f, err := e.GetReferral(ctx, actor, in.ID)
		if err != nil {
			return TransitionsResponse{}, err
		}
		return TransitionsResponse{
			EntityKind: string(domain.EntityReferral),
			ID:         f.ID,
			Allowed:    transitionNames(auth.Allowed(actor, auth.ReferralTarget(f))),
		}, nil
	})

	handle(api, huma.Operation{
		OperationID: "edit-referral",
		Method:      http.MethodPatch,
		Path:        "/referrals/{id}",
		Summary:     "Edit referral",
		Tags:        tags,
	}, func(ctx context.Context, actor domain.Actor, in *struct {
		ID   string `path:"id"`
		Body EditReferralRequest
	}) (domain.Referral, error) {
		return e.EditReferral(ctx, actor, in.ID, in.Body.edit(), in.Body.ExpectedVersion)
	})

	handleNoContent(api, huma.Operation{
		OperationID: "delete-referral",
		Method:      http.MethodDelete,
		Path:        "/referrals/{id}",
		Summary:     "Delete referral",
		Tags:        tags,
	}, func(ctx context.Context, actor domain.Actor, in *deleteInput) error {
		return e.DeleteReferral(ctx, actor, in.ID, in.ExpectedVersion)
	})

	handle(api, huma.Operation{
		OperationID: "assign-referral",
		Method:      http.MethodPost,
		Path:        "/referrals/{id}/assign",
		Summary:     "Assign referral to an organization",
		Description: "Allowed while the referral is open or after a decline.",
		Tags:        tags,
	}, func(ctx context.Context, actor domain.Actor, in *struct {
		ID   string `path:"id"`
		Body AssignOrganizationRequest
	}) (domain.Referral, error) {
		return e.AssignReferral(ctx, actor, in.ID, in.Body.OrganizationID, in.Body.ExpectedVersion)
	})

	handle(api, huma.Operation{
		OperationID: "accept-referral",
		Method:      http.MethodPost,
		Path:        "/referrals/{id}/accept",
		Summary:     "Accept referral",
		Tags:        tags,
	}, func(ctx context.Context, actor domain.Actor, in *struct {
		ID   string `path:"id"`
		Body *VersionRequest
	}) (domain.Referral, error) {
		return e.AcceptReferral(ctx, actor, in.ID, expectedVersion(in.Body))
	})

	handle(api, huma.Operation{
		OperationID: "decline-referral",
		Method:      http.MethodPost,
		Path:        "/referrals/{id}/decline",
		Summary:     "Decline referral",
		Tags:        tags,
	}, func(ctx context.Context, actor domain.Actor, in *struct {
		ID   string `path:"id"`
		Body ReasonRequest
	}) (domain.Referral, error) {
		return e.DeclineReferral(ctx, actor, in.ID, in.Body.Reason, in.Body.ExpectedVersion)
	})

	handle(api, huma.Operation{
		OperationID: "complete-referral",
		Method:      http.MethodPost,
		Path:        "/referrals/{id}/complete",
		Summary:     "Complete referral",
		Tags:        tags,
	}, func(ctx context.Context, actor domain.Actor, in *struct {
		ID   string `path:"id"`
		Body *VersionRequest
	}) (domain.Referral, error) {
		return e.CompleteReferral(ctx, actor, in.ID, expectedVersion(in.Body))
	})
}
