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

func registerRegistrations(api huma.API, e engine.Engine) {
	tags := []string{"registrations"}

	handle(api, huma.Operation{
		OperationID:   "create-registration",
		Method:        http.MethodPost,
		Path:          "/registrations",
		Summary:       "Create registration",
		DefaultStatus: http.StatusCreated,
		Tags:          tags,
	}, func(ctx context.Context, actor domain.Actor, in *struct {
		Body CreateRegistrationRequest
	}) (domain.Registration, error) {
		return e.CreateRegistration(ctx, actor, in.Body.options())
	})

	handle(api, huma.Operation{
		OperationID: "list-registrations",
		Method:      http.MethodGet,
		Path:        "/registrations",
		Summary:     "List registrations",
		Tags:        tags,
	}, func(ctx context.Context, actor domain.Actor, in *struct {
		pageQuery
		Status                 string `query:"status" enum:"pending,approved,rejected"`
		ApprovalStatus         string `query:"approval_status" enum:"pending,approved,rejected"`
		Category               string `query:"category"`
		CreatedBy              string `query:"created_by"`
		AssignedOrganizationID string `query:"assigned_organization_id"`
		Query                  string `query:"q"`
	}) (domain.Page[domain.Registration], error) {
		return e.ListRegistrations(ctx, actor, repo.RegistrationFilters{
			Status:                 in.Status,
			ApprovalStatus:         in.ApprovalStatus,
			Category:               in.Category,
			CreatedBy:              in.CreatedBy,
			AssignedOrganizationID: in.AssignedOrganizationID,
			Query:                  in.Query,
			Limit:                  normalizeLimit(in.Limit),
			Offset:                 in.Offset,
		})
	})

	handle(api, huma.Operation{
		OperationID: "get-registration",
		Method:      http.MethodGet,
		Path:        "/registrations/{id}",
		Summary:     "Get registration",
		Tags:        tags,
	}, func(ctx context.Context, actor domain.Actor, in *idPath) (domain.Registration, error) {
		return e.GetRegistration(ctx, actor, in.ID)
	})

	handle(api, huma.Operation{
		OperationID: "registration-transitions",
		Method:      http.MethodGet,
		Path:        "/registrations/{id}/transitions",
		Summary:     "Transitions the caller may invoke",
		Tags:        tags,
	}, func(ctx context.Context, actor domain.Actor, in *idPath) (TransitionsResponse, error) {
		g, err := e.GetRegistration(ctx, actor, in.ID)
		if err != nil {
			return TransitionsResponse{}, err
		}
		return TransitionsResponse{
			EntityKind: string(domain.EntityRegistration),
			ID:         g.ID,
			Allowed:    transitionNames(auth.Allowed(actor, auth.RegistrationTarget(g))),
		}, nil
	})

	handle(api, huma.Operation{
		OperationID: "edit-registration",
		Method:      http.MethodPatch,
		Path:        "/registrations/{id}",
		Summary:     "Edit registration",
		Tags:        tags,
	}, func(ctx context.Context, actor domain.Actor, in *struct {
		ID   string `path:"id"`
		Body EditRegistrationRequest
	}) (domain.Registration, error) {
		return e.EditRegistration(ctx, actor, in.ID, in.Body.edit(), in.Body.ExpectedVersion)
	})

	handleNoContent(api, huma.Operation{
		OperationID: "delete-registration",
		Method:      http.MethodDelete,
		Path:        "/registrations/{id}",
		Summary:     "Delete registration",
		Tags:        tags,
	}, func(ctx context.Context, actor domain.Actor, in *deleteInput) error {
		return e.DeleteRegistration(ctx, actor, in.ID, in.ExpectedVersion)
	})

	handle(api, huma.Operation{
		OperationID: "approve-registration",
		Method:      http.MethodPost,
		Path:        "/registrations/{id}/approve",
		Summary:     "Approve registration",
		Tags:        tags,
	}, func(ctx context.Context, actor domain.Actor, in *struct {
		ID   string `path:"id"`
		Body *VersionRequest
	}) (domain.Registration, error) {
		return e.ApproveRegistration(ctx, actor, in.ID, expectedVersion(in.Body))
	})

	handle(api, huma.Operation{
		OperationID: "reject-registration",
		Method:      http.MethodPost,
		Path:        "/registrations/{id}/reject",
		Summary:     "Reject registration",
		Tags:        tags,
	}, func(ctx context.Context, actor domain.Actor, in *struct {
		ID   string `path:"id"`
		Body ReasonRequest
	}) (domain.Registration, error) {
		return e.RejectRegistration(ctx, actor, in.ID, in.Body.Reason, in.Body.ExpectedVersion)
	})

	handle(api, huma.Operation{
		OperationID: "advance-registration",
		Method:      http.MethodPost,
		Path:        "/registrations/{id}/advance",
		Summary:     "Registrations cannot advance",
		Description: "Always fails with invalid_state_transition.",
		Tags:        tags,
	}, func(ctx context.Context, actor domain.Actor, in *struct {
		ID   string `path:"id"`
		Body AdvanceRequest
	}) (domain.Registration, error) {
		return e.AdvanceRegistration(ctx, actor, in.ID, in.Body.Status, in.Body.ExpectedVersion)
	})

	handle(api, huma.Operation{
		OperationID: "assign-registration",
		Method:      http.MethodPost,
		Path:        "/registrations/{id}/assign",
		Summary:     "Assign registration to an organization",
		Tags:        tags,
	}, func(ctx context.Context, actor domain.Actor, in *struct {
		ID   string `path:"id"`
		Body AssignOrganizationRequest
	}) (domain.Registration, error) {
		return e.AssignRegistration(ctx, actor, in.ID, in.Body.OrganizationID, in.Body.ExpectedVersion)
	})
}
