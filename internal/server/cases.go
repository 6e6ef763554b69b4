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

func registerCases(api huma.API, e engine.Engine) {
	handle(api, huma.Operation{
		OperationID:   "create-case",
		Method:        http.MethodPost,
		Path:          "/cases",
		Summary:       "Create case",
		DefaultStatus: http.StatusCreated,
		Tags:          []string{"cases"},
	}, func(ctx context.Context, actor domain.Actor, in *struct {
		Body CreateCaseRequest
	}) (domain.Case, error) {
		return e.CreateCase(ctx, actor, in.Body.options())
	})

	handle(api, huma.Operation{
		OperationID: "list-cases",
		Method:      http.MethodGet,
		Path:        "/cases",
		Summary:     "List cases",
		Tags:        []string{"cases"},
	}, func(ctx context.Context, actor domain.Actor, in *struct {
		pageQuery
		Status         []string `query:"status" doc:"one or more statuses"`
		ApprovalStatus string   `query:"approval_status" enum:"pending,approved,rejected"`
		Priority       string   `query:"priority" enum:"low,medium,high,urgent"`
		Category       string   `query:"category"`
		CreatedBy      string   `query:"created_by"`
		AssignedTo     string   `query:"assigned_to"`
		AssignedToType string   `query:"assigned_to_type" enum:"user,organization"`
		Query          string   `query:"q"`
	}) (domain.Page[domain.Case], error) {
		return e.ListCases(ctx, actor, repo.CaseFilters{
			Status:         in.Status,
			ApprovalStatus: in.ApprovalStatus,
			Priority:       in.Priority,
			Category:       in.Category,
			CreatedBy:      in.CreatedBy,
			AssignedTo:     in.AssignedTo,
			AssignedToType: in.AssignedToType,
			Query:          in.Query,
			Limit:          normalizeLimit(in.Limit),
			Offset:         in.Offset,
		})
	})

	handle(api, huma.Operation{
		OperationID: "get-case",
		Method:      http.MethodGet,
		Path:        "/cases/{id}",
		Summary:     "Get case",
		Tags:        []string{"cases"},
	}, func(ctx context.Context, actor domain.Actor, in *idPath) (domain.Case, error) {
		return e.GetCase(ctx, actor, in.ID)
	})

	handle(api, huma.Operation{
		OperationID: "case-transitions",
		Method:      http.MethodGet,
		Path:        "/cases/{id}/transitions",
		Summary:     "Transitions the caller may invoke",
		Tags:        []string{"cases"},
	}, func(ctx context.Context, actor domain.Actor, in *idPath) (TransitionsResponse, error) {
		c, err := e.GetCase(ctx, actor, in.ID)
		if err != nil {
			return TransitionsResponse{}, err
		}
		return TransitionsResponse{
			EntityKind: string(domain.EntityCase),
			ID:         c.ID,
			Allowed:    transitionNames(auth.Allowed(actor, auth.CaseTarget(c))),
		}, nil
	})

	handle(api, huma.Operation{
		OperationID: "edit-case",
		Method:      http.MethodPatch,
		Path:        "/cases/{id}",
		Summary:     "Edit case",
		Tags:        []string{"cases"},
	}, func(ctx context.Context, actor domain.Actor, in *struct {
		ID   string `path:"id"`
		Body EditCaseRequest
	}) (domain.Case, error) {
		return e.EditCase(ctx, actor, in.ID, in.Body.edit(), in.Body.ExpectedVersion)
	})

	handleNoContent(api, huma.Operation{
		OperationID: "delete-case",
		Method:      http.MethodDelete,
		Path:        "/cases/{id}",
		Summary:     "Delete case",
		Tags:        []string{"cases"},
	}, func(ctx context.Context, actor domain.Actor, in *deleteInput) error {
		return e.DeleteCase(ctx, actor, in.ID, in.ExpectedVersion)
	})

	handle(api, huma.Operation{
		OperationID: "approve-case",
		Method:      http.MethodPost,
		Path:        "/cases/{id}/approve",
		Summary:     "Approve case",
		Description: "Approving an already approved case succeeds without changes.",
		Tags:        []string{"cases"},
	}, func(ctx context.Context, actor domain.Actor, in *struct {
		ID   string `path:"id"`
		Body *VersionRequest
	}) (domain.Case, error) {
		return e.ApproveCase(ctx, actor, in.ID, expectedVersion(in.Body))
	})

	handle(api, huma.Operation{
		OperationID: "reject-case",
		Method:      http.MethodPost,
		Path:        "/cases/{id}/reject",
		Summary:     "Reject case",
		Tags:        []string{"cases"},
	}, func(ctx context.Context, actor domain.Actor, in *struct {
		ID   string `path:"id"`
		Body ReasonRequest
	}) (domain.Case, error) {
		return e.RejectCase(ctx, actor, in.ID, in.Body.Reason, in.Body.ExpectedVersion)
	})

	handle(api, huma.Operation{
		OperationID: "advance-case",
		Method:      http.MethodPost,
		Path:        "/cases/{id}/advance",
		Summary:     "Move an approved case to in_progress or closed",
		Tags:        []string{"cases"},
	}, func(ctx context.Context, actor domain.Actor, in *struct {
		ID   string `path:"id"`
		Body AdvanceRequest
	}) (domain.Case, error) {
		return e.AdvanceCase(ctx, actor, in.ID, in.Body.Status, in.Body.ExpectedVersion)
	})

	handle(api, huma.Operation{
		OperationID: "assign-case",
		Method:      http.MethodPost,
		Path:        "/cases/{id}/assign",
		Summary:     "Assign case to a user or an organization",
		Tags:        []string{"cases"},
	}, func(ctx context.Context, actor domain.Actor, in *struct {
		ID   string `path:"id"`
		Body AssignCaseRequest
	}) (domain.Case, error) {
		to, err := domain.ParseAssignee(in.Body.AssigneeType, in.Body.AssigneeID)
		if err != nil {
			return domain.Case{}, &domain.Error{Kind: domain.KindValidationFailed, Op: string(domain.TransitionAssign), Reason: err.Error()}
		}
		return e.AssignCase(ctx, actor, in.ID, to, in.Body.ExpectedVersion)
	})
}
