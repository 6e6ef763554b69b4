package server

import (
	"encoding/json"

	"caseline/internal/domain"
	"caseline/internal/engine"
)

// Request payloads

// VersionRequest is the optional body of a transition without payload.
type VersionRequest struct {
	ExpectedVersion int `json:"expected_version,omitempty" minimum:"0" doc:"fail with conflict unless the stored version matches"`
}

type ReasonRequest struct {
	Reason          string `json:"reason,omitempty" doc:"required; blank values fail with validation_failed"`
	ExpectedVersion int    `json:"expected_version,omitempty" minimum:"0"`
}

type AdvanceRequest struct {
	Status          string `json:"status" example:"in_progress"`
	ExpectedVersion int    `json:"expected_version,omitempty" minimum:"0"`
}

type AssignCaseRequest struct {
	AssigneeType    string `json:"assignee_type" enum:"user,organization"`
	AssigneeID      string `json:"assignee_id"`
	ExpectedVersion int    `json:"expected_version,omitempty" minimum:"0"`
}

type AssignOrganizationRequest struct {
	OrganizationID  string `json:"organization_id"`
	ExpectedVersion int    `json:"expected_version,omitempty" minimum:"0"`
}

type CreateCaseRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	Priority    string `json:"priority,omitempty" enum:"low,medium,high,urgent"`
}

type EditCaseRequest struct {
	Title           *string `json:"title,omitempty"`
	Description     *string `json:"description,omitempty"`
	Category        *string `json:"category,omitempty"`
	Priority        *string `json:"priority,omitempty" enum:"low,medium,high,urgent"`
	ExpectedVersion int     `json:"expected_version,omitempty" minimum:"0"`
}

type CreateRegistrationRequest struct {
	FullName      string `json:"full_name"`
	Phone         string `json:"phone"`
	Email         string `json:"email,omitempty"`
	Address       string `json:"address,omitempty"`
	Category      string `json:"category,omitempty"`
	Description   string `json:"description,omitempty"`
	HouseholdSize *int   `json:"household_size,omitempty" minimum:"1"`
}

type EditRegistrationRequest struct {
	FullName        *string `json:"full_name,omitempty"`
	Phone           *string `json:"phone,omitempty"`
	Email           *string `json:"email,omitempty"`
	Address         *string `json:"address,omitempty"`
	Category        *string `json:"category,omitempty"`
	Description     *string `json:"description,omitempty"`
	HouseholdSize   *int    `json:"household_size,omitempty" minimum:"1"`
	ExpectedVersion int     `json:"expected_version,omitempty" minimum:"0"`
}

type CreateReferralRequest struct {
	CaseID       string `json:"case_id,omitempty"`
	ReferredFrom string `json:"referred_from,omitempty"`
	ClientName   string `json:"client_name,omitempty"`
	ClientPhone  string `json:"client_phone,omitempty"`
	Category     string `json:"category,omitempty"`
	Priority     string `json:"priority,omitempty" enum:"low,medium,high,urgent"`
	Reason       string `json:"reason"`
	Notes        string `json:"notes,omitempty"`
}

type EditReferralRequest struct {
	ReferredFrom    *string `json:"referred_from,omitempty"`
	ClientName      *string `json:"client_name,omitempty"`
	ClientPhone     *string `json:"client_phone,omitempty"`
	Category        *string `json:"category,omitempty"`
	Priority        *string `json:"priority,omitempty" enum:"low,medium,high,urgent"`
	Reason          *string `json:"reason,omitempty"`
	Notes           *string `json:"notes,omitempty"`
	ExpectedVersion int     `json:"expected_version,omitempty" minimum:"0"`
}

type CreateOrganizationRequest struct {
	Name             string   `json:"name"`
	Type             string   `json:"type,omitempty"`
	Email            string   `json:"email,omitempty"`
	Phone            string   `json:"phone,omitempty"`
	Address          string   `json:"address,omitempty"`
	Description      string   `json:"description,omitempty"`
	SectorsProvided  []string `json:"sectors_provided,omitempty"`
	LocationsCovered []string `json:"locations_covered,omitempty"`
	Active           bool     `json:"active,omitempty" doc:"honoured for central authorities only"`
}

type CreateAPIKeyRequest struct {
	ActorID        string `json:"actor_id"`
	Role           string `json:"role" enum:"admin,state_admin,organization,manager,case_worker,field_officer,viewer"`
	OrganizationID string `json:"organization_id,omitempty"`
	Name           string `json:"name,omitempty"`
}

func (r CreateCaseRequest) options() engine.CaseCreateOptions {
	return engine.CaseCreateOptions{Title: r.Title, Description: r.Description, Category: r.Category, Priority: r.Priority}
}

func (r EditCaseRequest) edit() engine.CaseEdit {
	return engine.CaseEdit{Title: r.Title, Description: r.Description, Category: r.Category, Priority: r.Priority}
}

func (r CreateRegistrationRequest) options() engine.RegistrationCreateOptions {
	return engine.RegistrationCreateOptions{
		FullName: r.FullName, Phone: r.Phone, Email: r.Email, Address: r.Address,
		Category: r.Category, Description: r.Description, HouseholdSize: r.HouseholdSize,
	}
}

func (r EditRegistrationRequest) edit() engine.RegistrationEdit {
	return engine.RegistrationEdit{
		FullName: r.FullName, Phone: r.Phone, Email: r.Email, Address: r.Address,
		Category: r.Category, Description: r.Description, HouseholdSize: r.HouseholdSize,
	}
}

func (r CreateReferralRequest) options() engine.ReferralCreateOptions {
	return engine.ReferralCreateOptions{
		CaseID: r.CaseID, ReferredFrom: r.ReferredFrom, ClientName: r.ClientName, ClientPhone: r.ClientPhone,
		Category: r.Category, Priority: r.Priority, Reason: r.Reason, Notes: r.Notes,
	}
}

func (r EditReferralRequest) edit() engine.ReferralEdit {
	return engine.ReferralEdit{
		ReferredFrom: r.ReferredFrom, ClientName: r.ClientName, ClientPhone: r.ClientPhone,
		Category: r.Category, Priority: r.Priority, Reason: r.Reason, Notes: r.Notes,
	}
}

func (r CreateOrganizationRequest) options() engine.OrganizationCreateOptions {
	return engine.OrganizationCreateOptions{
		Name: r.Name, Type: r.Type, Email: r.Email, Phone: r.Phone, Address: r.Address,
		Description: r.Description, SectorsProvided: r.SectorsProvided, LocationsCovered: r.LocationsCovered,
		Active: r.Active,
	}
}

// Response payloads

type TransitionsResponse struct {
	EntityKind string   `json:"entity_kind"`
	ID         string   `json:"id"`
	Allowed    []string `json:"allowed"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type WhoAmIResponse struct {
	ActorID        string `json:"actor_id"`
	Role           string `json:"role"`
	OrganizationID string `json:"organization_id,omitempty"`
	Source         string `json:"source"`
}

type CreatedAPIKeyResponse struct {
	APIKey domain.APIKey `json:"api_key"`
	Key    string        `json:"key" doc:"shown once"`
}

func eventResponse(e domain.Event) EventResponse {
	resp := EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
	}
	if e.Payload != "" {
		_ = json.Unmarshal([]byte(e.Payload), &resp.Payload)
	}
	return resp
}

func transitionNames(trs []domain.Transition) []string {
	out := make([]string, 0, len(trs))
	for _, t := range trs {
		out = append(out, string(t))
	}
	return out
}
