package caselinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Caseline HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  10 * time.Second,
	}
}

// Case represents the API case model (partial).
type Case struct {
	ID              string `json:"id"`
	CaseNumber      string `json:"case_number"`
	Title           string `json:"title"`
	Priority        string `json:"priority"`
	Status          string `json:"status"`
	ApprovalStatus  string `json:"approval_status"`
	AssignedTo      string `json:"assigned_to,omitempty"`
	AssignedToType  string `json:"assigned_to_type,omitempty"`
	RejectionReason string `json:"rejection_reason,omitempty"`
	Version         int    `json:"version"`
}

// Registration represents a beneficiary registration (partial).
type Registration struct {
	ID                     string `json:"id"`
	RegistrationNumber     string `json:"registration_number"`
	FullName               string `json:"full_name"`
	Phone                  string `json:"phone"`
	Status                 string `json:"status"`
	AssignedOrganizationID string `json:"assigned_organization_id,omitempty"`
	Version                int    `json:"version"`
}

// Referral represents the API referral model (partial).
type Referral struct {
	ID                     string `json:"id"`
	ReferralNumber         string `json:"referral_number"`
	ClientName             string `json:"client_name,omitempty"`
	Reason                 string `json:"reason"`
	Status                 string `json:"status"`
	AssignedOrganizationID string `json:"assigned_organization_id,omitempty"`
	CanBeReassigned        bool   `json:"can_be_reassigned"`
	DeclineReason          string `json:"decline_reason,omitempty"`
	Version                int    `json:"version"`
}

// Organization is a partner that can receive assignments.
type Organization struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	SectorsProvided  []string `json:"sectors_provided"`
	LocationsCovered []string `json:"locations_covered"`
	IsActive         bool     `json:"is_active"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// Page is a list response.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses. Code is the envelope's error code, such
// as wrong_organization or conflict.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsCode reports whether err is an APIError with the given code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

type versioned struct {
	ExpectedVersion int `json:"expected_version,omitempty"`
}

type reasoned struct {
	Reason          string `json:"reason"`
	ExpectedVersion int    `json:"expected_version,omitempty"`
}

// CreateCase submits a case.
func (c *Client) CreateCase(ctx context.Context, title, priority string) (Case, error) {
	var resp Case
	err := c.do(ctx, http.MethodPost, "cases", map[string]any{"title": title, "priority": priority}, &resp)
	return resp, err
}

func (c *Client) GetCase(ctx context.Context, id string) (Case, error) {
	var resp Case
	err := c.do(ctx, http.MethodGet, "cases/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ApproveCase approves a case. expectedVersion 0 skips the version check.
func (c *Client) ApproveCase(ctx context.Context, id string, expectedVersion int) (Case, error) {
	var resp Case
	err := c.do(ctx, http.MethodPost, "cases/"+url.PathEscape(id)+"/approve", versioned{expectedVersion}, &resp)
	return resp, err
}

func (c *Client) RejectCase(ctx context.Context, id, reason string, expectedVersion int) (Case, error) {
	var resp Case
	err := c.do(ctx, http.MethodPost, "cases/"+url.PathEscape(id)+"/reject", reasoned{reason, expectedVersion}, &resp)
	return resp, err
}

// AdvanceCase moves an approved case to in_progress or closed.
func (c *Client) AdvanceCase(ctx context.Context, id, status string, expectedVersion int) (Case, error) {
	var resp Case
	body := map[string]any{"status": status, "expected_version": expectedVersion}
	err := c.do(ctx, http.MethodPost, "cases/"+url.PathEscape(id)+"/advance", body, &resp)
	return resp, err
}

// CreateRegistration registers a beneficiary.
func (c *Client) CreateRegistration(ctx context.Context, fullName, phone string) (Registration, error) {
	var resp Registration
	err := c.do(ctx, http.MethodPost, "registrations", map[string]any{"full_name": fullName, "phone": phone}, &resp)
	return resp, err
}

// CreateReferral creates an unassigned referral.
func (c *Client) CreateReferral(ctx context.Context, clientName, reason string) (Referral, error) {
	var resp Referral
	err := c.do(ctx, http.MethodPost, "referrals", map[string]any{"client_name": clientName, "reason": reason}, &resp)
	return resp, err
}

// AssignReferral assigns (or reassigns after a decline) a referral.
func (c *Client) AssignReferral(ctx context.Context, id, organizationID string, expectedVersion int) (Referral, error) {
	var resp Referral
	body := map[string]any{"organization_id": organizationID, "expected_version": expectedVersion}
	err := c.do(ctx, http.MethodPost, "referrals/"+url.PathEscape(id)+"/assign", body, &resp)
	return resp, err
}

func (c *Client) AcceptReferral(ctx context.Context, id string, expectedVersion int) (Referral, error) {
	var resp Referral
	err := c.do(ctx, http.MethodPost, "referrals/"+url.PathEscape(id)+"/accept", versioned{expectedVersion}, &resp)
	return resp, err
}

func (c *Client) DeclineReferral(ctx context.Context, id, reason string, expectedVersion int) (Referral, error) {
	var resp Referral
	err := c.do(ctx, http.MethodPost, "referrals/"+url.PathEscape(id)+"/decline", reasoned{reason, expectedVersion}, &resp)
	return resp, err
}

func (c *Client) CompleteReferral(ctx context.Context, id string, expectedVersion int) (Referral, error) {
	var resp Referral
	err := c.do(ctx, http.MethodPost, "referrals/"+url.PathEscape(id)+"/complete", versioned{expectedVersion}, &resp)
	return resp, err
}

// ReassignableReferrals lists declined referrals awaiting a new organization.
func (c *Client) ReassignableReferrals(ctx context.Context) (Page[Referral], error) {
	var resp Page[Referral]
	err := c.do(ctx, http.MethodGet, "referrals/reassignable", nil, &resp)
	return resp, err
}

// Candidates lists active organizations matching sector and location.
func (c *Client) Candidates(ctx context.Context, sector, location string) ([]Organization, error) {
	q := url.Values{}
	if sector != "" {
		q.Set("sector", sector)
	}
	if location != "" {
		q.Set("location", location)
	}
	endpoint := "organizations/candidates"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Organization
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Dashboard returns the aggregate counters as decoded JSON.
func (c *Client) Dashboard(ctx context.Context) (map[string]any, error) {
	var resp map[string]any
	err := c.do(ctx, http.MethodGet, "dashboard", nil, &resp)
	return resp, err
}

// EventsPage returns a paginated event listing, newest first.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	b, _ := io.ReadAll(resp.Body)
	apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	var env struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if json.Unmarshal(b, &env) == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		apiErr.Details = env.Error.Details
	}
	return apiErr
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(c.BasePath, "/")
}
