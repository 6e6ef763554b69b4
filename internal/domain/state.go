package domain

import "fmt"

// Persisted status literals. These values are read by dashboards and reports
// and must not be renamed.
const (
	StatusOpen       = "open"
	StatusPending    = "pending"
	StatusApproved   = "approved"
	StatusInProgress = "in_progress"
	StatusClosed     = "closed"
	StatusRejected   = "rejected"
	StatusAccepted   = "accepted"
	StatusCompleted  = "completed"
)

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

var priorities = map[string]bool{PriorityLow: true, PriorityMedium: true, PriorityHigh: true, PriorityUrgent: true}

// ValidPriority reports whether p is a known priority literal.
func ValidPriority(p string) bool { return priorities[p] }

// CaseActiveStatuses is the dashboard "active/open" bucket.
var CaseActiveStatuses = []string{StatusOpen, StatusApproved, StatusInProgress}

// CaseState is the single lifecycle state of a Case; status and
// approval_status are projections of it.
type CaseState string

const (
	CaseSubmitted  CaseState = "submitted"
	CaseApproved   CaseState = "approved"
	CaseInProgress CaseState = "in_progress"
	CaseRejected   CaseState = "rejected"
	CaseClosed     CaseState = "closed"
)

// Fields returns the legacy (status, approval_status) pair.
func (s CaseState) Fields() (status, approval string) {
	switch s {
	case CaseSubmitted:
		return StatusOpen, StatusPending
	case CaseApproved:
		return StatusApproved, StatusApproved
	case CaseInProgress:
		return StatusInProgress, StatusApproved
	case CaseRejected:
		return StatusClosed, StatusRejected
	case CaseClosed:
		return StatusClosed, StatusApproved
	}
	return "", ""
}

// Terminal reports whether no status write is accepted from s.
func (s CaseState) Terminal() bool { return s == CaseRejected || s == CaseClosed }

// ParseCaseState maps stored legacy fields back to a single state.
func ParseCaseState(status, approval string) (CaseState, error) {
	switch approval {
	case StatusPending:
		if status == StatusOpen || status == StatusPending {
			return CaseSubmitted, nil
		}
	case StatusApproved:
		switch status {
		case StatusApproved:
			return CaseApproved, nil
		case StatusInProgress:
			return CaseInProgress, nil
		case StatusClosed:
			return CaseClosed, nil
		}
	case StatusRejected:
		return CaseRejected, nil
	}
	return "", fmt.Errorf("inconsistent case state status=%q approval_status=%q", status, approval)
}

// State parses the case's legacy fields.
func (c Case) State() (CaseState, error) { return ParseCaseState(c.Status, c.ApprovalStatus) }

// SetState writes both legacy fields from s.
func (c *Case) SetState(s CaseState) { c.Status, c.ApprovalStatus = s.Fields() }

type RegistrationState string

const (
	RegistrationSubmitted RegistrationState = "submitted"
	RegistrationApproved  RegistrationState = "approved"
	RegistrationRejected  RegistrationState = "rejected"
)

func (s RegistrationState) Fields() (status, approval string) {
	switch s {
	case RegistrationSubmitted:
		return StatusPending, StatusPending
	case RegistrationApproved:
		return StatusApproved, StatusApproved
	case RegistrationRejected:
		return StatusRejected, StatusRejected
	}
	return "", ""
}

func (s RegistrationState) Terminal() bool { return s == RegistrationRejected }

func ParseRegistrationState(status, approval string) (RegistrationState, error) {
	if status == approval {
		switch status {
		case StatusPending:
			return RegistrationSubmitted, nil
		case StatusApproved:
			return RegistrationApproved, nil
		case StatusRejected:
			return RegistrationRejected, nil
		}
	}
	return "", fmt.Errorf("inconsistent registration state status=%q approval_status=%q", status, approval)
}

func (r Registration) State() (RegistrationState, error) {
	return ParseRegistrationState(r.Status, r.ApprovalStatus)
}

func (r *Registration) SetState(s RegistrationState) { r.Status, r.ApprovalStatus = s.Fields() }

// ReferralState covers both the unassigned and the awaiting-answer phases
// with ReferralOpen; assignment is tracked by AssignedOrganizationID.
type ReferralState string

const (
	ReferralOpen      ReferralState = "open"
	ReferralAccepted  ReferralState = "accepted"
	ReferralDeclined  ReferralState = "declined"
	ReferralCompleted ReferralState = "completed"
)

// Terminal reports whether s is completed. Declined referrals stay open to
// reassignment.
func (s ReferralState) Terminal() bool { return s == ReferralCompleted }

// Fields returns status and approval_status, which mirror each other.
func (s ReferralState) Fields() (status, approval string) {
	var v string
	switch s {
	case ReferralOpen:
		v = StatusPending
	case ReferralAccepted:
		v = StatusAccepted
	case ReferralDeclined:
		v = StatusRejected
	case ReferralCompleted:
		v = StatusCompleted
	}
	return v, v
}

// ParseReferralState reads status only; approval_status is a mirror and the
// legacy value "approved" is tolerated for accepted rows.
func ParseReferralState(status string) (ReferralState, error) {
	switch status {
	case StatusPending:
		return ReferralOpen, nil
	case StatusAccepted:
		return ReferralAccepted, nil
	case StatusRejected:
		return ReferralDeclined, nil
	case StatusCompleted:
		return ReferralCompleted, nil
	}
	return "", fmt.Errorf("unknown referral status %q", status)
}

func (r Referral) State() (ReferralState, error) { return ParseReferralState(r.Status) }

func (r *Referral) SetState(s ReferralState) {
	r.Status, r.ApprovalStatus = s.Fields()
	r.CanBeReassigned = s == ReferralDeclined
}

// Assigned reports whether the referral currently targets an organization.
func (r Referral) Assigned() bool {
	return r.AssignedOrganizationID != nil && *r.AssignedOrganizationID != ""
}
