package domain

type Case struct {
	ID              string        `json:"id"`
	CaseNumber      string        `json:"case_number"`
	Title           string        `json:"title"`
	Description     string        `json:"description,omitempty"`
	Category        string        `json:"category,omitempty"`
	Priority        string        `json:"priority" enum:"low,medium,high,urgent"`
	Status          string        `json:"status" enum:"open,pending,approved,in_progress,closed"`
	ApprovalStatus  string        `json:"approval_status" enum:"pending,approved,rejected"`
	AssignedTo      *string       `json:"assigned_to,omitempty"`
	AssignedToType  *AssigneeType `json:"assigned_to_type,omitempty" enum:"user,organization"`
	CreatedBy       string        `json:"created_by"`
	ApprovedBy      *string       `json:"approved_by,omitempty"`
	ApprovedAt      *string       `json:"approved_at,omitempty" format:"date-time"`
	RejectionReason *string       `json:"rejection_reason,omitempty"`
	Version         int           `json:"version"`
	CreatedAt       string        `json:"created_at" format:"date-time"`
	UpdatedAt       string        `json:"updated_at" format:"date-time"`
}

// Assignee returns the typed assignment target, if any.
func (c Case) Assignee() (Assignee, bool) {
	if c.AssignedTo == nil || c.AssignedToType == nil {
		return Assignee{}, false
	}
	return Assignee{Type: *c.AssignedToType, ID: *c.AssignedTo}, true
}

type Registration struct {
	ID                     string  `json:"id"`
	RegistrationNumber     string  `json:"registration_number"`
	FullName               string  `json:"full_name"`
	Phone                  string  `json:"phone"`
	Email                  string  `json:"email,omitempty"`
	Address                string  `json:"address,omitempty"`
	Category               string  `json:"category,omitempty"`
	Description            string  `json:"description,omitempty"`
	HouseholdSize          *int    `json:"household_size,omitempty"`
	Status                 string  `json:"status" enum:"pending,approved,rejected"`
	ApprovalStatus         string  `json:"approval_status" enum:"pending,approved,rejected"`
	AssignedOrganizationID *string `json:"assigned_organization_id,omitempty"`
	AssignmentDate         *string `json:"assignment_date,omitempty" format:"date-time"`
	CreatedBy              string  `json:"created_by"`
	ApprovedBy             *string `json:"approved_by,omitempty"`
	ApprovedAt             *string `json:"approved_at,omitempty" format:"date-time"`
	RejectionReason        *string `json:"rejection_reason,omitempty"`
	Version                int     `json:"version"`
	CreatedAt              string  `json:"created_at" format:"date-time"`
	UpdatedAt              string  `json:"updated_at" format:"date-time"`
}

type Referral struct {
	ID                     string  `json:"id"`
	ReferralNumber         string  `json:"referral_number"`
	CaseID                 *string `json:"case_id,omitempty"`
	ReferredFrom           string  `json:"referred_from"`
	ReferredTo             string  `json:"referred_to,omitempty"`
	ClientName             string  `json:"client_name,omitempty"`
	ClientPhone            string  `json:"client_phone,omitempty"`
	Category               string  `json:"category,omitempty"`
	Priority               string  `json:"priority" enum:"low,medium,high,urgent"`
	Reason                 string  `json:"reason"`
	Notes                  string  `json:"notes,omitempty"`
	Status                 string  `json:"status" enum:"pending,accepted,rejected,completed"`
	ApprovalStatus         string  `json:"approval_status" enum:"pending,accepted,rejected,completed"`
	AssignedOrganizationID *string `json:"assigned_organization_id,omitempty"`
	AssignedBy             *string `json:"assigned_by,omitempty"`
	CanBeReassigned        bool    `json:"can_be_reassigned"`
	DeclineReason          *string `json:"decline_reason,omitempty"`
	RejectionReason        *string `json:"rejection_reason,omitempty"`
	ApprovedBy             *string `json:"approved_by,omitempty"`
	ApprovedAt             *string `json:"approved_at,omitempty" format:"date-time"`
	CreatedBy              string  `json:"created_by"`
	Version                int     `json:"version"`
	CreatedAt              string  `json:"created_at" format:"date-time"`
	UpdatedAt              string  `json:"updated_at" format:"date-time"`
}

type Organization struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Type             string   `json:"type,omitempty"`
	Email            string   `json:"email,omitempty"`
	Phone            string   `json:"phone,omitempty"`
	Address          string   `json:"address,omitempty"`
	Description      string   `json:"description,omitempty"`
	SectorsProvided  []string `json:"sectors_provided"`
	LocationsCovered []string `json:"locations_covered"`
	IsActive         bool     `json:"is_active"`
	CreatedBy        string   `json:"created_by,omitempty"`
	CreatedAt        string   `json:"created_at" format:"date-time"`
	UpdatedAt        string   `json:"updated_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID             string `json:"id"`
	ActorID        string `json:"actor_id"`
	Role           Role   `json:"role"`
	OrganizationID string `json:"organization_id,omitempty"`
	Name           string `json:"name,omitempty"`
	KeyHash        string `json:"key_hash,omitempty"`
	CreatedAt      string `json:"created_at" format:"date-time"`
}

// Page is a list result with the total number of matching rows.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}
