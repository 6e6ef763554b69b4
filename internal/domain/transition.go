package domain

// EntityKind names a workflow record type as stored in the activity log.
type EntityKind string

const (
	EntityCase         EntityKind = "case"
	EntityRegistration EntityKind = "registration"
	EntityReferral     EntityKind = "referral"
	EntityOrganization EntityKind = "organization"
)

// Transition names an operation checked by the authorization gate.
type Transition string

const (
	TransitionCreate     Transition = "create"
	TransitionApprove    Transition = "approve"
	TransitionReject     Transition = "reject"
	TransitionAdvance    Transition = "advance"
	TransitionAssign     Transition = "assign"
	TransitionAccept     Transition = "accept"
	TransitionDecline    Transition = "decline"
	TransitionComplete   Transition = "complete"
	TransitionEdit       Transition = "edit"
	TransitionDelete     Transition = "delete"
	TransitionActivate   Transition = "activate"
	TransitionDeactivate Transition = "deactivate"
)

// Transitions lists the operations that apply to each entity kind, in the
// order they are offered to a caller.
var Transitions = map[EntityKind][]Transition{
	EntityCase:         {TransitionApprove, TransitionReject, TransitionAdvance, TransitionAssign, TransitionEdit, TransitionDelete},
	EntityRegistration: {TransitionApprove, TransitionReject, TransitionAssign, TransitionEdit, TransitionDelete},
	EntityReferral:     {TransitionAssign, TransitionAccept, TransitionDecline, TransitionComplete, TransitionEdit, TransitionDelete},
	EntityOrganization: {TransitionActivate, TransitionDeactivate},
}
