package domain

import "time"

// HelpRequestStatus enumerates lifecycle states for escalated questions.
type HelpRequestStatus string

const (
	HelpRequestStatusPending    HelpRequestStatus = "PENDING"
	HelpRequestStatusResolved   HelpRequestStatus = "RESOLVED"
	HelpRequestStatusUnresolved HelpRequestStatus = "UNRESOLVED"
)

// Valid reports whether s is a known status.
func (s HelpRequestStatus) Valid() bool {
	switch s {
	case HelpRequestStatusPending, HelpRequestStatusResolved, HelpRequestStatusUnresolved:
		return true
	}
	return false
}

// Terminal reports whether no further transition is expected out of s.
func (s HelpRequestStatus) Terminal() bool {
	return s == HelpRequestStatusResolved || s == HelpRequestStatusUnresolved
}

// HelpRequest is a question the agent could not answer, waiting on a supervisor.
type HelpRequest struct {
	ID                string
	CustomerID        string
	Question          string
	Status            HelpRequestStatus
	AssignedTo        *string
	TimeoutAt         time.Time
	ResolutionMessage *string
	KBEntryID         *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Overdue reports whether a pending request has passed its deadline at now.
func (r *HelpRequest) Overdue(now time.Time) bool {
	return r.Status == HelpRequestStatusPending && r.TimeoutAt.Before(now)
}

// Expire moves an overdue request to UNRESOLVED, keeping any message
// already present and falling back to fallback otherwise.
func (r *HelpRequest) Expire(now time.Time, fallback string) {
	r.Status = HelpRequestStatusUnresolved
	r.UpdatedAt = now
	if r.ResolutionMessage == nil {
		msg := fallback
		r.ResolutionMessage = &msg
	}
}

// Resolve records a supervisor answer and the knowledge entry it produced.
func (r *HelpRequest) Resolve(now time.Time, answer, kbEntryID string) {
	r.Status = HelpRequestStatusResolved
	r.ResolutionMessage = &answer
	r.KBEntryID = &kbEntryID
	r.UpdatedAt = now
}

// ExpandedHelpRequest is a help request joined with its customer.
type ExpandedHelpRequest struct {
	HelpRequest
	Customer Customer
}
