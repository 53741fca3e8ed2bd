package dto

import (
	"time"

	"github.com/spec-kit/escalation-service/internal/domain"
)

// CreateHelpRequestRequest payload.
type CreateHelpRequestRequest struct {
	CustomerID     string `json:"customer_id"`
	Question       string `json:"question"`
	TimeoutMinutes *int   `json:"timeout_minutes,omitempty"`
}

// ResolveHelpRequestRequest payload.
type ResolveHelpRequestRequest struct {
	Answer string `json:"answer"`
}

// CustomerResponse is the customer embedded in help request responses.
type CustomerResponse struct {
	ID        string    `json:"id"`
	Phone     string    `json:"phone"`
	Name      *string   `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// HelpRequestResponse is a help request expanded with its customer.
type HelpRequestResponse struct {
	ID                string                   `json:"id"`
	CustomerID        string                   `json:"customer_id"`
	Question          string                   `json:"question"`
	Status            domain.HelpRequestStatus `json:"status"`
	AssignedTo        *string                  `json:"assigned_to"`
	TimeoutAt         time.Time                `json:"timeout_at"`
	ResolutionMessage *string                  `json:"resolution_message"`
	KBEntryID         *string                  `json:"kb_entry_id"`
	CreatedAt         time.Time                `json:"created_at"`
	UpdatedAt         time.Time                `json:"updated_at"`
	Customer          CustomerResponse         `json:"customer"`
}

// NewHelpRequestResponse maps an expanded help request.
func NewHelpRequestResponse(req *domain.ExpandedHelpRequest) HelpRequestResponse {
	return HelpRequestResponse{
		ID:                req.ID,
		CustomerID:        req.CustomerID,
		Question:          req.Question,
		Status:            req.Status,
		AssignedTo:        req.AssignedTo,
		TimeoutAt:         req.TimeoutAt,
		ResolutionMessage: req.ResolutionMessage,
		KBEntryID:         req.KBEntryID,
		CreatedAt:         req.CreatedAt,
		UpdatedAt:         req.UpdatedAt,
		Customer: CustomerResponse{
			ID:        req.Customer.ID,
			Phone:     req.Customer.Phone,
			Name:      req.Customer.Name,
			CreatedAt: req.Customer.CreatedAt,
		},
	}
}
