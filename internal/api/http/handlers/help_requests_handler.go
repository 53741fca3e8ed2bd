package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/escalation-service/internal/api/dto"
	"github.com/spec-kit/escalation-service/internal/domain"
	"github.com/spec-kit/escalation-service/internal/service"
	apperrors "github.com/spec-kit/escalation-service/pkg/util/errorutil"
)

// HelpRequestsHandler serves the supervisor help request endpoints.
type HelpRequestsHandler struct {
	service *service.HelpRequestService
}

// NewHelpRequestsHandler constructs handler.
func NewHelpRequestsHandler(helpRequests *service.HelpRequestService) *HelpRequestsHandler {
	return &HelpRequestsHandler{service: helpRequests}
}

// List GET /api/help-requests?status=.
func (h *HelpRequestsHandler) List(c *fiber.Ctx) error {
	var status *domain.HelpRequestStatus
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		s := domain.HelpRequestStatus(strings.ToUpper(raw))
		status = &s
	}
	reqs, err := h.service.List(c.UserContext(), status)
	if err != nil {
		return err
	}
	items := make([]dto.HelpRequestResponse, 0, len(reqs))
	for i := range reqs {
		items = append(items, dto.NewHelpRequestResponse(&reqs[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Create POST /api/help-requests.
func (h *HelpRequestsHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateHelpRequestRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.CustomerID) == "" || strings.TrimSpace(req.Question) == "" {
		return apperrors.NewValidationError("customer_id and question required", nil)
	}
	input := service.HelpRequestCreateInput{
		CustomerID: strings.TrimSpace(req.CustomerID),
		Question:   req.Question,
	}
	if req.TimeoutMinutes != nil {
		if *req.TimeoutMinutes <= 0 {
			return apperrors.NewValidationError("timeout_minutes must be positive", nil)
		}
		input.Horizon = time.Duration(*req.TimeoutMinutes) * time.Minute
	}
	created, err := h.service.Create(c.UserContext(), input)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewHelpRequestResponse(created)})
}

// Get GET /api/help-requests/:id.
func (h *HelpRequestsHandler) Get(c *fiber.Ctx) error {
	req, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewHelpRequestResponse(req)})
}

// Resolve POST /api/help-requests/:id/resolve.
func (h *HelpRequestsHandler) Resolve(c *fiber.Ctx) error {
	var req dto.ResolveHelpRequestRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Answer) == "" {
		return apperrors.NewValidationError("answer required", nil)
	}
	resolved, err := h.service.Resolve(c.UserContext(), c.Params("id"), req.Answer)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewHelpRequestResponse(resolved)})
}
