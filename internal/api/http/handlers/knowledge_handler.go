package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/escalation-service/internal/api/dto"
	"github.com/spec-kit/escalation-service/internal/service"
)

// KnowledgeHandler lists learned answers.
type KnowledgeHandler struct {
	service *service.KnowledgeService
}

// NewKnowledgeHandler constructs handler.
func NewKnowledgeHandler(knowledge *service.KnowledgeService) *KnowledgeHandler {
	return &KnowledgeHandler{service: knowledge}
}

// List GET /api/knowledge-base.
func (h *KnowledgeHandler) List(c *fiber.Ctx) error {
	entries, err := h.service.List(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.KnowledgeEntryResponse, 0, len(entries))
	for i := range entries {
		items = append(items, dto.NewKnowledgeEntryResponse(&entries[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}
