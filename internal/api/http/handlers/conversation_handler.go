package handlers

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/escalation-service/internal/agent"
	"github.com/spec-kit/escalation-service/internal/api/dto"
	"github.com/spec-kit/escalation-service/internal/speech"
	apperrors "github.com/spec-kit/escalation-service/pkg/util/errorutil"
)

// ConversationHandler drives the per-room agents over HTTP.
type ConversationHandler struct {
	agents *agent.Pool
}

// NewConversationHandler constructs handler.
func NewConversationHandler(agents *agent.Pool) *ConversationHandler {
	return &ConversationHandler{agents: agents}
}

// Join PUT /api/conversations/:room.
func (h *ConversationHandler) Join(c *fiber.Ctx) error {
	a, err := h.agents.Get(c.UserContext(), c.Params("room"))
	if err != nil {
		return apperrors.NewValidationError(err.Error(), nil)
	}
	return c.JSON(fiber.Map{"data": dto.JoinRoomResponse{
		Room:       c.Params("room"),
		Identity:   a.Identity(),
		Transcript: transcript(a),
	}})
}

// Transcript GET /api/conversations/:room.
func (h *ConversationHandler) Transcript(c *fiber.Ctx) error {
	a, ok := h.agents.Lookup(c.Params("room"))
	if !ok {
		return apperrors.NewNotFound("conversation", map[string]any{"room": c.Params("room")})
	}
	return c.JSON(fiber.Map{"data": dto.JoinRoomResponse{
		Room:       c.Params("room"),
		Identity:   a.Identity(),
		Transcript: transcript(a),
	}})
}

// Leave DELETE /api/conversations/:room.
func (h *ConversationHandler) Leave(c *fiber.Ctx) error {
	if !h.agents.Remove(c.Params("room")) {
		return apperrors.NewNotFound("conversation", map[string]any{"room": c.Params("room")})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Message POST /api/conversations/:room/messages.
func (h *ConversationHandler) Message(c *fiber.Ctx) error {
	var req dto.ConversationMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	a, err := h.agents.Get(c.UserContext(), c.Params("room"))
	if err != nil {
		return apperrors.NewValidationError(err.Error(), nil)
	}
	reply, err := a.HandleText(c.UserContext(), req.Message)
	if err != nil {
		return turnError(err)
	}
	return c.JSON(fiber.Map{"data": turnResponse(a, reply)})
}

// Utterance POST /api/conversations/:room/utterances. The raw body is the
// captured segment; its Content-Type selects how it is transcribed.
func (h *ConversationHandler) Utterance(c *fiber.Ctx) error {
	a, err := h.agents.Get(c.UserContext(), c.Params("room"))
	if err != nil {
		return apperrors.NewValidationError(err.Error(), nil)
	}
	source := speech.BufferSource{
		Data:   append([]byte(nil), c.Body()...),
		Format: c.Get(fiber.HeaderContentType),
	}
	reply, err := a.TurnFrom(c.UserContext(), source)
	if err != nil {
		return turnError(err)
	}
	return c.JSON(fiber.Map{"data": turnResponse(a, reply)})
}

func turnError(err error) error {
	if errors.Is(err, agent.ErrBusy) {
		return apperrors.NewConflict("agent is still answering the previous message", nil)
	}
	var te *agent.TranscriptionError
	if errors.As(err, &te) {
		return apperrors.NewDomainError("TRANSCRIPTION_FAILED", te.UserMessage(), http.StatusUnprocessableEntity,
			map[string]any{"kind": te.Kind})
	}
	return err
}

func turnResponse(a *agent.Agent, reply *agent.Reply) dto.TurnResponse {
	resp := dto.TurnResponse{
		Question:   reply.Question,
		Answer:     reply.Answer,
		Escalated:  reply.Escalated,
		Relayed:    reply.Relayed,
		Transcript: transcript(a),
	}
	if reply.Entry != nil {
		entry := dto.NewKnowledgeEntryResponse(reply.Entry)
		resp.Entry = &entry
	}
	return resp
}

func transcript(a *agent.Agent) []dto.TranscriptLine {
	lines := a.Transcript()
	out := make([]dto.TranscriptLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, dto.TranscriptLine{Sender: l.Speaker, Text: l.Text})
	}
	return out
}
