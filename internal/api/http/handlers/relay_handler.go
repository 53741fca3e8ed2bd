package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/escalation-service/internal/api/dto"
	"github.com/spec-kit/escalation-service/internal/relay"
	apperrors "github.com/spec-kit/escalation-service/pkg/util/errorutil"
)

// RelayHandler mints room join tokens.
type RelayHandler struct {
	issuer *relay.TokenIssuer
	url    string
}

// NewRelayHandler constructs handler. A nil or unconfigured issuer makes
// the endpoint answer 503.
func NewRelayHandler(issuer *relay.TokenIssuer, url string) *RelayHandler {
	return &RelayHandler{issuer: issuer, url: url}
}

// Token POST /api/relay/token.
func (h *RelayHandler) Token(c *fiber.Ctx) error {
	if !h.issuer.Configured() {
		return apperrors.NewUnavailable("relay credentials not configured")
	}
	var req dto.RelayTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	room := strings.TrimSpace(req.Room)
	if room == "" {
		return apperrors.NewValidationError("room required", nil)
	}
	identity := strings.TrimSpace(req.Identity)
	if identity == "" {
		identity = relay.RandomIdentity()
	}
	token, err := h.issuer.Issue(identity, room)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	return c.JSON(dto.RelayTokenResponse{Token: token, Identity: identity, Room: room, URL: h.url})
}
