package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/escalation-service/internal/api/http/handlers"
	"github.com/spec-kit/escalation-service/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health        *handlers.HealthHandler
	HelpRequests  *handlers.HelpRequestsHandler
	Knowledge     *handlers.KnowledgeHandler
	Relay         *handlers.RelayHandler
	Conversations *handlers.ConversationHandler
	Metrics       *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Metrics.Registry(), promhttp.HandlerOpts{})))
	}

	api := app.Group("/api")

	helpRequests := api.Group("/help-requests")
	helpRequests.Get("/", cfg.HelpRequests.List)
	helpRequests.Post("/", cfg.HelpRequests.Create)
	helpRequests.Get("/:id", cfg.HelpRequests.Get)
	helpRequests.Post("/:id/resolve", cfg.HelpRequests.Resolve)

	api.Get("/knowledge-base", cfg.Knowledge.List)

	api.Post("/relay/token", cfg.Relay.Token)

	conversations := api.Group("/conversations")
	conversations.Put("/:room", cfg.Conversations.Join)
	conversations.Get("/:room", cfg.Conversations.Transcript)
	conversations.Delete("/:room", cfg.Conversations.Leave)
	conversations.Post("/:room/messages", cfg.Conversations.Message)
	conversations.Post("/:room/utterances", cfg.Conversations.Utterance)
}
