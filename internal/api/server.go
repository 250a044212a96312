package api

import (
	"context"
	"time"

	"github.com/fathima-sithara/chat-core/internal/auth"
	"github.com/fathima-sithara/chat-core/internal/broker"
	"github.com/fathima-sithara/chat-core/internal/metrics"
	"github.com/fathima-sithara/chat-core/internal/service"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	messages *service.MessageService
	queries  *service.QueryService
	store    Pinger
	broker   broker.Broker
	timeout  time.Duration
	log      *zap.Logger
}

func NewServer(messages *service.MessageService, queries *service.QueryService, store Pinger, b broker.Broker, jv *auth.Validator, log *zap.Logger) *fiber.App {
	s := &Server{
		messages: messages,
		queries:  queries,
		store:    store,
		broker:   b,
		timeout:  5 * time.Second,
		log:      log.Named("http"),
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          s.errorHandler,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(MetricsMiddleware())

	app.Get("/healthz", s.health)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	api := app.Group("/v1/chat", JWTAuthMiddleware(jv))
	api.Post("/conversations/ensure", s.ensureConversation)
	api.Post("/conversations/group", s.createGroup)
	api.Get("/conversations", s.listConversations)
	api.Get("/conversations/:id/messages", s.readMessages)
	api.Post("/conversations/:id/read", s.markAsRead)
	api.Post("/messages", s.sendMessage)
	api.Post("/users/:userId/messages", s.sendToUser)

	return app
}

func (s *Server) health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	mongo := "ok"
	if err := s.store.Ping(ctx); err != nil {
		mongo = err.Error()
	}
	state := s.broker.State()
	body := fiber.Map{"mongodb": mongo, "broker": state.String()}
	if mongo != "ok" || state != broker.StateConnected {
		body["status"] = "degraded"
		return c.Status(fiber.StatusServiceUnavailable).JSON(body)
	}
	body["status"] = "ok"
	return c.JSON(body)
}
