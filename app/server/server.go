package server

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"sambot/app/api"
)

type Server struct {
	listenAddr string
	app        *fiber.App
	logger     *slog.Logger
}

func New(listenAddr string, agent api.Asker, defaultState string) *Server {
	app := fiber.New(fiber.Config{
		ErrorHandler: api.ErrorHandler,
	})

	var (
		checkHandler = api.NewCheckHandler()
		askHandler   = api.NewAskHandler(agent, defaultState)
		check        = app.Group("/check")
		apiv1        = app.Group("/api/v1")
	)

	check.Get("/healthy", checkHandler.HandleHealthy)
	apiv1.Post("/ask", askHandler.HandleAsk)

	return &Server{
		listenAddr: listenAddr,
		app:        app,
		logger:     slog.Default(),
	}
}

func (s *Server) Run() error {
	s.logger.Info("server listening", "addr", s.listenAddr)
	return s.app.Listen(s.listenAddr)
}

func (s *Server) Stop() error {
	s.logger.Info("server stopping")
	return s.app.Shutdown()
}
