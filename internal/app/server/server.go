package server

import (
	"log/slog"
	"net/http"
	"time"

	"civicstream/internal/app/registry"
	"civicstream/internal/app/server/handlers"
	"civicstream/internal/core/services"
	"civicstream/pkg/middleware"
)

type Server struct {
	mux          *http.ServeMux
	addr         string
	log          *slog.Logger
	authHandler  *handlers.AuthHandler
	wsHandler    *handlers.WSHandler
	notifHandler *handlers.NotificationHandler
	tokenSvc     *services.TokenService
	serviceName  string
}

func NewServer(
	log *slog.Logger,
	serviceName string,
	addr string,
	tokenSvc *services.TokenService,
	dispatchSvc *services.DispatchService,
	presenceSvc *services.PresenceService,
	notifSvc *services.NotificationService,
	hub *registry.Registry,
) *Server {
	s := &Server{
		mux:          http.NewServeMux(),
		addr:         addr,
		log:          log,
		authHandler:  handlers.NewAuthHandler(tokenSvc),
		wsHandler:    handlers.NewWSHandler(hub, dispatchSvc, presenceSvc),
		notifHandler: handlers.NewNotificationHandler(notifSvc),
		tokenSvc:     tokenSvc,
		serviceName:  serviceName,
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	auth := middleware.AuthMiddleware(s.tokenSvc)
	logged := middleware.RequestLogger(s.log)
	traced := middleware.TracerMiddleware(s.serviceName)

	wrap := func(h http.HandlerFunc) http.Handler {
		return traced(logged(auth(h)))
	}

	// Public
	s.mux.Handle("POST /auth/token", traced(logged(http.HandlerFunc(s.authHandler.IssueToken))))

	// Channel handshake
	s.mux.Handle("GET /ws", wrap(s.wsHandler.Handler))

	// Notification baseline + mutations
	s.mux.Handle("GET /api/notifications", wrap(s.notifHandler.List))
	s.mux.Handle("PATCH /api/notifications/read-all", wrap(s.notifHandler.MarkAllRead))
	s.mux.Handle("PATCH /api/notifications/{id}/read", wrap(s.notifHandler.MarkRead))
	s.mux.Handle("DELETE /api/notifications/{id}", wrap(s.notifHandler.Delete))
}

func (s *Server) Start() error {
	server := &http.Server{
		Addr:         s.addr,
		Handler:      s.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	s.log.Info("server starting", "addr", s.addr)
	return server.ListenAndServe()
}
