package handlers

import (
	"context"
	"net/http"

	"civicstream/internal/app/registry"
	"civicstream/internal/app/server/ws"
	"civicstream/internal/core/services"
	"civicstream/pkg/logging"
	"civicstream/pkg/middleware"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type WSHandler struct {
	hub      *registry.Registry
	dispatch *services.DispatchService
	presence *services.PresenceService
}

func NewWSHandler(
	hub *registry.Registry,
	dispatch *services.DispatchService,
	presence *services.PresenceService,
) *WSHandler {
	return &WSHandler{
		hub:      hub,
		dispatch: dispatch,
		presence: presence,
	}
}

func (s *WSHandler) Handler(w http.ResponseWriter, r *http.Request) {
	log := middleware.Logger(r.Context())
	span := trace.SpanFromContext(r.Context())
	ident, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		log.ErrorContext(r.Context(), "ws handler - unauthorised missing identity")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	span.SetAttributes(attribute.String("user.id", ident.UserID))

	sessionCtx := context.WithoutCancel(r.Context())
	ctx, cancel := context.WithCancel(sessionCtx)
	defer cancel()
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true // tighten later
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.ErrorContext(r.Context(), "ws handler - upgrade failed", logging.Err(err))
		return
	}
	defer conn.Close()
	conn.SetCloseHandler(func(code int, text string) error {
		log.Info("ws handler - channel closed", logging.User(ident.UserID))
		cancel()
		return nil
	})
	socket := ws.NewWebSocket(ctx, conn)

	client := ws.NewClient(ctx, socket, uuid.NewString(), ident.UserID)
	s.hub.Register(client)
	defer s.hub.Unregister(client)
	defer s.presence.HandleDisconnect(sessionCtx, ident)

	if err := s.presence.HandleConnect(ctx, ident); err != nil {
		log.WarnContext(r.Context(), "ws handler - presence connect failed",
			logging.User(ident.UserID), logging.Err(err))
	}
	log.InfoContext(r.Context(), "ws handler - channel established", logging.User(ident.UserID))

	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		s.presence.HandleHeartbeat(ctx, ident)
	}()

	socket.ReadLoop(func(data []byte) {
		if err := s.dispatch.HandleSignal(ctx, client, ident, data); err != nil {
			log.DebugContext(ctx, "ws handler - signal rejected",
				logging.User(ident.UserID), logging.Err(err))
		}
	})

	// An abnormal drop exits the read loop without a close frame. Stop
	// the heartbeat before the deferred disconnect removes the presence
	// entry, so it cannot touch the user back in.
	cancel()
	<-hbDone
}
