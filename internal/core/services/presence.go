package services

import (
	"context"
	"log/slog"
	"time"

	"civicstream/internal/core/contracts"
	"civicstream/internal/core/domain"
	"civicstream/pkg/logging"
)

const (
	defaultPresenceTTL       = 45 * time.Second
	defaultHeartbeatInterval = 30 * time.Second
)

// PresenceService tracks who is online and pushes the replaced
// online_users_updated snapshot whenever membership changes.
type PresenceService struct {
	store     contracts.PresenceStore
	dispatch  *DispatchService
	log       *slog.Logger
	ttl       time.Duration
	heartbeat time.Duration
}

func NewPresenceService(
	log *slog.Logger,
	store contracts.PresenceStore,
	dispatch *DispatchService,
	ttl time.Duration,
	heartbeat time.Duration,
) *PresenceService {
	if ttl <= 0 {
		ttl = defaultPresenceTTL
	}
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}
	return &PresenceService{
		log:       log,
		store:     store,
		dispatch:  dispatch,
		ttl:       ttl,
		heartbeat: heartbeat,
	}
}

// HandleConnect marks the user online and broadcasts the new snapshot.
func (s *PresenceService) HandleConnect(ctx context.Context, ident *Identity) error {
	user := domain.OnlineUser{ID: ident.UserID, Name: ident.UserName, Role: ident.Role}
	if err := s.store.Touch(ctx, user, s.ttl); err != nil {
		s.log.ErrorContext(ctx, "presence - handle connect - touch failed",
			logging.User(ident.UserID), logging.Err(err))
		return err
	}
	return s.broadcastSnapshot(ctx)
}

// HandleDisconnect removes the user and broadcasts the shrunk snapshot.
func (s *PresenceService) HandleDisconnect(ctx context.Context, ident *Identity) error {
	if err := s.store.Remove(ctx, ident.UserID); err != nil {
		s.log.ErrorContext(ctx, "presence - handle disconnect - remove failed",
			logging.User(ident.UserID), logging.Err(err))
		return err
	}
	return s.broadcastSnapshot(ctx)
}

// HandleHeartbeat refreshes the user's presence score until ctx ends.
// Runs for the lifetime of one websocket connection.
func (s *PresenceService) HandleHeartbeat(ctx context.Context, ident *Identity) {
	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	user := domain.OnlineUser{ID: ident.UserID, Name: ident.UserName, Role: ident.Role}
	for {
		select {
		case <-ctx.Done():
			s.log.Info("presence - heartbeat - stopped", logging.User(ident.UserID))
			return
		case <-ticker.C:
			if err := s.store.Touch(ctx, user, s.ttl); err != nil {
				s.log.ErrorContext(ctx, "presence - heartbeat - touch failed",
					logging.User(ident.UserID), logging.Err(err))
			}
		}
	}
}

func (s *PresenceService) broadcastSnapshot(ctx context.Context) error {
	users, err := s.store.Online(ctx)
	if err != nil {
		s.log.ErrorContext(ctx, "presence - snapshot - read failed", logging.Err(err))
		return err
	}
	env, err := domain.NewEnvelope(domain.EventOnlineUsersUpdated, users)
	if err != nil {
		return err
	}
	return s.dispatch.PublishAll(ctx, env)
}
