package services

import (
	"context"
	"log/slog"
	"time"

	"civicstream/internal/core/domain"
	"civicstream/pkg/logging"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// NotificationService is the authoritative side of the client's
// notification reconciler: it owns the durable per-user collection and
// pushes the realtime copy of every new entry to the user's room.
type NotificationService struct {
	repo      domain.NotificationRepository
	dispatch  *DispatchService
	txManager *TxManager
	log       *slog.Logger
}

func NewNotificationService(
	log *slog.Logger,
	repo domain.NotificationRepository,
	dispatch *DispatchService,
	txManager *TxManager,
) *NotificationService {
	return &NotificationService{
		log:       log,
		repo:      repo,
		dispatch:  dispatch,
		txManager: txManager,
	}
}

// List returns the user's collection newest-first. This is the REST
// baseline the client reconciles pushes against.
func (s *NotificationService) List(ctx context.Context, userID string) ([]domain.Notification, error) {
	ctx, span := tracer.Start(ctx, "NotificationService.List", trace.WithAttributes(
		attribute.String("user_id", userID),
	))
	defer span.End()
	if userID == "" {
		return nil, domain.ErrInvalidUserID
	}
	items, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "db read failed")
		s.log.ErrorContext(ctx, "notifications - list - repo read failed",
			logging.User(userID), logging.Err(err))
		return nil, err
	}
	span.SetAttributes(attribute.Int("notification_count", len(items)))
	return items, nil
}

// Push persists a new notification and enqueues the realtime copy for
// the user's room. Persist-then-push: a crash between the two leaves the
// entry discoverable on the next baseline fetch, never a phantom push.
func (s *NotificationService) Push(ctx context.Context, userID string, n domain.Notification) error {
	ctx, span := tracer.Start(ctx, "NotificationService.Push", trace.WithAttributes(
		attribute.String("user_id", userID),
		attribute.String("notification_type", n.Type),
	))
	defer span.End()
	if userID == "" {
		return domain.ErrInvalidUserID
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if err := s.txManager.WithTx(ctx, func(txCtx context.Context) error {
		return s.repo.Create(txCtx, userID, &n)
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		s.log.ErrorContext(ctx, "notifications - push - persist failed",
			logging.User(userID), logging.NotificationID(n.ID), logging.Err(err))
		return err
	}
	env, err := domain.NewEnvelope(domain.EventNotification, n)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if err := s.dispatch.PublishToRoom(ctx, domain.UserRoom(userID), env, ""); err != nil {
		// persisted but not pushed; the next baseline fetch reconciles
		s.log.WarnContext(ctx, "notifications - push - realtime publish failed",
			logging.User(userID), logging.NotificationID(n.ID), logging.Err(err))
	}
	s.log.InfoContext(ctx, "notifications - push - success",
		logging.User(userID), logging.NotificationID(n.ID))
	return nil
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) error {
	if userID == "" {
		return domain.ErrInvalidUserID
	}
	if id == "" {
		return domain.ErrInvalidNotificationID
	}
	if err := s.repo.MarkRead(ctx, userID, id); err != nil {
		s.log.ErrorContext(ctx, "notifications - mark read - failed",
			logging.User(userID), logging.NotificationID(id), logging.Err(err))
		return err
	}
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) error {
	if userID == "" {
		return domain.ErrInvalidUserID
	}
	if err := s.repo.MarkAllRead(ctx, userID); err != nil {
		s.log.ErrorContext(ctx, "notifications - mark all read - failed",
			logging.User(userID), logging.Err(err))
		return err
	}
	return nil
}

func (s *NotificationService) Delete(ctx context.Context, userID, id string) error {
	if userID == "" {
		return domain.ErrInvalidUserID
	}
	if id == "" {
		return domain.ErrInvalidNotificationID
	}
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		s.log.ErrorContext(ctx, "notifications - delete - failed",
			logging.User(userID), logging.NotificationID(id), logging.Err(err))
		return err
	}
	return nil
}
