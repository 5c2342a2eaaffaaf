package services

import (
	"context"
	"encoding/json"
	"log/slog"

	"civicstream/internal/core/contracts"
	"civicstream/internal/core/domain"
	"civicstream/pkg/logging"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("dispatch-service")

// DispatchService owns the gateway side of the event flow: it accepts
// outbound signals from connected clients, resolves their target rooms,
// and feeds routed events into the queue the fan-out worker drains.
type DispatchService struct {
	registry contracts.Registry
	queue    contracts.EventQueue
	log      *slog.Logger
}

func NewDispatchService(
	log *slog.Logger,
	registry contracts.Registry,
	queue contracts.EventQueue,
) *DispatchService {
	return &DispatchService{
		log:      log,
		registry: registry,
		queue:    queue,
	}
}

// PublishToRoom enqueues an envelope scoped to one room.
func (s *DispatchService) PublishToRoom(
	ctx context.Context,
	room domain.Room,
	env domain.Envelope,
	exceptUser string,
) error {
	return s.publish(ctx, domain.RoutedEvent{
		ID:         uuid.NewString(),
		Room:       room,
		ExceptUser: exceptUser,
		Event:      env,
	})
}

// PublishAll enqueues an envelope for every connected client.
func (s *DispatchService) PublishAll(ctx context.Context, env domain.Envelope) error {
	return s.publish(ctx, domain.RoutedEvent{
		ID:    uuid.NewString(),
		Event: env,
	})
}

func (s *DispatchService) publish(ctx context.Context, ev domain.RoutedEvent) error {
	ctx, span := tracer.Start(ctx, "DispatchService.publish", trace.WithAttributes(
		attribute.String("event_type", ev.Event.Type),
		attribute.String("room", string(ev.Room)),
	))
	defer span.End()
	raw, err := json.Marshal(ev)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if err := s.queue.Publish(ctx, raw); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "queue publish failed")
		s.log.ErrorContext(ctx, "dispatch - publish - queue publish failed",
			logging.Event(ev.Event.Type), logging.Err(err))
		return err
	}
	return nil
}

// HandleSignal processes one raw outbound message from a client: room
// joins and leaves mutate the registry directly; typing and issue
// updates are rebroadcast to the issue room through the queue.
func (s *DispatchService) HandleSignal(
	ctx context.Context,
	c contracts.Client,
	ident *Identity,
	raw []byte,
) error {
	ctx, span := tracer.Start(ctx, "DispatchService.HandleSignal", trace.WithAttributes(
		attribute.String("user_id", ident.UserID),
		attribute.Int("payload_size", len(raw)),
	))
	defer span.End()

	var env domain.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		span.RecordError(err)
		s.log.Warn("dispatch - handle signal - malformed envelope", logging.User(ident.UserID))
		return err
	}
	span.SetAttributes(attribute.String("event_type", env.Type))

	switch env.Type {
	case domain.SignalJoinUserRoom:
		// identity is taken from the token, never the payload
		s.registry.Join(c, domain.UserRoom(ident.UserID))
		return nil

	case domain.SignalJoinRoom, domain.SignalLeaveRoom:
		var p domain.RoomPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			span.RecordError(err)
			return err
		}
		room := domain.Room(p.Room)
		if !room.Valid() {
			s.log.Warn("dispatch - handle signal - invalid room",
				logging.User(ident.UserID), logging.RoomName(p.Room))
			return domain.ErrInvalidRoom
		}
		if env.Type == domain.SignalJoinRoom {
			s.registry.Join(c, room)
		} else {
			s.registry.Leave(c, room)
		}
		return nil

	case domain.SignalJoinIssue, domain.SignalLeaveIssue:
		var p domain.IssueRefPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			span.RecordError(err)
			return err
		}
		if env.Type == domain.SignalJoinIssue {
			s.registry.Join(c, domain.IssueRoom(p.IssueID))
		} else {
			s.registry.Leave(c, domain.IssueRoom(p.IssueID))
		}
		return nil

	case domain.SignalJoinLocation:
		var p domain.LocationPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			span.RecordError(err)
			return err
		}
		s.registry.Join(c, domain.LocationRoom(p.Bounds))
		return nil

	case domain.SignalTypingComment:
		var p domain.TypingPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			span.RecordError(err)
			return err
		}
		p.UserName = ident.UserName
		out, err := domain.NewEnvelope(domain.EventUserTypingComment, p)
		if err != nil {
			return err
		}
		s.log.DebugContext(ctx, "dispatch - handle signal - typing rebroadcast",
			logging.User(ident.UserID), logging.Issue(p.IssueID))
		return s.PublishToRoom(ctx, domain.IssueRoom(p.IssueID), out, ident.UserID)

	case domain.SignalIssueUpdate:
		var p domain.IssueUpdatePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			span.RecordError(err)
			return err
		}
		out, err := domain.NewEnvelope(issueUpdateEventType(p.Fields), p.Fields)
		if err != nil {
			return err
		}
		s.log.DebugContext(ctx, "dispatch - handle signal - issue update rebroadcast",
			logging.User(ident.UserID), logging.Issue(p.IssueID), logging.Event(out.Type))
		return s.PublishToRoom(ctx, domain.IssueRoom(p.IssueID), out, "")

	default:
		s.log.Debug("dispatch - handle signal - unknown signal dropped",
			logging.User(ident.UserID), logging.Event(env.Type))
		return domain.ErrUnknownEventType
	}
}

// issueUpdateEventType picks the rebroadcast type for a generic issue
// update: status transitions surface as issue_status_changed, anything
// else as upvote_updated (the silent counter-refresh path).
func issueUpdateEventType(fields map[string]any) string {
	if _, ok := fields["newStatus"]; ok {
		return domain.EventIssueStatusChanged
	}
	return domain.EventUpvoteUpdated
}
