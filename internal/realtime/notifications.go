package realtime

import (
	"context"
	"log/slog"
	"sync"

	"civicstream/internal/core/domain"
	"civicstream/pkg/logging"
)

// NotificationAPI is the REST collaborator behind the store: the
// authoritative baseline fetch and the three mutations.
type NotificationAPI interface {
	List(ctx context.Context) ([]domain.Notification, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
	Delete(ctx context.Context, id string) error
}

// NotificationStore reconciles the REST-fetched baseline with pushed
// notification events into one newest-first, id-deduplicated collection
// with a derived unread counter.
//
// Mutations are optimistic: the local flip happens first and is kept
// even when the REST call fails (the next baseline fetch reconciles);
// the failure is surfaced as a transient alert only.
type NotificationStore struct {
	log    *slog.Logger
	alerts AlertSink

	mu     sync.Mutex
	api    NotificationAPI
	seq    uint64
	items  []domain.Notification
	unread int
}

func newNotificationStore(log *slog.Logger, alerts AlertSink) *NotificationStore {
	return &NotificationStore{log: log, alerts: alerts}
}

// bind attaches the session-scoped REST collaborator. Bumping seq
// invalidates any baseline fetch still in flight for the old binding.
func (s *NotificationStore) bind(api NotificationAPI) {
	s.mu.Lock()
	s.api = api
	s.seq++
	s.mu.Unlock()
}

// Initialize fetches the baseline once per session. The fetch runs
// concurrently with inbound pushes, so the result is merged rather than
// blindly installed: pushes that raced ahead of the fetch survive. On
// failure the store stays in its last-known state and no retry is
// scheduled; the error surfaces as a one-time alert.
func (s *NotificationStore) Initialize(ctx context.Context) error {
	s.mu.Lock()
	api := s.api
	seq := s.seq
	s.mu.Unlock()
	if api == nil {
		return domain.ErrNotConnected
	}
	items, err := api.List(ctx)
	if err != nil {
		s.log.WarnContext(ctx, "notification store - initialize - baseline fetch failed", logging.Err(err))
		s.alerts.Show(Alert{Severity: SeverityError, Message: "failed to load notifications", Duration: alertDuration})
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seq != seq {
		// rebound or torn down while the fetch was in flight
		return nil
	}
	merged := append([]domain.Notification(nil), items...)
	inBaseline := make(map[string]struct{}, len(items))
	for _, n := range items {
		inBaseline[n.ID] = struct{}{}
	}
	for i := len(s.items) - 1; i >= 0; i-- {
		if _, ok := inBaseline[s.items[i].ID]; !ok {
			merged = append([]domain.Notification{s.items[i]}, merged...)
		}
	}
	unread := 0
	for _, n := range merged {
		if !n.Read {
			unread++
		}
	}
	s.items = merged
	s.unread = unread
	s.log.InfoContext(ctx, "notification store - initialize - baseline loaded",
		slog.Int("count", len(merged)), slog.Int("unread", unread))
	return nil
}

// OnPush prepends a pushed notification unless its id is already
// present (redelivery during reconnection catch-up windows). Returns
// whether the entry was actually inserted.
func (s *NotificationStore) OnPush(n domain.Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(n)
}

// pushFor inserts like OnPush, but refuses when the store was rebound
// or torn down after seq was captured, so a push straggling behind a
// teardown cannot leak into the next session's collection.
func (s *NotificationStore) pushFor(seq uint64, n domain.Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seq != seq {
		return false
	}
	return s.insertLocked(n)
}

func (s *NotificationStore) currentSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

func (s *NotificationStore) insertLocked(n domain.Notification) bool {
	for _, existing := range s.items {
		if existing.ID == n.ID {
			return false
		}
	}
	s.items = append([]domain.Notification{n}, s.items...)
	if !n.Read {
		s.unread++
	}
	return true
}

// MarkAsRead optimistically flips the local flag, then issues the REST
// mutation. The optimistic change is not rolled back on failure.
func (s *NotificationStore) MarkAsRead(ctx context.Context, id string) error {
	s.mu.Lock()
	api := s.api
	for i := range s.items {
		if s.items[i].ID == id {
			if !s.items[i].Read {
				s.items[i].Read = true
				if s.unread > 0 {
					s.unread--
				}
			}
			break
		}
	}
	s.mu.Unlock()
	if api == nil {
		return domain.ErrNotConnected
	}
	if err := api.MarkRead(ctx, id); err != nil {
		s.log.WarnContext(ctx, "notification store - mark read - rest mutation failed",
			logging.NotificationID(id), logging.Err(err))
		s.alerts.Show(Alert{Severity: SeverityError, Message: "failed to mark notification as read", Duration: alertDuration})
		return err
	}
	return nil
}

func (s *NotificationStore) MarkAllAsRead(ctx context.Context) error {
	s.mu.Lock()
	api := s.api
	for i := range s.items {
		s.items[i].Read = true
	}
	s.unread = 0
	s.mu.Unlock()
	if api == nil {
		return domain.ErrNotConnected
	}
	if err := api.MarkAllRead(ctx); err != nil {
		s.log.WarnContext(ctx, "notification store - mark all read - rest mutation failed", logging.Err(err))
		s.alerts.Show(Alert{Severity: SeverityError, Message: "failed to mark notifications as read", Duration: alertDuration})
		return err
	}
	return nil
}

// DeleteNotification removes the entry locally (adjusting the unread
// counter when the removed entry was unread) and issues the REST delete.
func (s *NotificationStore) DeleteNotification(ctx context.Context, id string) error {
	s.mu.Lock()
	api := s.api
	for i := range s.items {
		if s.items[i].ID == id {
			if !s.items[i].Read && s.unread > 0 {
				s.unread--
			}
			s.items = append(s.items[:i], s.items[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	if api == nil {
		return domain.ErrNotConnected
	}
	if err := api.Delete(ctx, id); err != nil {
		s.log.WarnContext(ctx, "notification store - delete - rest mutation failed",
			logging.NotificationID(id), logging.Err(err))
		s.alerts.Show(Alert{Severity: SeverityError, Message: "failed to delete notification", Duration: alertDuration})
		return err
	}
	return nil
}

// Snapshot returns a copy of the collection, newest-first.
func (s *NotificationStore) Snapshot() []domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Notification(nil), s.items...)
}

func (s *NotificationStore) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// teardown clears everything synchronously so no stale notification
// survives into the next session.
func (s *NotificationStore) teardown() {
	s.mu.Lock()
	s.items = nil
	s.unread = 0
	s.api = nil
	s.seq++
	s.mu.Unlock()
}
