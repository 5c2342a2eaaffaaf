package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"civicstream/internal/core/domain"
)

type fakeAPI struct {
	mu       sync.Mutex
	baseline []domain.Notification
	listErr  error
	failMut  bool
	calls    []string
}

func (f *fakeAPI) List(ctx context.Context) ([]domain.Notification, error) {
	f.record("list")
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]domain.Notification(nil), f.baseline...), nil
}

func (f *fakeAPI) MarkRead(ctx context.Context, id string) error { return f.mutation("read:" + id) }

func (f *fakeAPI) MarkAllRead(ctx context.Context) error { return f.mutation("read-all") }

func (f *fakeAPI) Delete(ctx context.Context, id string) error { return f.mutation("delete:" + id) }

func (f *fakeAPI) mutation(call string) error {
	f.record(call)
	if f.failMut {
		return errors.New("gateway unavailable")
	}
	return nil
}

func (f *fakeAPI) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

type recordingSink struct {
	mu     sync.Mutex
	alerts []Alert
}

func (r *recordingSink) Show(a Alert) {
	r.mu.Lock()
	r.alerts = append(r.alerts, a)
	r.mu.Unlock()
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

func (r *recordingSink) last() (Alert, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.alerts) == 0 {
		return Alert{}, false
	}
	return r.alerts[len(r.alerts)-1], true
}

func newTestStore(api NotificationAPI) (*NotificationStore, *recordingSink) {
	sink := &recordingSink{}
	store := newNotificationStore(slog.New(slog.DiscardHandler), sink)
	store.bind(api)
	return store, sink
}

func notif(id string, read bool) domain.Notification {
	return domain.Notification{ID: id, Type: "status_update", Message: "m-" + id, Read: read, CreatedAt: time.Now()}
}

// checkUnreadInvariant asserts UnreadCount matches the actual number of
// unread entries.
func checkUnreadInvariant(t *testing.T, store *NotificationStore) {
	t.Helper()
	unread := 0
	for _, n := range store.Snapshot() {
		if !n.Read {
			unread++
		}
	}
	if got := store.UnreadCount(); got != unread {
		t.Fatalf("UnreadCount: got %d, want %d (actual unread entries)", got, unread)
	}
}

func TestInitializeLoadsBaseline(t *testing.T) {
	store, _ := newTestStore(&fakeAPI{baseline: []domain.Notification{
		notif("a", false), notif("b", true), notif("c", false),
	}})

	if err := store.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if got := len(store.Snapshot()); got != 3 {
		t.Fatalf("collection size: got %d, want 3", got)
	}
	if got := store.UnreadCount(); got != 2 {
		t.Fatalf("UnreadCount: got %d, want 2", got)
	}
}

func TestInitializeFailureAlertsOnceAndKeepsState(t *testing.T) {
	api := &fakeAPI{listErr: errors.New("boom")}
	store, sink := newTestStore(api)
	store.OnPush(notif("pushed", false))

	if err := store.Initialize(context.Background()); err == nil {
		t.Fatal("Initialize: expected error")
	}
	if got := sink.count(); got != 1 {
		t.Fatalf("alerts after failed fetch: got %d, want 1", got)
	}
	// last-known state survives
	if got := len(store.Snapshot()); got != 1 {
		t.Fatalf("collection after failed fetch: got %d entries, want 1", got)
	}
	checkUnreadInvariant(t, store)
}

func TestInitializeMergeKeepsRacedPushes(t *testing.T) {
	store, _ := newTestStore(&fakeAPI{baseline: []domain.Notification{
		notif("old1", true), notif("old2", false),
	}})
	// a push lands before the baseline fetch returns
	store.OnPush(notif("fresh", false))

	if err := store.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	items := store.Snapshot()
	if len(items) != 3 {
		t.Fatalf("merged size: got %d, want 3", len(items))
	}
	if items[0].ID != "fresh" {
		t.Fatalf("newest-first order: got %q first, want %q", items[0].ID, "fresh")
	}
	if got := store.UnreadCount(); got != 2 {
		t.Fatalf("UnreadCount after merge: got %d, want 2", got)
	}
}

func TestOnPushDedupByID(t *testing.T) {
	store, _ := newTestStore(&fakeAPI{})
	if !store.OnPush(notif("a", false)) {
		t.Fatal("first push: got inserted=false, want true")
	}
	dup := notif("a", false)
	dup.Message = "different body, same id"
	if store.OnPush(dup) {
		t.Fatal("duplicate push: got inserted=true, want false")
	}
	if got := len(store.Snapshot()); got != 1 {
		t.Fatalf("collection size after dup: got %d, want 1", got)
	}
	if got := store.UnreadCount(); got != 1 {
		t.Fatalf("UnreadCount after dup: got %d, want 1", got)
	}
}

func TestOnPushPrependsNewestFirst(t *testing.T) {
	store, _ := newTestStore(&fakeAPI{})
	store.OnPush(notif("a", false))
	store.OnPush(notif("b", false))

	items := store.Snapshot()
	if items[0].ID != "b" || items[1].ID != "a" {
		t.Fatalf("order: got [%s %s], want [b a]", items[0].ID, items[1].ID)
	}
}

func TestMarkAsReadFlipsAndDecrements(t *testing.T) {
	api := &fakeAPI{}
	store, _ := newTestStore(api)
	store.OnPush(notif("a", false))
	store.OnPush(notif("b", false))

	if err := store.MarkAsRead(context.Background(), "a"); err != nil {
		t.Fatalf("MarkAsRead: %v", err)
	}
	if got := store.UnreadCount(); got != 1 {
		t.Fatalf("UnreadCount: got %d, want 1", got)
	}
	for _, n := range store.Snapshot() {
		if n.ID == "a" && !n.Read {
			t.Fatal("entry a still unread after MarkAsRead")
		}
	}
	// marking again is a no-op on the counter
	store.MarkAsRead(context.Background(), "a")
	if got := store.UnreadCount(); got != 1 {
		t.Fatalf("UnreadCount after repeat: got %d, want 1", got)
	}
}

func TestMutationFailureKeepsOptimisticStateAndAlerts(t *testing.T) {
	api := &fakeAPI{failMut: true}
	store, sink := newTestStore(api)
	store.OnPush(notif("a", false))

	if err := store.MarkAsRead(context.Background(), "a"); err == nil {
		t.Fatal("MarkAsRead: expected error")
	}
	// the optimistic flip is not rolled back
	if got := store.UnreadCount(); got != 0 {
		t.Fatalf("UnreadCount after failed mutation: got %d, want 0", got)
	}
	if items := store.Snapshot(); !items[0].Read {
		t.Fatal("optimistic read flag was rolled back")
	}
	alert, ok := sink.last()
	if !ok || alert.Severity != SeverityError {
		t.Fatalf("alert after failed mutation: got %+v, want severity error", alert)
	}
}

func TestMarkAllAsReadZeroesUnread(t *testing.T) {
	store, _ := newTestStore(&fakeAPI{})
	store.OnPush(notif("a", false))
	store.OnPush(notif("b", true))
	store.OnPush(notif("c", false))

	if err := store.MarkAllAsRead(context.Background()); err != nil {
		t.Fatalf("MarkAllAsRead: %v", err)
	}
	if got := store.UnreadCount(); got != 0 {
		t.Fatalf("UnreadCount: got %d, want 0", got)
	}
	for _, n := range store.Snapshot() {
		if !n.Read {
			t.Fatalf("entry %s still unread after MarkAllAsRead", n.ID)
		}
	}
}

func TestDeleteAdjustsUnreadOnlyForUnreadEntries(t *testing.T) {
	store, _ := newTestStore(&fakeAPI{})
	store.OnPush(notif("a", false))
	store.OnPush(notif("b", true))

	store.DeleteNotification(context.Background(), "b")
	if got := store.UnreadCount(); got != 1 {
		t.Fatalf("UnreadCount after deleting read entry: got %d, want 1", got)
	}
	store.DeleteNotification(context.Background(), "a")
	if got := store.UnreadCount(); got != 0 {
		t.Fatalf("UnreadCount after deleting unread entry: got %d, want 0", got)
	}
	if got := len(store.Snapshot()); got != 0 {
		t.Fatalf("collection size: got %d, want 0", got)
	}
}

// TestUnreadInvariantUnderRandomizedOperations drives the store through
// a random mix of every mutation and checks the derived counter against
// the collection after each step.
func TestUnreadInvariantUnderRandomizedOperations(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	api := &fakeAPI{baseline: []domain.Notification{notif("base-1", false), notif("base-2", true)}}
	store, _ := newTestStore(api)
	ctx := context.Background()

	ids := []string{"base-1", "base-2"}
	next := 0
	for i := 0; i < 100; i++ {
		switch rng.Intn(5) {
		case 0:
			next++
			id := fmt.Sprintf("n-%d", next)
			store.OnPush(notif(id, rng.Intn(2) == 0))
			ids = append(ids, id)
		case 1:
			// sometimes a redelivery of an existing id
			if len(ids) > 0 {
				store.OnPush(notif(ids[rng.Intn(len(ids))], false))
			}
		case 2:
			if len(ids) > 0 {
				store.MarkAsRead(ctx, ids[rng.Intn(len(ids))])
			}
		case 3:
			if len(ids) > 0 {
				store.DeleteNotification(ctx, ids[rng.Intn(len(ids))])
			}
		case 4:
			if rng.Intn(10) == 0 {
				store.MarkAllAsRead(ctx)
			} else {
				store.Initialize(ctx)
			}
		}
		checkUnreadInvariant(t, store)
	}
}

func TestTeardownClearsEverything(t *testing.T) {
	store, _ := newTestStore(&fakeAPI{})
	store.OnPush(notif("a", false))
	store.teardown()

	if got := len(store.Snapshot()); got != 0 {
		t.Fatalf("collection after teardown: got %d entries, want 0", got)
	}
	if got := store.UnreadCount(); got != 0 {
		t.Fatalf("UnreadCount after teardown: got %d, want 0", got)
	}
	if err := store.MarkAsRead(context.Background(), "a"); !errors.Is(err, domain.ErrNotConnected) {
		t.Fatalf("mutation after teardown: got %v, want %v", err, domain.ErrNotConnected)
	}
}

func TestPushForStaleBindingIsRefused(t *testing.T) {
	store, _ := newTestStore(&fakeAPI{})
	seq := store.currentSeq()

	if !store.pushFor(seq, notif("a", false)) {
		t.Fatal("push under the current binding was refused")
	}

	// teardown and rebind, as a logout/login cycle does
	store.teardown()
	store.bind(&fakeAPI{})

	if store.pushFor(seq, notif("b", false)) {
		t.Fatal("push under the stale binding was accepted")
	}
	if got := len(store.Snapshot()); got != 0 {
		t.Fatalf("collection after stale push: got %d entries, want 0", got)
	}
}
