package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"civicstream/internal/app/registry"
	"civicstream/internal/core/domain"
	"civicstream/internal/core/services"
	"civicstream/pkg/middleware"

	"github.com/gorilla/websocket"
)

type memPresence struct {
	mu               sync.Mutex
	online           map[string]domain.OnlineUser
	removed          bool
	touchedAfterGone bool
}

func (m *memPresence) Touch(ctx context.Context, u domain.OnlineUser, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.removed {
		m.touchedAfterGone = true
	}
	if m.online == nil {
		m.online = make(map[string]domain.OnlineUser)
	}
	m.online[u.ID] = u
	return nil
}

func (m *memPresence) Online(ctx context.Context) ([]domain.OnlineUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make([]domain.OnlineUser, 0, len(m.online))
	for _, u := range m.online {
		users = append(users, u)
	}
	return users, nil
}

func (m *memPresence) Remove(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.online, userID)
	m.removed = true
	return nil
}

type memQueue struct{}

func (memQueue) Publish(ctx context.Context, payload []byte) error { return nil }
func (memQueue) Subscribe(ctx context.Context, group string, handler func(ctx context.Context, messageID string, data []byte) error) error {
	return nil
}
func (memQueue) Acknowledge(ctx context.Context, group, messageID string) error { return nil }
func (memQueue) DeleteMessage(ctx context.Context, messageID string) error      { return nil }

// A transport-level drop never sends a close frame; the handler must
// still stop the heartbeat so the user cannot be touched back online
// after the disconnect cleanup removed them.
func TestAbnormalDropStopsHeartbeat(t *testing.T) {
	log := slog.New(slog.DiscardHandler)
	store := &memPresence{}
	hub := registry.NewRegistry()
	dispatch := services.NewDispatchService(log, hub, memQueue{})
	presence := services.NewPresenceService(log, store, dispatch,
		50*time.Millisecond, 5*time.Millisecond)
	h := NewWSHandler(hub, dispatch, presence)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), middleware.IdentityKey, &services.Identity{
			UserID: "u1", UserName: "pat", Role: domain.RoleCitizen,
		})
		h.Handler(w, r.WithContext(ctx))
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	// let a few heartbeats land, then kill the raw transport
	time.Sleep(20 * time.Millisecond)
	conn.UnderlyingConn().Close()

	deadline := time.Now().Add(2 * time.Second)
	for {
		store.mu.Lock()
		removed := store.removed
		store.mu.Unlock()
		if removed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("disconnect cleanup never ran")
		}
		time.Sleep(2 * time.Millisecond)
	}

	// ten further heartbeat intervals: none may fire
	time.Sleep(50 * time.Millisecond)
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.touchedAfterGone {
		t.Fatal("heartbeat touched the user back online after disconnect")
	}
	if len(store.online) != 0 {
		t.Fatalf("online after drop: got %d users, want 0", len(store.online))
	}
}
