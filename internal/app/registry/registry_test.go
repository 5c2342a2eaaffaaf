package registry

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"civicstream/internal/core/domain"
)

type fakeClient struct {
	id     string
	userID string

	mu       sync.Mutex
	received [][]byte
}

func (f *fakeClient) ID() string     { return f.id }
func (f *fakeClient) UserID() string { return f.userID }
func (f *fakeClient) Close()         {}

func (f *fakeClient) Send(ctx context.Context, data []byte) error {
	f.mu.Lock()
	f.received = append(f.received, data)
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.received)
}

func testEnvelope(t *testing.T) domain.Envelope {
	t.Helper()
	env, err := domain.NewEnvelope(domain.EventCommentAdded, domain.CommentAddedPayload{
		User: domain.CommentAuthor{Name: "sam"},
	})
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	return env
}

func TestRegisterAutoJoinsPersonalRoom(t *testing.T) {
	r := NewRegistry()
	c := &fakeClient{id: "c1", userID: "u1"}
	r.Register(c)

	r.Broadcast(context.Background(), domain.UserRoom("u1"), testEnvelope(t), "")
	if got := c.count(); got != 1 {
		t.Fatalf("personal room delivery: got %d, want 1", got)
	}
}

func TestBroadcastReachesOnlyRoomMembers(t *testing.T) {
	r := NewRegistry()
	in := &fakeClient{id: "c1", userID: "u1"}
	out := &fakeClient{id: "c2", userID: "u2"}
	r.Register(in)
	r.Register(out)
	r.Join(in, domain.IssueRoom("42"))

	r.Broadcast(context.Background(), domain.IssueRoom("42"), testEnvelope(t), "")

	if got := in.count(); got != 1 {
		t.Fatalf("member delivery: got %d, want 1", got)
	}
	if got := out.count(); got != 0 {
		t.Fatalf("non-member delivery: got %d, want 0", got)
	}
}

func TestBroadcastSkipsExceptUser(t *testing.T) {
	r := NewRegistry()
	author := &fakeClient{id: "c1", userID: "u1"}
	reader := &fakeClient{id: "c2", userID: "u2"}
	r.Register(author)
	r.Register(reader)
	room := domain.IssueRoom("42")
	r.Join(author, room)
	r.Join(reader, room)

	r.Broadcast(context.Background(), room, testEnvelope(t), "u1")

	if got := author.count(); got != 0 {
		t.Fatalf("excepted user delivery: got %d, want 0", got)
	}
	if got := reader.count(); got != 1 {
		t.Fatalf("other member delivery: got %d, want 1", got)
	}
}

func TestLeaveStopsDelivery(t *testing.T) {
	r := NewRegistry()
	c := &fakeClient{id: "c1", userID: "u1"}
	r.Register(c)
	room := domain.LocationRoom("dr5r")
	r.Join(c, room)
	r.Leave(c, room)

	r.Broadcast(context.Background(), room, testEnvelope(t), "")
	if got := c.count(); got != 0 {
		t.Fatalf("delivery after leave: got %d, want 0", got)
	}
	if got := r.Members(room); got != 0 {
		t.Fatalf("members after leave: got %d, want 0", got)
	}
}

func TestUnregisterCleansAllRooms(t *testing.T) {
	r := NewRegistry()
	c := &fakeClient{id: "c1", userID: "u1"}
	r.Register(c)
	r.Join(c, domain.IssueRoom("42"))
	r.Join(c, domain.LocationRoom("dr5r"))

	r.Unregister(c)

	for _, room := range []domain.Room{domain.UserRoom("u1"), domain.IssueRoom("42"), domain.LocationRoom("dr5r")} {
		if got := r.Members(room); got != 0 {
			t.Fatalf("members of %s after unregister: got %d, want 0", room, got)
		}
	}
	r.BroadcastAll(context.Background(), testEnvelope(t))
	if got := c.count(); got != 0 {
		t.Fatalf("delivery after unregister: got %d, want 0", got)
	}
}

func TestJoinUnknownClientIsIgnored(t *testing.T) {
	r := NewRegistry()
	ghost := &fakeClient{id: "cx", userID: "ux"}
	r.Join(ghost, domain.IssueRoom("42"))

	if got := r.Members(domain.IssueRoom("42")); got != 0 {
		t.Fatalf("members after ghost join: got %d, want 0", got)
	}
}

func TestBroadcastAllReachesEveryClient(t *testing.T) {
	r := NewRegistry()
	clients := []*fakeClient{
		{id: "c1", userID: "u1"},
		{id: "c2", userID: "u2"},
		{id: "c3", userID: "u3"},
	}
	for _, c := range clients {
		r.Register(c)
	}

	env := testEnvelope(t)
	r.BroadcastAll(context.Background(), env)

	want, _ := json.Marshal(env)
	for _, c := range clients {
		if got := c.count(); got != 1 {
			t.Fatalf("client %s deliveries: got %d, want 1", c.id, got)
		}
		if string(c.received[0]) != string(want) {
			t.Fatalf("client %s payload: got %s, want %s", c.id, c.received[0], want)
		}
	}
}
