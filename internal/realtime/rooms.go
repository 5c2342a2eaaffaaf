package realtime

import (
	"strings"

	"civicstream/internal/core/domain"
	"civicstream/pkg/logging"
)

// Room membership is intent, not transport state: joins are recorded
// whatever the channel state and replayed on every (re)establishment,
// so a subscription made while offline takes effect as soon as the
// channel comes up. Leaving removes the intent so it is never replayed.

func (c *Client) JoinRoom(room domain.Room) {
	if !room.Valid() {
		c.log.Warn("realtime - join - invalid room ignored", logging.RoomName(string(room)))
		return
	}
	c.mu.Lock()
	if _, ok := c.rooms[room]; ok {
		c.mu.Unlock()
		return
	}
	c.rooms[room] = struct{}{}
	conn := c.conn
	connected := c.state == StateConnected
	c.mu.Unlock()
	if connected && conn != nil {
		signal, payload := joinSignal(room)
		c.emitOn(conn, signal, payload)
	}
}

func (c *Client) LeaveRoom(room domain.Room) {
	c.mu.Lock()
	if _, ok := c.rooms[room]; !ok {
		c.mu.Unlock()
		return
	}
	delete(c.rooms, room)
	conn := c.conn
	connected := c.state == StateConnected
	c.mu.Unlock()
	if connected && conn != nil {
		signal, payload := leaveSignal(room)
		c.emitOn(conn, signal, payload)
	}
}

func (c *Client) JoinIssueRoom(issueID string) { c.JoinRoom(domain.IssueRoom(issueID)) }

func (c *Client) LeaveIssueRoom(issueID string) { c.LeaveRoom(domain.IssueRoom(issueID)) }

func (c *Client) JoinLocationRoom(bounds string) { c.JoinRoom(domain.LocationRoom(bounds)) }

// TypingComment signals typing activity inside an issue room. The
// server rebroadcasts it to the room with the sender's name attached.
func (c *Client) TypingComment(issueID string, isTyping bool) {
	c.Emit(domain.SignalTypingComment, domain.TypingPayload{IssueID: issueID, IsTyping: isTyping})
}

// SendIssueUpdate pushes a partial issue update to everyone watching
// the issue room.
func (c *Client) SendIssueUpdate(issueID string, fields map[string]any) {
	c.Emit(domain.SignalIssueUpdate, domain.IssueUpdatePayload{IssueID: issueID, Fields: fields})
}

// joinSignal maps a room to the join signal the server expects. Issue
// and location rooms have dedicated signals; everything else goes
// through the generic join_room.
func joinSignal(room domain.Room) (string, any) {
	s := string(room)
	switch {
	case strings.HasPrefix(s, "issue:"):
		return domain.SignalJoinIssue, domain.IssueRefPayload{IssueID: strings.TrimPrefix(s, "issue:")}
	case strings.HasPrefix(s, "location:"):
		return domain.SignalJoinLocation, domain.LocationPayload{Bounds: strings.TrimPrefix(s, "location:")}
	default:
		return domain.SignalJoinRoom, domain.RoomPayload{Room: s}
	}
}

func leaveSignal(room domain.Room) (string, any) {
	s := string(room)
	if strings.HasPrefix(s, "issue:") {
		return domain.SignalLeaveIssue, domain.IssueRefPayload{IssueID: strings.TrimPrefix(s, "issue:")}
	}
	return domain.SignalLeaveRoom, domain.RoomPayload{Room: s}
}
