package domain

import "encoding/json"

// Inbound event catalogue. These are the only types the dispatcher
// registers handlers for; anything else is dropped with a debug log.
const (
	EventIssueStatusChanged = "issue_status_changed"
	EventNewIssueSubmitted  = "new_issue_submitted"
	EventCommentAdded       = "comment_added"
	EventUpvoteUpdated      = "upvote_updated"
	EventSystemAnnouncement = "system_announcement"
	EventUserTypingComment  = "user_typing_comment"
	EventUrgentIssueAlert   = "urgent_issue_alert"
	EventLeaderboardUpdated = "leaderboard_updated"
	EventOnlineUsersUpdated = "online_users_updated"
	EventNotification       = "notification"
)

// Outbound signal types (client to server).
const (
	SignalJoinUserRoom  = "join_user_room"
	SignalJoinRoom      = "join_room"
	SignalLeaveRoom     = "leave_room"
	SignalJoinIssue     = "join_issue"
	SignalLeaveIssue    = "leave_issue"
	SignalJoinLocation  = "join_location"
	SignalTypingComment = "typing_comment"
	SignalIssueUpdate   = "issue_update"
)

const PriorityHigh = "high"

// Envelope is the wire format for every message in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func NewEnvelope(eventType string, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Type: eventType}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: eventType, Payload: raw}, nil
}

// IssueStatusPayload accompanies issue_status_changed.
type IssueStatusPayload struct {
	IssueID   string `json:"issueId,omitempty"`
	Title     string `json:"title"`
	NewStatus string `json:"newStatus"`
}

// NewIssuePayload accompanies new_issue_submitted and urgent_issue_alert.
type NewIssuePayload struct {
	IssueID string `json:"issueId,omitempty"`
	Title   string `json:"title"`
}

// CommentAuthor identifies who wrote a comment. Only the name is used
// for self-authored alert suppression.
type CommentAuthor struct {
	Name string `json:"name"`
}

// CommentAddedPayload accompanies comment_added.
type CommentAddedPayload struct {
	IssueID string        `json:"issueId,omitempty"`
	User    CommentAuthor `json:"user"`
	Text    string        `json:"text,omitempty"`
}

// AnnouncementPayload accompanies system_announcement. Priority "high"
// escalates the alert severity and duration.
type AnnouncementPayload struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	Priority string `json:"priority,omitempty"`
}

// TypingPayload is both the outbound typing_comment signal and the
// rebroadcast user_typing_comment event.
type TypingPayload struct {
	IssueID  string `json:"issueId"`
	UserName string `json:"userName,omitempty"`
	IsTyping bool   `json:"isTyping"`
}

// RoomPayload carries the room name for join_room / leave_room signals.
type RoomPayload struct {
	Room string `json:"room"`
}

// IssueRefPayload carries the issue id for join_issue / leave_issue.
type IssueRefPayload struct {
	IssueID string `json:"issueId"`
}

// LocationPayload carries the bounds string for join_location.
type LocationPayload struct {
	Bounds string `json:"bounds"`
}

// UserRefPayload carries the user id for join_user_room.
type UserRefPayload struct {
	UserID string `json:"userId"`
}

// IssueUpdatePayload is the outbound issue_update signal; Fields is an
// opaque partial-update document routed to the issue room.
type IssueUpdatePayload struct {
	IssueID string         `json:"issueId"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// RoutedEvent is the gateway-internal queue record: an envelope plus
// its delivery scope. An empty Room means broadcast to everyone.
type RoutedEvent struct {
	ID         string   `json:"id"`
	Room       Room     `json:"room,omitempty"`
	ExceptUser string   `json:"except_user,omitempty"`
	Event      Envelope `json:"event"`
}
