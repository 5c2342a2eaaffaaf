package domain

import (
	"strings"
	"time"
)

// User roles as carried in the auth token claims.
const (
	RoleCitizen   = "citizen"
	RoleAuthority = "authority"
	RoleAdmin     = "admin"
)

// Session is the authenticated identity a channel is opened under.
// It is supplied by the auth collaborator and immutable for the lifetime
// of one channel instance; a change in UserID or AuthToken tears the
// channel down and recreates it.
type Session struct {
	UserID    string
	UserName  string
	UserRole  string
	AuthToken string
}

// Anonymous reports whether the session carries no auth token.
// The realtime layer is inert for anonymous sessions.
func (s Session) Anonymous() bool { return s.AuthToken == "" }

func (s Session) IsAdmin() bool { return s.UserRole == RoleAdmin }

// Room is an opaque broadcast scope the server uses to target pushes.
type Room string

const (
	roomPrefixUser     = "user:"
	roomPrefixIssue    = "issue:"
	roomPrefixLocation = "location:"
)

func UserRoom(userID string) Room { return Room(roomPrefixUser + userID) }

func IssueRoom(issueID string) Room { return Room(roomPrefixIssue + issueID) }

// LocationRoom scopes pushes to a geographic area identified by a
// geohash or a bounds string.
func LocationRoom(bounds string) Room { return Room(roomPrefixLocation + bounds) }

func (r Room) Valid() bool {
	s := string(r)
	for _, p := range []string{roomPrefixUser, roomPrefixIssue, roomPrefixLocation} {
		if strings.HasPrefix(s, p) && len(s) > len(p) {
			return true
		}
	}
	return false
}

// Notification is the durable per-user entry reconciled between the REST
// baseline and incremental pushes. Ordering is newest-first; IDs are
// unique within a user's collection.
type Notification struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Message       string    `json:"message"`
	Read          bool      `json:"read"`
	CreatedAt     time.Time `json:"created_at"`
	RelatedEntity string    `json:"related_entity,omitempty"`
	Icon          string    `json:"icon,omitempty"`
}

// OnlineUser is one entry of the ephemeral presence snapshot. The whole
// list is replaced on every online_users_updated push, never merged.
type OnlineUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}
