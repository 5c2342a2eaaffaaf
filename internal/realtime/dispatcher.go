package realtime

import (
	"encoding/json"

	"civicstream/internal/core/domain"
	"civicstream/pkg/logging"
)

// dispatch routes one inbound envelope: fire the side effect the type
// calls for (alert, store mutation, presence replace), then fan out on
// the bus so any subscriber can react. Unknown types are dropped.
//
// gen is the channel generation the envelope arrived under. The
// mutating branches re-verify it at mutation time, so an envelope that
// crossed a concurrent teardown cannot write into state owned by a
// later session.
func (c *Client) dispatch(env domain.Envelope, gen uint64) {
	c.mu.Lock()
	session := c.session
	live := c.gen == gen
	c.mu.Unlock()
	if !live {
		return
	}

	switch env.Type {
	case domain.EventIssueStatusChanged:
		var p domain.IssueStatusPayload
		if !c.decode(env, &p) {
			return
		}
		c.alerts.Show(Alert{
			Severity: SeverityInfo,
			Message:  "Issue \"" + p.Title + "\" is now " + p.NewStatus,
			Duration: alertDuration,
		})

	case domain.EventNewIssueSubmitted:
		var p domain.NewIssuePayload
		if !c.decode(env, &p) {
			return
		}
		if session.IsAdmin() {
			c.alerts.Show(Alert{
				Severity: SeverityInfo,
				Message:  "New issue submitted: " + p.Title,
				Duration: alertDuration,
			})
		}

	case domain.EventCommentAdded:
		var p domain.CommentAddedPayload
		if !c.decode(env, &p) {
			return
		}
		if p.User.Name != session.UserName {
			c.alerts.Show(Alert{
				Severity: SeverityInfo,
				Message:  p.User.Name + " commented on an issue you follow",
				Duration: alertDuration,
			})
		}

	case domain.EventSystemAnnouncement:
		var p domain.AnnouncementPayload
		if !c.decode(env, &p) {
			return
		}
		alert := Alert{Severity: SeverityInfo, Message: p.Message, Duration: alertDuration}
		if p.Priority == domain.PriorityHigh {
			alert.Severity = SeverityWarning
			alert.Duration = urgentAlertDuration
		}
		c.alerts.Show(alert)

	case domain.EventUrgentIssueAlert:
		var p domain.NewIssuePayload
		if !c.decode(env, &p) {
			return
		}
		if session.IsAdmin() {
			c.alerts.Show(Alert{
				Severity: SeverityError,
				Message:  "Urgent issue: " + p.Title,
				Duration: urgentAlertDuration,
			})
		}

	case domain.EventOnlineUsersUpdated:
		var users []domain.OnlineUser
		if !c.decode(env, &users) {
			return
		}
		c.mu.Lock()
		if c.gen == gen {
			c.onlineUsers = users
		}
		c.mu.Unlock()

	case domain.EventNotification:
		var n domain.Notification
		if !c.decode(env, &n) {
			return
		}
		// capture the store generation while the channel is verifiably
		// live; pushFor checks it atomically with the insert
		c.mu.Lock()
		live = c.gen == gen
		seq := c.store.currentSeq()
		c.mu.Unlock()
		if !live {
			return
		}
		if c.store.pushFor(seq, n) {
			c.alerts.Show(Alert{
				Severity: SeverityInfo,
				Message:  n.Message,
				Duration: alertDuration,
			})
		}

	case domain.EventUpvoteUpdated, domain.EventUserTypingComment, domain.EventLeaderboardUpdated:
		// pub-sub only

	default:
		c.log.Debug("realtime - dispatch - unknown event type dropped", logging.Event(env.Type))
		return
	}

	c.bus.Publish(env.Type, env.Payload)
}

func (c *Client) decode(env domain.Envelope, dst any) bool {
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		c.log.Debug("realtime - dispatch - malformed payload dropped",
			logging.Event(env.Type), logging.Err(err))
		return false
	}
	return true
}
