package logging

import "log/slog"

// Domain identifiers

func User(id string) slog.Attr {
	return slog.String("user_id", id)
}

func RoomName(room string) slog.Attr {
	return slog.String("room", room)
}

func Issue(id string) slog.Attr {
	return slog.String("issue_id", id)
}

func Event(eventType string) slog.Attr {
	return slog.String("event_type", eventType)
}

func NotificationID(id string) slog.Attr {
	return slog.String("notification_id", id)
}

func Attempt(n int) slog.Attr {
	return slog.Int("attempt", n)
}

// Request / tracing

func RequestID(id string) slog.Attr {
	return slog.String("request_id", id)
}

func TraceID(id string) slog.Attr {
	return slog.String("trace_id", id)
}

// Error handling

func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}
