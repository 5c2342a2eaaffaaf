package realtime

import (
	"log/slog"
	"time"
)

type Severity int

const (
	SeverityInfo Severity = iota
	SeveritySuccess
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeveritySuccess:
		return "success"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	}
	return "unknown"
}

// Alert durations. High-priority classes stay on screen longer.
const (
	alertDuration       = 5 * time.Second
	urgentAlertDuration = 10 * time.Second
)

// Alert is one transient user-facing message (a toast). Presentation is
// the sink's problem; this layer only decides severity and duration.
type Alert struct {
	Severity Severity
	Message  string
	Duration time.Duration
}

// AlertSink receives transient alerts. Implementations must not block:
// alerts are fired from the dispatch path.
type AlertSink interface {
	Show(a Alert)
}

// logSink is the fallback sink when the embedder supplies none.
type logSink struct {
	log *slog.Logger
}

func (s logSink) Show(a Alert) {
	s.log.Info("alert", slog.String("severity", a.Severity.String()), slog.String("message", a.Message))
}
