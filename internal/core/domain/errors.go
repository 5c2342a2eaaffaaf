package domain

import "errors"

var (
	ErrNotConnected          = errors.New("channel not connected")
	ErrInvalidRoom           = errors.New("invalid room")
	ErrInvalidNotificationID = errors.New("invalid notification id")
	ErrNotificationNotFound  = errors.New("notification not found")
	ErrInvalidUserID         = errors.New("invalid user id")
	ErrUnknownEventType      = errors.New("unknown event type")
)
