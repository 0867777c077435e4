package domain

import "errors"

var (
	ErrInvalidMessageID = errors.New("invalid message ID")
	ErrMessageNotFound  = errors.New("message not found")
	ErrInvalidMessage   = errors.New("invalid message")
	// ErrStorage and ErrNotification mark failures of the message store and
	// the notification channel respectively.
	ErrStorage      = errors.New("storage failure")
	ErrNotification = errors.New("notification failure")
)
