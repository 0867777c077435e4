package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	MaxTextLength   = 4096
	MaxAuthorLength = 128
)

// Message is a chat message as stored and as published on the
// notification channel.
type Message struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Author string `json:"author"`
	// Timestamp is set by the server, in Unix seconds.
	Timestamp int64 `json:"timestamp"`
}

// NewMessage builds an unsaved message.
func NewMessage(text, author string, timestamp int64) *Message {
	return &Message{
		Text:      text,
		Author:    author,
		Timestamp: timestamp,
	}
}

// Validate checks the client-supplied fields.
func (m *Message) Validate() error {
	if err := ValidateText(m.Text); err != nil {
		return err
	}

	if strings.TrimSpace(m.Author) == "" {
		return fmt.Errorf("%w: author cannot be empty", ErrInvalidMessage)
	}
	if utf8.RuneCountInString(m.Author) > MaxAuthorLength {
		return fmt.Errorf("%w: author longer than %d characters", ErrInvalidMessage, MaxAuthorLength)
	}
	return nil
}

func ValidateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: text cannot be empty", ErrInvalidMessage)
	}
	if utf8.RuneCountInString(text) > MaxTextLength {
		return fmt.Errorf("%w: text longer than %d characters", ErrInvalidMessage, MaxTextLength)
	}
	return nil
}

// ParseMessageID checks that id is a valid message identifier.
func ParseMessageID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrInvalidMessageID, id)
	}
	return parsed, nil
}
