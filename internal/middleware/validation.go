package middleware

import (
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/mediflow/triage-engine/internal/model"
)

// ValidateMessageText validates inbound patient message text.
func ValidateMessageText(text string) error {
	if len(text) == 0 {
		return errors.New("text cannot be empty")
	}
	if len(text) > 8192 {
		return errors.New("text exceeds maximum length")
	}
	if !utf8.ValidString(text) {
		return errors.New("text must be valid UTF-8")
	}
	return nil
}

// ValidateSessionID validates a session ID.
func ValidateSessionID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid session ID format")
	}
	return nil
}

// ValidateEventKind validates a lifecycle event kind.
func ValidateEventKind(kind string) error {
	if !model.EventKind(kind).Valid() {
		return errors.New("unknown event kind")
	}
	return nil
}
