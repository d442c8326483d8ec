// Package core holds the small shared kernel: identifiers, the common
// error shape, deep copies, redaction, and provider settings. Everything
// here is dependency-light so any engine package can import it.
package core

import (
	"fmt"

	"github.com/segmentio/ksuid"
)

// ID is a K-sortable unique identifier used for turns and transcript rows.
type ID string

// NewID generates a new ID.
func NewID() (ID, error) {
	id, err := ksuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate ID: %w", err)
	}
	return ID(id.String()), nil
}

// MustNewID generates a new ID and panics on failure. Intended for tests
// and init paths where entropy exhaustion is not a recoverable condition.
func MustNewID() ID {
	id, err := NewID()
	if err != nil {
		panic(err)
	}
	return id
}

func (i ID) String() string {
	return string(i)
}

func (i ID) IsZero() bool {
	return i == ""
}
