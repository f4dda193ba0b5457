package models

import (
	"errors"

	"github.com/google/uuid"
)

// ErrImmutableRecord is returned by hooks on append-only records when a
// caller attempts to update or delete a persisted row.
var ErrImmutableRecord = errors.New("record is immutable once persisted")

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
