package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// UUIDSet is an ordered, duplicate-free list of ids persisted as a JSON array.
type UUIDSet []uuid.UUID

// Has reports whether id is in the set.
func (s UUIDSet) Has(id uuid.UUID) bool {
	for _, existing := range s {
		if existing == id {
			return true
		}
	}
	return false
}

// Add returns the set with id included. Adding an existing id is a no-op.
func (s UUIDSet) Add(id uuid.UUID) (UUIDSet, bool) {
	if s.Has(id) {
		return s, false
	}
	next := append(UUIDSet{}, s...)
	next = append(next, id)
	next.sort()
	return next, true
}

// Remove returns the set without id.
func (s UUIDSet) Remove(id uuid.UUID) (UUIDSet, bool) {
	if !s.Has(id) {
		return s, false
	}
	next := make(UUIDSet, 0, len(s)-1)
	for _, existing := range s {
		if existing != id {
			next = append(next, existing)
		}
	}
	return next, true
}

func (s UUIDSet) sort() {
	sort.Slice(s, func(i, j int) bool { return s[i].String() < s[j].String() })
}

// Value implements driver.Valuer.
func (s UUIDSet) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "[]", nil
	}
	out, err := json.Marshal([]uuid.UUID(s))
	if err != nil {
		return nil, err
	}
	return string(out), nil
}

// Scan implements sql.Scanner for jsonb and text columns.
func (s *UUIDSet) Scan(value any) error {
	if value == nil {
		*s = UUIDSet{}
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("UUIDSet: unsupported Scan type %T", value)
	}
	if len(raw) == 0 {
		*s = UUIDSet{}
		return nil
	}

	var ids []uuid.UUID
	if err := json.Unmarshal(raw, &ids); err != nil {
		return fmt.Errorf("UUIDSet: %w", err)
	}
	set := UUIDSet{}
	for _, id := range ids {
		set, _ = set.Add(id)
	}
	*s = set
	return nil
}
