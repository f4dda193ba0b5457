package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// DenominationCounts maps a denomination key (for example "toonie" or
// "quarter_roll") to the number of units counted.
type DenominationCounts map[string]int

// Value implements driver.Valuer.
func (d DenominationCounts) Value() (driver.Value, error) {
	if d == nil {
		return "{}", nil
	}
	out, err := json.Marshal(map[string]int(d))
	if err != nil {
		return nil, err
	}
	return string(out), nil
}

// Scan implements sql.Scanner for jsonb and text columns.
func (d *DenominationCounts) Scan(value any) error {
	if value == nil {
		*d = DenominationCounts{}
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("DenominationCounts: unsupported Scan type %T", value)
	}
	if len(raw) == 0 {
		*d = DenominationCounts{}
		return nil
	}

	counts := map[string]int{}
	if err := json.Unmarshal(raw, &counts); err != nil {
		return fmt.Errorf("DenominationCounts: %w", err)
	}
	*d = counts
	return nil
}
