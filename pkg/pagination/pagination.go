package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100

	cursorVersion = "v1"
)

// ErrInvalidCursor is returned for cursors that do not decode.
var ErrInvalidCursor = errors.New("invalid cursor")

// Params carries a requested page size and the opaque cursor of the previous page.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor points at the last row of a page ordered by (At DESC, ID DESC).
// The next page holds rows strictly after it.
type Cursor struct {
	At time.Time
	ID uuid.UUID
}

func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// LimitWithBuffer asks for one extra row so callers can tell whether another page exists.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

// EncodeCursor renders c as "v1:<unix nanos>:<uuid>" in unpadded base64url.
func EncodeCursor(c Cursor) string {
	raw := cursorVersion + ":" + strconv.FormatInt(c.At.UnixNano(), 10) + ":" + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// ParseCursor decodes value. Blank input means the first page and yields nil.
func ParseCursor(value string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	version, rest, ok := strings.Cut(string(decoded), ":")
	if !ok || version != cursorVersion {
		return nil, fmt.Errorf("%w: unsupported version", ErrInvalidCursor)
	}
	nanos, rawID, ok := strings.Cut(rest, ":")
	if !ok {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidCursor)
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: timestamp: %v", ErrInvalidCursor, err)
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("%w: id: %v", ErrInvalidCursor, err)
	}
	return &Cursor{At: time.Unix(0, n).UTC(), ID: id}, nil
}

// Keyset orders query by column and id descending and skips rows up to and
// including after. A nil cursor leaves the filter off.
func Keyset(query *gorm.DB, column string, after *Cursor, limit int) *gorm.DB {
	if after != nil {
		query = query.Where(
			fmt.Sprintf("%[1]s < ? OR (%[1]s = ? AND id < ?)", column),
			after.At, after.At, after.ID,
		)
	}
	return query.
		Order(column + " DESC").
		Order("id DESC").
		Limit(LimitWithBuffer(limit))
}

// Trim cuts rows fetched with LimitWithBuffer down to the page size and
// returns the cursor for the next page, or nil on the last page.
func Trim[T any](rows []T, limit int, key func(T) Cursor) ([]T, *Cursor) {
	limit = NormalizeLimit(limit)
	if len(rows) <= limit {
		return rows, nil
	}
	rows = rows[:limit]
	next := key(rows[limit-1])
	return rows, &next
}
