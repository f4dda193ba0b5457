package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/settlez-backend/pkg/errors"
	"github.com/angelmondragon/settlez-backend/pkg/pagination"
)

const (
	limitParam  = "limit"
	cursorParam = "cursor"
)

func queryParam(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}

// ParseQueryInt reads key as an integer in [lo, hi]. Absent or blank values yield def.
func ParseQueryInt(r *http.Request, key string, def, lo, hi int) (int, error) {
	raw := queryParam(r, key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.Validation(key, key+" must be an integer")
	}
	if n < lo || n > hi {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, key+" is out of range").
			WithDetails(map[string]any{"field": key, "min": lo, "max": hi, "value": n})
	}
	return n, nil
}

// ParsePagination reads limit and cursor. Cursors are decoded here so
// services only ever see well-formed values.
func ParsePagination(r *http.Request) (pagination.Params, error) {
	limit, err := ParseQueryInt(r, limitParam, pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	cursor := queryParam(r, cursorParam)
	if _, err := pagination.ParseCursor(cursor); err != nil {
		return pagination.Params{}, pkgerrors.Validation(cursorParam, "cursor is malformed or expired")
	}
	return pagination.Params{Limit: limit, Cursor: cursor}, nil
}
