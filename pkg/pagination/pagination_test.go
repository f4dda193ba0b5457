package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLimit(t *testing.T) {
	cases := map[int]int{
		-3:            DefaultLimit,
		0:             DefaultLimit,
		7:             7,
		MaxLimit:      MaxLimit,
		MaxLimit + 50: MaxLimit,
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeLimit(in), "limit %d", in)
	}
	assert.Equal(t, 8, LimitWithBuffer(7))
}

func TestCursorKeepsNanosecondsAndID(t *testing.T) {
	at := time.Date(2026, 5, 4, 9, 30, 15, 123456789, time.FixedZone("EST", -5*3600))
	id := uuid.New()

	encoded := EncodeCursor(Cursor{At: at, ID: id})
	assert.NotContains(t, encoded, "=")

	decoded, err := ParseCursor(encoded)
	require.NoError(t, err)
	require.NotNil(t, decoded)
	assert.True(t, at.Equal(decoded.At))
	assert.Equal(t, time.UTC, decoded.At.Location())
	assert.Equal(t, id, decoded.ID)
}

func TestParseCursorBlankIsFirstPage(t *testing.T) {
	cursor, err := ParseCursor("  ")
	require.NoError(t, err)
	assert.Nil(t, cursor)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	enc := func(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }
	for _, value := range []string{
		"%%%",
		enc("v2:1:" + uuid.NewString()),
		enc("v1:notanumber:" + uuid.NewString()),
		enc("v1:12345"),
		enc("v1:12345:nope"),
	} {
		_, err := ParseCursor(value)
		assert.ErrorIs(t, err, ErrInvalidCursor, value)
	}
}

func TestTrim(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]Cursor, 4)
	for i := range rows {
		rows[i] = Cursor{At: base.Add(-time.Duration(i) * time.Minute), ID: uuid.New()}
	}
	key := func(c Cursor) Cursor { return c }

	page, next := Trim(rows, 3, key)
	assert.Len(t, page, 3)
	require.NotNil(t, next)
	assert.Equal(t, rows[2], *next)

	page, next = Trim(rows[:3], 3, key)
	assert.Len(t, page, 3)
	assert.Nil(t, next)
}
