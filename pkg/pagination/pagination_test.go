package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	cursor := Cursor{CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 123, time.UTC), ID: uuid.New()}
	parsed, err := ParseCursor(EncodeCursor(cursor))
	require.NoError(t, err)
	assert.True(t, cursor.CreatedAt.Equal(parsed.CreatedAt))
	assert.Equal(t, cursor.ID, parsed.ID)

	empty, err := ParseCursor("  ")
	require.NoError(t, err)
	assert.Nil(t, empty)

	_, err = ParseCursor("not-base64!")
	assert.Error(t, err)
}

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, MaxLimit, NormalizeLimit(500))
	assert.Equal(t, 7, NormalizeLimit(7))
	assert.Equal(t, 8, LimitWithBuffer(7))
}

func TestTrim(t *testing.T) {
	base := time.Now().UTC()
	rows := []Cursor{
		{CreatedAt: base, ID: uuid.New()},
		{CreatedAt: base.Add(-time.Minute), ID: uuid.New()},
		{CreatedAt: base.Add(-2 * time.Minute), ID: uuid.New()},
	}
	identity := func(c Cursor) Cursor { return c }

	page := Trim(rows, 2, identity)
	require.Len(t, page.Items, 2)
	next, err := ParseCursor(page.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, rows[1].ID, next.ID)

	full := Trim(rows, 5, identity)
	assert.Len(t, full.Items, 3)
	assert.Empty(t, full.NextCursor)
}

func TestParseCursorWrapsSentinel(t *testing.T) {
	for _, raw := range []string{"%%%", EncodeCursor(Cursor{})[:4], "bm8tc2VwYXJhdG9y"} {
		_, err := ParseCursor(raw)
		assert.ErrorIs(t, err, ErrInvalidCursor, raw)
	}
}
