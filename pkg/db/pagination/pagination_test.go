package pagination

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	token, err := EncodeCursor(Cursor{ID: snowflake.ID(42), CreatedAt: at})
	require.NoError(t, err)

	cursor, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(42), cursor.ID)
	assert.True(t, at.Equal(cursor.CreatedAt))

	_, err = DecodeCursor("%%%")
	assert.Error(t, err)

	empty, err := DecodeCursor("")
	assert.NoError(t, err)
	assert.Nil(t, empty)
}

func TestPage(t *testing.T) {
	rows := []int{1, 2, 3}
	cursorOf := func(v int) Cursor { return Cursor{ID: snowflake.ID(v)} }

	page, info := Page(rows, 5, cursorOf)
	assert.Len(t, page, 3)
	assert.False(t, info.HasMore)

	page, info = Page(rows, 2, cursorOf)
	assert.Equal(t, []int{1, 2}, page)
	assert.True(t, info.HasMore)
	cursor, err := DecodeCursor(info.NextPageToken)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(2), cursor.ID)
}

func TestLimit(t *testing.T) {
	assert.Equal(t, DefaultPageSize, Pagination{}.Limit())
	assert.Equal(t, MaxPageSize, Pagination{PageSize: 1000}.Limit())
	assert.Equal(t, 10, Pagination{PageSize: 10}.Limit())
}
