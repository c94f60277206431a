package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, DefaultLimit, NormalizeLimit(-4))
	assert.Equal(t, 10, NormalizeLimit(10))
	assert.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+1))
	assert.Equal(t, 11, LimitWithBuffer(10))
}

func TestCursorRoundTrip(t *testing.T) {
	encoded := EncodeCursor(Cursor{AfterID: 42})

	cursor, err := ParseCursor(encoded)
	require.NoError(t, err)
	require.NotNil(t, cursor)
	assert.Equal(t, uint64(42), cursor.AfterID)
}

func TestParseCursorEmptyAndInvalid(t *testing.T) {
	cursor, err := ParseCursor("  ")
	require.NoError(t, err)
	assert.Nil(t, cursor)

	_, err = ParseCursor("!!!")
	require.ErrorIs(t, err, ErrInvalidCursor)

	_, err = ParseCursor("bm90LWEtbnVtYmVy")
	require.Error(t, err)
}

func TestTrim(t *testing.T) {
	rows := []uint64{1, 2, 3}
	page := Trim(rows, 2, func(v uint64) uint64 { return v })
	assert.Equal(t, []uint64{1, 2}, page.Items)

	cursor, err := ParseCursor(page.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), cursor.AfterID)

	last := Trim([]uint64{3}, 2, func(v uint64) uint64 { return v })
	assert.Empty(t, last.NextCursor)

	empty := Trim[uint64](nil, 2, func(v uint64) uint64 { return v })
	assert.NotNil(t, empty.Items)
}
