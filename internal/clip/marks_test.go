package clip

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkInResetsOutPointAtOrBeforeIt(t *testing.T) {
	var m Marks
	require.NoError(t, m.MarkIn(5))
	require.NoError(t, m.MarkOut(10))
	require.True(t, m.Ready())

	require.NoError(t, m.MarkIn(20))

	r := m.Range()
	require.NotNil(t, r.In)
	assert.Equal(t, 20.0, *r.In)
	assert.Nil(t, r.Out, "out-point before the new in-point must be cleared")
	assert.False(t, m.Ready())

	require.NoError(t, m.MarkOut(30))
	assert.True(t, m.Ready())
}

func TestMarkInKeepsLaterOutPoint(t *testing.T) {
	var m Marks
	require.NoError(t, m.MarkIn(5))
	require.NoError(t, m.MarkOut(30))

	require.NoError(t, m.MarkIn(10))

	assert.True(t, m.Ready())
	assert.Equal(t, 20.0, m.Range().Duration())
}

func TestMarkOutRequiresEarlierInPoint(t *testing.T) {
	var m Marks
	assert.ErrorIs(t, m.MarkOut(10), ErrNoInPoint)

	require.NoError(t, m.MarkIn(10))
	assert.ErrorIs(t, m.MarkOut(10), ErrOutBeforeIn)
	assert.ErrorIs(t, m.MarkOut(3), ErrOutBeforeIn)
	assert.False(t, m.Ready())

	require.NoError(t, m.MarkOut(12))
	assert.ErrorIs(t, m.MarkOut(1), ErrOutBeforeIn)
	assert.Equal(t, 12.0, *m.Range().Out, "rejected out-point leaves the previous one")
}

func TestMarkInRejectsNegative(t *testing.T) {
	var m Marks
	assert.Error(t, m.MarkIn(-1))
	assert.Nil(t, m.Range().In)
}

func TestRequestFromMarks(t *testing.T) {
	var m Marks
	_, err := m.Request("x")
	assert.ErrorIs(t, err, ErrNotReady)

	require.NoError(t, m.MarkIn(5))
	require.NoError(t, m.MarkOut(15))

	req, err := m.Request("Clip - 01-02-2026 10_00_00")
	require.NoError(t, err)
	assert.Equal(t, 5.0, req.StartSeconds)
	assert.Equal(t, 10.0, req.DurationSeconds)
	assert.Equal(t, "Clip - 01-02-2026 10_00_00", req.OutputName)

	m.Reset()
	assert.False(t, m.Ready())
	assert.Nil(t, m.Range().In)
}
