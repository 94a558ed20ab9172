package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueOrdersByDueTimeThenInsertion(t *testing.T) {
	q := New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	q.Add("b", base.Add(2*time.Minute), nil)
	q.Add("a", base.Add(1*time.Minute), nil)
	q.Add("c", base.Add(1*time.Minute), nil) // ties with "a", later insertion

	require.Equal(t, 3, q.Len())

	e, ok := q.Pop(base.Add(5 * time.Minute))
	require.True(t, ok)
	assert.Equal(t, "a", e.Name)

	e, ok = q.Pop(base.Add(5 * time.Minute))
	require.True(t, ok)
	assert.Equal(t, "c", e.Name)

	e, ok = q.Pop(base.Add(5 * time.Minute))
	require.True(t, ok)
	assert.Equal(t, "b", e.Name)
}

func TestQueuePopNonBlockingBeforeDue(t *testing.T) {
	q := New()
	now := time.Now()
	q.Add("x", now.Add(time.Hour), nil)

	_, ok := q.Pop(now)
	assert.False(t, ok)

	_, ok = q.Pop(now.Add(2 * time.Hour))
	assert.True(t, ok)
}

func TestQueueAddDeduplicatesByName(t *testing.T) {
	q := New()
	now := time.Now()
	q.Add("x", now.Add(time.Hour), nil)
	q.Add("x", now.Add(2*time.Hour), nil)

	require.Equal(t, 1, q.Len())
	snap := q.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, now.Add(2*time.Hour), snap[0].Due)
}

func TestQueueRemove(t *testing.T) {
	q := New()
	now := time.Now()
	q.Add("x", now, nil)
	q.Add("y", now, nil)

	q.Remove("x")
	assert.Equal(t, 1, q.Len())

	_, ok := q.Pop(now)
	require.True(t, ok)
	_, ok = q.Pop(now)
	assert.False(t, ok)
}

func TestQueuePopAllDue(t *testing.T) {
	q := New()
	now := time.Now()
	q.Add("a", now.Add(-time.Minute), nil)
	q.Add("b", now.Add(-time.Second), nil)
	q.Add("c", now.Add(time.Hour), nil)

	due := q.PopAllDue(now)
	require.Len(t, due, 2)
	assert.Equal(t, "a", due[0].Name)
	assert.Equal(t, "b", due[1].Name)
	assert.Equal(t, 1, q.Len())
}
