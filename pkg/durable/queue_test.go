package durable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func queueImpls(t *testing.T) map[string]func() Queue {
	return map[string]func() Queue{
		"memory": func() Queue { return NewMemoryQueue() },
		"wal": func() Queue {
			q, err := OpenWAL(t.TempDir(), "q", WALOptions{NoSync: true})
			require.NoError(t, err)
			return q
		},
	}
}

func pushAll(t *testing.T, q Queue, records ...string) {
	t.Helper()
	for _, r := range records {
		require.NoError(t, q.Push([]byte(r)))
	}
}

func asStrings(records [][]byte) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = string(r)
	}
	return out
}

func TestQueue_Contract(t *testing.T) {
	for name, open := range queueImpls(t) {
		t.Run(name, func(t *testing.T) {
			q := open()
			defer q.Close()

			assert.Equal(t, 0, q.Size())
			_, ok, err := q.Pop()
			require.NoError(t, err)
			assert.False(t, ok)

			pushAll(t, q, "a", "b", "c", "d")
			assert.Equal(t, 4, q.Size())

			peeked, err := q.PeekMulti(2)
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b"}, asStrings(peeked))
			again, err := q.PeekMulti(2)
			require.NoError(t, err)
			assert.Equal(t, asStrings(peeked), asStrings(again), "peek must not consume")
			assert.Equal(t, 4, q.Size())

			got, err := q.DequeueMulti(3)
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b", "c"}, asStrings(got))
			assert.Equal(t, 1, q.Size())

			require.NoError(t, q.GC())
			data, ok, err := q.Pop()
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "d", string(data))

			more, err := q.DequeueMulti(10)
			require.NoError(t, err)
			assert.Empty(t, more)
			assert.Equal(t, 0, q.Size())

			pushAll(t, q, "e")
			assert.Equal(t, 1, q.Size())
		})
	}
}

func TestQueue_PeekMoreThanAvailable(t *testing.T) {
	for name, open := range queueImpls(t) {
		t.Run(name, func(t *testing.T) {
			q := open()
			defer q.Close()
			pushAll(t, q, "x", "y")

			got, err := q.PeekMulti(100)
			require.NoError(t, err)
			assert.Equal(t, []string{"x", "y"}, asStrings(got))

			none, err := q.PeekMulti(0)
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestQueue_ClosedRejectsPush(t *testing.T) {
	for name, open := range queueImpls(t) {
		t.Run(name, func(t *testing.T) {
			q := open()
			require.NoError(t, q.Close())
			assert.ErrorIs(t, q.Push([]byte("late")), ErrClosed)
		})
	}
}
