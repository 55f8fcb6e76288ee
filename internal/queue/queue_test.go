package queue

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testQueue(t *testing.T) *Queue {
	t.Helper()

	q, err := Open(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })

	return q
}

func TestQueue_EnqueuePendingAck(t *testing.T) {
	q := testQueue(t)

	seq1, err := q.Enqueue("acme", "orders/1", []byte("first"))
	require.NoError(t, err)

	seq2, err := q.Enqueue("acme", "orders/2", []byte("second"))
	require.NoError(t, err)
	assert.Greater(t, seq2, seq1)

	pending, err := q.Pending(10)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	// Oldest first.
	assert.Equal(t, "orders/1", pending[0].Key)
	assert.Equal(t, []byte("first"), pending[0].Payload)
	assert.Equal(t, "acme", pending[0].Partner)
	assert.Equal(t, seq1, pending[0].Seq)

	require.NoError(t, q.Ack(seq1))

	pending, err = q.Pending(10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "orders/2", pending[0].Key)
}

func TestQueue_PendingRespectsMax(t *testing.T) {
	q := testQueue(t)

	for i := 0; i < 5; i++ {
		_, err := q.Enqueue("acme", "k", []byte{byte(i)})
		require.NoError(t, err)
	}

	pending, err := q.Pending(3)
	require.NoError(t, err)
	assert.Len(t, pending, 3)
}

func TestQueue_PendingDoesNotRemove(t *testing.T) {
	q := testQueue(t)

	_, err := q.Enqueue("acme", "k", []byte("v"))
	require.NoError(t, err)

	for j := 0; j < 3; j++ {
		pending, err := q.Pending(10)
		require.NoError(t, err)
		assert.Len(t, pending, 1, "records stay queued until acked")
	}
}

func TestQueue_AckUnknownSeq(t *testing.T) {
	q := testQueue(t)

	assert.NoError(t, q.Ack(42), "acking an unknown sequence is a no-op")
}

func TestQueue_Len(t *testing.T) {
	q := testQueue(t)

	n, err := q.Len()
	require.NoError(t, err)
	assert.Zero(t, n)

	seq, err := q.Enqueue("acme", "k", []byte("v"))
	require.NoError(t, err)

	n, err = q.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, q.Ack(seq))

	n, err = q.Len()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestQueue_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")

	q, err := Open(path)
	require.NoError(t, err)

	_, err = q.Enqueue("acme", "orders/1", []byte("durable"))
	require.NoError(t, err)
	require.NoError(t, q.Close())

	q, err = Open(path)
	require.NoError(t, err)
	defer q.Close()

	pending, err := q.Pending(10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, []byte("durable"), pending[0].Payload)
}
