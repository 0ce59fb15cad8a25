package download

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadQueueFIFOOrder(t *testing.T) {
	q := NewUploadQueue()
	q.Enqueue(UploadRequest{LocalPath: "/tmp/a", URL: "a_1.png"})
	q.Enqueue(UploadRequest{LocalPath: "/tmp/b", URL: "b_2.png"})

	first, ok := q.dequeue()
	require.True(t, ok)
	assert.Equal(t, "a_1.png", first.URL)

	second, ok := q.dequeue()
	require.True(t, ok)
	assert.Equal(t, "b_2.png", second.URL)

	_, ok = q.dequeue()
	assert.False(t, ok)
}

func TestUploadWorkerPoolOutstandingStartsZero(t *testing.T) {
	p := NewUploadWorkerPool(NewUploadQueue(), nil, "", nil, nil)
	assert.Equal(t, int64(0), p.Outstanding())
}
