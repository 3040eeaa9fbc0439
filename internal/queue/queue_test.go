package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueOrder(t *testing.T) {
	mq := New()
	var mu sync.Mutex
	var got []int
	for i := range 1000 {
		require.NoError(t, mq.Push(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}
	mq.Close()
	select {
	case <-mq.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("queue did not drain")
	}
	require.Len(t, got, 1000)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestQueuePushFromTask(t *testing.T) {
	mq := New()
	defer mq.Close()
	done := make(chan struct{})
	require.NoError(t, mq.Push(func() {
		_ = mq.Push(func() { close(done) })
	}))
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("nested task never ran")
	}
}

func TestQueueClosed(t *testing.T) {
	mq := New()
	mq.Close()
	mq.Close()
	assert.ErrorIs(t, mq.Push(func() {}), ErrQueueIsStoped)
	<-mq.Done()
}

func BenchmarkPush(b *testing.B) {
	mq := New()
	defer mq.Close()
	for b.Loop() {
		mq.Push(func() {
			// do something
		})
	}
}
