package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBudget_HoldsBackWhileInFlightCouldMeetLimit(t *testing.T) {
	b := newBudget(2)
	require.True(t, b.acquire())
	require.True(t, b.acquire())

	started := make(chan bool)
	go func() { started <- b.acquire() }()

	select {
	case <-started:
		t.Fatal("third item started while two were in flight")
	case <-time.After(20 * time.Millisecond):
	}

	b.release(false)
	assert.True(t, <-started)

	b.release(true)
	b.release(true)
	assert.True(t, b.met())
	assert.False(t, b.acquire())
}

func TestBudget_Unlimited(t *testing.T) {
	b := newBudget(0)
	for i := 0; i < 100; i++ {
		require.True(t, b.acquire())
	}
	assert.False(t, b.met())
	assert.Equal(t, 25, b.pageSize(25))
}

func TestBudget_PageSize(t *testing.T) {
	b := newBudget(100)
	assert.Equal(t, 200, b.pageSize(50))

	for i := 0; i < 90; i++ {
		b.acquire()
		b.release(true)
	}
	assert.Equal(t, 50, b.pageSize(50))
	assert.Equal(t, 20, b.pageSize(5))
}
