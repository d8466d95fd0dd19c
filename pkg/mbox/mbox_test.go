package mbox

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type slotMsg struct {
	producer int
	seq      int
	data     [8]byte
}

func TestFIFOSingleProducer(t *testing.T) {
	c := New[int](10)
	for i := 0; i < 10; i++ {
		require.NoError(t, c.Send(i, 0))
	}
	require.Equal(t, 10, c.Len())
	for i := 0; i < 10; i++ {
		v, err := c.Receive(0)
		require.NoError(t, err)
		require.Equal(t, i, v)
	}
	_, err := c.Receive(0)
	require.Equal(t, ErrEmpty, err)
}

func TestSendCopiesValue(t *testing.T) {
	c := New[slotMsg](2)
	m := slotMsg{seq: 1}
	copy(m.data[:], "abc")
	require.NoError(t, c.Send(m, 0))
	m.data[0] = 'z'

	got, err := c.Receive(0)
	require.NoError(t, err)
	require.Equal(t, byte('a'), got.data[0])
}

func TestFIFOConcurrentProducers(t *testing.T) {
	const producers, perProducer = 4, 500
	c := New[slotMsg](8)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				assert.NoError(t, c.Send(slotMsg{producer: p, seq: i}, time.Second))
			}
		}(p)
	}

	// Per-producer order must hold in the global receive order.
	next := make([]int, producers)
	for n := 0; n < producers*perProducer; n++ {
		m, err := c.Receive(time.Second)
		require.NoError(t, err)
		require.Equal(t, next[m.producer], m.seq)
		next[m.producer]++
	}
	wg.Wait()
}

func TestSendFullTimesOut(t *testing.T) {
	c := New[int](1)
	require.NoError(t, c.Send(1, 0))

	start := time.Now()
	err := c.Send(2, 40*time.Millisecond)
	elapsed := time.Since(start)
	require.Equal(t, ErrFull, err)
	require.True(t, elapsed >= 40*time.Millisecond)
	require.True(t, elapsed < 500*time.Millisecond)
}

func TestSendFreeSlotDoesNotWait(t *testing.T) {
	c := New[int](2)
	require.NoError(t, c.Send(1, time.Hour))
	start := time.Now()
	require.NoError(t, c.Send(2, time.Hour))
	require.True(t, time.Since(start) < 100*time.Millisecond)
}

func TestSendSucceedsWhenDrainedWithinTimeout(t *testing.T) {
	c := New[int](1)
	require.NoError(t, c.Send(1, 0))
	go func() {
		time.Sleep(10 * time.Millisecond)
		c.Receive(0)
	}()
	require.NoError(t, c.Send(2, time.Second))
	v, err := c.Receive(0)
	require.NoError(t, err)
	require.Equal(t, 2, v)
}

func TestReceiveBlocksUntilSend(t *testing.T) {
	c := New[string](1)
	go func() {
		time.Sleep(10 * time.Millisecond)
		c.Send("hi", 0)
	}()
	v, err := c.Receive(time.Second)
	require.NoError(t, err)
	require.Equal(t, "hi", v)
}

func TestContextCancel(t *testing.T) {
	c := New[int](1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ReceiveContext(ctx, time.Second)
	require.Equal(t, context.Canceled, err)

	require.NoError(t, c.Send(1, 0))
	require.Equal(t, context.Canceled, c.SendContext(ctx, 2, time.Second))
}

func TestNewPanicsOnZeroCapacity(t *testing.T) {
	require.Panics(t, func() { New[int](0) })
}
