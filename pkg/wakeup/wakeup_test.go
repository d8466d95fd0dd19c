package wakeup

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNotifyCoalesces(t *testing.T) {
	for _, k := range []int{1, 2, 5, 100} {
		s := New("cmd")
		for i := 0; i < k; i++ {
			s.Notify()
		}
		require.True(t, s.Pending())
		require.True(t, s.Wait(0), "k=%d", k)
		require.False(t, s.Pending())
		require.False(t, s.Wait(10*time.Millisecond), "k=%d: extra wake", k)
	}
}

func TestConcurrentNotifyCoalesces(t *testing.T) {
	s := New("cmd")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Notifier().Notify()
			}
		}()
	}
	wg.Wait()
	require.True(t, s.Wait(0))
	require.False(t, s.Wait(0))
}

func TestWaitWokenByNotify(t *testing.T) {
	s := New("cmd")
	go func() {
		time.Sleep(10 * time.Millisecond)
		s.Notify()
	}()
	start := time.Now()
	require.True(t, s.Wait(time.Second))
	require.True(t, time.Since(start) < 500*time.Millisecond)
}

func TestWaitTimeout(t *testing.T) {
	s := New("cmd")
	start := time.Now()
	require.False(t, s.Wait(20*time.Millisecond))
	require.True(t, time.Since(start) >= 20*time.Millisecond)
}

func TestWaitContextCanceled(t *testing.T) {
	s := New("cmd")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok, err := s.WaitContext(ctx, time.Second)
	require.False(t, ok)
	require.Equal(t, context.Canceled, err)
	require.Equal(t, "cmd", s.Owner())
}

func TestNotifierIsProducerOnly(t *testing.T) {
	s := New("cmd")
	n := s.Notifier()
	_, isSignal := n.(*Signal)
	require.False(t, isSignal)
	_, canWait := n.(interface{ Wait(time.Duration) bool })
	require.False(t, canWait)

	n.Notify()
	require.True(t, s.Wait(0))
}
