package disruptor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRingPublishConsumeOrder(t *testing.T) {
	r := NewRing[int](8)
	stop := make(chan struct{})

	var got []int
	done := make(chan struct{})
	go func() {
		defer close(done)
		next := uint64(1)
		for i := 0; i < 5; i++ {
			ok := r.Consume(next, stop, func(v int) {
				got = append(got, v)
			})
			require.True(t, ok)
			next++
		}
	}()

	for i := 1; i <= 5; i++ {
		r.Publish(i, BackpressureSpin)
	}
	<-done

	require.Equal(t, []int{1, 2, 3, 4, 5}, got)
}

func TestRingTryPublishFullReturnsError(t *testing.T) {
	r := NewRing[int](2)
	require.NoError(t, r.TryPublish(1))
	require.NoError(t, r.TryPublish(2))
	err := r.TryPublish(3)
	require.ErrorIs(t, err, ErrBufferFull)
}
