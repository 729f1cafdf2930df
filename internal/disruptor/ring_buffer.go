// Package disruptor implements the lock-free ring buffer primitives that
// back every named queue in the pipeline (order_q, valid_order_q, trade_q,
// balance_update_q, balance_event_q). The core pattern is LMAX's: a
// pre-allocated ring of cache-line-padded slots, atomic cursors, and a
// single-threaded consumer for deterministic draining.
//
// Each named queue in this core has exactly one producer and one consumer,
// which is simpler than LMAX's original multi-producer design: a single
// atomic counter stands in for the CAS claim loop, since there is never a
// second writer to race against.
//
// Reference: https://lmax-exchange.github.io/disruptor/
package disruptor

import (
	"errors"
	"runtime"
	"sync/atomic"
	"time"
)

// ErrBufferFull is returned by TryPublish when the ring has no free slot
// and the caller asked not to block.
var ErrBufferFull = errors.New("disruptor: ring buffer is full")

// slot is a single ring buffer cell, padded with 40 bytes after seq and value
// to reduce false sharing between the producer and consumer goroutines. The
// padding is fixed, so a slot spans exactly one 64-byte cache line only when
// T is 16 bytes wide.
type slot[T any] struct {
	seq   uint64
	value T
	_     [40]byte
}

// Ring is a single-producer/single-consumer ring buffer of T. Capacity must
// be a power of two so the slot index is a masked bitwise-AND instead of a
// modulo.
type Ring[T any] struct {
	capacity uint64
	mask     uint64
	slots    []slot[T]

	cursor   uint64 // highest published sequence (producer-owned)
	consumed uint64 // highest sequence the consumer has released (gate)
	_        [40]byte
}

// NewRing creates a ring buffer with the given power-of-two capacity.
func NewRing[T any](capacity uint64) *Ring[T] {
	if capacity == 0 || capacity&(capacity-1) != 0 {
		panic("disruptor: capacity must be a power of 2")
	}
	return &Ring[T]{
		capacity: capacity,
		mask:     capacity - 1,
		slots:    make([]slot[T], capacity),
	}
}

// Capacity returns the number of slots in the ring.
func (r *Ring[T]) Capacity() uint64 {
	return r.capacity
}

// BackpressureStrategy selects what Publish does when the ring is full.
type BackpressureStrategy int

const (
	// BackpressureSpin busy-spins (yielding via runtime.Gosched) until a
	// slot frees up. Lowest latency, burns CPU.
	BackpressureSpin BackpressureStrategy = iota
	// BackpressureBlock parks the producer goroutine between short spin
	// bursts. Used for the WAL/Settlement-facing queues where the spec
	// forbids ever dropping an item.
	BackpressureBlock
)

// Publish blocks (per strategy) until it can claim the next sequence slot,
// writes value into it, and makes it visible to the consumer. It never
// drops — every named queue in this core is required to apply backpressure
// rather than lose an item.
func (r *Ring[T]) Publish(value T, strategy BackpressureStrategy) {
	next := atomic.AddUint64(&r.cursor, 1)
	r.waitForSlot(next, strategy)
	idx := next & r.mask
	r.slots[idx].value = value
	atomic.StoreUint64(&r.slots[idx].seq, next)
}

func (r *Ring[T]) waitForSlot(next uint64, strategy BackpressureStrategy) {
	spins := 0
	for {
		gate := atomic.LoadUint64(&r.consumed)
		if next <= gate+r.capacity {
			return
		}
		spins++
		if strategy == BackpressureBlock && spins > 1000 {
			time.Sleep(time.Microsecond)
			spins = 0
			continue
		}
		runtime.Gosched()
	}
}

// TryPublish claims and writes a slot without blocking; it returns
// ErrBufferFull instead of waiting. Used only by callers that have their
// own drop-is-acceptable policy (there are none on the durable path — see
// Publish's doc comment).
func (r *Ring[T]) TryPublish(value T) error {
	for {
		cur := atomic.LoadUint64(&r.cursor)
		next := cur + 1
		gate := atomic.LoadUint64(&r.consumed)
		if next > gate+r.capacity {
			return ErrBufferFull
		}
		if atomic.CompareAndSwapUint64(&r.cursor, cur, next) {
			idx := next & r.mask
			r.slots[idx].value = value
			atomic.StoreUint64(&r.slots[idx].seq, next)
			return nil
		}
	}
}

// Consume spin-waits for the next sequence to become available, hands it
// to fn, then advances the gating sequence so the producer may reuse the
// slot. It returns false if stop is closed while waiting.
func (r *Ring[T]) Consume(next uint64, stop <-chan struct{}, fn func(T)) bool {
	idx := next & r.mask
	for {
		if atomic.LoadUint64(&r.slots[idx].seq) == next {
			break
		}
		select {
		case <-stop:
			return false
		default:
			runtime.Gosched()
		}
	}
	fn(r.slots[idx].value)
	atomic.StoreUint64(&r.consumed, next)
	return true
}

// Pending returns the number of published-but-unconsumed items.
func (r *Ring[T]) Pending() uint64 {
	return atomic.LoadUint64(&r.cursor) - atomic.LoadUint64(&r.consumed)
}
