package coalescer

import (
	"sync"
)

type buffer[T any] struct {
	lock     *sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond
	size     uint32
	max      uint32
	closed   bool
	head     *links[T]
	tail     *links[T]
}

type links[T any] struct {
	item T
	nxt  *links[T]
}

// newBuffer creates a bounded FIFO. All methods are threadsafe since items are pushed by callers and
// removed by a processing loop that runs in its own goroutine.
func newBuffer[T any](max uint32) *buffer[T] {
	lock := &sync.Mutex{}
	return &buffer[T]{
		lock:     lock,
		notFull:  sync.NewCond(lock),
		notEmpty: sync.NewCond(lock),
		max:      max,
	}
}

// This returns the number of items in the buffer.
func (b *buffer[T]) Size() uint32 {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.size
}

// This adds an item to the tail of the buffer. If the buffer is full and errorOnFull is false, this method is blocking until the item
// can be added. If the buffer is full and errorOnFull is true, this method returns BufferFullError. Once the buffer is closed it returns
// StoppedError.
func (b *buffer[T]) Enqueue(item T, errorOnFull bool) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	for !b.closed && b.max > 0 && b.size >= b.max {
		if errorOnFull {
			return BufferFullError
		}
		b.notFull.Wait()
	}
	if b.closed {
		return StoppedError
	}

	link := &links[T]{item: item}
	if b.tail == nil {
		b.head = link
	} else {
		b.tail.nxt = link
	}
	b.tail = link
	b.size++
	b.notEmpty.Signal()

	return nil
}

// This removes the head of the buffer, blocking while the buffer is empty. The bool is false once the buffer is closed and drained.
func (b *buffer[T]) Dequeue() (item T, ok bool) {
	b.lock.Lock()
	defer b.lock.Unlock()

	for b.size == 0 {
		if b.closed {
			return
		}
		b.notEmpty.Wait()
	}

	link := b.head
	b.head = link.nxt
	if b.head == nil {
		b.tail = nil
	}
	b.size--
	b.notFull.Signal()

	return link.item, true
}

// This stops the buffer from accepting items and wakes everything blocked on it. Items already in the buffer can still be dequeued.
func (b *buffer[T]) Close() {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.closed = true
	b.notFull.Broadcast()
	b.notEmpty.Broadcast()
}
