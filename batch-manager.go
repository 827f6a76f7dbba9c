package coalescer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	managerPhaseUninitialized = iota
	managerPhaseStarted
	managerPhaseStopped
)

// ProcessFunc turns one batch of distinct keys into a single result. It is called once per flush
// and is expected to make exactly one call against the backend.
type ProcessFunc[K comparable, R any] func(ctx context.Context, keys []K) (R, error)

type BatchManager[K comparable, R any] interface {
	Eventer
	WithBatchFrequency(val time.Duration) BatchManager[K, R]
	WithClock(val clock.Clock) BatchManager[K, R]
	WithMaxBatchSize(val uint32) BatchManager[K, R]
	WithMaxOperationTime(val time.Duration) BatchManager[K, R]
	RequestAsync(key K) *Waiter[R]
	Request(ctx context.Context, key K) (R, error)
	Flush()
	Pending() int
	Inflight() int
	Start(ctx context.Context) error
	Stop()
}

// pendingBatch holds the distinct keys of the batch being collected and, per key, the waiters of
// every caller that asked for it.
type pendingBatch[K comparable, R any] struct {
	keys    *KeySet[K]
	waiters map[K][]*Waiter[R]
}

func newPendingBatch[K comparable, R any]() *pendingBatch[K, R] {
	return &pendingBatch[K, R]{
		keys:    NewKeySet[K](),
		waiters: make(map[K][]*Waiter[R]),
	}
}

type batchManager[K comparable, R any] struct {
	eventer

	// configuration items that should not change after Start()
	process          ProcessFunc[K, R]
	batchFrequency   time.Duration
	clk              clock.Clock
	maxBatchSize     uint32
	maxOperationTime time.Duration

	// everything below is protected by mu
	mu         sync.Mutex
	phase      int
	ctx        context.Context
	pending    *pendingBatch[K, R]
	timer      *clock.Timer
	generation uint64

	// tracks batches handed to the process func
	shutdown sync.WaitGroup
	inflight int32
}

// This method creates a new BatchManager. Generally you should have 1 BatchManager per kind of entity you look up. Commonly after
// calling NewBatchManager() you will chain some WithXXXX methods, for instance... `NewBatchManager(fn).WithBatchFrequency(500 * time.Millisecond)`.
func NewBatchManager[K comparable, R any](process ProcessFunc[K, R]) BatchManager[K, R] {
	return &batchManager[K, R]{
		process: process,
	}
}

func (m *batchManager[K, R]) guardInitialization() {
	if m.phase != managerPhaseUninitialized {
		panic(InitializationOnlyError)
	}
}

// The BatchFrequency is the length of the window that starts with the first request into an empty batch. The default is `100ms`.
// Requests that arrive while the window is open join the batch but do not extend the window, so no request waits longer than the
// BatchFrequency for its batch to be handed to the process func, however steady the traffic is.
func (m *batchManager[K, R]) WithBatchFrequency(val time.Duration) BatchManager[K, R] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.guardInitialization()
	m.batchFrequency = val
	return m
}

// The Clock drives the flush timer. The default is the wall clock, unit tests can provide a `clock.NewMock()` to advance time by hand.
func (m *batchManager[K, R]) WithClock(val clock.Clock) BatchManager[K, R] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.guardInitialization()
	m.clk = val
	return m
}

// The MaxBatchSize caps the number of distinct keys in one batch. When the cap is reached the batch is flushed immediately and the next
// request opens a new window. The default is `0`, meaning there is no cap.
func (m *batchManager[K, R]) WithMaxBatchSize(val uint32) BatchManager[K, R] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.guardInitialization()
	m.maxBatchSize = val
	return m
}

// The MaxOperationTime puts a deadline on the context given to the process func. The default is `0`, meaning the process func only
// sees the context given to Start().
func (m *batchManager[K, R]) WithMaxOperationTime(val time.Duration) BatchManager[K, R] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.guardInitialization()
	m.maxOperationTime = val
	return m
}

func (m *batchManager[K, R]) applyDefaults() {
	if m.batchFrequency <= 0 {
		m.batchFrequency = 100 * time.Millisecond
	}
	if m.clk == nil {
		m.clk = clock.New()
	}
}

// Call this method to add a key to the batch being collected. The returned Waiter is settled once the batch the key joined has been
// processed. Asking for a key that is already pending attaches another waiter to it; asking for a key that is part of a batch being
// processed right now starts (or joins) the next batch.
func (m *batchManager[K, R]) RequestAsync(key K) *Waiter[R] {
	var zero R

	// lock
	m.mu.Lock()

	// ensure the manager can accept requests
	switch m.phase {
	case managerPhaseUninitialized:
		m.mu.Unlock()
		return settledWaiter(zero, ImproperOrderError)
	case managerPhaseStopped:
		m.mu.Unlock()
		return settledWaiter(zero, StoppedError)
	}

	// merge into the pending batch
	if m.pending == nil {
		m.pending = newPendingBatch[K, R]()
	}
	added, err := m.pending.keys.Merge(key)
	if err != nil {
		if m.pending.keys.Len() == 0 {
			m.pending = nil
		}
		m.mu.Unlock()
		return settledWaiter(zero, err)
	}
	waiter := newWaiter[R]()
	m.pending.waiters[key] = append(m.pending.waiters[key], waiter)
	size := m.pending.keys.Len()

	// arm the timer on the first key only; later keys do not move the deadline
	armed := false
	if m.timer == nil {
		gen := m.generation
		m.timer = m.clk.AfterFunc(m.batchFrequency, func() {
			m.onTimer(gen)
		})
		armed = true
	}

	// flush early when the batch is full
	var batch *pendingBatch[K, R]
	if m.maxBatchSize > 0 && size >= int(m.maxBatchSize) {
		batch = m.extract()
	}

	m.mu.Unlock()

	// raise events outside the lock so listeners may call back into the manager
	if armed {
		m.Emit(ArmedEvent, int(m.batchFrequency.Milliseconds()), "", nil)
	}
	if added {
		m.Emit(RequestEvent, size, "", key)
	} else {
		m.Emit(CoalescedEvent, size, "", key)
	}

	if batch != nil {
		go m.run(batch)
	}

	return waiter
}

// Call this method to add a key to the batch being collected and block until it has been processed or the context is done.
func (m *batchManager[K, R]) Request(ctx context.Context, key K) (R, error) {
	return m.RequestAsync(key).Wait(ctx)
}

// Call this method to hand the pending batch to the process func now instead of waiting for the timer.
func (m *batchManager[K, R]) Flush() {
	m.mu.Lock()
	if m.pending == nil {
		m.mu.Unlock()
		return
	}
	batch := m.extract()
	m.mu.Unlock()
	go m.run(batch)
}

// This tells you how many distinct keys are waiting for the next flush.
func (m *batchManager[K, R]) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return 0
	}
	return m.pending.keys.Len()
}

// This tells you how many batches have been handed to the process func and have not finished yet.
func (m *batchManager[K, R]) Inflight() int {
	return int(atomic.LoadInt32(&m.inflight))
}

func (m *batchManager[K, R]) onTimer(gen uint64) {
	m.mu.Lock()
	if gen != m.generation || m.pending == nil {
		// the batch this timer was armed for was already flushed
		m.mu.Unlock()
		return
	}
	batch := m.extract()
	m.mu.Unlock()
	go m.run(batch)
}

// extract detaches the pending batch and disarms its timer so that any request arriving from now on starts a fresh batch. It must be
// called while holding mu.
func (m *batchManager[K, R]) extract() *pendingBatch[K, R] {
	batch := m.pending
	m.pending = nil
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.generation++
	m.shutdown.Add(1)
	atomic.AddInt32(&m.inflight, 1)
	return batch
}

func (m *batchManager[K, R]) run(batch *pendingBatch[K, R]) {
	defer m.shutdown.Done()
	defer atomic.AddInt32(&m.inflight, -1)

	keys := batch.keys.Keys()
	m.Emit(BatchEvent, len(keys), "", keys)

	// process
	ctx := m.ctx
	if m.maxOperationTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.maxOperationTime)
		defer cancel()
	}
	result, err := m.invoke(ctx, keys)

	// settle every waiter of every key with the same outcome
	for _, waiters := range batch.waiters {
		for _, waiter := range waiters {
			waiter.settle(result, err)
		}
	}

	if err != nil {
		m.Emit(FailedEvent, len(keys), err.Error(), err)
	} else {
		m.Emit(ProcessedEvent, len(keys), "", nil)
	}
}

func (m *batchManager[K, R]) invoke(ctx context.Context, keys []K) (result R, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero R
			result = zero
			err = ProcessPanicError{Value: r}
		}
	}()
	return m.process(ctx, keys)
}

// Call this method to start accepting requests. The context is given to every call of the process func.
func (m *batchManager[K, R]) Start(ctx context.Context) (err error) {

	// only allow one phase at a time
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != managerPhaseUninitialized {
		err = ImproperOrderError
		return
	}

	// ensure there is something to do with a batch
	if m.process == nil {
		err = NoProcessFuncError
		return
	}

	// apply defaults
	m.applyDefaults()
	if ctx == nil {
		ctx = context.Background()
	}
	m.ctx = ctx

	// end starting
	m.phase = managerPhaseStarted

	return
}

// Call this method to stop accepting requests. Whatever is pending is flushed immediately and Stop() blocks until every batch has been
// processed. You may not restart after stopping.
func (m *batchManager[K, R]) Stop() {

	// only allow one phase at a time
	m.mu.Lock()
	if m.phase != managerPhaseStarted {
		// NOTE: there should be no need for callers to handle errors at Stop(), we will just ignore them
		m.phase = managerPhaseStopped
		m.mu.Unlock()
		return
	}
	m.phase = managerPhaseStopped

	// flush whatever is left
	var batch *pendingBatch[K, R]
	if m.pending != nil {
		batch = m.extract()
	}
	m.mu.Unlock()
	if batch != nil {
		go m.run(batch)
	}

	// wait for everything in flight
	m.shutdown.Wait()
	m.Emit(ShutdownEvent, 0, "", nil)

}
