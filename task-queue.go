package coalescer

import (
	"context"
	"sync"
)

// Task is one unit of work given to a TaskQueue.
type Task func(ctx context.Context) error

type TaskQueue interface {
	Eventer
	WithErrorOnFullBuffer() TaskQueue
	Push(task Task) (*Waiter[struct{}], error)
	Size() uint32
	Start(ctx context.Context) error
	Stop()
}

type queuedTask struct {
	task   Task
	waiter *Waiter[struct{}]
}

type taskQueue struct {
	eventer

	// configuration items that should not change after Start()
	errorOnFullBuffer bool

	// used for internal operations
	buffer *buffer[queuedTask]

	// manage the phase
	phaseMutex sync.Mutex
	phase      int
	shutdown   sync.WaitGroup
}

// This method creates a new TaskQueue. Tasks pushed into the queue run one at a time, in the order they were pushed, each one starting
// only after the previous one returned. The queue holds up to max tasks that have not started yet; 0 means unbounded.
func NewTaskQueue(max uint32) TaskQueue {
	return &taskQueue{
		buffer: newBuffer[queuedTask](max),
	}
}

// Setting this option changes Push() such that it returns an error if the buffer is full. Normal behavior is for Push() to block until
// it is able to add to the buffer.
func (q *taskQueue) WithErrorOnFullBuffer() TaskQueue {
	q.phaseMutex.Lock()
	defer q.phaseMutex.Unlock()
	if q.phase != managerPhaseUninitialized {
		panic(InitializationOnlyError)
	}
	q.errorOnFullBuffer = true
	return q
}

// Call this method to add a task to the queue. Pushing is allowed before Start(), those tasks run once the queue starts. The Waiter is
// settled with the error the task returned.
func (q *taskQueue) Push(task Task) (*Waiter[struct{}], error) {
	if task == nil {
		return nil, NoProcessFuncError
	}
	waiter := newWaiter[struct{}]()
	if err := q.buffer.Enqueue(queuedTask{task: task, waiter: waiter}, q.errorOnFullBuffer); err != nil {
		return nil, err
	}
	return waiter, nil
}

// This tells you how many tasks are waiting to run.
func (q *taskQueue) Size() uint32 {
	return q.buffer.Size()
}

func (q *taskQueue) execute(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ProcessPanicError{Value: r}
		}
	}()
	return task(ctx)
}

// Call this method to start the processing loop.
func (q *taskQueue) Start(ctx context.Context) (err error) {

	// only allow one phase at a time
	q.phaseMutex.Lock()
	defer q.phaseMutex.Unlock()
	if q.phase != managerPhaseUninitialized {
		err = ImproperOrderError
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	// prepare for shutdown
	q.shutdown.Add(1)

	// process
	go func() {
		defer q.shutdown.Done()
		for {
			item, ok := q.buffer.Dequeue()
			if !ok {
				return
			}
			err := q.execute(ctx, item.task)
			item.waiter.settle(struct{}{}, err)
			if err != nil {
				q.Emit(ErrorEvent, 0, err.Error(), err)
			}
			q.Emit(TaskEvent, int(q.buffer.Size()), "", nil)
		}
	}()

	// end starting
	q.phase = managerPhaseStarted

	return
}

// Call this method to stop accepting tasks. Tasks already in the queue still run and Stop() blocks until they are done. If the queue
// was never started, the queued tasks are settled with StoppedError instead. You may not restart after stopping.
func (q *taskQueue) Stop() {

	// only allow one phase at a time
	q.phaseMutex.Lock()
	defer q.phaseMutex.Unlock()
	if q.phase == managerPhaseStopped {
		return
	}
	wasStarted := q.phase == managerPhaseStarted
	q.phase = managerPhaseStopped

	// no more writes, let the loop drain
	q.buffer.Close()
	if wasStarted {
		q.shutdown.Wait()
	} else {
		for {
			item, ok := q.buffer.Dequeue()
			if !ok {
				break
			}
			item.waiter.settle(struct{}{}, StoppedError)
		}
	}
	q.Emit(ShutdownEvent, 0, "", nil)

}
