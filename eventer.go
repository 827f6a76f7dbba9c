package coalescer

import (
	"sync"

	"github.com/google/uuid"
)

// Listener receives every event raised by the component it is attached to. The meaning of val,
// msg and metadata depends on the event.
type Listener func(event string, val int, msg string, metadata interface{})

type Eventer interface {
	AddListener(fn Listener) uuid.UUID
	RemoveListener(id uuid.UUID)
	Emit(event string, val int, msg string, metadata interface{})
}

type eventer struct {
	listenerMutex sync.RWMutex
	listeners     map[uuid.UUID]Listener
}

// This method registers a listener and returns an id that can be given to RemoveListener() to
// unsubscribe it again.
func (r *eventer) AddListener(fn Listener) uuid.UUID {

	// lock
	r.listenerMutex.Lock()
	defer r.listenerMutex.Unlock()

	// allocate
	if r.listeners == nil {
		r.listeners = make(map[uuid.UUID]Listener)
	}

	// add a new listener
	id := uuid.New()
	r.listeners[id] = fn

	return id
}

func (r *eventer) RemoveListener(id uuid.UUID) {

	// lock
	r.listenerMutex.Lock()
	defer r.listenerMutex.Unlock()

	// remove
	delete(r.listeners, id)

}

func (r *eventer) Emit(event string, val int, msg string, metadata interface{}) {

	// lock
	r.listenerMutex.RLock()
	defer r.listenerMutex.RUnlock()

	// emit
	for _, fn := range r.listeners {
		fn(event, val, msg, metadata)
	}

}
