package coalescer

import (
	"errors"
	"fmt"
)

var (
	InitializationOnlyError = errors.New("this property can only be set before Start() is called.")
	ImproperOrderError      = errors.New("methods can only be called in this order Start() > Stop().")
	StoppedError            = errors.New("the manager was stopped and will not accept further requests.")
	NoProcessFuncError      = errors.New("a process function must be provided.")
	NoFetcherError          = errors.New("a fetcher must be provided.")
	BufferFullError         = errors.New("the buffer is full, try to push again later.")
	UndefinedContainerError = errors.New("the container was not provisioned, make sure to call Provision().")
)

// MalformedKeyError is returned when a key cannot be used for set membership, for instance
// an interface key holding a slice or a map.
type MalformedKeyError struct {
	Key interface{}
}

func (e MalformedKeyError) Error() string {
	return fmt.Sprintf("the key %v (%T) is not comparable and cannot be batched.", e.Key, e.Key)
}

// NotFoundError is returned by Load() when the batch was processed but the fetcher did not
// return a value for the key.
type NotFoundError struct {
	Key interface{}
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("no value was found for key %v.", e.Key)
}

type ProcessPanicError struct {
	Value interface{}
}

func (e ProcessPanicError) Error() string {
	return fmt.Sprintf("the process function panicked: %v", e.Value)
}

type FetchStatusError struct {
	URL        string
	StatusCode int
}

func (e FetchStatusError) Error() string {
	return fmt.Sprintf("fetching %v returned status code %v.", e.URL, e.StatusCode)
}
