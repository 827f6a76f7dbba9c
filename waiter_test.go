package coalescer_test

import (
	"context"
	"errors"
	"testing"
	"time"

	gocoalescer "github.com/mspnp/go-coalescer"
	"github.com/stretchr/testify/assert"
)

func TestWaiter(t *testing.T) {

	t.Run("result is empty until settled", func(t *testing.T) {
		mgr := gocoalescer.NewBatchManager(newRecorder().process).
			WithBatchFrequency(time.Hour)
		err := mgr.Start(context.Background())
		assert.NoError(t, err, "expecting no errors on startup")
		defer mgr.Stop()
		waiter := mgr.RequestAsync("a")
		select {
		case <-waiter.Done():
			assert.Fail(t, "did not expect the waiter to be settled before the flush")
		default:
		}
		val, err := waiter.Result()
		assert.NoError(t, err)
		assert.Equal(t, 0, val)
		mgr.Flush()
		<-waiter.Done()
		val, err = waiter.Result()
		assert.NoError(t, err)
		assert.Equal(t, 1, val)
	})

	t.Run("rejected requests are settled immediately", func(t *testing.T) {
		mgr := gocoalescer.NewBatchManager(newRecorder().process)
		waiter := mgr.RequestAsync("a")
		<-waiter.Done()
		_, err := waiter.Result()
		assert.True(t, errors.Is(err, gocoalescer.ImproperOrderError))
	})

}
