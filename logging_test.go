package coalescer_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	gocoalescer "github.com/mspnp/go-coalescer"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

// lockedBuffer lets the processing goroutine and the caller log into the same buffer.
type lockedBuffer struct {
	lock sync.Mutex
	buf  bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.buf.String()
}

func TestLogListener(t *testing.T) {

	t.Run("failures are logged at error", func(t *testing.T) {
		var out bytes.Buffer
		listener := gocoalescer.NewLogListener(zerolog.New(&out).Level(zerolog.ErrorLevel))
		listener(gocoalescer.RequestEvent, 1, "", 7)
		listener(gocoalescer.FailedEvent, 2, "backend unavailable", errors.New("backend unavailable"))
		assert.Contains(t, out.String(), `"level":"error"`)
		assert.Contains(t, out.String(), `"error":"backend unavailable"`)
		assert.Contains(t, out.String(), `"keys":2`)
		assert.NotContains(t, out.String(), "key requested")
	})

	t.Run("errors without metadata use the message", func(t *testing.T) {
		var out bytes.Buffer
		listener := gocoalescer.NewLogListener(zerolog.New(&out))
		listener(gocoalescer.ErrorEvent, 0, "something broke", nil)
		assert.Contains(t, out.String(), `"error":"something broke"`)
	})

	t.Run("a batch manager can log through the listener", func(t *testing.T) {
		out := &lockedBuffer{}
		logger := zerolog.New(out).Level(zerolog.TraceLevel)
		mgr := gocoalescer.NewBatchManager[int, int](func(ctx context.Context, keys []int) (int, error) {
			return len(keys), nil
		}).WithBatchFrequency(5 * time.Millisecond)
		mgr.AddListener(gocoalescer.NewLogListener(logger))
		err := mgr.Start(context.Background())
		assert.NoError(t, err, "expecting no errors on startup")
		res, err := mgr.Request(context.Background(), 1)
		assert.NoError(t, err)
		assert.Equal(t, 1, res)
		mgr.Stop()
		assert.Contains(t, out.String(), "key requested.")
		assert.Contains(t, out.String(), "batch processed.")
		assert.Contains(t, out.String(), "shutdown.")
	})

}
