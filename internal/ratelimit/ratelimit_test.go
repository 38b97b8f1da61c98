package ratelimit

import (
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"

	"artflow-sync/internal/domain"

	"github.com/stretchr/testify/assert"
)

type recorder struct {
	mu  sync.Mutex
	ops []domain.Operation
}

func (r *recorder) send(op domain.Operation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ops)
}

func (r *recorder) last() domain.Operation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ops[len(r.ops)-1]
}

func op(n int) domain.Operation {
	return domain.Operation{
		Kind:    "draw",
		Payload: json.RawMessage(strconv.Itoa(n)),
	}
}

func TestThrottleLeadingEdge(t *testing.T) {
	rec := &recorder{}
	th := NewThrottle(50*time.Millisecond, rec.send)

	th.Send(op(1))
	assert.Equal(t, 1, rec.count(), "first send goes out immediately")
}

func TestThrottleCollapsesBurstToTrailing(t *testing.T) {
	rec := &recorder{}
	th := NewThrottle(40*time.Millisecond, rec.send)

	th.Send(op(1))
	th.Send(op(2))
	th.Send(op(3))
	assert.Equal(t, 1, rec.count(), "interior sends wait for the trailing edge")

	assert.Eventually(t, func() bool { return rec.count() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, json.RawMessage("3"), rec.last().Payload, "trailing edge carries the latest operation")
}

func TestThrottleFlushEmitsPendingExactlyOnce(t *testing.T) {
	rec := &recorder{}
	th := NewThrottle(time.Minute, rec.send)

	th.Send(op(1))
	th.Send(op(2))
	assert.Equal(t, 1, rec.count())

	th.Flush()
	assert.Equal(t, 2, rec.count(), "flush emits the pending trailing call")
	assert.Equal(t, json.RawMessage("2"), rec.last().Payload)

	th.Flush()
	assert.Equal(t, 2, rec.count(), "second flush has nothing left to emit")
}

func TestThrottleStopFlushesAndBlocksFurtherSends(t *testing.T) {
	rec := &recorder{}
	th := NewThrottle(time.Minute, rec.send)

	th.Send(op(1))
	th.Send(op(2))
	th.Stop()
	assert.Equal(t, 2, rec.count(), "teardown results in exactly one additional send")

	th.Send(op(3))
	assert.Equal(t, 2, rec.count(), "sends after Stop are dropped")
}

func TestDebounceWaitsForQuietPeriod(t *testing.T) {
	rec := &recorder{}
	d := NewDebounce(40*time.Millisecond, rec.send)

	d.Send(op(1))
	d.Send(op(2))
	d.Send(op(3))
	assert.Equal(t, 0, rec.count(), "nothing goes out while the producer is busy")

	assert.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, json.RawMessage("3"), rec.last().Payload, "only the latest content survives")
}

func TestDebounceFlushOnClose(t *testing.T) {
	rec := &recorder{}
	d := NewDebounce(time.Minute, rec.send)

	d.Send(op(1))
	d.Stop()
	assert.Equal(t, 1, rec.count(), "pending content is flushed on teardown")

	d.Send(op(2))
	assert.Equal(t, 1, rec.count())
}

func TestDebounceFlushWithoutPendingIsNoop(t *testing.T) {
	rec := &recorder{}
	d := NewDebounce(time.Minute, rec.send)

	d.Flush()
	assert.Equal(t, 0, rec.count())
}
