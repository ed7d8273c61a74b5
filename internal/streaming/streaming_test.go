package streaming

import (
	"bytes"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playlens/survey-orchestrator/internal/survey"
)

func TestSSEFraming(t *testing.T) {
	var buf bytes.Buffer
	em := NewSSEEmitter(&buf, nil)

	require.NoError(t, em.Emit(Token("hel")))
	require.NoError(t, em.Emit(Token("lo")))

	out := buf.String()
	assert.Equal(t,
		`data: {"event":"token","data":{"content":"hel"}}`+"\n\n"+
			`data: {"event":"token","data":{"content":"lo"}}`+"\n\n",
		out)
}

func TestDoneEventNullMessageOnPass(t *testing.T) {
	b := Done(survey.ActionPassToNext, nil).Marshal()

	var env struct {
		Event string         `json:"event"`
		Data  map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(b, &env))
	assert.Equal(t, "done", env.Event)
	assert.Equal(t, "PASS_TO_NEXT", env.Data["action"])
	v, present := env.Data["message"]
	assert.True(t, present)
	assert.Nil(t, v)
}

func TestEnumStringsAreStable(t *testing.T) {
	assert.Equal(t, "generate_tail_complete", string(EventTailComplete))
	assert.Equal(t, "validity_result", string(EventValidityResult))
	assert.Equal(t, "retry_request", string(EventRetryRequest))
}

func TestHubPublishSubscribe(t *testing.T) {
	h := NewHub(8)
	ch := h.Subscribe("s1", 8)
	defer h.Unsubscribe("s1", ch)

	h.Publish("s1", Start())
	h.Publish("s1", Token("x"))
	h.Publish("other", Token("y"))

	ev := <-ch
	assert.Equal(t, EventStart, ev.Type)
	assert.Equal(t, uint64(1), ev.Seq)
	ev = <-ch
	assert.Equal(t, EventToken, ev.Type)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected cross-session event: %+v", extra)
	default:
	}
}

func TestHubReplayWrapsRing(t *testing.T) {
	h := NewHub(3)
	for i := 0; i < 5; i++ {
		h.Publish("s1", Token("t"))
	}
	evs := h.ReplaySince("s1", 0)
	require.Len(t, evs, 3)
	assert.Equal(t, uint64(3), evs[0].Seq)
	assert.Equal(t, uint64(5), evs[2].Seq)

	evs = h.ReplaySince("s1", 4)
	require.Len(t, evs, 1)
	assert.Equal(t, uint64(5), evs[0].Seq)
}

func TestHubSlowObserverDoesNotBlockPublish(t *testing.T) {
	h := NewHub(4)
	_ = h.Subscribe("s1", 1) // never drained
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			h.Publish("s1", Token("t"))
		}
		close(done)
	}()
	<-done // would hang if Publish blocked
}

func TestHubPublishSafeAcrossObserverChurn(t *testing.T) {
	h := NewHub(8)
	stop := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				h.Publish("s1", Token("t"))
			}
		}
	}()

	// observers attach and detach while events are in flight
	for i := 0; i < 200; i++ {
		ch := h.Subscribe("s1", 1)
		h.Unsubscribe("s1", ch)
	}
	close(stop)
	wg.Wait()
}

func TestCollectorOrder(t *testing.T) {
	c := NewCollector()
	_ = c.Emit(Start())
	_ = c.Emit(Done(survey.ActionPassToNext, nil))

	evs := c.Events()
	require.Len(t, evs, 2)
	assert.Equal(t, EventStart, evs[0].Type)
	assert.True(t, evs[1].Terminal())
}
