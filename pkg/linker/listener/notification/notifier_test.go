package notification

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/imagelink/pkg/linker/core/domain/model"
)

type recordingNotifier struct{ events []Event }

func (r *recordingNotifier) Notify(_ context.Context, e Event) { r.events = append(r.events, e) }

func TestBroadcaster_DeliversAndClosesOnTerminal(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe("s1")
	defer cancel()
	other, cancelOther := b.Subscribe("s2")
	defer cancelOther()

	ctx := context.Background()
	b.Notify(ctx, Event{Type: EventProgress, SessionID: "s1", Progress: 10})
	b.Notify(ctx, Event{Type: EventComplete, SessionID: "s1", Progress: 100})

	var got []Event
	for e := range ch {
		got = append(got, e)
	}
	require.Len(t, got, 2)
	assert.Equal(t, EventComplete, got[1].Type)
	assert.Equal(t, 0, b.Subscribers("s1"))
	assert.Equal(t, 1, b.Subscribers("s2"))

	select {
	case e := <-other:
		t.Fatalf("unexpected event for s2: %+v", e)
	default:
	}
}

func TestBroadcaster_SlowSubscriberKeepsTerminalEvent(t *testing.T) {
	b := NewBroadcasterWithBuffer(2)
	ch, cancel := b.Subscribe("s1")
	defer cancel()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		b.Notify(ctx, Event{Type: EventProgress, SessionID: "s1", Progress: float64(i)})
	}
	b.Notify(ctx, Event{Type: EventError, SessionID: "s1", Message: "boom"})

	var last Event
	n := 0
	for e := range ch {
		last = e
		n++
	}
	assert.Equal(t, 2, n)
	assert.Equal(t, EventError, last.Type)
}

func TestBroadcaster_CancelAndClose(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe("s1")
	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)

	ch2, cancel2 := b.Subscribe("s2")
	b.Close()
	_, open = <-ch2
	assert.False(t, open)
	cancel2()
}

func TestMultiAndSessionEvent(t *testing.T) {
	s := model.NewScanSession("s1", 6, 70, 85, time.Now())
	s.Status = model.SessionRunning
	s.StepName = "write"
	s.ProgressPercent = 42
	e := NewSessionEvent(EventProgress, s, "")
	assert.Equal(t, "s1", e.SessionID)
	assert.Equal(t, "write", e.StepName)
	assert.Equal(t, 42.0, e.Progress)

	a, c := &recordingNotifier{}, &recordingNotifier{}
	Multi{a, nil, c, NewLogNotifier()}.Notify(context.Background(), e)
	assert.Len(t, a.events, 1)
	assert.Len(t, c.events, 1)
	assert.True(t, EventError.IsTerminal())
	assert.False(t, EventLog.IsTerminal())
}
