package challenges_test

import (
	"context"
	"errors"
	"testing"

	"challengesAPI/internal/challenges"
	"challengesAPI/internal/challenges/memstore"
	"challengesAPI/internal/types/event"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProcessor struct {
	id      string
	err     error
	batches [][]event.Event
	kinds   []event.Kind
	log     *[]string
}

func (p *recordingProcessor) ChallengeID() string { return p.id }

func (p *recordingProcessor) Process(_ context.Context, _ challenges.Scope, kind event.Kind, events []event.Event) error {
	if p.log != nil {
		*p.log = append(*p.log, p.id+":"+string(kind))
	}
	p.kinds = append(p.kinds, kind)
	p.batches = append(p.batches, events)
	return p.err
}

func TestListenersRegisterIsIdempotent(t *testing.T) {
	listeners := challenges.NewListeners()
	p := &recordingProcessor{id: "a"}

	listeners.Register(event.KindTrackListen, p)
	listeners.Register(event.KindTrackListen, p)
	listeners.Register(event.KindTrackListen, &recordingProcessor{id: "a"})

	assert.Len(t, listeners.Processors(event.KindTrackListen), 1)
}

func TestBusDispatchHasNoEffectUntilFlush(t *testing.T) {
	p := &recordingProcessor{id: "a"}
	listeners := challenges.NewListeners()
	listeners.Register(event.KindTrackListen, p)

	bus := challenges.NewBus(listeners, testLogger)
	bus.Dispatch(listen(1, day(0)))
	bus.Dispatch(listen(2, day(0)))

	assert.Empty(t, p.batches)
	assert.Equal(t, 2, bus.Pending())
}

func TestBusFlushPassesWholeBatchPerKind(t *testing.T) {
	var order []string
	listenA := &recordingProcessor{id: "a", log: &order}
	listenB := &recordingProcessor{id: "b", log: &order}
	trend := &recordingProcessor{id: "t", log: &order}

	listeners := challenges.NewListeners()
	listeners.Register(event.KindTrendingTrack, trend)
	listeners.Register(event.KindTrackListen, listenA)
	listeners.Register(event.KindTrackListen, listenB)

	bus := challenges.NewBus(listeners, testLogger)
	first := listen(1, day(0))
	second := event.New(event.KindTrendingTrack, 2, 0, day(0), nil)
	third := listen(3, day(1))
	bus.Dispatch(first)
	bus.Dispatch(second)
	bus.Dispatch(third)

	store := memstore.New()
	require.NoError(t, bus.Flush(context.Background(), store.Begin()))

	assert.Equal(t, []string{"a:track_listen", "b:track_listen", "t:trending_track"}, order)
	require.Len(t, listenA.batches, 1)
	assert.Equal(t, []event.Event{first, third}, listenA.batches[0])
	assert.Equal(t, []event.Event{first, third}, listenB.batches[0])
	assert.Equal(t, []event.Event{second}, trend.batches[0])
	assert.Zero(t, bus.Pending())

	// A second flush has nothing left to deliver.
	require.NoError(t, bus.Flush(context.Background(), store.Begin()))
	assert.Len(t, listenA.batches, 1)
}

func TestBusFlushAbortsOnFirstFailure(t *testing.T) {
	boom := errors.New("boom")
	failing := &recordingProcessor{id: "failing", err: boom}
	after := &recordingProcessor{id: "after"}

	listeners := challenges.NewListeners()
	listeners.Register(event.KindTrackListen, failing)
	listeners.Register(event.KindTrackListen, after)

	bus := challenges.NewBus(listeners, testLogger)
	bus.Dispatch(listen(1, day(0)))

	err := bus.Flush(context.Background(), memstore.New().Begin())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failing")
	assert.Empty(t, after.batches)
	assert.Equal(t, 1, bus.Pending(), "failed flush keeps events for a retry")

	bus.Discard()
	assert.Zero(t, bus.Pending())
}

func TestBusUsesListenersSnapshot(t *testing.T) {
	listeners := challenges.NewListeners()
	bus := challenges.NewBus(listeners, testLogger)

	late := &recordingProcessor{id: "late"}
	listeners.Register(event.KindTrackListen, late)

	bus.Dispatch(listen(1, day(0)))
	require.NoError(t, bus.Flush(context.Background(), memstore.New().Begin()))
	assert.Empty(t, late.batches)
}

func TestBusFlushHonoursCancellation(t *testing.T) {
	p := &recordingProcessor{id: "a"}
	listeners := challenges.NewListeners()
	listeners.Register(event.KindTrackListen, p)

	bus := challenges.NewBus(listeners, testLogger)
	bus.Dispatch(listen(1, day(0)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, bus.Flush(ctx, memstore.New().Begin()), context.Canceled)
	assert.Empty(t, p.batches)
	assert.Equal(t, 1, bus.Pending())
}
