package event

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedBus(t *testing.T) (*Bus, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	return NewBus("player-1", zap.New(core)), logs
}

func TestBus_DiscardsWithoutSinks(t *testing.T) {
	bus, logs := newObservedBus(t)

	bus.Emit(Init("MIDI player initialized."))

	require.Zero(t, logs.Len())
	require.Nil(t, bus.Custom())
	require.False(t, bus.BasicEnabled())
}

func TestBus_CustomSinkTakesPriority(t *testing.T) {
	bus, logs := newObservedBus(t)
	var got []Event
	bus.Configure(func(e Event) { got = append(got, e) }, true)

	bus.Emit(Play(1.5))
	bus.Emit(Error("boom", errors.New("detail")))

	require.Len(t, got, 2)
	require.Zero(t, logs.Len(), "basic sink must not receive events while a custom sink is set")
	assert.Equal(t, KindPlay, got[0].Kind)
	assert.Equal(t, "player-1", got[0].PlayerID)
	assert.Equal(t, 1.5, got[0].Seconds())
	assert.Equal(t, KindError, got[1].Kind)
}

func TestBus_BasicSinkRoutesByKind(t *testing.T) {
	bus, logs := newObservedBus(t)
	bus.Configure(nil, true)

	bus.Emit(Stop())
	bus.Emit(Error("Could not load song.", errors.New("bad header")))
	bus.Emit(Custom("SONG_SELECTED", "picked"))

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, zapcore.InfoLevel, entries[2].Level)
	assert.Equal(t, MessagePrefix, entries[1].Message)
	assert.Equal(t, "MIDI_ERROR", entries[1].ContextMap()["event"])
	assert.Equal(t, "SONG_SELECTED", entries[2].ContextMap()["event"])
}

func TestBus_SinkPanicIsSwallowed(t *testing.T) {
	bus, logs := newObservedBus(t)
	bus.Configure(func(Event) { panic("sink exploded") }, false)

	require.NotPanics(t, func() { bus.Emit(Init("hello")) })
	require.Equal(t, 1, logs.FilterMessage("event sink panicked").Len())
}

func TestBus_ReconfigureReplacesWholeConfig(t *testing.T) {
	bus, logs := newObservedBus(t)
	count := 0
	bus.Configure(func(Event) { count++ }, false)
	bus.Emit(Play(0))

	bus.Configure(nil, true)
	bus.Emit(Play(1))

	bus.Configure(nil, false)
	bus.Emit(Play(2))

	require.Equal(t, 1, count)
	require.Equal(t, 1, logs.Len())
}

func TestEvent_MarshalJSON(t *testing.T) {
	e := Error("Could not retrieve MIDI 'test'.", errors.New("Status code: 404."))
	e.PlayerID = "abc"

	raw, err := json.Marshal(e)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(raw, &wire))
	assert.Equal(t, "MIDI_ERROR", wire["event"])
	assert.Equal(t, "Status code: 404.", wire["error"])
	assert.Equal(t, "abc", wire["playerId"])
	_, hasTime := wire["time"]
	assert.False(t, hasTime)

	raw, err = json.Marshal(Stop())
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"time":0`)
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "MIDI_LOAD_PATCH", KindLoadPatch.String())
	assert.Equal(t, "Kind(42)", Kind(42).String())
	assert.Equal(t, "MIDI_CUSTOM", Custom("", "x").Name())
}
