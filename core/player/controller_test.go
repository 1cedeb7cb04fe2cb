package player

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"midiplayer/config"
	"midiplayer/core/audio"
	"midiplayer/core/engine"
	"midiplayer/core/engine/enginetest"
	"midiplayer/core/event"
	"midiplayer/core/fetch"
)

var midiSong = []byte("MThd\x00\x00\x00\x06\x00\x00\x00\x01\x01\xe0")

type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) sink(e event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) all() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.Event(nil), r.events...)
}

func (r *recorder) kinds() []event.Kind {
	var ks []event.Kind
	for _, e := range r.all() {
		ks = append(ks, e.Kind)
	}
	return ks
}

func (r *recorder) count(k event.Kind) int {
	n := 0
	for _, e := range r.all() {
		if e.Kind == k {
			n++
		}
	}
	return n
}

func (r *recorder) find(k event.Kind) []event.Event {
	var out []event.Event
	for _, e := range r.all() {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// serve answers every location from files and records what was asked for.
type serve struct {
	mu    sync.Mutex
	files map[string][]byte
	calls []string
}

func newServe(files map[string][]byte) *serve {
	return &serve{files: files}
}

func (s *serve) Fetch(_ context.Context, location string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, location)
	data, ok := s.files[location]
	if !ok {
		return nil, &fetch.StatusError{Location: location, Code: 404}
	}
	return data, nil
}

func (s *serve) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func newTestPlayer(t *testing.T, eng *enginetest.Fake, f fetch.Fetcher) (*Controller, *recorder, *audio.Manual) {
	t.Helper()
	rec := &recorder{}
	m := audio.NewManual(44100)
	c := New(eng, f, Config{EventSink: rec.sink, Audio: m, PatchURL: "https://patches.example/"})
	t.Cleanup(func() { _ = c.Close() })
	return c, rec, m
}

func waitPlaying(t *testing.T, c *Controller, m *audio.Manual) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.State() == Playing && m.Connected()
	}, 2*time.Second, 5*time.Millisecond)
}

func waitState(t *testing.T, c *Controller, s State) {
	t.Helper()
	require.Eventually(t, func() bool { return c.State() == s }, 2*time.Second, 5*time.Millisecond)
}

func TestNew_EmitsInitOnce(t *testing.T) {
	eng := enginetest.New(0)
	c, rec, _ := newTestPlayer(t, eng, newServe(nil))

	assert.Equal(t, []event.Kind{event.KindInit}, rec.kinds())
	first := rec.all()[0]
	assert.Equal(t, "MIDI player initialized.", first.Message)
	assert.Equal(t, c.ID(), first.PlayerID)
	assert.Equal(t, Idle, c.State())

	New(eng, newServe(nil), Config{})
	assert.Equal(t, 1, eng.Inits())
}

func TestNew_Defaults(t *testing.T) {
	c := New(enginetest.New(0), nil, Config{})

	assert.Nil(t, c.EventSink())
	assert.False(t, c.Logging())
	assert.Equal(t, config.DefaultPatchURL, c.PatchURL())
	assert.Nil(t, c.AudioContext())
	assert.NotEmpty(t, c.ID())
	assert.NotEqual(t, c.ID(), New(enginetest.New(0), nil, Config{}).ID())
}

func TestPlay_NoSource(t *testing.T) {
	f := newServe(nil)
	c, rec, _ := newTestPlayer(t, enginetest.New(0), f)
	rec.reset()

	assert.False(t, c.Play(Source{}))

	assert.Equal(t, []event.Kind{event.KindStop, event.KindError}, rec.kinds())
	errEvent := rec.find(event.KindError)[0]
	assert.True(t, strings.HasPrefix(errEvent.Message, "Unknown source."))
	assert.ErrorIs(t, errEvent.Err, ErrUnknownSource)
	assert.Empty(t, f.Calls())
}

func TestPlay_AmbiguousSource(t *testing.T) {
	f := newServe(nil)
	c, rec, _ := newTestPlayer(t, enginetest.New(0), f)
	rec.reset()

	assert.False(t, c.Play(Source{Data: midiSong, URL: "song.mid"}))

	assert.Equal(t, []event.Kind{event.KindStop, event.KindError}, rec.kinds())
	assert.ErrorIs(t, rec.find(event.KindError)[0].Err, ErrAmbiguousSource)
	assert.Empty(t, f.Calls())
}

func TestPlay_RemoteLocation(t *testing.T) {
	f := newServe(map[string][]byte{"song.mid": midiSong})
	eng := enginetest.New(engine.BufferSize * 4)
	c, rec, m := newTestPlayer(t, eng, f)
	rec.reset()

	require.True(t, c.Play(FromURL("song.mid", "test")))
	waitPlaying(t, c, m)

	assert.Equal(t, []string{"song.mid"}, f.Calls())
	assert.Equal(t, []event.Kind{event.KindStop, event.KindLoadFile, event.KindPlay}, rec.kinds())
	assert.Equal(t, "Loading 'test'...", rec.find(event.KindLoadFile)[0].Message)
	assert.Equal(t, 0.0, rec.find(event.KindPlay)[0].Seconds())
	assert.Equal(t, 1, eng.Live())
}

func TestPlay_RemoteNotFound(t *testing.T) {
	eng := enginetest.New(engine.BufferSize)
	c, rec, _ := newTestPlayer(t, eng, newServe(nil))
	rec.reset()

	require.True(t, c.Play(FromURL("missing.mid", "test")))
	require.Eventually(t, func() bool { return rec.count(event.KindError) == 1 }, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, []event.Kind{event.KindStop, event.KindLoadFile, event.KindError}, rec.kinds())
	e := rec.find(event.KindError)[0]
	assert.Equal(t, "Could not retrieve MIDI 'test'.", e.Message)
	assert.EqualError(t, e.Err, "Status code: 404.")
	waitState(t, c, Stopped)
	assert.Zero(t, eng.Live())
}

func TestPlay_ResolvesMissingPatches(t *testing.T) {
	f := newServe(map[string][]byte{
		"https://patches.example/acpiano.pat": []byte("GF1-piano"),
		"https://patches.example/violin.pat":  []byte("GF1-violin"),
	})
	eng := enginetest.New(engine.BufferSize*4, "acpiano", "violin")
	c, rec, m := newTestPlayer(t, eng, f)
	rec.reset()

	require.True(t, c.Play(FromBytes(midiSong, "")))
	waitPlaying(t, c, m)

	assert.Equal(t, []event.Kind{event.KindStop, event.KindLoadFile, event.KindLoadPatch, event.KindPlay}, rec.kinds())
	assert.Equal(t, "Loading...", rec.find(event.KindLoadFile)[0].Message)
	assert.Equal(t, "Loading 2 MIDI instrument patches...", rec.find(event.KindLoadPatch)[0].Message)
	assert.ElementsMatch(t, []string{
		"https://patches.example/acpiano.pat",
		"https://patches.example/violin.pat",
	}, f.Calls())
	assert.True(t, eng.Installed("acpiano"))
	assert.True(t, eng.Installed("violin"))
	assert.Equal(t, 2, eng.Loads())
	assert.Equal(t, 1, eng.Live())
}

func TestPlay_NothingMissingSkipsResolution(t *testing.T) {
	f := newServe(nil)
	eng := enginetest.New(engine.BufferSize)
	c, rec, m := newTestPlayer(t, eng, f)

	require.True(t, c.Play(FromBytes(midiSong, "local")))
	waitPlaying(t, c, m)

	assert.Zero(t, rec.count(event.KindLoadPatch))
	assert.Empty(t, f.Calls())
	assert.Equal(t, 1, eng.Loads())
}

func TestPlay_PatchFailureAborts(t *testing.T) {
	release := make(chan struct{})
	f := fetch.Func(func(ctx context.Context, location string) ([]byte, error) {
		if strings.HasSuffix(location, "acpiano.pat") {
			return nil, &fetch.StatusError{Location: location, Code: 404}
		}
		select {
		case <-release:
			return []byte("GF1"), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	defer close(release)

	eng := enginetest.New(engine.BufferSize, "acpiano", "violin")
	c, rec, m := newTestPlayer(t, eng, f)
	rec.reset()

	require.True(t, c.Play(FromBytes(midiSong, "")))
	require.Eventually(t, func() bool { return rec.count(event.KindError) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, c.Close())

	errs := rec.find(event.KindError)
	require.Len(t, errs, 1)
	assert.Equal(t, "Could not retrieve missing instrument patch #0 (acpiano).", errs[0].Message)
	assert.ErrorIs(t, errs[0].Err, fetch.ErrNotFound)
	assert.Zero(t, rec.count(event.KindPlay))
	assert.False(t, m.Connected())
	assert.False(t, eng.Installed("violin"))
	assert.Equal(t, 1, eng.Loads())
	assert.Zero(t, eng.Live())
}

func TestStop_Twice(t *testing.T) {
	eng := enginetest.New(engine.BufferSize * 4)
	c, rec, m := newTestPlayer(t, eng, newServe(nil))
	require.True(t, c.Play(FromBytes(midiSong, "")))
	waitPlaying(t, c, m)
	rec.reset()

	assert.True(t, c.Stop())
	assert.True(t, c.Stop())

	assert.Equal(t, []event.Kind{event.KindStop, event.KindStop}, rec.kinds())
	for _, e := range rec.all() {
		assert.Equal(t, 0.0, e.Seconds())
	}
	assert.Zero(t, eng.BadFrees())
	assert.Zero(t, eng.Live())
	assert.False(t, m.Connected())
	assert.Equal(t, Stopped, c.State())
}

func TestPauseResume_ClockNeverRewinds(t *testing.T) {
	eng := enginetest.New(engine.BufferSize * 100)
	c, rec, m := newTestPlayer(t, eng, newServe(nil))
	require.True(t, c.Play(FromBytes(midiSong, "")))
	waitPlaying(t, c, m)

	m.Advance(1.5)
	m.Tick(1)

	require.True(t, c.Pause())
	assert.Equal(t, Paused, c.State())
	m.Advance(3)

	require.True(t, c.Resume())
	assert.Equal(t, Playing, c.State())
	m.Advance(1)
	m.Tick(1)

	pause := rec.find(event.KindPause)
	resume := rec.find(event.KindResume)
	require.Len(t, pause, 1)
	require.Len(t, resume, 1)
	assert.InDelta(t, 1.5, pause[0].Seconds(), 1e-9)
	assert.GreaterOrEqual(t, resume[0].Seconds(), pause[0].Seconds())
	assert.InDelta(t, 1.5, resume[0].Seconds(), 1e-9)

	plays := rec.find(event.KindPlay)
	assert.InDelta(t, 2.5, plays[len(plays)-1].Seconds(), 1e-9)
}

func TestPause_BeforePlay(t *testing.T) {
	c, rec, _ := newTestPlayer(t, enginetest.New(0), newServe(nil))
	rec.reset()

	assert.True(t, c.Pause())
	assert.True(t, c.Resume())

	assert.Equal(t, []event.Kind{event.KindPause, event.KindResume}, rec.kinds())
	assert.Equal(t, 0.0, rec.all()[0].Seconds())
	assert.Equal(t, 0.0, rec.all()[1].Seconds())
}

func TestPause_WhileLoadingIsIgnored(t *testing.T) {
	release := make(chan struct{})
	f := fetch.Func(func(ctx context.Context, _ string) ([]byte, error) {
		select {
		case <-release:
			return midiSong, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	c, rec, m := newTestPlayer(t, enginetest.New(engine.BufferSize), f)

	require.True(t, c.Play(FromURL("slow.mid", "")))
	assert.Equal(t, LoadingFile, c.State())
	rec.reset()

	assert.False(t, c.Pause())
	assert.False(t, c.Resume())
	assert.Empty(t, rec.all())

	close(release)
	waitPlaying(t, c, m)
}

func TestPause_SuspendFailure(t *testing.T) {
	c, rec, m := newTestPlayer(t, enginetest.New(engine.BufferSize*4), newServe(nil))
	require.True(t, c.Play(FromBytes(midiSong, "")))
	waitPlaying(t, c, m)
	rec.reset()

	m.SuspendErr = errors.New("device lost")
	assert.False(t, c.Pause())

	assert.Equal(t, []event.Kind{event.KindError}, rec.kinds())
	assert.Equal(t, "Could not pause playback.", rec.all()[0].Message)
	assert.Equal(t, Playing, c.State())

	m.SuspendErr = nil
	m.ResumeErr = errors.New("device lost")
	require.True(t, c.Pause())
	assert.False(t, c.Resume())
	assert.Equal(t, "Could not resume playback.", rec.find(event.KindError)[1].Message)
}

func TestStop_DiscardsLateFetch(t *testing.T) {
	release := make(chan struct{})
	fetched := make(chan struct{})
	f := fetch.Func(func(context.Context, string) ([]byte, error) {
		close(fetched)
		<-release
		return midiSong, nil
	})
	eng := enginetest.New(engine.BufferSize)
	c, rec, m := newTestPlayer(t, eng, f)

	require.True(t, c.Play(FromURL("slow.mid", "")))
	<-fetched
	require.True(t, c.Stop())
	close(release)
	require.NoError(t, c.Close())

	assert.Zero(t, rec.count(event.KindPlay))
	assert.Zero(t, rec.count(event.KindError))
	assert.False(t, m.Connected())
	assert.Zero(t, eng.Live())
}

func TestPlay_SupersededLoadLeavesPausedClockAlone(t *testing.T) {
	release := make(chan struct{})
	fetched := make(chan struct{})
	f := fetch.Func(func(_ context.Context, location string) ([]byte, error) {
		if location == "slow.mid" {
			close(fetched)
			<-release
		}
		return midiSong, nil
	})
	eng := enginetest.New(engine.BufferSize * 100)
	c, rec, m := newTestPlayer(t, eng, f)

	require.True(t, c.Play(FromURL("slow.mid", "a")))
	<-fetched
	require.True(t, c.Play(FromBytes(midiSong, "b")))
	waitPlaying(t, c, m)

	m.Advance(2)
	require.True(t, c.Pause())
	require.InDelta(t, 2.0, c.Elapsed(), 1e-9)

	close(release)
	require.Eventually(t, func() bool { return eng.Loads() == 2 && eng.Live() == 1 }, 2*time.Second, 5*time.Millisecond)

	m.Advance(10)
	assert.Equal(t, Paused, c.State())
	assert.InDelta(t, 2.0, c.Elapsed(), 1e-9)
	assert.Equal(t, 1, rec.count(event.KindPlay))
	assert.Zero(t, rec.count(event.KindError))
	assert.Zero(t, eng.BadFrees())
}

func TestPlay_ReplacesCurrentSong(t *testing.T) {
	eng := enginetest.New(engine.BufferSize * 4)
	c, rec, m := newTestPlayer(t, eng, newServe(nil))

	require.True(t, c.Play(FromBytes(midiSong, "first")))
	waitPlaying(t, c, m)
	require.True(t, c.Play(FromBytes(midiSong, "second")))
	waitPlaying(t, c, m)

	assert.Equal(t, 1, eng.Live())
	assert.Zero(t, eng.BadFrees())
	assert.Equal(t, 2, rec.count(event.KindPlay))
}

func TestPull_EndOfSong(t *testing.T) {
	eng := enginetest.New(engine.BufferSize + 100)
	c, rec, m := newTestPlayer(t, eng, newServe(nil))
	require.True(t, c.Play(FromBytes(midiSong, "")))
	waitPlaying(t, c, m)
	rec.reset()

	m.Advance(0.25)
	blocks := m.Tick(10)

	require.Len(t, blocks, 3)
	for _, v := range blocks[0] {
		require.Equal(t, float32(0.5), v)
	}
	assert.Equal(t, float32(0.5), blocks[1][99])
	assert.Equal(t, float32(0), blocks[1][100])
	assert.Equal(t, float32(0), blocks[1][engine.BufferSize-1])
	for _, v := range blocks[2] {
		require.Equal(t, float32(0), v)
	}

	assert.Equal(t, []event.Kind{
		event.KindPlay, event.KindPlay, event.KindPlay, event.KindStop, event.KindEnd,
	}, rec.kinds())
	ends := rec.find(event.KindEnd)
	require.Len(t, ends, 1)
	assert.InDelta(t, 0.25, ends[0].Seconds(), 1e-9)
	assert.Equal(t, Ended, c.State())
	assert.Zero(t, eng.Live())

	require.True(t, c.Play(FromBytes(midiSong, "")))
	waitPlaying(t, c, m)
	assert.Equal(t, 1, eng.Live())
	assert.Zero(t, eng.BadFrees())
}

func TestPull_ProgressBeforeSamples(t *testing.T) {
	eng := enginetest.New(engine.BufferSize * 4)
	c, rec, m := newTestPlayer(t, eng, newServe(nil))
	require.True(t, c.Play(FromBytes(midiSong, "")))
	waitPlaying(t, c, m)

	var plays int32
	c.SetLogger(func(e event.Event) {
		rec.sink(e)
		if e.Kind == event.KindPlay {
			atomic.AddInt32(&plays, 1)
		}
	}, false)

	var seen []int32
	require.NoError(t, m.Connect(audio.SourceFunc(func(out []float32) {
		c.Pull(out)
		seen = append(seen, atomic.LoadInt32(&plays))
	}), engine.BufferSize))
	m.Tick(2)

	assert.Equal(t, []int32{1, 2}, seen)
}

func TestPull_ReadFailure(t *testing.T) {
	eng := enginetest.New(engine.BufferSize * 4)
	c, rec, m := newTestPlayer(t, eng, newServe(nil))
	require.True(t, c.Play(FromBytes(midiSong, "")))
	waitPlaying(t, c, m)

	eng.ReadErr = errors.New("decoder exploded")
	m.Tick(1)

	errs := rec.find(event.KindError)
	require.Len(t, errs, 1)
	assert.Equal(t, "Could not process audio.", errs[0].Message)
	assert.Equal(t, Stopped, c.State())
	assert.Zero(t, eng.Live())
	assert.False(t, m.Connected())
}

func TestPlay_LoadFailure(t *testing.T) {
	eng := enginetest.New(engine.BufferSize)
	eng.LoadErr = errors.New("not a midi file")
	c, rec, _ := newTestPlayer(t, eng, newServe(nil))

	require.True(t, c.Play(FromBytes([]byte("garbage"), "")))
	require.Eventually(t, func() bool { return rec.count(event.KindError) == 1 }, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, "Could not load song.", rec.find(event.KindError)[0].Message)
	waitState(t, c, Stopped)
	assert.Zero(t, eng.Live())
}

func TestPlay_StartFailure(t *testing.T) {
	eng := enginetest.New(engine.BufferSize)
	eng.StartErr = errors.New("no voices")
	c, rec, m := newTestPlayer(t, eng, newServe(nil))

	require.True(t, c.Play(FromBytes(midiSong, "")))
	require.Eventually(t, func() bool { return rec.count(event.KindError) == 1 }, 2*time.Second, 5*time.Millisecond)

	assert.Zero(t, rec.count(event.KindPlay))
	assert.False(t, m.Connected())
	assert.Zero(t, eng.Live())
}

func TestEmitEvent_Custom(t *testing.T) {
	c, rec, _ := newTestPlayer(t, enginetest.New(0), newServe(nil))
	rec.reset()

	c.EmitEvent(event.Custom("SONG_CHANGED", "Next song."))

	e := rec.all()[0]
	assert.Equal(t, "SONG_CHANGED", e.Name())
	assert.Equal(t, "Next song.", e.Message)
	assert.Equal(t, c.ID(), e.PlayerID)
}

func TestSetLogger(t *testing.T) {
	c, first, _ := newTestPlayer(t, enginetest.New(0), newServe(nil))
	second := &recorder{}

	c.SetLogger(second.sink, true)
	c.Stop()
	assert.Equal(t, 1, first.count(event.KindInit))
	assert.Zero(t, first.count(event.KindStop))
	assert.Equal(t, 1, second.count(event.KindStop))
	assert.True(t, c.Logging())

	c.SetLogger(nil, false)
	c.Stop()
	assert.Equal(t, 1, second.count(event.KindStop))
	assert.Nil(t, c.EventSink())
}

func TestSharedSink_DistinguishesPlayers(t *testing.T) {
	rec := &recorder{}
	eng := enginetest.New(0)
	a := New(eng, newServe(nil), Config{EventSink: rec.sink, Audio: audio.NewManual(44100)})
	b := New(eng, newServe(nil), Config{EventSink: rec.sink, Audio: audio.NewManual(44100)})

	a.Stop()
	b.Stop()

	ids := map[string]int{}
	for _, e := range rec.find(event.KindStop) {
		ids[e.PlayerID]++
	}
	assert.Equal(t, map[string]int{a.ID(): 1, b.ID(): 1}, ids)
}

func TestPlay_OpensAudioOnFirstUse(t *testing.T) {
	var opened []*audio.Manual
	saved := newAudioContext
	newAudioContext = func(rate int) (audio.Context, error) {
		m := audio.NewManual(rate)
		opened = append(opened, m)
		return m, nil
	}
	defer func() { newAudioContext = saved }()

	rec := &recorder{}
	c := New(enginetest.New(engine.BufferSize*4), newServe(nil), Config{EventSink: rec.sink, SampleRate: 22050})
	require.Nil(t, c.AudioContext())

	require.True(t, c.Play(FromBytes(midiSong, "")))
	require.Eventually(t, func() bool { return c.State() == Playing }, 2*time.Second, 5*time.Millisecond)
	require.True(t, c.Play(FromBytes(midiSong, "")))
	require.Eventually(t, func() bool { return c.State() == Playing }, 2*time.Second, 5*time.Millisecond)

	require.Len(t, opened, 1)
	assert.Equal(t, 22050, opened[0].SampleRate())

	require.NoError(t, c.Close())
	assert.True(t, opened[0].Closed())
	assert.False(t, c.Play(FromBytes(midiSong, "")))
}

func TestPlay_AudioOpenFailure(t *testing.T) {
	saved := newAudioContext
	newAudioContext = func(int) (audio.Context, error) { return nil, errors.New("no device") }
	defer func() { newAudioContext = saved }()

	rec := &recorder{}
	eng := enginetest.New(engine.BufferSize)
	c := New(eng, newServe(nil), Config{EventSink: rec.sink})
	defer c.Close()

	require.True(t, c.Play(FromBytes(midiSong, "")))
	require.Eventually(t, func() bool { return rec.count(event.KindError) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "Could not initialize audio output.", rec.find(event.KindError)[0].Message)
	assert.Zero(t, eng.Live())
}
