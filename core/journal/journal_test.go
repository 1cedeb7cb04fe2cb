package journal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"midiplayer/core/event"
	"midiplayer/model"
)

type memStore struct {
	mu      sync.Mutex
	batches [][]*model.PlaybackEvent
	err     error
}

func (s *memStore) CreateBatch(_ context.Context, events []*model.PlaybackEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, events)
	return s.err
}

func (s *memStore) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, b := range s.batches {
		for _, e := range b {
			out = append(out, e.Event)
		}
	}
	return out
}

func TestJournal_FlushesOnClose(t *testing.T) {
	store := &memStore{}
	j := New(store, Options{FlushInterval: time.Hour})

	j.Record(event.Stop())
	j.Record(event.LoadFile("Loading..."))
	j.Record(event.Play(0))
	j.Record(event.Play(1.2))
	j.Record(event.End(3.4))
	j.Close()
	j.Close()

	assert.Equal(t, []string{"MIDI_STOP", "MIDI_LOAD_FILE", "MIDI_PLAY", "MIDI_END"}, store.names())
}

func TestJournal_KeepProgress(t *testing.T) {
	store := &memStore{}
	j := New(store, Options{KeepProgress: true})
	j.Record(event.Play(1.2))
	j.Close()

	assert.Equal(t, []string{"MIDI_PLAY"}, store.names())
}

func TestJournal_BatchSize(t *testing.T) {
	store := &memStore{}
	j := New(store, Options{BatchSize: 2, FlushInterval: time.Hour})
	defer j.Close()

	j.Record(event.Stop())
	j.Record(event.Stop())

	require.Eventually(t, func() bool { return len(store.names()) == 2 }, time.Second, 5*time.Millisecond)
}

func TestJournal_StoreFailureIsLogged(t *testing.T) {
	store := &memStore{err: errors.New("db down")}
	j := New(store, Options{})
	j.Record(event.Stop())
	j.Close()

	assert.Len(t, store.names(), 1)
}

func TestJournal_Sink(t *testing.T) {
	store := &memStore{}
	j := New(store, Options{})

	var got []event.Event
	sink := j.Sink(func(e event.Event) { got = append(got, e) })
	sink(event.Custom("SONG_CHANGED", "next"))
	j.Close()

	require.Len(t, got, 1)
	assert.Equal(t, []string{"SONG_CHANGED"}, store.names())

	sink(event.Stop())
	assert.Len(t, store.names(), 1)
}
