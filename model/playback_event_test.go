package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"midiplayer/core/event"
)

func TestNewPlaybackEvent(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	e := event.Error("Could not load song.", errors.New("bad header"))
	e.PlayerID = "p1"
	rec := NewPlaybackEvent(e, at)
	assert.Equal(t, "p1", rec.PlayerID)
	assert.Equal(t, "MIDI_ERROR", rec.Event)
	assert.Equal(t, "bad header", rec.Error)
	assert.Nil(t, rec.Time)
	assert.Equal(t, at, rec.CreatedAt)

	rec = NewPlaybackEvent(event.End(12.5), at)
	assert.Equal(t, "MIDI_END", rec.Event)
	assert.Equal(t, 12.5, *rec.Time)
	assert.Empty(t, rec.Error)
}
