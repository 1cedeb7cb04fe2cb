package cmd

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"midiplayer/core/event"
)

func TestFormatEvent(t *testing.T) {
	assert.Equal(t, "MIDI_INIT MIDI player initialized.", formatEvent(event.Init("MIDI player initialized.")))
	assert.Equal(t, "MIDI_PAUSE t=1.50s", formatEvent(event.Pause(1.5)))
	assert.Equal(t, "MIDI_ERROR Could not process audio. error=boom",
		formatEvent(event.Error("Could not process audio.", errors.New("boom"))))
}
