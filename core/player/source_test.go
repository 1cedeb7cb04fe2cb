package player

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSource_Validate(t *testing.T) {
	assert.ErrorIs(t, Source{}.validate(), ErrUnknownSource)
	assert.ErrorIs(t, Source{Data: []byte{}}.validate(), ErrUnknownSource)
	assert.ErrorIs(t, Source{Data: []byte("MThd"), URL: "a.mid"}.validate(), ErrAmbiguousSource)
	assert.NoError(t, FromBytes([]byte("MThd"), "").validate())
	assert.NoError(t, FromURL("a.mid", "").validate())
	assert.NoError(t, Source{Data: []byte{}, URL: "a.mid"}.validate())
}

func TestFormatName(t *testing.T) {
	assert.Equal(t, "", formatName(""))
	assert.Equal(t, " 'Für Elise'", formatName("Für Elise"))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "resolving_patches", ResolvingPatches.String())
	assert.Equal(t, "State(42)", State(42).String())
	assert.True(t, LoadingFile.loading())
	assert.True(t, Paused.active())
	assert.False(t, Ended.active())
}
