// Package midiinfo reads summary information out of a Standard MIDI File without rendering it.
package midiinfo

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

const (
	defaultBPM = 120.0
	// drumChannel is channel 10, zero based.
	drumChannel = 9
)

// Program is one instrument selection found in the file.
type Program struct {
	Channel uint8
	Number  uint8
	Name    string
}

// Info 歌曲概要
type Info struct {
	Format     uint16
	Tracks     int
	Resolution uint16 // ticks per quarter note, 0 for SMPTE timing
	TrackNames []string
	Programs   []Program
	Tempo      float64 // first tempo in BPM
	Notes      int
	Duration   time.Duration
}

type tempoChange struct {
	tick uint64
	bpm  float64
}

// Read parses data as an SMF.
func Read(data []byte) (*Info, error) {
	s, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("read smf: %w", err)
	}

	info := &Info{
		Format: s.Format(),
		Tracks: len(s.Tracks),
		Tempo:  defaultBPM,
	}
	ticks, metric := s.TimeFormat.(smf.MetricTicks)
	if metric {
		info.Resolution = ticks.Resolution()
	}

	seen := make(map[[2]uint8]bool)
	var tempos []tempoChange
	var last uint64

	for _, track := range s.Tracks {
		var abs uint64
		for _, ev := range track {
			abs += uint64(ev.Delta)
			msg := ev.Message

			var text string
			var bpm float64
			switch {
			case msg.GetMetaTrackName(&text):
				info.TrackNames = append(info.TrackNames, text)
			case msg.GetMetaTempo(&bpm):
				tempos = append(tempos, tempoChange{tick: abs, bpm: bpm})
			}

			var ch, prog, key, vel uint8
			m := midi.Message(msg)
			switch {
			case m.GetProgramChange(&ch, &prog):
				k := [2]uint8{ch, prog}
				if !seen[k] {
					seen[k] = true
					info.Programs = append(info.Programs, Program{Channel: ch, Number: prog, Name: ProgramName(ch, prog)})
				}
			case m.GetNoteOn(&ch, &key, &vel) && vel > 0:
				info.Notes++
			}
		}
		if abs > last {
			last = abs
		}
	}

	sort.SliceStable(tempos, func(i, j int) bool { return tempos[i].tick < tempos[j].tick })
	if len(tempos) > 0 {
		info.Tempo = tempos[0].bpm
	}
	sort.Slice(info.Programs, func(i, j int) bool {
		if info.Programs[i].Channel != info.Programs[j].Channel {
			return info.Programs[i].Channel < info.Programs[j].Channel
		}
		return info.Programs[i].Number < info.Programs[j].Number
	})
	if metric && info.Resolution > 0 {
		info.Duration = duration(last, info.Resolution, tempos)
	}
	return info, nil
}

// duration integrates the tempo map up to tick end.
func duration(end uint64, resolution uint16, tempos []tempoChange) time.Duration {
	var seconds float64
	bpm := defaultBPM
	var at uint64
	for _, tc := range tempos {
		if tc.tick >= end {
			break
		}
		seconds += float64(tc.tick-at) / float64(resolution) * 60 / bpm
		at, bpm = tc.tick, tc.bpm
	}
	seconds += float64(end-at) / float64(resolution) * 60 / bpm
	return time.Duration(seconds * float64(time.Second))
}

// ProgramName returns the General MIDI name of program on channel.
func ProgramName(channel, program uint8) string {
	if channel == drumChannel {
		return "Percussion"
	}
	if int(program) < len(gmPrograms) {
		return gmPrograms[program]
	}
	return fmt.Sprintf("Program %d", program)
}

var gmPrograms = [128]string{
	"Acoustic Grand Piano", "Bright Acoustic Piano", "Electric Grand Piano", "Honky-tonk Piano",
	"Electric Piano 1", "Electric Piano 2", "Harpsichord", "Clavinet",
	"Celesta", "Glockenspiel", "Music Box", "Vibraphone",
	"Marimba", "Xylophone", "Tubular Bells", "Dulcimer",
	"Drawbar Organ", "Percussive Organ", "Rock Organ", "Church Organ",
	"Reed Organ", "Accordion", "Harmonica", "Tango Accordion",
	"Acoustic Guitar (nylon)", "Acoustic Guitar (steel)", "Electric Guitar (jazz)", "Electric Guitar (clean)",
	"Electric Guitar (muted)", "Overdriven Guitar", "Distortion Guitar", "Guitar Harmonics",
	"Acoustic Bass", "Electric Bass (finger)", "Electric Bass (pick)", "Fretless Bass",
	"Slap Bass 1", "Slap Bass 2", "Synth Bass 1", "Synth Bass 2",
	"Violin", "Viola", "Cello", "Contrabass",
	"Tremolo Strings", "Pizzicato Strings", "Orchestral Harp", "Timpani",
	"String Ensemble 1", "String Ensemble 2", "Synth Strings 1", "Synth Strings 2",
	"Choir Aahs", "Voice Oohs", "Synth Voice", "Orchestra Hit",
	"Trumpet", "Trombone", "Tuba", "Muted Trumpet",
	"French Horn", "Brass Section", "Synth Brass 1", "Synth Brass 2",
	"Soprano Sax", "Alto Sax", "Tenor Sax", "Baritone Sax",
	"Oboe", "English Horn", "Bassoon", "Clarinet",
	"Piccolo", "Flute", "Recorder", "Pan Flute",
	"Blown Bottle", "Shakuhachi", "Whistle", "Ocarina",
	"Lead 1 (square)", "Lead 2 (sawtooth)", "Lead 3 (calliope)", "Lead 4 (chiff)",
	"Lead 5 (charang)", "Lead 6 (voice)", "Lead 7 (fifths)", "Lead 8 (bass + lead)",
	"Pad 1 (new age)", "Pad 2 (warm)", "Pad 3 (polysynth)", "Pad 4 (choir)",
	"Pad 5 (bowed)", "Pad 6 (metallic)", "Pad 7 (halo)", "Pad 8 (sweep)",
	"FX 1 (rain)", "FX 2 (soundtrack)", "FX 3 (crystal)", "FX 4 (atmosphere)",
	"FX 5 (brightness)", "FX 6 (goblins)", "FX 7 (echoes)", "FX 8 (sci-fi)",
	"Sitar", "Banjo", "Shamisen", "Koto",
	"Kalimba", "Bagpipe", "Fiddle", "Shanai",
	"Tinkle Bell", "Agogo", "Steel Drums", "Woodblock",
	"Taiko Drum", "Melodic Tom", "Synth Drum", "Reverse Cymbal",
	"Guitar Fret Noise", "Breath Noise", "Seashore", "Bird Tweet",
	"Telephone Ring", "Helicopter", "Applause", "Gunshot",
}
