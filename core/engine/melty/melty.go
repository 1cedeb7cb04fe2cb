// Package melty 基于 go-meltysynth SoundFont 合成器实现 engine.Engine。
//
// 音色库按标识保存 SoundFont。歌曲需要引擎配置的那个音色库，安装之前歌曲会把它报告为缺失，
// 也无法开始播放。
package melty

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/sinshu/go-meltysynth/meltysynth"

	"midiplayer/core/engine"
	"midiplayer/logger"
)

// releaseTail 最后一个事件之后音符的余音时长
const releaseTail = 0.5 // seconds

var errMissingBank = errors.New("melty: instrument bank not installed")

type song struct {
	midi    *meltysynth.MidiFile
	opts    engine.Options
	missing []string
	seq     *meltysynth.MidiFileSequencer
	started bool
	total   int // frames
	pos     int
	left    []float32
	right   []float32
}

// Engine 基于 SoundFont 的合成引擎
type Engine struct {
	bank string

	mu      sync.Mutex
	next    uint64
	streams map[engine.StreamHandle][]byte
	songs   map[engine.SongHandle]*song
	fonts   map[string]*meltysynth.SoundFont
}

// New 创建引擎，歌曲使用名为 bank 的 SoundFont 渲染
func New(bank string) *Engine {
	return &Engine{
		bank:    bank,
		streams: make(map[engine.StreamHandle][]byte),
		songs:   make(map[engine.SongHandle]*song),
		fonts:   make(map[string]*meltysynth.SoundFont),
	}
}

// Bank returns the identifier of the bank songs require.
func (e *Engine) Bank() string { return e.bank }

func (e *Engine) Init() error {
	logger.Info("[melty.Init] SoundFont engine ready", logger.String("bank", e.bank))
	return nil
}

// Shutdown 丢弃所有句柄和已安装的音色库
func (e *Engine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.streams = make(map[engine.StreamHandle][]byte)
	e.songs = make(map[engine.SongHandle]*song)
	e.fonts = make(map[string]*meltysynth.SoundFont)
}

func (e *Engine) OpenStream(data []byte) (engine.StreamHandle, error) {
	if len(data) == 0 {
		return 0, errors.New("melty: empty stream")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.next++
	h := engine.StreamHandle(e.next)
	e.streams[h] = data
	return h, nil
}

func (e *Engine) CloseStream(stream engine.StreamHandle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.streams[stream]; !ok {
		return engine.ErrUnknownStream
	}
	delete(e.streams, stream)
	return nil
}

func (e *Engine) LoadSong(stream engine.StreamHandle, opts engine.Options) (engine.SongHandle, error) {
	if err := opts.Validate(); err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	data, ok := e.streams[stream]
	if !ok {
		return 0, engine.ErrUnknownStream
	}

	midi, err := meltysynth.NewMidiFile(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("melty: parse MIDI: %w", err)
	}

	s := &song{
		midi:  midi,
		opts:  opts,
		total: int((midi.GetLength().Seconds() + releaseTail) * float64(opts.SampleRate)),
	}

	font, ok := e.fonts[e.bank]
	if !ok {
		s.missing = []string{e.bank}
	} else {
		synth, err := meltysynth.NewSynthesizer(font, meltysynth.NewSynthesizerSettings(int32(opts.SampleRate)))
		if err != nil {
			return 0, fmt.Errorf("melty: create synthesizer: %w", err)
		}
		s.seq = meltysynth.NewMidiFileSequencer(synth)
	}

	e.next++
	h := engine.SongHandle(e.next)
	e.songs[h] = s
	return h, nil
}

func (e *Engine) MissingCount(h engine.SongHandle) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.songs[h]
	if !ok {
		return 0, engine.ErrUnknownSong
	}
	return len(s.missing), nil
}

func (e *Engine) MissingInstrument(h engine.SongHandle, index int) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.songs[h]
	if !ok {
		return "", engine.ErrUnknownSong
	}
	if index < 0 || index >= len(s.missing) {
		return "", fmt.Errorf("melty: missing instrument index %d out of range", index)
	}
	return s.missing[index], nil
}

// InstallPatch 把 data 解析为 SoundFont 并以 name 保存
// 安装之前加载的歌曲需要重新加载才能用上
func (e *Engine) InstallPatch(name string, data []byte) error {
	font, err := meltysynth.NewSoundFont(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("melty: parse SoundFont %s: %w", name, err)
	}
	e.mu.Lock()
	e.fonts[name] = font
	e.mu.Unlock()

	logger.Debug("[melty.InstallPatch] bank installed", logger.String("name", name), logger.Int("bytes", len(data)))
	return nil
}

func (e *Engine) Start(h engine.SongHandle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.songs[h]
	if !ok {
		return engine.ErrUnknownSong
	}
	if s.seq == nil {
		return errMissingBank
	}
	s.seq.Play(s.midi, false)
	s.started = true
	s.pos = 0
	return nil
}

// ReadWave 向 dst 渲染单声道 S16LSB 帧
func (e *Engine) ReadWave(h engine.SongHandle, dst []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.songs[h]
	if !ok {
		return 0, engine.ErrUnknownSong
	}
	if !s.started {
		return 0, engine.ErrNotStarted
	}

	frames := len(dst) / 2
	if left := s.total - s.pos; frames > left {
		frames = left
	}
	if frames <= 0 {
		return 0, nil
	}

	if cap(s.left) < frames {
		s.left = make([]float32, frames)
		s.right = make([]float32, frames)
	}
	l, r := s.left[:frames], s.right[:frames]
	s.seq.Render(l, r)

	for i := 0; i < frames; i++ {
		binary.LittleEndian.PutUint16(dst[2*i:], uint16(toS16((l[i]+r[i])/2)))
	}
	s.pos += frames
	return frames * 2, nil
}

func (e *Engine) FreeSong(h engine.SongHandle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.songs, h)
}

func toS16(v float32) int16 {
	x := math.Round(float64(v) * 32767)
	if x > math.MaxInt16 {
		return math.MaxInt16
	}
	if x < math.MinInt16 {
		return math.MinInt16
	}
	return int16(x)
}

var _ engine.Engine = (*Engine)(nil)
