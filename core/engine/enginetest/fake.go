// Package enginetest 提供播放器测试用的可编排 engine.Engine
package enginetest

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"midiplayer/core/engine"
)

type song struct {
	data    []byte
	missing []string
	started bool
	pos     int // frames rendered
}

// Fake 内存引擎，歌曲把 Requires 中尚未安装的乐器报告为缺失
// ReadWave 先渲染 Frames 帧固定的 Sample 值，之后返回 0
type Fake struct {
	Requires []string
	Frames   int
	Sample   int16

	LoadErr  error
	ReadErr  error
	StartErr error

	mu        sync.Mutex
	next      uint64
	streams   map[engine.StreamHandle][]byte
	songs     map[engine.SongHandle]*song
	installed map[string][]byte
	inits     int
	loads     int
	frees     int
	badFrees  int
}

// New 创建 Fake，歌曲需要 requires 并渲染 frames 帧
func New(frames int, requires ...string) *Fake {
	return &Fake{
		Requires:  requires,
		Frames:    frames,
		Sample:    16384,
		streams:   make(map[engine.StreamHandle][]byte),
		songs:     make(map[engine.SongHandle]*song),
		installed: make(map[string][]byte),
	}
}

func (f *Fake) Init() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inits++
	return nil
}

func (f *Fake) Shutdown() {}

func (f *Fake) OpenStream(data []byte) (engine.StreamHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	h := engine.StreamHandle(f.next)
	f.streams[h] = append([]byte(nil), data...)
	return h, nil
}

func (f *Fake) CloseStream(stream engine.StreamHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.streams[stream]; !ok {
		return engine.ErrUnknownStream
	}
	delete(f.streams, stream)
	return nil
}

func (f *Fake) LoadSong(stream engine.StreamHandle, opts engine.Options) (engine.SongHandle, error) {
	if err := opts.Validate(); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.streams[stream]
	if !ok {
		return 0, engine.ErrUnknownStream
	}
	if f.LoadErr != nil {
		return 0, f.LoadErr
	}
	f.loads++
	var missing []string
	for _, name := range f.Requires {
		if _, ok := f.installed[name]; !ok {
			missing = append(missing, name)
		}
	}
	f.next++
	h := engine.SongHandle(f.next)
	f.songs[h] = &song{data: data, missing: missing}
	return h, nil
}

func (f *Fake) MissingCount(h engine.SongHandle) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.songs[h]
	if !ok {
		return 0, engine.ErrUnknownSong
	}
	return len(s.missing), nil
}

func (f *Fake) MissingInstrument(h engine.SongHandle, index int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.songs[h]
	if !ok {
		return "", engine.ErrUnknownSong
	}
	if index < 0 || index >= len(s.missing) {
		return "", fmt.Errorf("enginetest: index %d out of range", index)
	}
	return s.missing[index], nil
}

func (f *Fake) InstallPatch(name string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(data) == 0 {
		return errors.New("enginetest: empty patch")
	}
	f.installed[name] = data
	return nil
}

func (f *Fake) Start(h engine.SongHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.songs[h]
	if !ok {
		return engine.ErrUnknownSong
	}
	if f.StartErr != nil {
		return f.StartErr
	}
	if len(s.missing) > 0 {
		return fmt.Errorf("enginetest: %d instruments missing", len(s.missing))
	}
	s.started = true
	return nil
}

func (f *Fake) ReadWave(h engine.SongHandle, dst []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.songs[h]
	if !ok {
		return 0, engine.ErrUnknownSong
	}
	if !s.started {
		return 0, engine.ErrNotStarted
	}
	if f.ReadErr != nil {
		return 0, f.ReadErr
	}
	frames := len(dst) / 2
	if left := f.Frames - s.pos; frames > left {
		frames = left
	}
	for i := 0; i < frames; i++ {
		binary.LittleEndian.PutUint16(dst[2*i:], uint16(f.Sample))
	}
	s.pos += frames
	return frames * 2, nil
}

func (f *Fake) FreeSong(h engine.SongHandle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.songs[h]; !ok {
		f.badFrees++
		return
	}
	delete(f.songs, h)
	f.frees++
}

// Live 仍然打开的歌曲和数据流数量
func (f *Fake) Live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.songs) + len(f.streams)
}

// BadFrees 对未打开句柄调用 FreeSong 的次数
func (f *Fake) BadFrees() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.badFrees
}

// Loads 成功的 LoadSong 次数
func (f *Fake) Loads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads
}

// Inits counts Init calls.
func (f *Fake) Inits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inits
}

// Installed reports whether a patch has been installed.
func (f *Fake) Installed(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.installed[name]
	return ok
}

var _ engine.Engine = (*Fake)(nil)
