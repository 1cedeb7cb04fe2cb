// Package engine 定义播放器与 MIDI 合成引擎之间的约定。
//
// 引擎以不透明句柄表示数据流和歌曲。所有操作都是同步的，只处理引擎已经持有的内存。
// 只有 Init 可能较慢，通过包级 Init 每个引擎只执行一次。
package engine

import (
	"errors"
	"fmt"
	"sync"
)

const (
	// S16LSB 有符号 16 位小端 PCM
	S16LSB SampleFormat = 0x8010

	// BufferSize 每次拉取产生的单声道帧数
	BufferSize = 8192

	// BufferBytes BufferSize 帧 S16LSB 单声道数据的字节数
	BufferBytes = BufferSize * 2
)

var (
	ErrUnknownStream = errors.New("engine: unknown stream handle")
	ErrUnknownSong   = errors.New("engine: unknown song handle")
	ErrNotStarted    = errors.New("engine: song not started")
)

// SampleFormat identifies the PCM layout produced by ReadWave.
type SampleFormat uint16

// StreamHandle 引擎内打开的原始 MIDI 数据，0 永远无效
type StreamHandle uint64

// SongHandle 解码后可播放的序列，0 永远无效
type SongHandle uint64

// Options 引擎渲染的输出格式
type Options struct {
	SampleRate int
	Format     SampleFormat
	Channels   int
	BufferSize int // bytes per ReadWave call
}

// CreateOptions 根据输出采样率生成播放器使用的参数
func CreateOptions(sampleRate int) Options {
	return Options{
		SampleRate: sampleRate,
		Format:     S16LSB,
		Channels:   1,
		BufferSize: BufferBytes,
	}
}

// Validate 拒绝播放器无法使用的参数
func (o Options) Validate() error {
	if o.SampleRate <= 0 {
		return fmt.Errorf("engine: invalid sample rate %d", o.SampleRate)
	}
	if o.Format != S16LSB {
		return fmt.Errorf("engine: unsupported sample format %#x", uint16(o.Format))
	}
	if o.Channels != 1 {
		return fmt.Errorf("engine: unsupported channel count %d", o.Channels)
	}
	return nil
}

// Engine 合成引擎
type Engine interface {
	Init() error
	OpenStream(data []byte) (StreamHandle, error)
	CloseStream(stream StreamHandle) error
	LoadSong(stream StreamHandle, opts Options) (SongHandle, error)
	// MissingCount 歌曲需要但音色库里没有的乐器数量
	MissingCount(song SongHandle) (int, error)
	MissingInstrument(song SongHandle, index int) (string, error)
	// InstallPatch 把乐器数据加入音色库，可并发调用
	InstallPatch(name string, data []byte) error
	Start(song SongHandle) error
	// ReadWave 渲染到 dst，返回写入的字节数，0 表示结束
	ReadWave(song SongHandle, dst []byte) (int, error)
	FreeSong(song SongHandle)
	Shutdown()
}

type initState struct {
	once sync.Once
	err  error
}

var (
	initMu sync.Mutex
	inits  = make(map[Engine]*initState)
)

// Init 每个进程只初始化 e 一次，无论多少播放器共享它
// 之后的调用都返回第一次的结果
func Init(e Engine) error {
	initMu.Lock()
	st, ok := inits[e]
	if !ok {
		st = &initState{}
		inits[e] = st
	}
	initMu.Unlock()

	st.once.Do(func() {
		st.err = e.Init()
	})
	return st.err
}

// Shutdown 释放 e 的进程级状态，之后的 Init 重新开始
func Shutdown(e Engine) {
	initMu.Lock()
	_, ok := inits[e]
	delete(inits, e)
	initMu.Unlock()

	if ok {
		e.Shutdown()
	}
}

// MissingInstruments 读取歌曲缺失的全部乐器
func MissingInstruments(e Engine, song SongHandle) ([]string, error) {
	n, err := e.MissingCount(song)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, n)
	for i := 0; i < n; i++ {
		name, err := e.MissingInstrument(song, i)
		if err != nil {
			return nil, fmt.Errorf("missing instrument #%d: %w", i, err)
		}
		names = append(names, name)
	}
	return names, nil
}

// Load 把 data 打开为数据流，加载歌曲后关闭数据流
func Load(e Engine, data []byte, opts Options) (SongHandle, error) {
	stream, err := e.OpenStream(data)
	if err != nil {
		return 0, fmt.Errorf("open stream: %w", err)
	}
	song, err := e.LoadSong(stream, opts)
	if cerr := e.CloseStream(stream); cerr != nil && err == nil {
		e.FreeSong(song)
		return 0, fmt.Errorf("close stream: %w", cerr)
	}
	if err != nil {
		return 0, fmt.Errorf("load song: %w", err)
	}
	return song, nil
}
