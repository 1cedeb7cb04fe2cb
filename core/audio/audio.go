// Package audio 播放器的输出端：一个音频时钟，加上不断从 Source 拉取定长单声道浮点采样块的设备。
package audio

import (
	"errors"
	"sync"
	"time"
)

var ErrNotConnected = errors.New("audio: no source connected")

// Source 按需产生音频，Pull 必须填满 out
type Source interface {
	Pull(out []float32)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(out []float32)

func (f SourceFunc) Pull(out []float32) { f(out) }

// Context 带输出的音频时钟
type Context interface {
	SampleRate() int
	// CurrentTime 创建以来的秒数，挂起期间不走
	CurrentTime() float64
	Suspend() error
	Resume() error
	// Connect 开始从 src 每次拉取 blockSize 个采样
	Connect(src Source, blockSize int) error
	// Disconnect 断开当前来源，可以在 Pull 内部调用
	Disconnect() error
	Close() error
}

// clock 计算运行时间，挂起时冻结
type clock struct {
	mu      sync.Mutex
	now     func() time.Time
	elapsed time.Duration
	since   time.Time
	running bool
}

func newClock(now func() time.Time) *clock {
	if now == nil {
		now = time.Now
	}
	return &clock{now: now, since: now(), running: true}
}

func (c *clock) seconds() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.elapsed
	if c.running {
		d += c.now().Sub(c.since)
	}
	return d.Seconds()
}

func (c *clock) suspend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.elapsed += c.now().Sub(c.since)
	c.running = false
}

func (c *clock) resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.since = c.now()
	c.running = true
}
