package audio

import (
	"sync"
	"time"
)

// Manual 手动驱动的 Context：Advance 推进时间，Tick 拉取数据块
// 用于测试和离线渲染
type Manual struct {
	// SuspendErr/ResumeErr 让下一次 Suspend/Resume 失败
	SuspendErr error
	ResumeErr  error

	rate  int
	clock *clock

	mu        sync.Mutex
	now       time.Time
	src       Source
	blockSize int
	closed    bool
}

// NewManual 创建以 sampleRate 运行中的 Manual
func NewManual(sampleRate int) *Manual {
	m := &Manual{rate: sampleRate, now: time.Unix(0, 0)}
	m.clock = newClock(m.timeNow)
	return m
}

func (m *Manual) timeNow() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance 推进墙上时间，时钟只在运行时计入
func (m *Manual) Advance(seconds float64) {
	m.mu.Lock()
	m.now = m.now.Add(time.Duration(seconds * float64(time.Second)))
	m.mu.Unlock()
}

// Tick 从当前来源拉取 n 块并返回
// 来源自行断开后提前结束
func (m *Manual) Tick(n int) [][]float32 {
	var blocks [][]float32
	for i := 0; i < n; i++ {
		m.mu.Lock()
		src, size := m.src, m.blockSize
		m.mu.Unlock()
		if src == nil {
			break
		}
		block := make([]float32, size)
		src.Pull(block)
		blocks = append(blocks, block)
	}
	return blocks
}

// Connected 是否接有来源
func (m *Manual) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.src != nil
}

// Closed reports whether Close was called.
func (m *Manual) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Manual) SampleRate() int { return m.rate }

func (m *Manual) CurrentTime() float64 { return m.clock.seconds() }

func (m *Manual) Suspend() error {
	if m.SuspendErr != nil {
		return m.SuspendErr
	}
	m.clock.suspend()
	return nil
}

func (m *Manual) Resume() error {
	if m.ResumeErr != nil {
		return m.ResumeErr
	}
	m.clock.resume()
	return nil
}

func (m *Manual) Connect(src Source, blockSize int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.src, m.blockSize = src, blockSize
	return nil
}

func (m *Manual) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.src = nil
	return nil
}

func (m *Manual) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.src = nil
	m.closed = true
	return nil
}

var _ Context = (*Manual)(nil)
