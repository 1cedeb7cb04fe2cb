package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"midiplayer/logger"
)

// oto 每个进程只允许一个 context，所有 OtoContext 共用
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoRate int
	otoErr  error
)

func sharedOto(sampleRate int) (*oto.Context, error) {
	otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: 1,
			Format:       oto.FormatFloat32LE,
			BufferSize:   100 * time.Millisecond,
		})
		if err != nil {
			otoErr = fmt.Errorf("create oto context: %w", err)
			return
		}
		<-ready
		otoCtx, otoRate = ctx, sampleRate
		logger.Info("[audio] oto context ready", logger.Int("sampleRate", sampleRate))
	})
	if otoErr != nil {
		return nil, otoErr
	}
	if otoRate != sampleRate {
		return nil, fmt.Errorf("audio: device already opened at %d Hz, %d requested", otoRate, sampleRate)
	}
	return otoCtx, nil
}

// OtoContext 通过默认音频设备播放
// 每个实例有自己的 oto player 和时钟，多个实例可以共用设备
type OtoContext struct {
	ctx   *oto.Context
	rate  int
	clock *clock

	mu     sync.Mutex
	player *oto.Player
	reader *blockReader
}

// NewOtoContext 以 sampleRate 打开或复用音频设备
func NewOtoContext(sampleRate int) (*OtoContext, error) {
	ctx, err := sharedOto(sampleRate)
	if err != nil {
		return nil, err
	}
	return &OtoContext{ctx: ctx, rate: sampleRate, clock: newClock(nil)}, nil
}

func (c *OtoContext) SampleRate() int { return c.rate }

func (c *OtoContext) CurrentTime() float64 { return c.clock.seconds() }

func (c *OtoContext) Suspend() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.player != nil {
		c.player.Pause()
		if err := c.player.Err(); err != nil {
			return fmt.Errorf("pause player: %w", err)
		}
	}
	c.clock.suspend()
	return nil
}

// Resume 在 c.mu 之外重启 player，oto 可能在 Play 中同步读取并调用 Pull
func (c *OtoContext) Resume() error {
	c.mu.Lock()
	p := c.player
	c.mu.Unlock()

	if p != nil {
		p.Play()
		if err := p.Err(); err != nil {
			return fmt.Errorf("resume player: %w", err)
		}
	}
	c.clock.resume()
	return nil
}

func (c *OtoContext) Connect(src Source, blockSize int) error {
	c.mu.Lock()
	if c.player != nil {
		c.detachLocked()
	}
	r := newBlockReader(src, blockSize)
	p := c.ctx.NewPlayer(r)
	c.reader, c.player = r, p
	c.mu.Unlock()

	p.Play()
	return p.Err()
}

func (c *OtoContext) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.player == nil {
		return nil
	}
	c.detachLocked()
	return nil
}

// detachLocked 立即停止拉取，并在另一个 goroutine 中关闭 player
// Disconnect 可能在 player 自己的 Read 里执行
func (c *OtoContext) detachLocked() {
	c.reader.detach()
	p := c.player
	c.player, c.reader = nil, nil
	go func() {
		if err := p.Close(); err != nil {
			logger.Warn("[audio] close player failed", logger.ErrorField(err))
		}
	}()
}

func (c *OtoContext) Close() error {
	return c.Disconnect()
}

var _ Context = (*OtoContext)(nil)
