package player

import (
	"encoding/binary"

	"midiplayer/core/engine"
	"midiplayer/core/event"
	"midiplayer/logger"
)

// maxInt16 把 S16 采样缩放到 [-1, 1)
const maxInt16 = 1 << 15

// Pull 把当前歌曲的下一块渲染到 out
// 音频输出调用它，导出是为了离线渲染
func (c *Controller) Pull(out []float32) {
	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()
	c.render(epoch, out)
}

// render 为第 epoch 代填充 out，交出数据块之前先发 Play 进度事件
// 引擎没有剩余数据时停止歌曲并发出 End
func (c *Controller) render(epoch uint64, out []float32) {
	c.mu.Lock()
	if epoch != c.epoch || c.song == 0 || c.state != Playing {
		c.mu.Unlock()
		silence(out)
		return
	}
	t := c.elapsedLocked()
	c.mu.Unlock()

	c.bus.Emit(event.Play(t))

	c.mu.Lock()
	// sink 里可能已经停止或替换了歌曲
	if epoch != c.epoch || c.song == 0 {
		c.mu.Unlock()
		silence(out)
		return
	}

	frames := min(len(out), engine.BufferSize)
	n, err := c.eng.ReadWave(c.song, c.wave[:frames*2])
	if err != nil {
		if rerr := c.releaseLocked(); rerr != nil {
			logger.Warn("[Controller.render] release failed", logger.String("playerId", c.id), logger.ErrorField(rerr))
		}
		c.state = Stopped
		c.mu.Unlock()
		silence(out)

		logger.Error("[Controller.render] read wave failed", logger.String("playerId", c.id), logger.ErrorField(err))
		c.bus.Emit(event.Error("Could not process audio.", err))
		return
	}

	if n == 0 {
		rerr := c.releaseLocked()
		c.state = Ended
		c.mu.Unlock()
		silence(out)

		if rerr != nil {
			c.bus.Emit(event.Error("Could not stop playback.", rerr))
		} else {
			c.bus.Emit(event.Stop())
		}
		logger.Info("[Controller.render] end of song", logger.String("playerId", c.id), logger.Float64("time", t))
		c.bus.Emit(event.End(t))
		return
	}

	samples := n / 2
	for i := range out {
		if i < samples {
			out[i] = float32(int16(binary.LittleEndian.Uint16(c.wave[2*i:]))) / maxInt16
		} else {
			out[i] = 0
		}
	}
	c.mu.Unlock()
}

func silence(out []float32) {
	for i := range out {
		out[i] = 0
	}
}
