package event

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
)

// MessagePrefix 基础 sink 的日志前缀
const MessagePrefix = "Midi player:"

// Sink 接收事件的回调
type Sink func(Event)

type sinkConfig struct {
	custom Sink
	basic  bool
}

// Bus 把事件分发给自定义 sink 或基础 sink，二者只选其一
// 配置整体替换，Emit 读到的总是完整的一份
type Bus struct {
	playerID string
	log      *zap.Logger
	cfg      atomic.Pointer[sinkConfig]
}

// NewBus 创建事件总线，log 为基础 sink 使用的 logger
func NewBus(playerID string, log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	b := &Bus{playerID: playerID, log: log}
	b.cfg.Store(&sinkConfig{})
	return b
}

// Configure 原子地替换 sink 配置
func (b *Bus) Configure(custom Sink, basic bool) {
	b.cfg.Store(&sinkConfig{custom: custom, basic: basic})
}

// Custom 返回当前自定义 sink
func (b *Bus) Custom() Sink {
	return b.cfg.Load().custom
}

// BasicEnabled 基础 sink 是否开启
func (b *Bus) BasicEnabled() bool {
	return b.cfg.Load().basic
}

// PlayerID 返回总线绑定的播放器 ID
func (b *Bus) PlayerID() string {
	return b.playerID
}

// Emit 同步投递事件，事件会被打上播放器 ID
func (b *Bus) Emit(e Event) {
	e.PlayerID = b.playerID
	cfg := b.cfg.Load()

	switch {
	case cfg.custom != nil:
		b.deliver(cfg.custom, e)
	case cfg.basic:
		b.basic(e)
	}
}

// deliver 调用自定义 sink，sink 的 panic 不会传播到播放器
func (b *Bus) deliver(sink Sink, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Warn("event sink panicked",
				zap.String("event", e.Name()),
				zap.String("playerId", e.PlayerID),
				zap.String("panic", fmt.Sprint(r)))
		}
	}()
	sink(e)
}

func (b *Bus) basic(e Event) {
	fields := []zap.Field{
		zap.String("event", e.Name()),
		zap.String("playerId", e.PlayerID),
	}
	if e.Message != "" {
		fields = append(fields, zap.String("message", e.Message))
	}
	if e.Time != nil {
		fields = append(fields, zap.Float64("time", *e.Time))
	}

	switch e.Kind {
	case KindError:
		if e.Err != nil {
			fields = append(fields, zap.Error(e.Err))
		}
		b.log.Error(MessagePrefix, fields...)
	case KindInit, KindLoadFile, KindLoadPatch, KindPlay, KindPause, KindResume, KindStop, KindEnd, KindCustom:
		b.log.Info(MessagePrefix, fields...)
	default:
		b.log.Warn(MessagePrefix, append(fields, zap.Int("kind", int(e.Kind)))...)
	}
}
