// Package player 驱动合成引擎把 MIDI 渲染到音频输出，每一步都以事件通知观察者。
//
// 一个 Controller 同时最多持有一首歌。Play 总是先停止，然后在后台 goroutine 中获取数据、
// 补齐缺失的乐器音色、重新加载歌曲并接上输出。每次 Play 和 Stop 都开启新的一代，
// 旧一代的结果完成时直接丢弃。
package player

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"midiplayer/config"
	"midiplayer/core/audio"
	"midiplayer/core/engine"
	"midiplayer/core/event"
	"midiplayer/core/fetch"
	"midiplayer/core/patch"
	"midiplayer/logger"
)

const DefaultSampleRate = 44100

// newAudioContext 未配置输出时用来打开默认输出
var newAudioContext = func(sampleRate int) (audio.Context, error) {
	return audio.NewOtoContext(sampleRate)
}

// Config 可选，零值表示没有 sink、不打日志、使用默认音色地址
type Config struct {
	EventSink event.Sink
	Logging   bool
	PatchURL  string
	// Audio 为空时在首次播放时创建
	Audio      audio.Context
	SampleRate int
	// Logger 供基础 sink 使用，默认全局 logger
	Logger *zap.Logger
}

type Controller struct {
	id         string
	bus        *event.Bus
	eng        engine.Engine
	fetcher    fetch.Fetcher
	resolver   *patch.Resolver
	patchURL   string
	sampleRate int

	// connMu 串行化输出的挂接，过期的挂接可以安全撤销
	connMu sync.Mutex

	mu        sync.Mutex
	state     State
	epoch     uint64
	cancel    context.CancelFunc
	out       audio.Context
	ownsOut   bool
	song      engine.SongHandle
	wave      []byte
	startTime float64
	closed    bool

	loads sync.WaitGroup
}

// New 在 eng 上创建播放器，歌曲和音色都通过 fetcher 获取
// fetcher 为空时支持 http(s) 地址和本地文件
func New(eng engine.Engine, fetcher fetch.Fetcher, cfg Config) *Controller {
	if fetcher == nil {
		fetcher = fetch.NewDefault(config.DefaultFetchTimeout)
	}
	if cfg.PatchURL == "" {
		cfg.PatchURL = config.DefaultPatchURL
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.L()
	}

	id := uuid.New().String()
	c := &Controller{
		id:         id,
		bus:        event.NewBus(id, cfg.Logger),
		eng:        eng,
		fetcher:    fetcher,
		resolver:   patch.NewResolver(fetcher, cfg.PatchURL),
		patchURL:   cfg.PatchURL,
		sampleRate: cfg.SampleRate,
		state:      Idle,
		out:        cfg.Audio,
	}
	if c.out != nil {
		c.sampleRate = c.out.SampleRate()
	}
	c.bus.Configure(cfg.EventSink, cfg.Logging)

	if err := engine.Init(eng); err != nil {
		logger.Error("[player.New] engine init failed", logger.String("playerId", id), logger.ErrorField(err))
		c.bus.Emit(event.Error("Could not initialize MIDI engine.", err))
		return c
	}
	c.bus.Emit(event.Init("MIDI player initialized."))
	return c
}

// ID 播放器标识，附在每个事件上
func (c *Controller) ID() string { return c.id }

func (c *Controller) EventSink() event.Sink { return c.bus.Custom() }

func (c *Controller) Logging() bool { return c.bus.BasicEnabled() }

func (c *Controller) PatchURL() string { return c.patchURL }

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Elapsed 当前播放进度（秒），没有歌曲时为 0
func (c *Controller) Elapsed() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsedLocked()
}

// AudioContext 返回正在使用的输出，未配置且未播放过时为 nil
func (c *Controller) AudioContext() audio.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out
}

// SetLogger 替换 sink 配置
func (c *Controller) SetLogger(sink event.Sink, logging bool) {
	c.bus.Configure(sink, logging)
}

// EmitEvent 通过本播放器的 sink 发送自定义事件
func (c *Controller) EmitEvent(e event.Event) {
	c.bus.Emit(e)
}

// Play 停止当前歌曲并开始播放 src
// 只有 src 不可用时返回 false，之后的失败都以 Error 事件报告
func (c *Controller) Play(src Source) bool {
	c.Stop()

	if err := src.validate(); err != nil {
		msg := "Unknown source. URL or data can't both be empty to start playback."
		if errors.Is(err, ErrAmbiguousSource) {
			msg = "Ambiguous source. MIDI data must originate either from a URL or from bytes to start playback. Not both."
		}
		c.bus.Emit(event.Error(msg, err))
		return false
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.bus.Emit(event.Error("Could not start playback.", ErrClosed))
		return false
	}
	c.epoch++
	epoch := c.epoch
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.state = LoadingFile
	c.loads.Add(1)
	c.mu.Unlock()

	logger.Info("[Controller.Play] loading",
		logger.String("playerId", c.id),
		logger.String("source", src.describe()),
		logger.String("name", src.Name))
	c.bus.Emit(event.LoadFile("Loading" + formatName(src.Name) + "..."))

	go c.load(ctx, epoch, src)
	return true
}

// Pause 挂起音频时钟，还没有歌曲时只报告时间 0
func (c *Controller) Pause() bool {
	c.mu.Lock()
	if c.state.loading() {
		c.mu.Unlock()
		logger.Warn("[Controller.Pause] ignored while loading", logger.String("playerId", c.id))
		return false
	}
	if c.state.active() {
		if err := c.out.Suspend(); err != nil {
			c.mu.Unlock()
			c.bus.Emit(event.Error("Could not pause playback.", err))
			return false
		}
		c.state = Paused
	}
	t := c.elapsedLocked()
	c.mu.Unlock()

	c.bus.Emit(event.Pause(t))
	return true
}

// Resume 从暂停处恢复音频时钟
func (c *Controller) Resume() bool {
	c.mu.Lock()
	if c.state.loading() {
		c.mu.Unlock()
		logger.Warn("[Controller.Resume] ignored while loading", logger.String("playerId", c.id))
		return false
	}
	out, active, epoch := c.out, c.state.active(), c.epoch
	c.mu.Unlock()

	// 恢复时输出可能同步拉数据，不能持有 c.mu
	if active {
		if err := out.Resume(); err != nil {
			c.bus.Emit(event.Error("Could not resume playback.", err))
			return false
		}
	}

	c.mu.Lock()
	if active && c.epoch == epoch && c.state == Paused {
		c.state = Playing
	}
	t := c.elapsedLocked()
	c.mu.Unlock()

	c.bus.Emit(event.Resume(t))
	return true
}

// Stop 断开输出、释放歌曲并把进度归零
// 可以重复调用，每次都会发出 Stop 事件
func (c *Controller) Stop() bool {
	c.mu.Lock()
	c.epoch++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	err := c.releaseLocked()
	c.state = Stopped
	c.mu.Unlock()

	if err != nil {
		logger.Error("[Controller.Stop] release failed", logger.String("playerId", c.id), logger.ErrorField(err))
		c.bus.Emit(event.Error("Could not stop playback.", err))
		return false
	}
	c.bus.Emit(event.Stop())
	return true
}

// Close 停止播放，等待后台加载结束，并关闭自己打开的输出
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.Stop()
	c.loads.Wait()

	c.mu.Lock()
	out, owns := c.out, c.ownsOut
	c.mu.Unlock()
	if owns && out != nil {
		return out.Close()
	}
	return nil
}

// load 执行一次播放请求：获取数据、试加载、补齐音色、重新加载、开始播放
func (c *Controller) load(ctx context.Context, epoch uint64, src Source) {
	defer c.loads.Done()

	data := src.Data
	if src.URL != "" {
		var err error
		data, err = c.fetcher.Fetch(ctx, src.URL)
		if err != nil {
			c.fail(epoch, "Could not retrieve MIDI"+formatName(src.Name)+".", err)
			return
		}
	}

	out, err := c.output()
	if err != nil {
		c.fail(epoch, "Could not initialize audio output.", err)
		return
	}
	opts := engine.CreateOptions(out.SampleRate())

	song, err := engine.Load(c.eng, data, opts)
	if err != nil {
		c.fail(epoch, "Could not load song.", err)
		return
	}
	missing, err := engine.MissingInstruments(c.eng, song)
	if err != nil {
		c.eng.FreeSong(song)
		c.fail(epoch, "Could not load song.", err)
		return
	}

	if len(missing) > 0 {
		// 引擎在加载时绑定乐器，补齐音色后要重新加载
		c.eng.FreeSong(song)
		if !c.advance(epoch, ResolvingPatches) {
			return
		}
		c.bus.Emit(event.LoadPatch(fmt.Sprintf("Loading %d MIDI instrument patches...", len(missing))))

		if err := c.resolver.Resolve(ctx, c.eng, missing); err != nil {
			var pe *patch.Error
			if errors.As(err, &pe) {
				c.fail(epoch, fmt.Sprintf("Could not retrieve missing instrument patch #%d (%s).", pe.Index, pe.Name), pe.Err)
			} else {
				c.fail(epoch, "Could not load song.", err)
			}
			return
		}

		song, err = engine.Load(c.eng, data, opts)
		if err != nil {
			c.fail(epoch, "Could not load song.", err)
			return
		}
	}

	c.start(epoch, song, out)
}

// start 把加载完成的歌曲接到输出上，存入 c 之前由它负责释放 song
func (c *Controller) start(epoch uint64, song engine.SongHandle, out audio.Context) {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	// 已被新的 Play/Stop 取代，不能碰共享的时钟
	c.mu.Lock()
	stale := epoch != c.epoch
	c.mu.Unlock()
	if stale {
		c.eng.FreeSong(song)
		return
	}

	// 之前暂停后直接停止时，时钟可能仍处于挂起状态
	if err := out.Resume(); err != nil {
		c.eng.FreeSong(song)
		c.fail(epoch, "Could not start playback.", err)
		return
	}

	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		c.eng.FreeSong(song)
		return
	}
	if err := c.eng.Start(song); err != nil {
		c.mu.Unlock()
		c.eng.FreeSong(song)
		c.fail(epoch, "Could not load song.", err)
		return
	}
	c.song = song
	c.wave = make([]byte, engine.BufferBytes)
	c.startTime = out.CurrentTime()
	c.state = Playing
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()

	logger.Info("[Controller.start] playing", logger.String("playerId", c.id), logger.Int("sampleRate", out.SampleRate()))
	c.bus.Emit(event.Play(0))

	if err := out.Connect(audio.SourceFunc(func(block []float32) {
		c.render(epoch, block)
	}), engine.BufferSize); err != nil {
		c.fail(epoch, "Could not process audio.", err)
		return
	}

	c.mu.Lock()
	stale = epoch != c.epoch
	c.mu.Unlock()
	if stale {
		_ = out.Disconnect()
	}
}

// output 返回音频输出，第一次使用时打开
func (c *Controller) output() (audio.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.out == nil {
		out, err := newAudioContext(c.sampleRate)
		if err != nil {
			return nil, err
		}
		c.out, c.ownsOut = out, true
	}
	return c.out, nil
}

// advance 把当前一代切到状态 s，epoch 过期时返回 false
func (c *Controller) advance(epoch uint64, s State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch {
		return false
	}
	c.state = s
	return true
}

// fail 报告当前一代的错误并回到 Stopped
// 过期的失败（包括 Stop 引起的取消）直接丢弃
func (c *Controller) fail(epoch uint64, msg string, err error) {
	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		logger.Debug("[Controller.fail] stale result discarded", logger.String("playerId", c.id), logger.ErrorField(err))
		return
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if rerr := c.releaseLocked(); rerr != nil {
		logger.Warn("[Controller.fail] release failed", logger.String("playerId", c.id), logger.ErrorField(rerr))
	}
	c.state = Stopped
	c.mu.Unlock()

	logger.Error("[Controller] "+msg, logger.String("playerId", c.id), logger.ErrorField(err))
	c.bus.Emit(event.Error(msg, err))
}

// releaseLocked 断开输出并释放歌曲，需要持有 c.mu
// 断开失败时歌曲也会被释放
func (c *Controller) releaseLocked() error {
	var err error
	if c.song != 0 {
		if c.out != nil {
			err = c.out.Disconnect()
		}
		c.eng.FreeSong(c.song)
		c.song = 0
		c.wave = nil
	}
	c.startTime = 0
	return err
}

func (c *Controller) elapsedLocked() float64 {
	if !c.state.active() || c.out == nil {
		return 0
	}
	return c.out.CurrentTime() - c.startTime
}
