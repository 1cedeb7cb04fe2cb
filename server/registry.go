package server

import (
	"errors"
	"sort"
	"sync"

	"midiplayer/core/audio"
	"midiplayer/core/engine"
	"midiplayer/core/event"
	"midiplayer/core/fetch"
	"midiplayer/core/player"
	"midiplayer/logger"
)

// ErrPlayerNotFound 播放器不存在
var ErrPlayerNotFound = errors.New("player not found")

// RegistryOptions 新建播放器时使用的公共配置
type RegistryOptions struct {
	PatchURL   string
	SampleRate int
	Logging    bool
	// NewAudio 为每个播放器创建输出，为空时播放器在首次播放时自己打开
	NewAudio func() audio.Context
}

// Registry 管理共享同一引擎和同一 sink 的多个播放器
type Registry struct {
	eng     engine.Engine
	fetcher fetch.Fetcher
	sink    event.Sink
	opts    RegistryOptions

	mu      sync.RWMutex
	players map[string]*player.Controller
}

// NewRegistry 创建播放器注册表，sink 接收所有播放器的事件
func NewRegistry(eng engine.Engine, fetcher fetch.Fetcher, sink event.Sink, opts RegistryOptions) *Registry {
	return &Registry{
		eng:     eng,
		fetcher: fetcher,
		sink:    sink,
		opts:    opts,
		players: make(map[string]*player.Controller),
	}
}

// Create 新建一个播放器
func (r *Registry) Create() *player.Controller {
	cfg := player.Config{
		EventSink:  r.sink,
		Logging:    r.opts.Logging,
		PatchURL:   r.opts.PatchURL,
		SampleRate: r.opts.SampleRate,
	}
	if r.opts.NewAudio != nil {
		cfg.Audio = r.opts.NewAudio()
	}
	p := player.New(r.eng, r.fetcher, cfg)

	r.mu.Lock()
	r.players[p.ID()] = p
	r.mu.Unlock()

	logger.Info("[Registry.Create] player created", logger.String("playerId", p.ID()))
	return p
}

// Get 按 ID 查找播放器
func (r *Registry) Get(id string) (*player.Controller, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.players[id]
	if !ok {
		return nil, ErrPlayerNotFound
	}
	return p, nil
}

// List 按 ID 排序返回所有播放器
func (r *Registry) List() []*player.Controller {
	r.mu.RLock()
	list := make([]*player.Controller, 0, len(r.players))
	for _, p := range r.players {
		list = append(list, p)
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].ID() < list[j].ID() })
	return list
}

// Remove 关闭并移除播放器
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	p, ok := r.players[id]
	delete(r.players, id)
	r.mu.Unlock()

	if !ok {
		return ErrPlayerNotFound
	}
	if err := p.Close(); err != nil {
		logger.Warn("[Registry.Remove] close player failed", logger.String("playerId", id), logger.ErrorField(err))
		return err
	}
	return nil
}

// Close 关闭所有播放器
func (r *Registry) Close() {
	r.mu.Lock()
	players := r.players
	r.players = make(map[string]*player.Controller)
	r.mu.Unlock()

	for id, p := range players {
		if err := p.Close(); err != nil {
			logger.Warn("[Registry.Close] close player failed", logger.String("playerId", id), logger.ErrorField(err))
		}
	}
}
