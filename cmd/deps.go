package cmd

import (
	"midiplayer/cache"
	"midiplayer/config"
	"midiplayer/core/engine"
	"midiplayer/core/engine/melty"
	"midiplayer/core/fetch"
	"midiplayer/logger"
	"midiplayer/storage"
)

// newFetcher 按配置组装 http(s)/file/s3 取数链，配置了 Redis 时套一层缓存
// 返回的 cleanup 关闭打开的连接
func newFetcher(cfg *config.Config) (fetch.Fetcher, func()) {
	router := fetch.NewRouter().
		Handle(fetch.NewHTTPFetcher(cfg.FetchTimeout), "http", "https").
		Handle(fetch.FileFetcher{}, "", "file")

	if cfg.MinioEnabled() {
		client, err := storage.NewMinioClientFromConfig(cfg)
		if err != nil {
			logger.Warn("[newFetcher] MinIO unavailable, s3:// locations disabled", logger.ErrorField(err))
		} else {
			router.Handle(fetch.NewObjectFetcher(client), "s3")
		}
	}

	if !cfg.RedisEnabled() {
		return router, func() {}
	}
	if err := cache.ConnectRedis(cfg); err != nil {
		logger.Warn("[newFetcher] Redis unavailable, patch cache disabled", logger.ErrorField(err))
		return router, func() {}
	}
	cached := fetch.NewCached(router, cache.NewPatchCache(cache.RedisClient, cfg.PatchCacheTTL))
	return cached, func() {
		if err := cache.CloseRedis(); err != nil {
			logger.Warn("[newFetcher] close Redis failed", logger.ErrorField(err))
		}
	}
}

func newEngine(cfg *config.Config) engine.Engine {
	return melty.New(cfg.SoundFont)
}
