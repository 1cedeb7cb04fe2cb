// Package patch 下载歌曲缺失的乐器音色并安装到引擎
package patch

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"midiplayer/core/engine"
	"midiplayer/core/fetch"
	"midiplayer/logger"
)

// Extension 没有扩展名的标识会补上它
const Extension = ".pat"

// Error 导致补齐失败的音色
type Error struct {
	Index int
	Name  string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("patch #%d (%s): %v", e.Index, e.Name, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Location 拼接 base 和音色标识
func Location(base, name string) string {
	if path.Ext(name) == "" {
		name += Extension
	}
	if base == "" {
		return name
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + strings.TrimPrefix(name, "/")
}

// Resolver 并发下载缺失的音色
type Resolver struct {
	fetcher fetch.Fetcher
	base    string
}

func NewResolver(fetcher fetch.Fetcher, base string) *Resolver {
	return &Resolver{fetcher: fetcher, base: base}
}

// Base is the patch base location.
func (r *Resolver) Base() string {
	return r.base
}

// Resolve 同时下载所有 name，每个到达后立即安装到 eng
// 全部安装完成后返回，或返回第一个 *Error，失败后取消其余下载且不再安装
func (r *Resolver) Resolve(ctx context.Context, eng engine.Engine, names []string) error {
	if len(names) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	failed := false

	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			location := Location(r.base, name)
			data, err := r.fetcher.Fetch(gctx, location)
			if err != nil {
				return &Error{Index: i, Name: name, Err: err}
			}

			mu.Lock()
			defer mu.Unlock()
			if failed || gctx.Err() != nil {
				return nil
			}
			if err := eng.InstallPatch(name, data); err != nil {
				failed = true
				return &Error{Index: i, Name: name, Err: fmt.Errorf("install: %w", err)}
			}
			logger.Debug("[Resolver.Resolve] patch installed",
				logger.String("name", name),
				logger.String("location", location),
				logger.Int("bytes", len(data)))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	// 最后一次下载返回后 ctx 可能已经结束
	return ctx.Err()
}
