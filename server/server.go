package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"midiplayer/config"
	"midiplayer/core/auth"
	"midiplayer/core/engine"
	"midiplayer/core/event"
	"midiplayer/core/fetch"
	"midiplayer/core/journal"
	"midiplayer/core/player"
	"midiplayer/db"
	"midiplayer/logger"
	"midiplayer/model"
	"midiplayer/repository"
)

const tokenTTL = 24 * time.Hour

// NewRouter 注册控制接口和事件流
func NewRouter(h *APIHandler, hub *Hub) *mux.Router {
	router := mux.NewRouter()

	// 添加 CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	router.HandleFunc("/api/auth/token", h.TokenHandler).Methods(http.MethodPost)

	router.HandleFunc("/api/players", h.AuthMiddleware(h.CreatePlayerHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/players", h.AuthMiddleware(h.ListPlayersHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/players/{id}", h.AuthMiddleware(h.GetPlayerHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/players/{id}", h.AuthMiddleware(h.DeletePlayerHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/api/players/{id}/play", h.AuthMiddleware(h.PlayHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/players/{id}/pause", h.AuthMiddleware(h.control((*player.Controller).Pause))).Methods(http.MethodPost)
	router.HandleFunc("/api/players/{id}/resume", h.AuthMiddleware(h.control((*player.Controller).Resume))).Methods(http.MethodPost)
	router.HandleFunc("/api/players/{id}/stop", h.AuthMiddleware(h.control((*player.Controller).Stop))).Methods(http.MethodPost)
	router.HandleFunc("/api/players/{id}/events", h.AuthMiddleware(h.PlayerEventsHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/players/{id}/events", h.AuthMiddleware(h.PurgePlayerEventsHandler)).Methods(http.MethodDelete)

	router.HandleFunc("/ws/events", hub.ServeWS)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "subscribers": hub.ClientCount()})
	}).Methods(http.MethodGet)

	// 中间件只作用于匹配到的路由，预检请求需要一个兜底路由
	router.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return router
}

// Start 启动控制服务，收到 SIGINT/SIGTERM 后优雅退出
func Start(cfg *config.Config, eng engine.Engine, fetcher fetch.Fetcher) error {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	sink := event.Sink(hub.Broadcast)

	var events repository.EventRepository
	if cfg.DBEnabled() {
		if err := db.ConnectGormDB(cfg); err != nil {
			return err
		}
		defer db.CloseGormDB()
		if err := db.AutoMigrateModels(&model.PlaybackEvent{}); err != nil {
			return err
		}
		events = repository.NewGormEventRepository(db.GormDB)

		j := journal.New(events, journal.Options{})
		defer j.Close()
		sink = j.Sink(sink)
	}

	var signer *auth.Signer
	if cfg.JWTSecret != "" {
		signer = auth.NewSigner(cfg.JWTSecret, tokenTTL)
	} else {
		logger.Warn("[server.Start] JWT_SECRET not set, control API is unauthenticated")
	}

	registry := NewRegistry(eng, fetcher, sink, RegistryOptions{
		PatchURL:   cfg.PatchURL,
		SampleRate: cfg.SampleRate,
		Logging:    cfg.Logging,
	})
	defer registry.Close()

	h := NewAPIHandler(registry, events, signer, cfg.ControlPasswordHash)

	// 设置服务器超时，WriteTimeout 为 0 以免切断 WebSocket
	server := &http.Server{
		Addr:        cfg.HTTPAddr,
		Handler:     NewRouter(h, hub),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	// 创建一个通道来接收操作系统信号
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("[server.Start] listening", logger.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	case <-stop:
	}
	logger.Info("[server.Start] shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("[server.Start] server stopped")
	return nil
}
