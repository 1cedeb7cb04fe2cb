package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"midiplayer/core/auth"
	"midiplayer/core/player"
	"midiplayer/logger"
	"midiplayer/repository"
)

// maxSongSize 上传 MIDI 数据的大小上限
const maxSongSize = 32 << 20

// APIHandler 处理所有API请求
type APIHandler struct {
	registry     *Registry
	events       repository.EventRepository // 未配置数据库时为 nil
	signer       *auth.Signer               // 未配置 JWT_SECRET 时为 nil，控制接口不做鉴权
	passwordHash string
}

// NewAPIHandler 创建新的API处理器
func NewAPIHandler(registry *Registry, events repository.EventRepository, signer *auth.Signer, passwordHash string) *APIHandler {
	return &APIHandler{
		registry:     registry,
		events:       events,
		signer:       signer,
		passwordHash: passwordHash,
	}
}

// PlayerView 播放器状态
type PlayerView struct {
	ID       string  `json:"id"`
	State    string  `json:"state"`
	Elapsed  float64 `json:"elapsed"`
	PatchURL string  `json:"patchUrl"`
	Logging  bool    `json:"logging"`
}

// PlayRequest JSON 形式的播放请求
type PlayRequest struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

func viewOf(p *player.Controller) PlayerView {
	return PlayerView{
		ID:       p.ID(),
		State:    p.State().String(),
		Elapsed:  p.Elapsed(),
		PatchURL: p.PatchURL(),
		Logging:  p.Logging(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("[writeJSON] encode response failed", logger.ErrorField(err))
	}
}

// lookup 取出路由中的播放器，不存在时已经写好 404
func (h *APIHandler) lookup(w http.ResponseWriter, r *http.Request) (*player.Controller, bool) {
	p, err := h.registry.Get(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Player not found", http.StatusNotFound)
		return nil, false
	}
	return p, true
}

// CreatePlayerHandler POST /api/players
func (h *APIHandler) CreatePlayerHandler(w http.ResponseWriter, r *http.Request) {
	p := h.registry.Create()
	writeJSON(w, http.StatusCreated, viewOf(p))
}

// ListPlayersHandler GET /api/players
func (h *APIHandler) ListPlayersHandler(w http.ResponseWriter, r *http.Request) {
	players := h.registry.List()
	views := make([]PlayerView, 0, len(players))
	for _, p := range players {
		views = append(views, viewOf(p))
	}
	writeJSON(w, http.StatusOK, views)
}

// GetPlayerHandler GET /api/players/{id}
func (h *APIHandler) GetPlayerHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewOf(p))
}

// DeletePlayerHandler DELETE /api/players/{id}
func (h *APIHandler) DeletePlayerHandler(w http.ResponseWriter, r *http.Request) {
	err := h.registry.Remove(mux.Vars(r)["id"])
	switch {
	case errors.Is(err, ErrPlayerNotFound):
		http.Error(w, "Player not found", http.StatusNotFound)
	case err != nil:
		http.Error(w, "Failed to close player", http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// PlayHandler POST /api/players/{id}/play
// JSON 请求体 {url, name} 从地址播放，其它请求体按 MIDI 数据播放，名字取 ?name=
func (h *APIHandler) PlayHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var src player.Source
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req PlayRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Warn("[PlayHandler] 解析请求体失败", logger.ErrorField(err))
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		src = player.FromURL(req.URL, req.Name)
	} else {
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSongSize))
		if err != nil {
			http.Error(w, "Failed to read MIDI data", http.StatusRequestEntityTooLarge)
			return
		}
		src = player.FromBytes(data, r.URL.Query().Get("name"))
	}

	logger.Info("[PlayHandler] play requested",
		logger.String("playerId", p.ID()),
		logger.String("operator", OperatorFromContext(r.Context())),
		logger.String("url", src.URL),
		logger.Int("bytes", len(src.Data)))
	if !p.Play(src) {
		http.Error(w, "Invalid MIDI source", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusAccepted, viewOf(p))
}

// control 包装 pause/resume/stop，操作被拒绝时返回 409
func (h *APIHandler) control(op func(*player.Controller) bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := h.lookup(w, r)
		if !ok {
			return
		}
		if !op(p) {
			writeJSON(w, http.StatusConflict, viewOf(p))
			return
		}
		writeJSON(w, http.StatusOK, viewOf(p))
	}
}

// PlayerEventsHandler GET /api/players/{id}/events?limit=&offset=
func (h *APIHandler) PlayerEventsHandler(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		http.Error(w, "Event journal not configured", http.StatusNotImplemented)
		return
	}
	id := mux.Vars(r)["id"]
	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)

	list, err := h.events.ListByPlayer(r.Context(), id, limit, offset)
	if err != nil {
		logger.Error("[PlayerEventsHandler] 查询事件失败", logger.String("playerId", id), logger.ErrorField(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// PurgePlayerEventsHandler DELETE /api/players/{id}/events
func (h *APIHandler) PurgePlayerEventsHandler(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		http.Error(w, "Event journal not configured", http.StatusNotImplemented)
		return
	}
	id := mux.Vars(r)["id"]
	n, err := h.events.DeleteByPlayer(r.Context(), id)
	if err != nil {
		logger.Error("[PurgePlayerEventsHandler] 删除事件失败", logger.String("playerId", id), logger.ErrorField(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": n})
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(key)); err == nil && v >= 0 {
		return v
	}
	return fallback
}
