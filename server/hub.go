package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"midiplayer/core/event"
	"midiplayer/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 256
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client 订阅事件流的 WebSocket 连接
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	playerID string // 为空时接收所有播放器的事件
}

// Hub 把播放器事件广播给所有订阅者
type Hub struct {
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan event.Event

	mu   sync.RWMutex
	done chan struct{}
	once sync.Once
}

// NewHub 创建事件 Hub，需要调用 Run 启动
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan event.Event, sendBuffer),
		done:       make(chan struct{}),
	}
}

// Run 启动 Hub 主循环
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			logger.Info("[Hub] client registered", logger.String("playerId", client.playerID))

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeClient(client)
			h.mu.Unlock()

		case e := <-h.broadcast:
			h.fanOut(e)

		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop 停止 Hub 并关闭所有连接
func (h *Hub) Stop() {
	h.once.Do(func() { close(h.done) })
}

// Broadcast 是一个 event.Sink，缓冲区满时丢弃事件，不会阻塞播放器
func (h *Hub) Broadcast(e event.Event) {
	select {
	case h.broadcast <- e:
	case <-h.done:
	default:
		logger.Warn("[Hub.Broadcast] buffer full, event dropped",
			logger.String("event", e.Name()),
			logger.String("playerId", e.PlayerID))
	}
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// removeClient 需要持有锁
func (h *Hub) removeClient(client *Client) {
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		logger.Info("[Hub] client unregistered", logger.String("playerId", client.playerID))
	}
}

func (h *Hub) fanOut(e event.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		logger.Error("[Hub] marshal event failed", logger.ErrorField(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		if client.playerID != "" && client.playerID != e.PlayerID {
			continue
		}
		select {
		case client.send <- data:
		default:
			// 发送缓冲区满，移除客户端
			h.removeClient(client)
		}
	}
}

func (h *Hub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

// ServeWS 升级连接并订阅事件，?player= 只订阅一个播放器
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("[Hub.ServeWS] websocket upgrade failed", logger.ErrorField(err))
		return
	}

	client := &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		playerID: r.URL.Query().Get("player"),
	}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump 只处理控制帧，客户端发来的数据被忽略
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("[Hub] websocket read error", logger.ErrorField(err))
			}
			return
		}
	}
}

// writePump 每条事件一帧，定时发送 ping
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub 关闭了通道
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
