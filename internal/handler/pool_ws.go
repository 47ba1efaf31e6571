package handler

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"

	"studypool-backend/internal/auth"
	"studypool-backend/internal/config"
	"studypool-backend/internal/metrics"
	"studypool-backend/internal/middleware"
	"studypool-backend/internal/model"
)

const poolClientBuffer = 16

// poolClient 풀 이벤트 구독 연결
type poolClient struct {
	userID int64
	send   chan []byte
}

// PoolHub 풀별 WebSocket 구독자 관리. 단일 노드 전용이며 이벤트는 알림 용도이다
type PoolHub struct {
	mu           sync.RWMutex
	pools        map[int64]map[*poolClient]struct{}
	writeTimeout time.Duration
	pingInterval time.Duration
	log          *zap.Logger
}

// NewPoolHub PoolHub 생성
func NewPoolHub(cfg config.WebSocketConfig, log *zap.Logger) *PoolHub {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	return &PoolHub{
		pools:        make(map[int64]map[*poolClient]struct{}),
		writeTimeout: cfg.WriteTimeout,
		pingInterval: cfg.PingInterval,
		log:          log,
	}
}

// Publish 풀 구독자에게 이벤트 전달. 느린 구독자는 이벤트를 놓친다
func (h *PoolHub) Publish(ev model.PoolEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("pool event marshal failed", zap.Error(err))
		return
	}
	metrics.Get().EventsPublished.WithLabelValues(ev.Type.String()).Inc()

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.pools[ev.PoolID] {
		select {
		case client.send <- data:
		default:
			h.log.Debug("dropping pool event for slow client",
				zap.Int64("pool_id", ev.PoolID), zap.Int64("user_id", client.userID))
		}
	}

	switch ev.Type {
	case model.PoolEventPoolDeleted:
		// 삭제된 풀의 구독은 종료
		for client := range h.pools[ev.PoolID] {
			close(client.send)
		}
		delete(h.pools, ev.PoolID)
	case model.PoolEventMemberLeft:
		// 나간 멤버는 탈퇴 이벤트까지만 받는다
		h.dropUserLocked(ev.PoolID, ev.ActorID)
	}
}

// dropUserLocked 풀에서 userID 의 연결을 모두 종료. h.mu 를 잡은 상태로 호출
func (h *PoolHub) dropUserLocked(poolID, userID int64) {
	clients := h.pools[poolID]
	for client := range clients {
		if client.userID != userID {
			continue
		}
		delete(clients, client)
		close(client.send)
	}
	if clients != nil && len(clients) == 0 {
		delete(h.pools, poolID)
	}
}

// Subscribers 풀 구독자 수
func (h *PoolHub) Subscribers(poolID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.pools[poolID])
}

func (h *PoolHub) register(poolID int64, client *poolClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pools[poolID] == nil {
		h.pools[poolID] = make(map[*poolClient]struct{})
	}
	h.pools[poolID][client] = struct{}{}
}

func (h *PoolHub) unregister(poolID int64, client *poolClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.pools[poolID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.pools, poolID)
	}
}

// HandleWebSocket GET /ws/pools/:id (멤버십은 라우트 미들웨어에서 확인)
func (h *PoolHub) HandleWebSocket(c *websocket.Conn) {
	poolID, _ := c.Locals(middleware.LocalPoolID).(int64)
	userID, _ := c.Locals(auth.LocalUserID).(int64)
	if poolID == 0 || userID == 0 {
		_ = c.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","message":"invalid session"}`))
		_ = c.Close()
		return
	}

	client := &poolClient{userID: userID, send: make(chan []byte, poolClientBuffer)}
	h.register(poolID, client)
	metrics.Get().WSConnections.Inc()
	h.log.Debug("pool websocket connected", zap.Int64("pool_id", poolID), zap.Int64("user_id", userID))

	done := make(chan struct{})
	go h.writeLoop(c, client, done)

	// 읽기 루프: 클라이언트 메시지는 무시하고 연결 종료만 감지
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			break
		}
	}

	h.unregister(poolID, client)
	<-done
	metrics.Get().WSConnections.Dec()
	h.log.Debug("pool websocket disconnected", zap.Int64("pool_id", poolID), zap.Int64("user_id", userID))
}

func (h *PoolHub) writeLoop(c *websocket.Conn, client *poolClient, done chan<- struct{}) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.Close()
		close(done)
	}()

	for {
		select {
		case msg, ok := <-client.send:
			if !ok {
				_ = c.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(h.writeTimeout))
				return
			}
			_ = c.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeTimeout)); err != nil {
				return
			}
		}
	}
}
