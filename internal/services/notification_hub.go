package services

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const TaskCreatedMessageType = "automation.task_created"

// NotificationMessage 推送给前端的消息
type NotificationMessage struct {
	Type        string      `json:"type"`
	Data        interface{} `json:"data"`
	WorkspaceID string      `json:"workspace_id"`
	Timestamp   time.Time   `json:"timestamp"`
}

type notificationClient struct {
	id          string
	workspaceID string
	conn        *websocket.Conn
	send        chan NotificationMessage
	hub         *NotificationHub
}

// NotificationHub fans TaskCreated events out to websocket clients
// subscribed to the event's workspace.
type NotificationHub struct {
	clients    map[string]*notificationClient
	broadcast  chan NotificationMessage
	register   chan *notificationClient
	unregister chan *notificationClient
	done       chan struct{}
	mutex      sync.RWMutex
	logger     *logrus.Logger
}

var notificationUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 生产环境需要验证源
	},
}

func NewNotificationHub(logger *logrus.Logger) *NotificationHub {
	if logger == nil {
		logger = logrus.New()
	}
	return &NotificationHub{
		clients:    make(map[string]*notificationClient),
		broadcast:  make(chan NotificationMessage, 256),
		register:   make(chan *notificationClient),
		unregister: make(chan *notificationClient),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run 处理注册/注销/广播，直到 ctx 结束
func (h *NotificationHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for id, client := range h.clients {
				close(client.send)
				delete(h.clients, id)
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client.id] = client
			h.mutex.Unlock()
			h.logger.Debugf("notification client %s subscribed to workspace %s", client.id, client.workspaceID)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			h.mutex.Unlock()

		case message := <-h.broadcast:
			h.mutex.Lock()
			for id, client := range h.clients {
				if client.workspaceID != message.WorkspaceID {
					continue
				}
				select {
				case client.send <- message:
				default:
					// slow consumer
					close(client.send)
					delete(h.clients, id)
				}
			}
			h.mutex.Unlock()
		}
	}
}

// PublishTaskCreated is the engine observer. It never blocks; messages are
// dropped when the hub is saturated.
func (h *NotificationHub) PublishTaskCreated(evt TaskCreatedEvent) {
	msg := NotificationMessage{
		Type:        TaskCreatedMessageType,
		Data:        evt,
		WorkspaceID: evt.WorkspaceID,
		Timestamp:   time.Now(),
	}
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warnf("notification hub saturated, dropping %s for workspace %s", msg.Type, msg.WorkspaceID)
	}
}

// HandleWebSocket 升级连接并订阅 workspace_id 路径参数对应的工作区
func (h *NotificationHub) HandleWebSocket(c *gin.Context) {
	workspaceID := c.Param("workspace_id")
	conn, err := notificationUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("websocket upgrade failed: %v", err)
		return
	}
	client := &notificationClient{
		id:          fmt.Sprintf("client_%d", time.Now().UnixNano()),
		workspaceID: workspaceID,
		conn:        conn,
		send:        make(chan NotificationMessage, 64),
		hub:         h,
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

// ClientCount 返回当前连接数
func (h *NotificationHub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// readPump only services control frames; clients never send data.
func (c *notificationClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warnf("websocket error: %v", err)
			}
			return
		}
	}
}

func (c *notificationClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				c.hub.logger.Warnf("websocket write failed: %v", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
