package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domainErrors "pagebuilder-go-server/domain/errors"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// 心跳配置
const (
	pongWait       = 60 * time.Second    // 等待 Pong 响应的最大时间
	pingPeriod     = (pongWait * 9) / 10 // Ping 发送间隔，必须小于 pongWait
	writeWait      = 10 * time.Second    // 写消息超时时间
	maxMessageSize = 512 * 1024          // 最大消息大小，防止恶意攻击
)

// Client 代表一个 WebSocket 客户端连接
// send 只由 Room 的事件循环写入和关闭
type Client struct {
	Conn     *websocket.Conn
	UserInfo UserInfo
	Room     *Room
	send     chan []byte
	log      zerolog.Logger
}

// NewClient 创建客户端实例，注册前 Room 就已确定
func NewClient(room *Room, conn *websocket.Conn, userInfo UserInfo, log zerolog.Logger) *Client {
	return &Client{
		Conn:     conn,
		UserInfo: userInfo,
		Room:     room,
		send:     make(chan []byte, 256),
		log:      log.With().Str("room", room.ID).Str("user", userInfo.UserID).Logger(),
	}
}

// WritePump 负责写消息和发送心跳 Ping
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))

			if !ok {
				// send channel 已关闭，发送关闭帧
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			// 定时发送 Ping 保活
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump 负责读消息和处理心跳 Pong
func (c *Client) ReadPump() {
	defer func() {
		c.Room.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))

	// 收到 Pong 时重置读超时
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn().Err(err).Msg("[Client] 连接异常关闭")
			}
			break
		}

		// 收到消息也重置读超时
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		c.handleMessage(message)
	}
}

func (c *Client) handleMessage(message []byte) {
	var msg WSMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.sendError(ErrOpInvalid, "消息不是合法 JSON")
		return
	}

	switch msg.Type {
	case TypeOp:
		c.handleOp(msg.Payload)
	case TypeCursorMove, TypeSelect:
		// 光标和选中是非关键消息，阻塞时静默跳过
		c.Room.Broadcast(message, c, false)
	default:
		c.sendError(ErrOpInvalid, fmt.Sprintf("不支持的消息类型 %q", msg.Type))
	}
}

// handleOp 处理文档操作消息
func (c *Client) handleOp(payload json.RawMessage) {
	var op OpPayload
	if err := json.Unmarshal(payload, &op); err != nil {
		c.sendError(ErrOpInvalid, fmt.Sprintf("op 解析失败: %v", err))
		return
	}

	version, err := c.Room.Apply(op, c)
	if err != nil {
		code, msg := errorCode(err)
		c.sendError(code, msg)
		c.log.Debug().Err(err).Str("op", string(op.Op)).Msg("[Client] 操作处理失败")
		return
	}

	ack, err := newMessage(TypeAck, "server", AckPayload{Op: op.Op, Version: version}, time.Now().UnixMilli())
	if err != nil {
		return
	}
	c.Room.SendTo(c, ack)
	c.log.Debug().Str("op", string(op.Op)).Int64("version", version).Msg("[Client] 操作已应用")
}

// errorCode 领域错误 -> 前端错误码
func errorCode(err error) (ErrorCode, string) {
	var (
		versionErr  *VersionConflictError
		opErr       *OpError
		validation  *domainErrors.ValidationError
		notFound    *domainErrors.NotFoundError
		mismatchErr *domainErrors.TypeMismatchError
	)
	switch {
	case errors.As(err, &versionErr):
		return ErrVersionConflict, fmt.Sprintf("current: %d, expected: %d", versionErr.CurrentVersion, versionErr.ExpectedVersion)
	case errors.As(err, &opErr), errors.As(err, &validation):
		return ErrOpInvalid, err.Error()
	case errors.As(err, &notFound):
		return ErrNotFound, err.Error()
	case errors.As(err, &mismatchErr):
		return ErrTypeMismatch, err.Error()
	default:
		return ErrInternalError, err.Error()
	}
}

// sendError 发送结构化错误消息
func (c *Client) sendError(code ErrorCode, message string) {
	data, err := newMessage(TypeError, "server", ErrorPayload{Code: code, Message: message}, time.Now().UnixMilli())
	if err != nil {
		return
	}
	c.Room.SendTo(c, data)
}
