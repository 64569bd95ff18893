package controller

import (
	"errors"
	"hash/fnv"
	"net/http"
	"slices"
	"strings"

	"pagebuilder-go-server/api/middleware"
	domainErrors "pagebuilder-go-server/domain/errors"
	domainRepo "pagebuilder-go-server/domain/repository"
	"pagebuilder-go-server/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WSHandler 协同编辑的 WebSocket 入口
type WSHandler struct {
	hub      *ws.Hub
	userRepo domainRepo.UserRepository
	verify   middleware.TokenVerifier
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewWSHandler allowedOrigins 之外的跨域握手会被拒绝，localhost 始终放行
func NewWSHandler(hub *ws.Hub, userRepo domainRepo.UserRepository, verify middleware.TokenVerifier, allowedOrigins []string, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		hub:      hub,
		userRepo: userRepo,
		verify:   verify,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins, log),
		},
	}
}

func originChecker(allowed []string, log zerolog.Logger) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || strings.HasPrefix(origin, "http://localhost") || slices.Contains(allowed, origin) {
			return true
		}
		log.Warn().Str("origin", origin).Msg("[WS] ⚠️ 拒绝跨域连接")
		return false
	}
}

// HandleWS 握手流程：校验 token -> 取房间 -> 升级 -> 注册
// GET /ws?pageId=xxx&token=xxx
func (h *WSHandler) HandleWS(c *gin.Context) {
	pageID := c.Query("pageId")
	if pageID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pageId 不能为空"})
		return
	}

	token := tokenFrom(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "缺少认证 token"})
		return
	}
	userID, err := h.verify(c.Request.Context(), token)
	if err != nil {
		h.log.Warn().Err(err).Msg("[WS] ❌ Token 验证失败")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token 无效", "details": err.Error()})
		return
	}

	// 页面不存在时不会创建房间
	room, err := h.hub.GetOrCreateRoom(pageID)
	switch {
	case err == nil:
	case errors.Is(err, domainErrors.ErrPageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "页面不存在"})
		return
	case errors.Is(err, domainErrors.ErrRoomClosing):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "房间正在关闭，请稍后重试"})
		return
	default:
		h.log.Error().Err(err).Str("page", pageID).Msg("[WS] ❌ 获取房间失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已经写过响应
		h.log.Error().Err(err).Msg("[WS] ❌ 升级 WebSocket 失败")
		return
	}

	client := ws.NewClient(room, conn, ws.UserInfo{
		UserID:   userID,
		UserName: h.displayName(userID),
		Color:    userColor(userID),
	}, h.log)

	// 升级期间房间可能已被回收，让客户端稍后重连
	if err := room.Register(client); err != nil {
		h.log.Warn().Err(err).Str("page", pageID).Msg("[WS] ❌ 注册客户端失败")
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()))
		conn.Close()
		return
	}

	h.log.Info().Str("user", userID).Str("page", pageID).Msg("[WS] ✅ 用户已连接")

	go client.WritePump()
	go client.ReadPump()
}

// tokenFrom 浏览器 WebSocket 不能带自定义头，token 放在 query 或子协议里
func tokenFrom(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	return c.GetHeader("Sec-WebSocket-Protocol")
}

// displayName 优先使用 Webhook 同步到本地的用户名
func (h *WSHandler) displayName(userID string) string {
	if h.userRepo == nil {
		return userID
	}
	user, err := h.userRepo.GetByID(userID)
	if err != nil {
		h.log.Debug().Err(err).Str("user", userID).Msg("[WS] 查询用户失败，使用 ID 作为名称")
		return userID
	}
	if user == nil || user.Name == "" {
		return userID
	}
	return user.Name
}

// 协作光标调色板
var cursorColors = []string{
	"#FF6B6B", "#4ECDC4", "#45B7D1", "#96CEB4",
	"#FFEAA7", "#DDA0DD", "#98D8C8", "#F7DC6F",
}

// userColor 同一用户在所有页面上颜色一致
func userColor(userID string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return cursorColors[h.Sum32()%uint32(len(cursorColors))]
}
