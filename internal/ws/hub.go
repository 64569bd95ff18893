package ws

import (
	"errors"
	"fmt"
	"sync"

	domainErrors "pagebuilder-go-server/domain/errors"
	"pagebuilder-go-server/internal/page"

	"github.com/rs/zerolog"
)

// ========== Actor Model: Hub 是生死的唯一仲裁者 ==========
// Hub 不处理任何业务消息，只管理 Room 的生命周期

// Hub 维护房间目录
type Hub struct {
	rooms       map[string]*Room
	mu          sync.RWMutex
	idleRoom    chan *Room // Room 空闲信号（请求销毁）
	pageService PageService
	log         zerolog.Logger
}

// PageService 接口，用于数据库操作
type PageService interface {
	// GetPageState 返回页面 JSON 和版本，如果页面不存在返回 (nil, 0, ErrPageNotFound)
	GetPageState(pageID string) ([]byte, int64, error)
	// SavePageState 保存页面状态（支持版本跳跃）
	// oldVersion: 上次持久化的版本（用于乐观锁检查）
	// newVersion: 当前内存中的版本（要写入 DB）
	SavePageState(pageID string, state []byte, oldVersion, newVersion int64) error
}

// NewHub 创建 Hub 实例
func NewHub(pageService PageService, log zerolog.Logger) *Hub {
	return &Hub{
		rooms:       make(map[string]*Room),
		idleRoom:    make(chan *Room, 16),
		pageService: pageService,
		log:         log,
	}
}

// Run Hub 事件循环
func (h *Hub) Run() {
	h.log.Info().Msg("[Hub] 🚀 Hub 已启动（生死仲裁者）")

	for room := range h.idleRoom {
		// handleIdleRoom 会阻塞等待刷盘完成，不能卡住事件循环
		go h.handleIdleRoom(room)
	}
}

// handleIdleRoom 处理空闲房间（双重检查后决定是否销毁）
// 先刷盘，再从 Hub 移除，并检查指针同一性
func (h *Hub) handleIdleRoom(room *Room) {
	// 双重检查：Room 可能在我们处理期间又有人加入了
	if room.ClientCount() > 0 {
		h.log.Debug().Str("room", room.ID).Msg("[Hub] 🔄 房间已有新用户，取消销毁")
		return
	}

	// 先停止房间（阻塞等待刷盘完成）
	room.Stop()

	h.mu.Lock()
	defer h.mu.Unlock()

	// 防止 GetOrCreateRoom 在刷盘期间创建了新房间，结果被我们删了
	if currentRoom, ok := h.rooms[room.ID]; ok && currentRoom == room {
		delete(h.rooms, room.ID)
		h.log.Info().Str("room", room.ID).Msg("[Hub] 🗑️ 房间已销毁")
	} else {
		h.log.Warn().Str("room", room.ID).Msg("[Hub] ⚠️ 房间销毁时发现已被替换或移除，跳过删除")
	}
}

// GetRoom 只读获取房间，不创建（供 HTTP 请求使用）
// 只要房间在内存就返回它，内存数据永远比 DB 新，stopping 的房间仍可读
func (h *Hub) GetRoom(roomID string) *Room {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.rooms[roomID]
}

// GetOrCreateRoom 线程安全地获取或创建房间
// 只有在数据库中存在的页面才会创建房间（Pre-creation 模式）
func (h *Hub) GetOrCreateRoom(roomID string) (*Room, error) {
	// 先尝试读锁快速路径
	h.mu.RLock()
	room, exists := h.rooms[roomID]
	h.mu.RUnlock()

	if exists {
		return h.liveRoom(room)
	}

	// 不存在，加写锁创建
	h.mu.Lock()
	defer h.mu.Unlock()

	// 双重检查
	if room, exists = h.rooms[roomID]; exists {
		return h.liveRoom(room)
	}

	// 从数据库加载状态，页面不存在时拒绝创建
	raw, version, err := h.pageService.GetPageState(roomID)
	if err != nil {
		if errors.Is(err, domainErrors.ErrPageNotFound) {
			h.log.Info().Str("room", roomID).Msg("[Hub] ❌ 页面不存在，拒绝创建房间")
			return nil, domainErrors.ErrPageNotFound
		}
		h.log.Error().Err(err).Str("room", roomID).Msg("[Hub] ⚠️ 加载页面失败")
		return nil, err
	}

	doc, err := page.FromJSON(raw)
	if err != nil {
		h.log.Error().Err(err).Str("room", roomID).Msg("[Hub] ⚠️ 页面文档无法解析")
		return nil, fmt.Errorf("decode page %s: %w", roomID, err)
	}
	if doc.ID == "" {
		doc.ID = roomID
	}

	room = NewRoom(roomID, doc, version, h.pageService, h, h.log)
	h.rooms[roomID] = room

	h.log.Info().Str("room", roomID).Int64("version", version).Msg("[Hub] 🏠 创建房间")
	return room, nil
}

// liveRoom 房间存在但正在停止时返回错误让客户端重试
func (h *Hub) liveRoom(room *Room) (*Room, error) {
	if room.IsStopping() {
		h.log.Info().Str("room", room.ID).Msg("[Hub] ⏳ 房间正在关闭，请客户端重试")
		return nil, domainErrors.ErrRoomClosing
	}
	return room, nil
}

// NotifyIdle 供 Room 调用，通知 Hub 房间空闲
func (h *Hub) NotifyIdle(room *Room) {
	h.idleRoom <- room
}

// CloseRoom 强制关闭房间（供 API 删除页面时调用）
// "处决"流程的第一步：先关闭房间并刷盘，后删数据库
func (h *Hub) CloseRoom(roomID string) {
	h.mu.Lock()
	room, exists := h.rooms[roomID]
	if !exists {
		h.mu.Unlock()
		h.log.Debug().Str("room", roomID).Msg("[Hub] ℹ️ 房间不存在于内存中，无需关闭")
		return
	}
	// 先从 map 中移除（防止新用户加入）
	delete(h.rooms, roomID)
	h.mu.Unlock()

	room.StopWithReason(domainErrors.ErrPageDeleted, "页面已被删除")

	h.log.Info().Str("room", roomID).Msg("[Hub] 💀 强制关闭房间（页面被删除）")
}

// Shutdown 停机时关闭全部房间，每个房间都会刷盘
func (h *Hub) Shutdown() {
	h.mu.Lock()
	rooms := make([]*Room, 0, len(h.rooms))
	for id, room := range h.rooms {
		rooms = append(rooms, room)
		delete(h.rooms, id)
	}
	h.mu.Unlock()

	var wg sync.WaitGroup
	for _, room := range rooms {
		wg.Add(1)
		go func(r *Room) {
			defer wg.Done()
			r.Stop()
		}(room)
	}
	wg.Wait()
	h.log.Info().Int("rooms", len(rooms)).Msg("[Hub] 所有房间已关闭")
}
