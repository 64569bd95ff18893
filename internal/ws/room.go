package ws

import (
	"errors"
	"fmt"
	"sync"
	"time"

	domainErrors "pagebuilder-go-server/domain/errors"
	"pagebuilder-go-server/internal/page"
	"pagebuilder-go-server/internal/state"

	"github.com/rs/zerolog"
)

// ========== Actor Model: Room 是完全自治的独立单元 ==========
// clients map 只在 run() 循环内访问，无需锁！
// 文档由 state.Manager 持有，Manager 本身不是并发安全的，所有访问都经过 stateMu。

// Room 既包含数据，也包含处理逻辑（Actor Model）
type Room struct {
	ID      string
	Version int64

	manager *state.Manager
	pending []state.Event // 当前操作产生的事件，解锁后再广播

	// 私有 clients map - 只在 run() 内访问，无需锁
	clients map[*Client]bool

	// 事件通道：所有操作都变成消息
	broadcast  chan *RoomBroadcast // 广播消息
	register   chan *Client        // 加入请求
	unregister chan *Client        // 退出请求
	stopChan   chan struct{}       // 停止信号
	done       chan struct{}       // run() 退出后关闭
	stopOnce   sync.Once

	// 状态锁 - 保护 manager / Version / lastPersistedVersion
	stateMu sync.RWMutex

	// 人数和停止状态，供 Hub 在 run() 之外读取
	countMu     sync.Mutex
	clientCount int
	stopping    bool
	stopReason  error
	stopMessage string

	// 刷盘相关
	flushMu              sync.Mutex
	lastPersistedVersion int64
	flushTicker          *time.Ticker
	pageService          PageService

	// 反向引用：房间空闲时通知 Hub
	hub *Hub
	log zerolog.Logger
}

// RoomBroadcast 广播消息结构
// Target 非空时只发给该客户端；Sender 非空时跳过发送者
type RoomBroadcast struct {
	Message    []byte
	Sender     *Client
	Target     *Client
	IsCritical bool
}

// 刷盘配置
const (
	FlushInterval  = 30 * time.Second
	FlushThreshold = 50
)

// NewRoom 创建房间并启动事件循环
func NewRoom(id string, doc *page.Page, version int64, pageService PageService, hub *Hub, log zerolog.Logger) *Room {
	r := newRoom(id, doc, version, pageService, hub, log)
	go r.run()

	r.log.Info().Int64("version", version).Msg("[Room] 🚀 已创建并启动")
	return r
}

// newRoom 只构造不启动事件循环
func newRoom(id string, doc *page.Page, version int64, pageService PageService, hub *Hub, log zerolog.Logger) *Room {
	roomLog := log.With().Str("room", id).Logger()
	r := &Room{
		ID:                   id,
		Version:              version,
		manager:              state.NewManager(doc, state.WithLogger(roomLog)),
		clients:              make(map[*Client]bool),
		broadcast:            make(chan *RoomBroadcast, 256),
		register:             make(chan *Client),
		unregister:           make(chan *Client),
		stopChan:             make(chan struct{}),
		done:                 make(chan struct{}),
		lastPersistedVersion: version,
		flushTicker:          time.NewTicker(FlushInterval),
		pageService:          pageService,
		hub:                  hub,
		log:                  roomLog,
	}
	// 监听者在 stateMu 持有期间同步调用，只收集不发送
	r.manager.SubscribeAll(func(e state.Event) error {
		r.pending = append(r.pending, e)
		return nil
	})
	return r
}

// run 是房间的主宰，所有逻辑都在这里串行处理，所以 clients map 不需要锁！
func (r *Room) run() {
	defer func() {
		r.flushTicker.Stop()
		r.flushToDB("销毁前")
		close(r.done)
		r.log.Info().Msg("[Room] 🛑 事件循环已停止")
	}()

	for {
		select {
		// 1. 处理客户端注册 (无锁！)
		case client := <-r.register:
			r.clients[client] = true
			r.updateClientCount(len(r.clients))
			r.sendSyncToClient(client)
			r.sendPresence(TypeUserJoin, client)
			r.log.Info().Str("user", client.UserInfo.UserName).Int("clients", len(r.clients)).Msg("[Room] 👋 用户加入")

		// 2. 处理客户端注销 (无锁！)
		case client := <-r.unregister:
			if _, ok := r.clients[client]; ok {
				delete(r.clients, client)
				close(client.send)
				r.updateClientCount(len(r.clients))
				r.sendPresence(TypeUserLeave, client)
				r.log.Info().Str("user", client.UserInfo.UserName).Int("clients", len(r.clients)).Msg("[Room] 👋 用户离开")

				// 房间空了，交给 Hub 决定是否销毁
				if len(r.clients) == 0 && r.hub != nil {
					go r.hub.NotifyIdle(r)
				}
			}

		// 3. 处理广播 (核心热路径 - 无锁！)
		case msg := <-r.broadcast:
			r.deliver(msg)

		// 4. 定时刷盘
		case <-r.flushTicker.C:
			go r.flushToDB("定时")

		// 5. 停止信号
		case <-r.stopChan:
			r.closeClients()
			return
		}
	}
}

func (r *Room) deliver(msg *RoomBroadcast) {
	for client := range r.clients {
		if msg.Target != nil && client != msg.Target {
			continue
		}
		if msg.Sender != nil && client == msg.Sender {
			continue
		}

		select {
		case client.send <- msg.Message:
			// 发送成功
		default:
			// 缓冲区满
			if msg.IsCritical {
				r.log.Warn().Str("user", client.UserInfo.UserName).Msg("[Room] ⚠️ 关键消息阻塞，踢出")
				delete(r.clients, client)
				close(client.send)
				r.updateClientCount(len(r.clients))
				if len(r.clients) == 0 && r.hub != nil {
					go r.hub.NotifyIdle(r)
				}
			}
			// 非关键消息直接丢弃
		}
	}
}

// closeClients 停止时通知原因并断开所有连接
func (r *Room) closeClients() {
	r.countMu.Lock()
	reason, message := r.stopReason, r.stopMessage
	r.countMu.Unlock()

	var data []byte
	if reason != nil {
		data, _ = newMessage(TypeError, "server", ErrorPayload{Code: ErrRoomClosed, Message: message}, time.Now().UnixMilli())
	}
	for client := range r.clients {
		if data != nil {
			select {
			case client.send <- data:
			default:
			}
		}
		delete(r.clients, client)
		close(client.send)
	}
	r.updateClientCount(0)
}

// sendSyncToClient 发送全量同步消息给新用户
func (r *Room) sendSyncToClient(client *Client) {
	snapshot, version := r.GetSnapshot()

	// 收集房间内其他用户信息
	users := make([]UserInfo, 0, len(r.clients))
	for c := range r.clients {
		if c != client {
			users = append(users, c.UserInfo)
		}
	}

	data, err := newMessage(TypeSync, "server", SyncPayload{
		Page:    snapshot,
		Version: version,
		Users:   users,
	}, time.Now().UnixMilli())
	if err != nil {
		r.log.Error().Err(err).Msg("[Room] 构造 Sync 消息失败")
		return
	}
	client.send <- data

	r.log.Debug().Str("user", client.UserInfo.UserName).Int64("version", version).Msg("[Room] 📤 已发送 Sync")
}

// sendPresence 用户进出通知，非关键消息
func (r *Room) sendPresence(t MessageType, who *Client) {
	data, err := newMessage(t, who.UserInfo.UserID, who.UserInfo, time.Now().UnixMilli())
	if err != nil {
		return
	}
	r.deliver(&RoomBroadcast{Message: data, Sender: who})
}

// ========== 对外暴露的接口 ==========

// Register 注册客户端到房间，房间已关闭时返回 ErrRoomClosing
func (r *Room) Register(client *Client) error {
	select {
	case r.register <- client:
		return nil
	case <-r.done:
		return domainErrors.ErrRoomClosing
	}
}

// Unregister 注销客户端
func (r *Room) Unregister(client *Client) {
	select {
	case r.unregister <- client:
	case <-r.done:
	}
}

// Broadcast 广播消息，房间已停止时丢弃
func (r *Room) Broadcast(message []byte, sender *Client, isCritical bool) {
	r.enqueue(&RoomBroadcast{Message: message, Sender: sender, IsCritical: isCritical})
}

// SendTo 单播，同样经过事件循环，保证只有 run() 操作 client.send
func (r *Room) SendTo(client *Client, message []byte) {
	r.enqueue(&RoomBroadcast{Message: message, Target: client})
}

func (r *Room) enqueue(msg *RoomBroadcast) {
	select {
	case r.broadcast <- msg:
	case <-r.done:
	}
}

// Stop 停止房间，阻塞到刷盘完成
func (r *Room) Stop() {
	r.StopWithReason(nil, "")
}

// StopWithReason reason 非空时先给在线用户发送 ROOM_CLOSED
func (r *Room) StopWithReason(reason error, message string) {
	r.stopOnce.Do(func() {
		r.countMu.Lock()
		r.stopping = true
		r.stopReason = reason
		r.stopMessage = message
		r.countMu.Unlock()
		close(r.stopChan)
	})
	<-r.done
}

func (r *Room) IsStopping() bool {
	r.countMu.Lock()
	defer r.countMu.Unlock()
	return r.stopping
}

func (r *Room) ClientCount() int {
	r.countMu.Lock()
	defer r.countMu.Unlock()
	return r.clientCount
}

func (r *Room) updateClientCount(n int) {
	r.countMu.Lock()
	r.clientCount = n
	r.countMu.Unlock()
}

// ========== 需要锁保护的状态操作 ==========

// Apply 应用一个文档操作，成功后版本 +1 并向所有人广播产生的事件
func (r *Room) Apply(op OpPayload, sender *Client) (int64, error) {
	r.stateMu.Lock()

	if op.Version != 0 && op.Version != r.Version {
		current := r.Version
		r.stateMu.Unlock()
		return 0, &VersionConflictError{CurrentVersion: current, ExpectedVersion: op.Version}
	}

	ok, err := r.dispatch(op)
	events := r.pending
	r.pending = nil
	if err == nil && !ok {
		err = &OpError{Reason: fmt.Sprintf("%s 被拒绝", op.Op)}
	}
	if err != nil {
		r.stateMu.Unlock()
		return 0, err
	}

	r.Version++
	version := r.Version
	needFlush := r.Version-r.lastPersistedVersion >= FlushThreshold
	r.stateMu.Unlock()

	// 阈值刷盘
	if needFlush {
		go r.flushToDB("阈值触发")
	}

	senderID := "server"
	if sender != nil {
		senderID = sender.UserInfo.UserID
	}
	r.broadcastEvents(events, version, senderID)
	return version, nil
}

// dispatch 在 stateMu 内调用
func (r *Room) dispatch(op OpPayload) (bool, error) {
	m := r.manager

	switch op.Op {
	case OpAdd:
		c := op.Component
		if c == nil {
			if op.ComponentType == "" {
				return false, &OpError{Reason: "add 需要 component 或 componentType"}
			}
			var err error
			if c, err = page.NewDefault(op.ComponentType); err != nil {
				return false, err
			}
		}
		page.Normalize(c)
		if err := page.Validate(c); err != nil {
			return false, err
		}
		if m.GetComponentByID(c.ID) != nil {
			return false, &OpError{Reason: fmt.Sprintf("组件 %q 已存在", c.ID)}
		}
		return m.AddComponentWithNotification(c)

	case OpUpdate:
		if err := requireID(op.ComponentID, "componentId"); err != nil {
			return false, err
		}
		return m.UpdateComponentWithNotification(op.ComponentID, op.Updates)

	case OpRemove:
		if err := requireID(op.ComponentID, "componentId"); err != nil {
			return false, err
		}
		ok, err := m.RemoveComponentWithNotification(op.ComponentID)
		if err == nil && !ok && m.GetComponentByID(op.ComponentID) == nil {
			return false, &domainErrors.NotFoundError{Kind: "component", ID: op.ComponentID}
		}
		return ok, err

	case OpReorder:
		return m.ReorderComponentsWithNotification(op.Order)

	case OpText:
		if err := requireID(op.ComponentID, "componentId"); err != nil {
			return false, err
		}
		return m.UpdateTextComponentContentWithNotification(op.ComponentID, page.SanitizeHTML(op.Text))

	case OpAccordionAdd:
		if err := requireID(op.ComponentID, "componentId"); err != nil {
			return false, err
		}
		var item page.AccordionItem
		if op.Item != nil {
			item = *op.Item
			item.Content.Data = page.SanitizeHTML(item.Content.Data)
		}
		return m.AddAccordionItemWithNotification(op.ComponentID, item)

	case OpAccordionRemove:
		if err := requireID(op.ItemID, "itemId"); err != nil {
			return false, err
		}
		return m.RemoveAccordionItemWithNotification(op.ComponentID, op.ItemID)

	case OpAccordionToggle:
		if err := requireID(op.ItemID, "itemId"); err != nil {
			return false, err
		}
		return m.ToggleAccordionItemWithNotification(op.ComponentID, op.ItemID)

	case OpCardTitle:
		return m.UpdateCardTitleWithNotification(op.ComponentID, op.Text)

	case OpBannerHeadline:
		return m.UpdateBannerHeadlineWithNotification(op.ComponentID, op.Text)

	case OpBannerImageRemove:
		return m.RemoveBannerBackgroundImageWithNotification(op.ComponentID)

	case OpLinkAdd:
		if op.Link == nil {
			return false, &OpError{Reason: "link-add 需要 link"}
		}
		return m.AddLinkToGroupWithNotification(op.ComponentID, *op.Link)

	case OpLinkRemove:
		if err := requireID(op.LinkID, "linkId"); err != nil {
			return false, err
		}
		return m.RemoveLinkFromGroupWithNotification(op.ComponentID, op.LinkID)

	default:
		return false, &OpError{Reason: fmt.Sprintf("未知操作 %q", op.Op)}
	}
}

func requireID(id, field string) error {
	if id == "" {
		return domainErrors.NewValidationError(field, "is required")
	}
	return nil
}

// SaveDocument 整页保存（HTTP PUT 落在在线房间上时使用）
// 写库和内存替换在同一把锁内完成，期间的协同操作排队等待。
// expectedVersion 非 0 时做乐观锁检查，不一致返回 ErrOptimisticLock。
func (r *Room) SaveDocument(doc *page.Page, expectedVersion int64) (int64, error) {
	raw, err := doc.ToJSON()
	if err != nil {
		return 0, err
	}

	r.flushMu.Lock()
	defer r.flushMu.Unlock()
	r.stateMu.Lock()

	if expectedVersion != 0 && expectedVersion != r.Version {
		r.stateMu.Unlock()
		return 0, fmt.Errorf("%w: current %d, expected %d", domainErrors.ErrOptimisticLock, r.Version, expectedVersion)
	}

	version := r.Version + 1
	if err := r.pageService.SavePageState(r.ID, raw, r.lastPersistedVersion, version); err != nil {
		r.stateMu.Unlock()
		return 0, err
	}

	ok, err := r.manager.Reset(doc)
	events := r.pending
	r.pending = nil
	if err == nil && !ok {
		err = &OpError{Reason: "reset 被拒绝"}
	}
	if err != nil {
		// 数据库已是新文档，内存保持旧文档会在下次刷盘时冲突，这里只记录
		r.stateMu.Unlock()
		r.log.Error().Err(err).Msg("[Room] 整页替换失败")
		return 0, err
	}
	r.Version = version
	r.lastPersistedVersion = version
	r.stateMu.Unlock()

	r.broadcastEvents(events, version, "server")
	r.log.Info().Int64("version", version).Msg("[Room] 🔄 文档已被整页替换")
	return version, nil
}

func (r *Room) broadcastEvents(events []state.Event, version int64, senderID string) {
	now := time.Now().UnixMilli()
	for _, e := range events {
		data, err := newMessage(TypeEvent, senderID, EventPayload{Event: e.EventName(), Data: e, Version: version}, now)
		if err != nil {
			r.log.Error().Err(err).Str("event", string(e.EventName())).Msg("[Room] 事件序列化失败")
			continue
		}
		r.Broadcast(data, nil, true)
	}
}

// GetSnapshot 获取当前页面 JSON 和版本
func (r *Room) GetSnapshot() ([]byte, int64) {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()

	snapshot, err := r.manager.ToJSON()
	if err != nil {
		r.log.Error().Err(err).Msg("[Room] 页面序列化失败")
		return nil, r.Version
	}
	return snapshot, r.Version
}

// flushToDB 刷盘，同一时间只有一次刷盘在进行
func (r *Room) flushToDB(reason string) {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	r.stateMu.RLock()
	if r.Version == r.lastPersistedVersion {
		r.stateMu.RUnlock()
		return
	}
	snapshot, err := r.manager.ToJSON()
	version := r.Version
	oldVersion := r.lastPersistedVersion
	r.stateMu.RUnlock()

	if err != nil {
		r.log.Error().Err(err).Str("reason", reason).Msg("[Room] ⚠️ 刷盘前序列化失败")
		return
	}

	if err := r.pageService.SavePageState(r.ID, snapshot, oldVersion, version); err != nil {
		if errors.Is(err, domainErrors.ErrOptimisticLock) {
			r.log.Warn().Int64("expected", oldVersion).Str("reason", reason).Msg("[Room] ⚠️ 刷盘版本冲突")
			return
		}
		r.log.Error().Err(err).Str("reason", reason).Msg("[Room] ⚠️ 刷盘失败")
		return
	}

	r.stateMu.Lock()
	if version > r.lastPersistedVersion {
		r.lastPersistedVersion = version
	}
	if r.Version == version {
		r.manager.MarkSaved()
	}
	r.stateMu.Unlock()
	r.log.Info().Int64("version", version).Str("reason", reason).Msg("[Room] ✅ 刷盘完成")
}
