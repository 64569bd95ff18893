package ws

import (
	"encoding/json"

	"pagebuilder-go-server/internal/page"
	"pagebuilder-go-server/internal/state"
)

type MessageType string

const (
	// 核心协同消息
	TypeOp         MessageType = "op"          // 客户端发起的文档操作
	TypeEvent      MessageType = "event"       // 服务端广播的文档事件
	TypeCursorMove MessageType = "cursor-move" // 光标位置同步
	TypeSelect     MessageType = "select"      // 选中组件（仅展示，不进入文档）

	// 系统消息
	TypeUserJoin  MessageType = "user-join"  // 用户加入房间
	TypeUserLeave MessageType = "user-leave" // 用户离开房间
	TypeSync      MessageType = "sync"       // 全量同步（用于新用户加入和整页替换）
	TypeAck       MessageType = "ack"        // 操作确认
	TypeError     MessageType = "error"      // 错误消息
)

// WSMessage 统一的 WebSocket 消息结构
type WSMessage struct {
	Type      MessageType     `json:"type"`     // 消息类型
	SenderID  string          `json:"senderId"` // 发送者id
	Payload   json.RawMessage `json:"payload"`  // 消息内容
	Timestamp int64           `json:"ts"`       // 时间戳
}

// SyncPayload sync 消息的 payload（新用户加入时发送）
type SyncPayload struct {
	Page    json.RawMessage `json:"page"`
	Version int64           `json:"version"`
	Users   []UserInfo      `json:"users"`
}

// UserInfo 用户基础信息
type UserInfo struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Color    string `json:"color,omitempty"`
}

// ========== 文档操作 ==========

type OpKind string

const (
	OpAdd               OpKind = "add"
	OpUpdate            OpKind = "update"
	OpRemove            OpKind = "remove"
	OpReorder           OpKind = "reorder"
	OpText              OpKind = "text"
	OpAccordionAdd      OpKind = "accordion-add"
	OpAccordionRemove   OpKind = "accordion-remove"
	OpAccordionToggle   OpKind = "accordion-toggle"
	OpCardTitle         OpKind = "card-title"
	OpBannerHeadline    OpKind = "banner-headline"
	OpBannerImageRemove OpKind = "banner-image-remove"
	OpLinkAdd           OpKind = "link-add"
	OpLinkRemove        OpKind = "link-remove"
)

// OpPayload op 消息的 payload，按 Op 使用不同字段
// Version 为客户端看到的房间版本，0 表示不做版本检查
type OpPayload struct {
	Op            OpKind              `json:"op"`
	Version       int64               `json:"version,omitempty"`
	ComponentID   string              `json:"componentId,omitempty"`
	Component     *page.Component     `json:"component,omitempty"`     // add：完整组件
	ComponentType page.Type           `json:"componentType,omitempty"` // add：按类型生成默认组件
	Updates       page.Updates        `json:"updates,omitempty"`       // update
	Order         []string            `json:"order,omitempty"`         // reorder
	Text          string              `json:"text,omitempty"`          // text / card-title / banner-headline
	ItemID        string              `json:"itemId,omitempty"`        // accordion-remove / accordion-toggle
	Item          *page.AccordionItem `json:"item,omitempty"`          // accordion-add
	LinkID        string              `json:"linkId,omitempty"`        // link-remove
	Link          *page.Link          `json:"link,omitempty"`          // link-add
}

// EventPayload event 消息的 payload：Manager 事件原样转发
type EventPayload struct {
	Event   state.EventName `json:"event"`
	Data    state.Event     `json:"data"`
	Version int64           `json:"version"`
}

// AckPayload 操作成功后回给发送者
type AckPayload struct {
	Op      OpKind `json:"op"`
	Version int64  `json:"version"`
}

// ========== 错误码系统 ==========
// 前端根据 Code 判断错误类型，而不是匹配 Message 字符串

type ErrorCode string

const (
	ErrVersionConflict ErrorCode = "VERSION_CONFLICT" // 版本冲突
	ErrOpInvalid       ErrorCode = "OP_INVALID"       // 操作格式错误或校验失败
	ErrNotFound        ErrorCode = "NOT_FOUND"        // 组件/条目不存在
	ErrTypeMismatch    ErrorCode = "TYPE_MISMATCH"    // 组件类型不符
	ErrRoomNotFound    ErrorCode = "ROOM_NOT_FOUND"   // 房间不存在
	ErrRoomClosed      ErrorCode = "ROOM_CLOSED"      // 房间被关闭（页面删除）
	ErrUnauthorized    ErrorCode = "UNAUTHORIZED"     // 未授权
	ErrInternalError   ErrorCode = "INTERNAL_ERROR"   // 服务器内部错误
)

// ErrorPayload 错误消息的 payload 结构
type ErrorPayload struct {
	Code    ErrorCode `json:"code"`    // 错误码（前端用于判断逻辑）
	Message string    `json:"message"` // 错误描述（用于调试/日志，可本地化）
}

// ========== 自定义错误类型 ==========
// 使用类型断言判断错误，而非字符串匹配

// VersionConflictError 版本冲突错误
type VersionConflictError struct {
	CurrentVersion  int64
	ExpectedVersion int64
}

func (e *VersionConflictError) Error() string {
	return "version conflict"
}

// OpError 操作本身不合法（缺字段、未知操作、被拒绝）
type OpError struct {
	Reason string
}

func (e *OpError) Error() string {
	return e.Reason
}

func newMessage(t MessageType, senderID string, payload any, ts int64) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(WSMessage{
		Type:      t,
		SenderID:  senderID,
		Payload:   raw,
		Timestamp: ts,
	})
}
