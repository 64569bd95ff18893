package client

import (
	"context"
	"errors"
	"fmt"

	domainErrors "pagebuilder-go-server/domain/errors"
	"pagebuilder-go-server/internal/state"

	"github.com/rs/zerolog"
)

// ErrManagerBusy 在监听回调里发起加载，Manager 拒绝整页替换
var ErrManagerBusy = errors.New("state manager is busy with another mutation")

// Session 一个编辑会话：Manager 持有文档，Client 负责加载和保存
//
// 与 Manager 一样不是并发安全的；重复发起的加载/保存由调用方自己避免。
type Session struct {
	pageID     string
	manager    *state.Manager
	client     *Client
	version    int64
	optimistic bool
	log        zerolog.Logger
}

type SessionOption func(*Session)

// WithOptimisticLock 保存时带上 If-Match，默认关闭（last-write-wins）
func WithOptimisticLock(enabled bool) SessionOption {
	return func(s *Session) {
		s.optimistic = enabled
	}
}

func WithSessionLogger(l zerolog.Logger) SessionOption {
	return func(s *Session) {
		s.log = l
	}
}

func NewSession(pageID string, m *state.Manager, c *Client, opts ...SessionOption) *Session {
	s := &Session{
		pageID:  pageID,
		manager: m,
		client:  c,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) Manager() *state.Manager {
	return s.manager
}

// Version 最近一次加载/保存得到的服务端版本号
func (s *Session) Version() int64 {
	return s.version
}

// Load 拉取服务端页面并整体替换本地文档（发出 pageReset）
// 失败时本地文档保持不变
func (s *Session) Load(ctx context.Context) error {
	res, err := s.client.LoadPage(ctx, s.pageID)
	if err != nil {
		s.log.Warn().Err(err).Str("page", s.pageID).Msg("[Session] 加载页面失败")
		return err
	}

	ok, err := s.manager.Reset(res.Page)
	if err != nil {
		return err
	}
	if !ok {
		return ErrManagerBusy
	}
	s.version = res.Version
	s.log.Debug().Str("page", s.pageID).Int64("version", s.version).Msg("[Session] 页面已加载")
	return nil
}

// Save 保存当前文档；只有成功时才清除未保存标记，失败时本地修改原样保留
// 文档还没有 id（未加载过）时使用会话的 pageID；id 与会话不一致时直接报错
func (s *Session) Save(ctx context.Context) error {
	snapshot := s.manager.Snapshot()
	switch snapshot.ID {
	case "":
		snapshot.ID = s.pageID
	case s.pageID:
	default:
		return domainErrors.NewValidationError("id", fmt.Sprintf("%q does not match session page %q", snapshot.ID, s.pageID))
	}

	var opts []SaveOption
	if s.optimistic {
		opts = append(opts, IfMatch(s.version))
	}

	version, err := s.client.SavePage(ctx, snapshot, opts...)
	if err != nil {
		s.log.Warn().Err(err).Str("page", s.pageID).Msg("[Session] 保存页面失败，本地修改已保留")
		return err
	}

	s.manager.MarkSaved()
	if version > 0 {
		s.version = version
	}
	return nil
}
