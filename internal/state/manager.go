package state

import (
	"fmt"
	"slices"

	domainErrors "pagebuilder-go-server/domain/errors"
	"pagebuilder-go-server/internal/page"

	"github.com/rs/zerolog"
)

// Listener 事件回调；返回的错误和 panic 都只记录日志，不影响其他监听者和调用方
type Listener func(Event) error

type subscription struct {
	id int
	fn Listener
}

// Manager 包装一个页面文档，提供选中状态和变更通知
//
// 所有方法同步执行，监听者在修改方法返回之前按注册顺序全部调用完毕。
// Manager 不是并发安全的：同一时间只能有一个调用方（UI 事件循环或协同房间的锁）。
type Manager struct {
	page       *page.Page
	selectedID string
	updating   bool
	dirty      bool

	listeners map[EventName][]subscription
	wildcard  []subscription
	nextID    int

	log zerolog.Logger
}

// Option Manager 构造选项
type Option func(*Manager)

func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) {
		m.log = l
	}
}

// NewManager p 为 nil 时创建空页面
func NewManager(p *page.Page, opts ...Option) *Manager {
	if p == nil {
		p = page.New("", "")
	}
	m := &Manager{
		page:      p,
		listeners: make(map[EventName][]subscription),
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ========== 订阅 ==========

// Subscribe 注册监听，返回取消函数
func (m *Manager) Subscribe(name EventName, fn Listener) func() {
	m.nextID++
	id := m.nextID
	m.listeners[name] = append(m.listeners[name], subscription{id: id, fn: fn})
	return func() {
		m.listeners[name] = slices.DeleteFunc(m.listeners[name], func(s subscription) bool { return s.id == id })
	}
}

// SubscribeAll 监听所有事件（协同房间广播使用），在具名监听者之后调用
func (m *Manager) SubscribeAll(fn Listener) func() {
	m.nextID++
	id := m.nextID
	m.wildcard = append(m.wildcard, subscription{id: id, fn: fn})
	return func() {
		m.wildcard = slices.DeleteFunc(m.wildcard, func(s subscription) bool { return s.id == id })
	}
}

// On 类型安全的订阅：On(m, func(e TextComponentUpdated) error {...})
func On[T Event](m *Manager, fn func(T) error) func() {
	var zero T
	return m.Subscribe(zero.EventName(), func(e Event) error {
		typed, ok := e.(T)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", e, zero.EventName())
		}
		return fn(typed)
	})
}

func (m *Manager) emit(ev Event) {
	// 拷贝一份，监听者在回调里取消订阅不影响本轮
	subs := slices.Clone(m.listeners[ev.EventName()])
	subs = append(subs, m.wildcard...)
	for _, s := range subs {
		m.invoke(s, ev)
	}
}

func (m *Manager) invoke(s subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().
				Str("event", string(ev.EventName())).
				Interface("panic", r).
				Msg("[State] 监听器 panic，已忽略")
		}
	}()
	if err := s.fn(ev); err != nil {
		m.log.Warn().
			Err(err).
			Str("event", string(ev.EventName())).
			Msg("[State] 监听器返回错误，已忽略")
	}
}

// ========== 重入保护 ==========

// begin 已有修改在进行中时返回 false
func (m *Manager) begin(op string) bool {
	if m.updating {
		m.log.Debug().Str("op", op).Msg("[State] 修改进行中，拒绝重入调用")
		return false
	}
	m.updating = true
	return true
}

func (m *Manager) end() {
	m.updating = false
}

// Busy 当前是否处于一次修改中（监听回调内为 true）
func (m *Manager) Busy() bool {
	return m.updating
}

// ========== 读取 ==========

func (m *Manager) PageID() string {
	return m.page.ID
}

func (m *Manager) UpdatedAt() page.Timestamp {
	return m.page.UpdatedAt
}

func (m *Manager) GetComponentByID(id string) *page.Component {
	return m.page.GetComponentByID(id)
}

func (m *Manager) OrderedComponents() []*page.Component {
	return m.page.OrderedComponents()
}

func (m *Manager) ComponentsByType(t page.Type) []*page.Component {
	return m.page.ComponentsByType(t)
}

// Snapshot 页面深拷贝
func (m *Manager) Snapshot() *page.Page {
	return m.page.Clone()
}

func (m *Manager) ToJSON() ([]byte, error) {
	return m.page.ToJSON()
}

// HasUnsavedChanges 上次保存/加载之后是否有修改
func (m *Manager) HasUnsavedChanges() bool {
	return m.dirty
}

// MarkSaved 保存成功后清除未保存标记
func (m *Manager) MarkSaved() {
	m.dirty = false
}

// ========== 选择状态 ==========

func (m *Manager) SelectedComponentID() string {
	return m.selectedID
}

func (m *Manager) SelectedComponent() *page.Component {
	if m.selectedID == "" {
		return nil
	}
	return m.page.GetComponentByID(m.selectedID)
}

// SetSelectedComponent 已选中同一组件时不触发事件
func (m *Manager) SetSelectedComponent(id string) error {
	if !m.page.Has(id) {
		return &domainErrors.NotFoundError{Kind: "component", ID: id}
	}
	if m.selectedID == id {
		return nil
	}
	prev := m.selectedID
	m.selectedID = id
	m.emit(ComponentSelected{PreviousID: prev, NewID: id})
	return nil
}

// ClearSelectedComponent 未选中时不触发事件
func (m *Manager) ClearSelectedComponent() {
	if m.selectedID == "" {
		return
	}
	prev := m.selectedID
	m.selectedID = ""
	m.emit(ComponentDeselected{PreviousID: prev})
}

// ========== 带通知的修改 ==========
// 返回 (false, nil) 表示因重入被拒绝（或文档层面的静默失败，如重复 id）；
// 数据模型错误原样返回给调用方。

func (m *Manager) AddComponentWithNotification(c *page.Component) (bool, error) {
	if !m.begin("add") {
		return false, nil
	}
	defer m.end()

	ok, err := m.page.AddComponent(c)
	if err != nil || !ok {
		return false, err
	}
	m.dirty = true
	m.emit(ComponentAdded{ComponentID: c.ID, Component: m.page.GetComponentByID(c.ID)})
	return true, nil
}

func (m *Manager) UpdateComponentWithNotification(id string, updates page.Updates) (bool, error) {
	return m.mutate("update", id, func() error {
		_, err := m.page.UpdateComponent(id, updates)
		return err
	}, componentUpdated(id))
}

func (m *Manager) RemoveComponentWithNotification(id string) (bool, error) {
	if !m.begin("remove") {
		return false, nil
	}
	defer m.end()

	old := m.page.GetComponentByID(id)
	if old == nil || !m.page.RemoveComponent(id) {
		return false, nil
	}
	m.dirty = true

	// 先清空选中，两个事件的监听者都看不到已删除的 id
	deselected := m.selectedID == id
	if deselected {
		m.selectedID = ""
	}
	m.emit(ComponentRemoved{ComponentID: id, Component: old})
	if deselected {
		m.emit(ComponentDeselected{PreviousID: id})
	}
	return true, nil
}

func (m *Manager) ReorderComponentsWithNotification(ids []string) (bool, error) {
	if !m.begin("reorder") {
		return false, nil
	}
	defer m.end()

	prev := orderedIDs(m.page)
	if err := m.page.ReorderComponents(ids); err != nil {
		return false, err
	}
	m.dirty = true
	m.emit(ComponentsReordered{PreviousOrder: prev, NewOrder: orderedIDs(m.page)})
	return true, nil
}

// ---------- Text ----------

func (m *Manager) UpdateTextComponentContentWithNotification(id, content string) (bool, error) {
	return m.mutate("text", id, func() error {
		_, err := m.page.UpdateTextComponentContent(id, content)
		return err
	}, func(old, cur *page.Component) Event {
		return TextComponentUpdated{
			ComponentID:  id,
			OldComponent: *old.Data.(*page.TextData),
			NewComponent: *cur.Data.(*page.TextData),
		}
	})
}

// ---------- Accordion ----------

func (m *Manager) AddAccordionItemWithNotification(id string, item page.AccordionItem) (bool, error) {
	var added page.AccordionItem
	return m.mutate("accordion-add", id, func() error {
		var err error
		added, err = m.page.AddAccordionItem(id, item)
		return err
	}, func(_, cur *page.Component) Event {
		items := cur.Data.(*page.AccordionData).Items
		return AccordionItemAdded{ComponentID: id, Item: added, Index: len(items) - 1}
	})
}

func (m *Manager) RemoveAccordionItemWithNotification(id, itemID string) (bool, error) {
	var (
		removed page.AccordionItem
		index   int
	)
	return m.mutate("accordion-remove", id, func() error {
		var err error
		removed, index, err = m.page.RemoveAccordionItem(id, itemID)
		return err
	}, func(_, _ *page.Component) Event {
		return AccordionItemRemoved{ComponentID: id, Item: removed, Index: index}
	})
}

func (m *Manager) UpdateAccordionItemWithNotification(id, itemID string, upd page.AccordionItemUpdate) (bool, error) {
	return m.mutate("accordion-update", id, func() error {
		_, err := m.page.UpdateAccordionItem(id, itemID, upd)
		return err
	}, componentUpdated(id))
}

func (m *Manager) ToggleAccordionItemWithNotification(id, itemID string) (bool, error) {
	return m.mutate("accordion-toggle", id, func() error {
		_, err := m.page.ToggleAccordionItem(id, itemID)
		return err
	}, componentUpdated(id))
}

// ---------- Card ----------

func (m *Manager) UpdateCardTitleWithNotification(id, title string) (bool, error) {
	return m.mutate("card-title", id, func() error {
		_, err := m.page.UpdateCardComponentTitle(id, title)
		return err
	}, func(old, cur *page.Component) Event {
		return CardTitleUpdated{
			ComponentID: id,
			OldTitle:    old.Data.(*page.CardData).Title,
			NewTitle:    cur.Data.(*page.CardData).Title,
		}
	})
}

func (m *Manager) UpdateCardImageWithNotification(id, imageURL, altText string) (bool, error) {
	return m.mutate("card-image", id, func() error {
		_, err := m.page.UpdateCardComponentImage(id, imageURL, altText)
		return err
	}, componentUpdated(id))
}

// ---------- Banner ----------

func (m *Manager) UpdateBannerHeadlineWithNotification(id, headline string) (bool, error) {
	return m.mutate("banner-headline", id, func() error {
		_, err := m.page.UpdateBannerComponentHeadline(id, headline)
		return err
	}, func(old, cur *page.Component) Event {
		return BannerHeadlineUpdated{
			ComponentID: id,
			OldHeadline: old.Data.(*page.BannerData).HeadlineText,
			NewHeadline: cur.Data.(*page.BannerData).HeadlineText,
		}
	})
}

func (m *Manager) SetBannerBackgroundImageWithNotification(id, imageURL, altText string) (bool, error) {
	return m.mutate("banner-image", id, func() error {
		_, err := m.page.SetBannerBackgroundImage(id, imageURL, altText)
		return err
	}, componentUpdated(id))
}

func (m *Manager) RemoveBannerBackgroundImageWithNotification(id string) (bool, error) {
	return m.mutate("banner-image-remove", id, func() error {
		_, err := m.page.RemoveBannerBackgroundImage(id)
		return err
	}, func(old, _ *page.Component) Event {
		d := old.Data.(*page.BannerData)
		return BannerBackgroundImageRemoved{
			ComponentID:     id,
			PreviousURL:     d.BackgroundImageURL,
			PreviousAltText: d.BackgroundImageAltText,
		}
	})
}

func (m *Manager) UpdateBannerCallToActionWithNotification(id string, cta page.CallToAction) (bool, error) {
	return m.mutate("banner-cta", id, func() error {
		_, err := m.page.UpdateBannerComponentCallToAction(id, cta)
		return err
	}, componentUpdated(id))
}

// ---------- LinkGroup ----------

func (m *Manager) AddLinkToGroupWithNotification(id string, link page.Link) (bool, error) {
	return m.mutate("link-add", id, func() error {
		_, err := m.page.AddLinkToGroup(id, link)
		return err
	}, componentUpdated(id))
}

func (m *Manager) UpdateLinkInGroupWithNotification(id, linkID string, upd page.LinkUpdate) (bool, error) {
	return m.mutate("link-update", id, func() error {
		_, err := m.page.UpdateLinkInGroup(id, linkID, upd)
		return err
	}, componentUpdated(id))
}

func (m *Manager) RemoveLinkFromGroupWithNotification(id, linkID string) (bool, error) {
	return m.mutate("link-remove", id, func() error {
		_, err := m.page.RemoveLinkFromGroup(id, linkID)
		return err
	}, componentUpdated(id))
}

// mutate 单组件修改的通用流程：拿旧快照 -> 执行 -> 标记未保存 -> 发事件
func (m *Manager) mutate(op, id string, apply func() error, event func(old, cur *page.Component) Event) (bool, error) {
	if !m.begin(op) {
		return false, nil
	}
	defer m.end()

	old := m.page.GetComponentByID(id)
	if err := apply(); err != nil {
		return false, err
	}
	m.dirty = true
	m.emit(event(old, m.page.GetComponentByID(id)))
	return true, nil
}

func componentUpdated(id string) func(old, cur *page.Component) Event {
	return func(old, cur *page.Component) Event {
		return ComponentUpdated{ComponentID: id, OldComponent: old, NewComponent: cur}
	}
}

// ========== 整页操作 ==========

// Reset 替换整个页面文档，静默清空选中，发出 pageReset
func (m *Manager) Reset(p *page.Page) (bool, error) {
	if p == nil {
		return false, domainErrors.NewValidationError("page", "is nil")
	}
	if !m.begin("reset") {
		return false, nil
	}
	defer m.end()

	raw, err := p.ToJSON()
	if err != nil {
		return false, err
	}
	m.page = p
	m.selectedID = ""
	m.dirty = false
	m.emit(PageReset{Page: raw})
	return true, nil
}

// ResetFromJSON 用后端 payload 替换文档
func (m *Manager) ResetFromJSON(b []byte) (bool, error) {
	p, err := page.FromJSON(b)
	if err != nil {
		return false, err
	}
	return m.Reset(p)
}

// Clone 完全独立的副本（页面经序列化往返），不复制监听者
func (m *Manager) Clone() *Manager {
	out := NewManager(m.page.Clone(), WithLogger(m.log))
	out.selectedID = m.selectedID
	out.dirty = m.dirty
	return out
}

func orderedIDs(p *page.Page) []string {
	comps := p.OrderedComponents()
	ids := make([]string, 0, len(comps))
	for _, c := range comps {
		ids = append(ids, c.ID)
	}
	return ids
}
