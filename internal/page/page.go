package page

import (
	"fmt"
	"slices"
	"time"

	domainErrors "pagebuilder-go-server/domain/errors"
)

// Page 一个页面的组件有序集合（页面文档）
//
// components 内部存储顺序不保证按 order 排序，读取渲染顺序请用 OrderedComponents。
// Page 不是并发安全的，持有者负责串行访问。
type Page struct {
	ID         string
	TemplateID string
	CreatedAt  Timestamp
	UpdatedAt  Timestamp

	components []*Component
	now        func() time.Time
}

// Option 页面构造选项
type Option func(*Page)

// WithClock 注入时钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(p *Page) {
		if now != nil {
			p.now = now
		}
	}
}

// New 创建空页面
func New(id, templateID string, opts ...Option) *Page {
	p := &Page{ID: id, TemplateID: templateID, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	ts := NewTimestamp(p.now())
	p.CreatedAt = ts
	p.UpdatedAt = ts
	return p
}

// Now 页面时钟
func (p *Page) Now() time.Time {
	return p.now()
}

// touch 推进 updatedAt，保证严格递增（毫秒精度下同一毫秒内多次修改也会 +1ms）
func (p *Page) touch() {
	next := p.now().UTC().Truncate(time.Millisecond)
	if !next.After(p.UpdatedAt.Time) {
		next = p.UpdatedAt.Add(time.Millisecond)
	}
	p.UpdatedAt = Timestamp{Time: next}
}

// Len 组件数量
func (p *Page) Len() int {
	return len(p.components)
}

// ========== CRUD ==========

// AddComponent 追加组件
// order 为 0 时分配 max(order)+1；id 重复时返回 false（不报错）
func (p *Page) AddComponent(c *Component) (bool, error) {
	if c == nil {
		return false, domainErrors.NewValidationError("component", "is nil")
	}
	if c.ID == "" {
		return false, domainErrors.NewValidationError("id", "required")
	}
	if !c.Type.Valid() {
		return false, &domainErrors.ValidationError{
			Fields: []domainErrors.FieldError{{Field: "type", Reason: fmt.Sprintf("unknown component type %q", c.Type)}},
			Err:    domainErrors.ErrUnknownComponentType,
		}
	}
	if c.Data == nil || c.Data.ComponentType() != c.Type {
		return false, domainErrors.NewValidationError("data", fmt.Sprintf("payload does not match type %s", c.Type))
	}
	if c.Order < 0 {
		return false, domainErrors.NewValidationError("order", "must not be negative")
	}
	if p.indexOf(c.ID) >= 0 {
		return false, nil
	}

	stored := c.Clone()
	if stored.Order == 0 {
		stored.Order = p.maxOrder() + 1
	}
	p.components = append(p.components, stored)
	p.touch()
	return true, nil
}

// UpdateComponent 把 updates 浅合并进组件的 data（不影响 id/type）
func (p *Page) UpdateComponent(id string, updates Updates) (*Component, error) {
	c, err := p.find(id)
	if err != nil {
		return nil, err
	}
	merged, err := mergeData(c.Data, updates)
	if err != nil {
		return nil, err
	}
	c.Data = merged
	p.touch()
	return c.Clone(), nil
}

// RemoveComponent 删除组件，不重排剩余 order；不存在返回 false
func (p *Page) RemoveComponent(id string) bool {
	i := p.indexOf(id)
	if i < 0 {
		return false
	}
	p.components = slices.Delete(p.components, i, i+1)
	p.touch()
	return true
}

// GetComponentByID 返回深拷贝，不存在返回 nil
func (p *Page) GetComponentByID(id string) *Component {
	i := p.indexOf(id)
	if i < 0 {
		return nil
	}
	return p.components[i].Clone()
}

// Has 是否包含该 id
func (p *Page) Has(id string) bool {
	return p.indexOf(id) >= 0
}

// Components 按存储顺序返回快照
func (p *Page) Components() []*Component {
	out := make([]*Component, 0, len(p.components))
	for _, c := range p.components {
		out = append(out, c.Clone())
	}
	return out
}

// OrderedComponents 规范渲染顺序：按 order 升序，相同 order 保持存储顺序
func (p *Page) OrderedComponents() []*Component {
	out := p.Components()
	slices.SortStableFunc(out, func(a, b *Component) int {
		return a.Order - b.Order
	})
	return out
}

// ComponentsByType 按类型过滤，保持渲染顺序
func (p *Page) ComponentsByType(t Type) []*Component {
	var out []*Component
	for _, c := range p.OrderedComponents() {
		if c.Type == t {
			out = append(out, c)
		}
	}
	return out
}

func (p *Page) TextComponents() []*Component      { return p.ComponentsByType(TypeText) }
func (p *Page) BannerComponents() []*Component    { return p.ComponentsByType(TypeBanner) }
func (p *Page) CardComponents() []*Component      { return p.ComponentsByType(TypeCard) }
func (p *Page) AccordionComponents() []*Component { return p.ComponentsByType(TypeAccordion) }
func (p *Page) LinkGroupComponents() []*Component { return p.ComponentsByType(TypeLinkGroup) }

// ReorderComponents 按 ids 的位置重新分配 order = 1..N
// ids 必须与当前组件 id 集合完全一致，否则返回 ValidationError 且不做任何修改
func (p *Page) ReorderComponents(ids []string) error {
	if err := p.checkIDSet(ids); err != nil {
		return err
	}
	for pos, id := range ids {
		p.components[p.indexOf(id)].Order = pos + 1
	}
	p.touch()
	return nil
}

func (p *Page) checkIDSet(ids []string) error {
	var fields []domainErrors.FieldError
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		switch {
		case seen[id]:
			fields = append(fields, domainErrors.FieldError{Field: "ids", Reason: fmt.Sprintf("duplicate id %q", id)})
		case !p.Has(id):
			fields = append(fields, domainErrors.FieldError{Field: "ids", Reason: fmt.Sprintf("unknown id %q", id)})
		}
		seen[id] = true
	}
	for _, c := range p.components {
		if !seen[c.ID] {
			fields = append(fields, domainErrors.FieldError{Field: "ids", Reason: fmt.Sprintf("missing id %q", c.ID)})
		}
	}
	if len(fields) > 0 {
		return &domainErrors.ValidationError{Fields: fields}
	}
	return nil
}

// ========== 内部工具 ==========

func (p *Page) indexOf(id string) int {
	return slices.IndexFunc(p.components, func(c *Component) bool { return c.ID == id })
}

func (p *Page) find(id string) (*Component, error) {
	i := p.indexOf(id)
	if i < 0 {
		return nil, &domainErrors.NotFoundError{Kind: "component", ID: id}
	}
	return p.components[i], nil
}

func (p *Page) maxOrder() int {
	max := 0
	for _, c := range p.components {
		if c.Order > max {
			max = c.Order
		}
	}
	return max
}
