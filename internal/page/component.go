package page

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	domainErrors "pagebuilder-go-server/domain/errors"
)

// Type 组件变体标签（封闭集合），序列化值与前端约定完全一致
type Type string

const (
	TypeText      Type = "TextComponent"
	TypeBanner    Type = "BannerComponent"
	TypeCard      Type = "CardComponent"
	TypeAccordion Type = "AccordionComponent"
	TypeLinkGroup Type = "LinkGroupComponent"
)

// Types 全部已知变体，顺序即工具栏顺序
var Types = []Type{TypeText, TypeBanner, TypeCard, TypeAccordion, TypeLinkGroup}

// Valid 是否为已知变体
func (t Type) Valid() bool {
	switch t {
	case TypeText, TypeBanner, TypeCard, TypeAccordion, TypeLinkGroup:
		return true
	}
	return false
}

// ParseType 解析变体标签，未知标签返回 ErrUnknownComponentType
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", domainErrors.ErrUnknownComponentType, s)
	}
	return t, nil
}

// ========== Timestamp ==========

// isoLayout 与浏览器 Date.prototype.toISOString 输出一致
const isoLayout = "2006-01-02T15:04:05.000Z07:00"

// Timestamp ISO-8601 时间
// 新建的时间按毫秒精度、UTC 输出；解码得到的时间在未被修改前按原文输出，
// 保留原有的小数位数和时区偏移
type Timestamp struct {
	time.Time

	raw    string    // 解码时的 JSON 原文
	parsed time.Time // raw 对应的时间
}

// NewTimestamp 截断到毫秒并转为 UTC
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC().Truncate(time.Millisecond)}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.raw != "" && t.Time.Equal(t.parsed) {
		return []byte(t.raw), nil
	}
	return []byte(`"` + t.UTC().Format(isoLayout) + `"`), nil
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*t = Timestamp{raw: string(b)}
		return nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	parsed = parsed.UTC()
	*t = Timestamp{Time: parsed, raw: string(b), parsed: parsed}
	return nil
}

// ========== Component ==========

// Component 页面上的一个内容块，对应线上信封格式 {id, type, order, data}
type Component struct {
	ID    string
	Type  Type
	Order int
	Data  Data
}

type envelope struct {
	ID    string          `json:"id"`
	Type  Type            `json:"type"`
	Order int             `json:"order"`
	Data  json.RawMessage `json:"data"`
}

func (c *Component) MarshalJSON() ([]byte, error) {
	if c.Data == nil {
		return nil, fmt.Errorf("component %q has no data", c.ID)
	}
	data, err := json.Marshal(c.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{ID: c.ID, Type: c.Type, Order: c.Order, Data: data})
}

// UnmarshalJSON 未知 type 直接失败（不做透传保留）
func (c *Component) UnmarshalJSON(b []byte) error {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	data, err := decodeData(env.Type, env.Data)
	if err != nil {
		return err
	}
	c.ID = env.ID
	c.Type = env.Type
	c.Order = env.Order
	c.Data = data
	return nil
}

// Clone 深拷贝，不共享任何子对象
func (c *Component) Clone() *Component {
	if c == nil {
		return nil
	}
	out := &Component{ID: c.ID, Type: c.Type, Order: c.Order}
	if c.Data != nil {
		out.Data = c.Data.clone()
	}
	return out
}

// decodeData 按 type 严格解码 data，多余字段视为形状混用
func decodeData(t Type, raw json.RawMessage) (Data, error) {
	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage(`{}`)
	}

	var target Data
	switch t {
	case TypeText:
		target = &TextData{}
	case TypeBanner:
		target = &BannerData{}
	case TypeCard:
		target = &CardData{}
	case TypeAccordion:
		target = &AccordionData{}
	case TypeLinkGroup:
		target = &LinkGroupData{}
	default:
		return nil, &domainErrors.ValidationError{
			Fields: []domainErrors.FieldError{{Field: "type", Reason: fmt.Sprintf("unknown component type %q", t)}},
			Err:    domainErrors.ErrUnknownComponentType,
		}
	}

	if err := decodeStrict(raw, target); err != nil {
		return nil, &domainErrors.ValidationError{
			Fields: []domainErrors.FieldError{{Field: "data", Reason: err.Error()}},
			Err:    err,
		}
	}
	return target, nil
}

func decodeStrict(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
