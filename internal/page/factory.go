package page

import (
	"fmt"
	"time"

	domainErrors "pagebuilder-go-server/domain/errors"

	"github.com/google/uuid"
)

// 默认占位内容
const (
	DefaultTextPlaceholder = "<p>Enter your text here</p>"
	DefaultBannerHeadline  = "Banner headline"
	DefaultCardTitle       = "Card title"
	DefaultAccordionTitle  = "Accordion"
	DefaultLinkGroupTitle  = "Links"
	DefaultLinkURL         = "https://example.com"
	DefaultLinkTarget      = "_self"

	// DefaultAccordionItems 新建 Accordion 时的条目数
	DefaultAccordionItems = 2
)

// NewID 生成组件/条目/链接 id
func NewID() string {
	return uuid.NewString()
}

// NewTextContent 构造带元数据的文本内容
func NewTextContent(format TextFormat, data string, now time.Time) TextContent {
	ts := NewTimestamp(now)
	return TextContent{
		Format: format,
		Data:   data,
		Metadata: Metadata{
			Version:      1,
			Created:      ts,
			LastModified: ts,
		},
	}
}

// NewDefault 按类型生成一个字段完整的默认组件，order 为 0（未分配）
// seed 可选：Text 为正文，其余类型为标题
func NewDefault(t Type, seed ...string) (*Component, error) {
	data, err := defaultData(t, firstOr(seed, ""), time.Now())
	if err != nil {
		return nil, err
	}
	return &Component{ID: NewID(), Type: t, Data: data}, nil
}

// MustNewDefault 用于已知类型的场景（模板、测试）
func MustNewDefault(t Type, seed ...string) *Component {
	c, err := NewDefault(t, seed...)
	if err != nil {
		panic(err)
	}
	return c
}

func defaultData(t Type, seed string, now time.Time) (Data, error) {
	switch t {
	case TypeText:
		return &TextData{
			Content: NewTextContent(FormatHTML, orDefault(seed, DefaultTextPlaceholder), now),
		}, nil
	case TypeBanner:
		return &BannerData{
			HeadlineText: orDefault(seed, DefaultBannerHeadline),
			CallToAction: CallToAction{LinkTarget: DefaultLinkTarget},
		}, nil
	case TypeCard:
		return &CardData{
			Title:       orDefault(seed, DefaultCardTitle),
			Description: NewTextContent(FormatHTML, DefaultTextPlaceholder, now),
			LinkTarget:  DefaultLinkTarget,
		}, nil
	case TypeAccordion:
		items := make([]AccordionItem, 0, DefaultAccordionItems)
		for i := 0; i < DefaultAccordionItems; i++ {
			items = append(items, NewAccordionItem(fmt.Sprintf("Item %d", i+1), "", now))
		}
		return &AccordionData{Title: orDefault(seed, DefaultAccordionTitle), Items: items}, nil
	case TypeLinkGroup:
		return &LinkGroupData{
			Title: orDefault(seed, DefaultLinkGroupTitle),
			Links: []Link{NewLink("Link", DefaultLinkURL, DefaultLinkTarget)},
		}, nil
	default:
		return nil, &domainErrors.ValidationError{
			Fields: []domainErrors.FieldError{{Field: "type", Reason: fmt.Sprintf("unknown component type %q", t)}},
			Err:    domainErrors.ErrUnknownComponentType,
		}
	}
}

// NewAccordionItem 新条目默认折叠
func NewAccordionItem(title, content string, now time.Time) AccordionItem {
	return AccordionItem{
		ID:      NewID(),
		Title:   title,
		Content: NewTextContent(FormatHTML, orDefault(content, DefaultTextPlaceholder), now),
	}
}

func NewLink(text, url, target string) Link {
	return Link{ID: NewID(), LinkText: text, LinkURL: url, LinkTarget: target}
}

func firstOr(values []string, fallback string) string {
	if len(values) > 0 {
		return values[0]
	}
	return fallback
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
