package page

import "slices"

// Data 变体载荷的和类型，只有本包内的五种结构体实现
//
//sumtype:decl
type Data interface {
	ComponentType() Type
	clone() Data
}

// TextFormat 文本内容格式
type TextFormat string

const (
	FormatHTML  TextFormat = "html"
	FormatPlain TextFormat = "plain"
)

// Metadata 文本内容的版本信息
type Metadata struct {
	Version      int       `json:"version"`
	Created      Timestamp `json:"created"`
	LastModified Timestamp `json:"lastModified"`
}

// TextContent Text 组件的内容，也被 Card 描述、Accordion 条目复用
type TextContent struct {
	Format   TextFormat `json:"format" validate:"oneof=html plain"`
	Data     string     `json:"data" validate:"required"`
	Metadata Metadata   `json:"metadata"`
}

// ---------- Text ----------

type TextData struct {
	Content TextContent `json:"content"`
}

func (*TextData) ComponentType() Type { return TypeText }

func (d *TextData) clone() Data {
	c := *d
	return &c
}

// ---------- Banner ----------

type CallToAction struct {
	ButtonText string `json:"buttonText" validate:"required_with=LinkURL"`
	LinkURL    string `json:"linkUrl" validate:"omitempty,weburl"`
	LinkTarget string `json:"linkTarget" validate:"omitempty,linktarget"`
}

type BannerData struct {
	HeadlineText           string       `json:"headlineText" validate:"required"`
	SubheadlineText        string       `json:"subheadlineText"`
	BackgroundImageURL     string       `json:"backgroundImageUrl" validate:"omitempty,weburl"`
	BackgroundImageAltText string       `json:"backgroundImageAltText" validate:"required_with=BackgroundImageURL"`
	CallToAction           CallToAction `json:"callToAction"`
}

func (*BannerData) ComponentType() Type { return TypeBanner }

func (d *BannerData) clone() Data {
	c := *d
	return &c
}

// ---------- Card ----------

type CardData struct {
	Title       string      `json:"title" validate:"required"`
	Description TextContent `json:"description"`
	ImageURL    string      `json:"imageUrl" validate:"omitempty,weburl"`
	AltText     string      `json:"altText" validate:"required_with=ImageURL"`
	LinkURL     string      `json:"linkUrl" validate:"omitempty,weburl"`
	LinkText    string      `json:"linkText" validate:"required_with=LinkURL"`
	LinkTarget  string      `json:"linkTarget" validate:"omitempty,linktarget"`
}

func (*CardData) ComponentType() Type { return TypeCard }

func (d *CardData) clone() Data {
	c := *d
	return &c
}

// ---------- Accordion ----------

type AccordionItem struct {
	ID      string      `json:"id" validate:"required"`
	Title   string      `json:"title" validate:"required"`
	Content TextContent `json:"content"`
	IsOpen  bool        `json:"isOpen"`
}

// UnmarshalJSON 兼容旧数据里的 header 字段
func (it *AccordionItem) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID      string      `json:"id"`
		Title   string      `json:"title"`
		Header  string      `json:"header"`
		Content TextContent `json:"content"`
		IsOpen  bool        `json:"isOpen"`
	}
	if err := decodeStrict(b, &raw); err != nil {
		return err
	}
	it.ID = raw.ID
	it.Title = raw.Title
	if it.Title == "" {
		it.Title = raw.Header
	}
	it.Content = raw.Content
	it.IsOpen = raw.IsOpen
	return nil
}

type AccordionData struct {
	Title string          `json:"title" validate:"required"`
	Items []AccordionItem `json:"items" validate:"min=1,dive"`
}

func (*AccordionData) ComponentType() Type { return TypeAccordion }

func (d *AccordionData) clone() Data {
	c := *d
	c.Items = slices.Clone(d.Items) // nil 保持 nil
	return &c
}

func (d *AccordionData) indexOf(itemID string) int {
	return slices.IndexFunc(d.Items, func(it AccordionItem) bool { return it.ID == itemID })
}

// ---------- LinkGroup ----------

type Link struct {
	ID         string `json:"id" validate:"required"`
	LinkText   string `json:"linkText" validate:"required"`
	LinkURL    string `json:"linkUrl" validate:"required,weburl"`
	LinkTarget string `json:"linkTarget" validate:"omitempty,linktarget"`
}

type LinkGroupData struct {
	Title string `json:"title" validate:"required"`
	Links []Link `json:"links" validate:"min=1,dive"`
}

func (*LinkGroupData) ComponentType() Type { return TypeLinkGroup }

func (d *LinkGroupData) clone() Data {
	c := *d
	c.Links = slices.Clone(d.Links)
	return &c
}

func (d *LinkGroupData) indexOf(linkID string) int {
	return slices.IndexFunc(d.Links, func(l Link) bool { return l.ID == linkID })
}
