package page

import (
	domainErrors "pagebuilder-go-server/domain/errors"
)

// ========== 变体专用修改方法 ==========
// 都先校验目标组件类型，类型不符返回 TypeMismatchError。
// 修改在载荷副本上进行，成功后整体替换，失败时文档保持不变。

// mutate 泛型辅助：T 是具体载荷指针类型（*TextData 等）
func mutate[T Data](p *Page, id string, expected Type, fn func(d T) error) (*Component, error) {
	c, err := p.find(id)
	if err != nil {
		return nil, err
	}
	next, ok := c.Data.clone().(T)
	if !ok || c.Type != expected {
		return nil, &domainErrors.TypeMismatchError{ID: id, Expected: string(expected), Actual: string(c.Type)}
	}
	if err := fn(next); err != nil {
		return nil, err
	}
	c.Data = next
	p.touch()
	return c.Clone(), nil
}

// ---------- Text ----------

// UpdateTextComponentContent 替换正文，metadata.version +1
func (p *Page) UpdateTextComponentContent(id, content string) (*Component, error) {
	return mutate(p, id, TypeText, func(d *TextData) error {
		p.bumpText(&d.Content, content)
		return nil
	})
}

func (p *Page) UpdateTextComponentFormat(id string, format TextFormat) (*Component, error) {
	if format != FormatHTML && format != FormatPlain {
		return nil, domainErrors.NewValidationError("content.format", "must be one of html plain")
	}
	return mutate(p, id, TypeText, func(d *TextData) error {
		d.Content.Format = format
		p.bumpText(&d.Content, d.Content.Data)
		return nil
	})
}

func (p *Page) bumpText(tc *TextContent, data string) {
	now := NewTimestamp(p.now())
	tc.Data = data
	tc.Metadata.Version++
	if tc.Metadata.Created.IsZero() {
		tc.Metadata.Created = now
	}
	tc.Metadata.LastModified = now
}

// ---------- Accordion ----------

// AddAccordionItem 追加条目，id 为空时自动生成，返回最终写入的条目
func (p *Page) AddAccordionItem(id string, item AccordionItem) (AccordionItem, error) {
	if item.ID == "" {
		item.ID = NewID()
	}
	if item.Content.Format == "" {
		item.Content = NewTextContent(FormatHTML, orDefault(item.Content.Data, DefaultTextPlaceholder), p.now())
	}
	_, err := mutate(p, id, TypeAccordion, func(d *AccordionData) error {
		if d.indexOf(item.ID) >= 0 {
			return domainErrors.NewValidationError("items.id", "duplicate item id "+item.ID)
		}
		d.Items = append(d.Items, item)
		return nil
	})
	if err != nil {
		return AccordionItem{}, err
	}
	return item, nil
}

// AccordionItemUpdate nil 字段表示不修改
type AccordionItemUpdate struct {
	Title   *string
	Content *string
	IsOpen  *bool
}

func (p *Page) UpdateAccordionItem(id, itemID string, upd AccordionItemUpdate) (AccordionItem, error) {
	var out AccordionItem
	_, err := mutate(p, id, TypeAccordion, func(d *AccordionData) error {
		i := d.indexOf(itemID)
		if i < 0 {
			return &domainErrors.NotFoundError{Kind: "accordion item", ID: itemID}
		}
		it := &d.Items[i]
		if upd.Title != nil {
			it.Title = *upd.Title
		}
		if upd.Content != nil {
			p.bumpText(&it.Content, *upd.Content)
		}
		if upd.IsOpen != nil {
			it.IsOpen = *upd.IsOpen
		}
		out = *it
		return nil
	})
	return out, err
}

// RemoveAccordionItem 返回被删除的条目及其原位置
func (p *Page) RemoveAccordionItem(id, itemID string) (AccordionItem, int, error) {
	var (
		removed AccordionItem
		index   int
	)
	_, err := mutate(p, id, TypeAccordion, func(d *AccordionData) error {
		index = d.indexOf(itemID)
		if index < 0 {
			return &domainErrors.NotFoundError{Kind: "accordion item", ID: itemID}
		}
		removed = d.Items[index]
		d.Items = append(d.Items[:index], d.Items[index+1:]...)
		return nil
	})
	if err != nil {
		return AccordionItem{}, -1, err
	}
	return removed, index, nil
}

// ToggleAccordionItem 切换展开状态，返回新状态
func (p *Page) ToggleAccordionItem(id, itemID string) (bool, error) {
	var open bool
	_, err := mutate(p, id, TypeAccordion, func(d *AccordionData) error {
		i := d.indexOf(itemID)
		if i < 0 {
			return &domainErrors.NotFoundError{Kind: "accordion item", ID: itemID}
		}
		d.Items[i].IsOpen = !d.Items[i].IsOpen
		open = d.Items[i].IsOpen
		return nil
	})
	return open, err
}

// ---------- Card ----------

func (p *Page) UpdateCardComponentTitle(id, title string) (*Component, error) {
	return mutate(p, id, TypeCard, func(d *CardData) error {
		d.Title = title
		return nil
	})
}

func (p *Page) UpdateCardComponentImage(id, imageURL, altText string) (*Component, error) {
	if imageURL != "" && !IsWebURL(imageURL) {
		return nil, domainErrors.NewValidationError("imageUrl", "must be an absolute URL with scheme and host")
	}
	return mutate(p, id, TypeCard, func(d *CardData) error {
		d.ImageURL = imageURL
		d.AltText = altText
		return nil
	})
}

// ---------- Banner ----------

func (p *Page) UpdateBannerComponentHeadline(id, headline string) (*Component, error) {
	return mutate(p, id, TypeBanner, func(d *BannerData) error {
		d.HeadlineText = headline
		return nil
	})
}

func (p *Page) UpdateBannerComponentCallToAction(id string, cta CallToAction) (*Component, error) {
	if cta.LinkURL != "" && !IsWebURL(cta.LinkURL) {
		return nil, domainErrors.NewValidationError("callToAction.linkUrl", "must be an absolute URL with scheme and host")
	}
	return mutate(p, id, TypeBanner, func(d *BannerData) error {
		d.CallToAction = cta
		return nil
	})
}

func (p *Page) SetBannerBackgroundImage(id, imageURL, altText string) (*Component, error) {
	if !IsWebURL(imageURL) {
		return nil, domainErrors.NewValidationError("backgroundImageUrl", "must be an absolute URL with scheme and host")
	}
	return mutate(p, id, TypeBanner, func(d *BannerData) error {
		d.BackgroundImageURL = imageURL
		d.BackgroundImageAltText = altText
		return nil
	})
}

// RemoveBannerBackgroundImage 清空背景图和替代文本
func (p *Page) RemoveBannerBackgroundImage(id string) (*Component, error) {
	return mutate(p, id, TypeBanner, func(d *BannerData) error {
		d.BackgroundImageURL = ""
		d.BackgroundImageAltText = ""
		return nil
	})
}

// ---------- LinkGroup ----------

// AddLinkToGroup 追加链接，id 为空时自动生成
func (p *Page) AddLinkToGroup(id string, link Link) (Link, error) {
	if link.ID == "" {
		link.ID = NewID()
	}
	if err := ValidateLink(link); err != nil {
		return Link{}, err
	}
	_, err := mutate(p, id, TypeLinkGroup, func(d *LinkGroupData) error {
		if d.indexOf(link.ID) >= 0 {
			return domainErrors.NewValidationError("links.id", "duplicate link id "+link.ID)
		}
		d.Links = append(d.Links, link)
		return nil
	})
	if err != nil {
		return Link{}, err
	}
	return link, nil
}

// LinkUpdate nil 字段表示不修改
type LinkUpdate struct {
	LinkText   *string
	LinkURL    *string
	LinkTarget *string
}

func (p *Page) UpdateLinkInGroup(id, linkID string, upd LinkUpdate) (Link, error) {
	var out Link
	_, err := mutate(p, id, TypeLinkGroup, func(d *LinkGroupData) error {
		i := d.indexOf(linkID)
		if i < 0 {
			return &domainErrors.NotFoundError{Kind: "link", ID: linkID}
		}
		l := d.Links[i]
		if upd.LinkText != nil {
			l.LinkText = *upd.LinkText
		}
		if upd.LinkURL != nil {
			l.LinkURL = *upd.LinkURL
		}
		if upd.LinkTarget != nil {
			l.LinkTarget = *upd.LinkTarget
		}
		if err := ValidateLink(l); err != nil {
			return err
		}
		d.Links[i] = l
		out = l
		return nil
	})
	return out, err
}

// RemoveLinkFromGroup 返回被删除的链接
func (p *Page) RemoveLinkFromGroup(id, linkID string) (Link, error) {
	var removed Link
	_, err := mutate(p, id, TypeLinkGroup, func(d *LinkGroupData) error {
		i := d.indexOf(linkID)
		if i < 0 {
			return &domainErrors.NotFoundError{Kind: "link", ID: linkID}
		}
		removed = d.Links[i]
		d.Links = append(d.Links[:i], d.Links[i+1:]...)
		return nil
	})
	return removed, err
}
