package state

import (
	"encoding/json"

	"pagebuilder-go-server/internal/page"
)

// EventName 事件名与前端组件约定，不能改
type EventName string

const (
	EventComponentSelected            EventName = "componentSelected"
	EventComponentDeselected          EventName = "componentDeselected"
	EventComponentAdded               EventName = "componentAdded"
	EventComponentUpdated             EventName = "componentUpdated"
	EventComponentRemoved             EventName = "componentRemoved"
	EventComponentsReordered          EventName = "componentsReordered"
	EventTextComponentUpdated         EventName = "textComponentUpdated"
	EventAccordionItemAdded           EventName = "accordionItemAdded"
	EventAccordionItemRemoved         EventName = "accordionItemRemoved"
	EventCardTitleUpdated             EventName = "cardTitleUpdated"
	EventBannerHeadlineUpdated        EventName = "bannerHeadlineUpdated"
	EventBannerBackgroundImageRemoved EventName = "bannerBackgroundImageRemoved"
	EventPageReset                    EventName = "pageReset"
)

// Event 所有事件载荷的公共接口
//
//sumtype:decl
type Event interface {
	EventName() EventName
}

// ========== 选择 ==========

type ComponentSelected struct {
	PreviousID string `json:"previousId"`
	NewID      string `json:"newId"`
}

func (ComponentSelected) EventName() EventName { return EventComponentSelected }

type ComponentDeselected struct {
	PreviousID string `json:"previousId"`
	NewID      string `json:"newId"`
}

func (ComponentDeselected) EventName() EventName { return EventComponentDeselected }

// ========== 通用组件事件 ==========

type ComponentAdded struct {
	ComponentID string          `json:"componentId"`
	Component   *page.Component `json:"component"`
}

func (ComponentAdded) EventName() EventName { return EventComponentAdded }

// ComponentUpdated OldComponent/NewComponent 都是快照，监听者可直接 diff
type ComponentUpdated struct {
	ComponentID  string          `json:"componentId"`
	OldComponent *page.Component `json:"oldComponent"`
	NewComponent *page.Component `json:"newComponent"`
}

func (ComponentUpdated) EventName() EventName { return EventComponentUpdated }

type ComponentRemoved struct {
	ComponentID string          `json:"componentId"`
	Component   *page.Component `json:"component"`
}

func (ComponentRemoved) EventName() EventName { return EventComponentRemoved }

type ComponentsReordered struct {
	PreviousOrder []string `json:"previousOrder"`
	NewOrder      []string `json:"newOrder"`
}

func (ComponentsReordered) EventName() EventName { return EventComponentsReordered }

// ========== 变体事件 ==========

// TextComponentUpdated 载荷是 Text 的 data，newComponent.content.data 即新正文
type TextComponentUpdated struct {
	ComponentID  string        `json:"componentId"`
	OldComponent page.TextData `json:"oldComponent"`
	NewComponent page.TextData `json:"newComponent"`
}

func (TextComponentUpdated) EventName() EventName { return EventTextComponentUpdated }

type AccordionItemAdded struct {
	ComponentID string             `json:"componentId"`
	Item        page.AccordionItem `json:"item"`
	Index       int                `json:"index"`
}

func (AccordionItemAdded) EventName() EventName { return EventAccordionItemAdded }

type AccordionItemRemoved struct {
	ComponentID string             `json:"componentId"`
	Item        page.AccordionItem `json:"item"`
	Index       int                `json:"index"`
}

func (AccordionItemRemoved) EventName() EventName { return EventAccordionItemRemoved }

type CardTitleUpdated struct {
	ComponentID string `json:"componentId"`
	OldTitle    string `json:"oldTitle"`
	NewTitle    string `json:"newTitle"`
}

func (CardTitleUpdated) EventName() EventName { return EventCardTitleUpdated }

type BannerHeadlineUpdated struct {
	ComponentID string `json:"componentId"`
	OldHeadline string `json:"oldHeadline"`
	NewHeadline string `json:"newHeadline"`
}

func (BannerHeadlineUpdated) EventName() EventName { return EventBannerHeadlineUpdated }

type BannerBackgroundImageRemoved struct {
	ComponentID     string `json:"componentId"`
	PreviousURL     string `json:"previousUrl"`
	PreviousAltText string `json:"previousAltText"`
}

func (BannerBackgroundImageRemoved) EventName() EventName { return EventBannerBackgroundImageRemoved }

// ========== 页面 ==========

// PageReset Page 为新页面的序列化结果
type PageReset struct {
	Page json.RawMessage `json:"page"`
}

func (PageReset) EventName() EventName { return EventPageReset }
