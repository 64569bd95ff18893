// Package template 页面模板目录
// 默认目录编译进二进制，TEMPLATES_FILE 可以指定外部 YAML 覆盖
package template

import (
	_ "embed"
	"fmt"
	"os"

	domainErrors "pagebuilder-go-server/domain/errors"
	"pagebuilder-go-server/internal/page"

	"github.com/goccy/go-yaml"
)

//go:embed templates.yaml
var defaultCatalog []byte

// BlankID 未指定模板时使用
const BlankID = "blank"

// ComponentSpec 模板中的一个组件
type ComponentSpec struct {
	Type page.Type      `yaml:"type"`
	Seed string         `yaml:"seed"`
	Data map[string]any `yaml:"data"`
}

// Template 模板定义
type Template struct {
	ID          string          `yaml:"id" json:"id"`
	Name        string          `yaml:"name" json:"name"`
	Description string          `yaml:"description" json:"description"`
	Components  []ComponentSpec `yaml:"components" json:"-"`
}

// Summary GET /api/templates 的列表项
type Summary struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	ComponentCount int    `json:"componentCount"`
}

type catalogFile struct {
	Templates []Template `yaml:"templates"`
}

// Catalog 只读，加载后可并发使用
type Catalog struct {
	templates []Template
	byID      map[string]int
}

// Load path 为空时使用内置目录
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Parse(defaultCatalog)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read templates file: %w", err)
	}
	return Parse(data)
}

// Parse 解析并校验模板：每个模板都必须能构造出合法页面
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.UnmarshalWithOptions(data, &f, yaml.Strict()); err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	c := &Catalog{byID: make(map[string]int, len(f.Templates))}
	for i, t := range f.Templates {
		if t.ID == "" {
			return nil, domainErrors.NewValidationError(fmt.Sprintf("templates[%d].id", i), "is required")
		}
		if _, dup := c.byID[t.ID]; dup {
			return nil, domainErrors.NewValidationError(fmt.Sprintf("templates[%d].id", i), fmt.Sprintf("duplicate id %q", t.ID))
		}
		c.byID[t.ID] = len(c.templates)
		c.templates = append(c.templates, t)

		if _, err := c.Build(t.ID, "template-check"); err != nil {
			return nil, fmt.Errorf("template %q: %w", t.ID, err)
		}
	}
	return c, nil
}

func (c *Catalog) List() []Summary {
	out := make([]Summary, 0, len(c.templates))
	for _, t := range c.templates {
		out = append(out, Summary{
			ID:             t.ID,
			Name:           t.Name,
			Description:    t.Description,
			ComponentCount: len(t.Components),
		})
	}
	return out
}

func (c *Catalog) Has(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// Build 按模板生成新页面，组件 id 每次重新生成
// templateID 为空时按 blank 处理
func (c *Catalog) Build(templateID, pageID string, opts ...page.Option) (*page.Page, error) {
	if templateID == "" {
		templateID = BlankID
	}
	idx, ok := c.byID[templateID]
	if !ok {
		if templateID == BlankID {
			return page.New(pageID, BlankID, opts...), nil
		}
		return nil, fmt.Errorf("%w: %s", domainErrors.ErrTemplateNotFound, templateID)
	}

	t := c.templates[idx]
	p := page.New(pageID, t.ID, opts...)
	for i, def := range t.Components {
		comp, err := page.NewDefault(def.Type, def.Seed)
		if err != nil {
			return nil, fmt.Errorf("components[%d]: %w", i, err)
		}
		if _, err := p.AddComponent(comp); err != nil {
			return nil, fmt.Errorf("components[%d]: %w", i, err)
		}
		if len(def.Data) > 0 {
			if _, err := p.UpdateComponent(comp.ID, page.Updates(def.Data)); err != nil {
				return nil, fmt.Errorf("components[%d]: %w", i, err)
			}
		}
		if err := page.Validate(p.GetComponentByID(comp.ID)); err != nil {
			return nil, fmt.Errorf("components[%d]: %w", i, err)
		}
	}
	return p, nil
}
