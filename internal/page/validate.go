package page

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"

	domainErrors "pagebuilder-go-server/domain/errors"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
)

// LinkTargets 允许的 linkTarget 取值（空值表示浏览器默认）
var LinkTargets = []string{"_self", "_blank", "_parent", "_top"}

var (
	validate = newValidator()
	// UGC 策略：保留常见排版标签，去掉脚本和事件属性
	htmlPolicy = bluemonday.UGCPolicy()
)

func newValidator() *validator.Validate {
	v := validator.New()
	// 错误路径使用 json 字段名，方便前端直接定位
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("weburl", func(fl validator.FieldLevel) bool {
		return IsWebURL(fl.Field().String())
	})
	_ = v.RegisterValidation("linktarget", func(fl validator.FieldLevel) bool {
		target := fl.Field().String()
		for _, t := range LinkTargets {
			if t == target {
				return true
			}
		}
		return false
	})
	return v
}

// IsWebURL 要求能解析出 scheme 和 host
func IsWebURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// Validate 校验组件信封和载荷，返回 *ValidationError 列出全部失败字段
func Validate(c *Component) error {
	if c == nil {
		return domainErrors.NewValidationError("component", "is nil")
	}

	var fields []domainErrors.FieldError
	if c.ID == "" {
		fields = append(fields, domainErrors.FieldError{Field: "id", Reason: "required"})
	}
	if c.Order < 0 {
		fields = append(fields, domainErrors.FieldError{Field: "order", Reason: "must not be negative"})
	}
	if !c.Type.Valid() {
		return &domainErrors.ValidationError{
			Fields: append(fields, domainErrors.FieldError{Field: "type", Reason: fmt.Sprintf("unknown component type %q", c.Type)}),
			Err:    domainErrors.ErrUnknownComponentType,
		}
	}
	if c.Data == nil {
		fields = append(fields, domainErrors.FieldError{Field: "data", Reason: "required"})
		return &domainErrors.ValidationError{Fields: fields}
	}
	if c.Data.ComponentType() != c.Type {
		fields = append(fields, domainErrors.FieldError{
			Field:  "data",
			Reason: fmt.Sprintf("payload of %s does not match type %s", c.Data.ComponentType(), c.Type),
		})
		return &domainErrors.ValidationError{Fields: fields}
	}

	fields = append(fields, validateStruct("data", c.Data)...)
	if len(fields) > 0 {
		return &domainErrors.ValidationError{Fields: fields}
	}
	return nil
}

// validateStruct 把 validator 的错误转换为 FieldError，路径以 prefix 开头
func validateStruct(prefix string, v any) []domainErrors.FieldError {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []domainErrors.FieldError{{Field: prefix, Reason: err.Error()}}
	}

	out := make([]domainErrors.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		// Namespace 形如 "LinkGroupData.links[0].linkUrl"，去掉根结构体名
		ns := fe.Namespace()
		if i := strings.IndexByte(ns, '.'); i >= 0 {
			ns = ns[i+1:]
		}
		out = append(out, domainErrors.FieldError{Field: prefix + "." + ns, Reason: reason(fe)})
	}
	return out
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "required_with":
		return "required when " + fe.Param() + " is set"
	case "weburl":
		return "must be an absolute URL with scheme and host"
	case "linktarget":
		return "must be one of " + strings.Join(LinkTargets, ", ")
	case "oneof":
		return "must be one of " + fe.Param()
	case "min":
		return "must contain at least " + fe.Param() + " entry"
	default:
		return fe.Tag()
	}
}

// ValidateLink 单独校验一条链接（AddLinkToGroup / UpdateLinkInGroup 使用）
func ValidateLink(l Link) error {
	if fields := validateStruct("link", l); len(fields) > 0 {
		return &domainErrors.ValidationError{Fields: fields}
	}
	return nil
}

// ========== Normalize ==========

// Normalize 去掉字符串首尾空白并清洗 HTML 文本，服务端保存前调用
func Normalize(c *Component) {
	if c == nil || c.Data == nil {
		return
	}
	c.ID = strings.TrimSpace(c.ID)

	switch d := c.Data.(type) {
	case *TextData:
		normalizeText(&d.Content)
	case *BannerData:
		d.HeadlineText = strings.TrimSpace(d.HeadlineText)
		d.SubheadlineText = strings.TrimSpace(d.SubheadlineText)
		d.BackgroundImageURL = strings.TrimSpace(d.BackgroundImageURL)
		d.BackgroundImageAltText = strings.TrimSpace(d.BackgroundImageAltText)
		d.CallToAction.ButtonText = strings.TrimSpace(d.CallToAction.ButtonText)
		d.CallToAction.LinkURL = strings.TrimSpace(d.CallToAction.LinkURL)
	case *CardData:
		d.Title = strings.TrimSpace(d.Title)
		normalizeText(&d.Description)
		d.ImageURL = strings.TrimSpace(d.ImageURL)
		d.AltText = strings.TrimSpace(d.AltText)
		d.LinkURL = strings.TrimSpace(d.LinkURL)
		d.LinkText = strings.TrimSpace(d.LinkText)
	case *AccordionData:
		d.Title = strings.TrimSpace(d.Title)
		for i := range d.Items {
			d.Items[i].Title = strings.TrimSpace(d.Items[i].Title)
			normalizeText(&d.Items[i].Content)
		}
	case *LinkGroupData:
		d.Title = strings.TrimSpace(d.Title)
		for i := range d.Links {
			d.Links[i].LinkText = strings.TrimSpace(d.Links[i].LinkText)
			d.Links[i].LinkURL = strings.TrimSpace(d.Links[i].LinkURL)
		}
	}
}

func normalizeText(tc *TextContent) {
	if tc.Format == FormatHTML {
		tc.Data = htmlPolicy.Sanitize(tc.Data)
	}
	tc.Data = strings.TrimSpace(tc.Data)
}

// SanitizeHTML 单独清洗一段 HTML（协同编辑的文本操作使用）
func SanitizeHTML(s string) string {
	return htmlPolicy.Sanitize(s)
}

// Normalize 对页面内全部组件执行 Normalize
func (p *Page) Normalize() {
	for _, c := range p.components {
		Normalize(c)
	}
}

// Validate 校验全部组件，字段路径带 components[i] 前缀
func (p *Page) Validate() error {
	var fields []domainErrors.FieldError
	var cause error
	for i, c := range p.components {
		err := Validate(c)
		if err == nil {
			continue
		}
		var verr *domainErrors.ValidationError
		if !errors.As(err, &verr) {
			return err
		}
		prefix := fmt.Sprintf("components[%d].", i)
		for _, f := range verr.Fields {
			fields = append(fields, domainErrors.FieldError{Field: prefix + f.Field, Reason: f.Reason})
		}
		if cause == nil {
			cause = verr.Err
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return &domainErrors.ValidationError{Fields: fields, Err: cause}
}
