package page

import (
	"encoding/json"
	"errors"
	"fmt"

	domainErrors "pagebuilder-go-server/domain/errors"
)

// document 页面的线上格式
// GET/PUT /api/pages/:id 的 body 就是它
type document struct {
	ID         string       `json:"id"`
	TemplateID string       `json:"templateId"`
	Components []*Component `json:"components"`
	CreatedAt  Timestamp    `json:"createdAt"`
	UpdatedAt  Timestamp    `json:"updatedAt"`
}

// responseEnvelope 部分接口返回 {success, data} 包装
type responseEnvelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

// MarshalJSON 组件按存储顺序输出，order 字段保留原值
func (p *Page) MarshalJSON() ([]byte, error) {
	components := p.components
	if components == nil {
		components = []*Component{}
	}
	return json.Marshal(document{
		ID:         p.ID,
		TemplateID: p.TemplateID,
		Components: components,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	})
}

// ToJSON MarshalJSON 的便捷封装
func (p *Page) ToJSON() ([]byte, error) {
	return json.Marshal(p)
}

// FromJSON 从后端 payload 重建页面
// 同时接受裸页面和 {success, data} 包装；未知组件类型直接失败
func FromJSON(b []byte, opts ...Option) (*Page, error) {
	raw, err := unwrapEnvelope(b)
	if err != nil {
		return nil, err
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		var verr *domainErrors.ValidationError
		if errors.As(err, &verr) {
			return nil, verr
		}
		return nil, &domainErrors.ValidationError{
			Fields: []domainErrors.FieldError{{Field: "page", Reason: err.Error()}},
			Err:    err,
		}
	}

	p := New(doc.ID, doc.TemplateID, opts...)
	for i, c := range doc.Components {
		if c == nil {
			return nil, domainErrors.NewValidationError(fmt.Sprintf("components[%d]", i), "is null")
		}
		ok, err := p.AddComponent(c)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, domainErrors.NewValidationError(fmt.Sprintf("components[%d].id", i), fmt.Sprintf("duplicate id %q", c.ID))
		}
	}

	// AddComponent 会推进 updatedAt，最后用 payload 中的时间覆盖
	if !doc.CreatedAt.IsZero() {
		p.CreatedAt = doc.CreatedAt
	}
	if !doc.UpdatedAt.IsZero() {
		p.UpdatedAt = doc.UpdatedAt
	} else {
		p.UpdatedAt = p.CreatedAt
	}
	return p, nil
}

func unwrapEnvelope(b []byte) ([]byte, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(b, &probe); err != nil {
		return nil, &domainErrors.ValidationError{
			Fields: []domainErrors.FieldError{{Field: "page", Reason: err.Error()}},
			Err:    err,
		}
	}
	_, hasSuccess := probe["success"]
	_, hasData := probe["data"]
	if !hasSuccess {
		return b, nil
	}

	var env responseEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, domainErrors.NewValidationError("success", err.Error())
	}
	if env.Success != nil && !*env.Success {
		msg := env.Error
		if msg == "" {
			msg = env.Message
		}
		return nil, domainErrors.NewValidationError("success", "envelope reports failure: "+msg)
	}
	if !hasData {
		return nil, domainErrors.NewValidationError("data", "required in envelope")
	}
	return env.Data, nil
}

// Clone 序列化再反序列化得到完全独立的深拷贝
func (p *Page) Clone() *Page {
	b, err := p.ToJSON()
	if err != nil {
		panic(fmt.Sprintf("page: marshal for clone: %v", err))
	}
	out, err := FromJSON(b, WithClock(p.now))
	if err != nil {
		panic(fmt.Sprintf("page: unmarshal for clone: %v", err))
	}
	return out
}
