package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ================= 业务领域错误定义 =================
// 所有业务逻辑相关的错误统一在此定义，避免跨包重复定义

// ErrPageNotFound 页面不存在错误
// 当尝试操作一个不存在于数据库中的页面时返回此错误
var ErrPageNotFound = errors.New("page not found in database")

// ErrPageAlreadyExists 页面已存在
var ErrPageAlreadyExists = errors.New("page already exists")

// ErrVersionNotFound 历史版本不存在
var ErrVersionNotFound = errors.New("page version not found")

// ErrOptimisticLock 乐观锁冲突错误
// 当数据库中的版本与期望版本不匹配时返回此错误
var ErrOptimisticLock = errors.New("optimistic lock error: version mismatch, please refresh and retry")

// ErrUnauthorized 当前用户无权操作该页面
var ErrUnauthorized = errors.New("unauthorized")

// ErrRoomClosing 房间正在关闭，客户端应稍后重试
var ErrRoomClosing = errors.New("room is closing, retry later")

// ErrPageDeleted 页面被删除导致房间关闭
var ErrPageDeleted = errors.New("page deleted")

// ErrUnknownComponentType 未知的组件类型标签
var ErrUnknownComponentType = errors.New("unknown component type")

// ErrTemplateNotFound 模板不存在
var ErrTemplateNotFound = errors.New("template not found")

// ================= 数据模型错误 =================

// FieldError 单个字段的校验失败
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError 字段缺失/格式错误、reorder id 集合不匹配等
type ValidationError struct {
	Fields []FieldError
	// Err 可选的底层原因，例如 ErrUnknownComponentType
	Err error
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		if e.Err != nil {
			return "validation failed: " + e.Err.Error()
		}
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Reason)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError 单字段快捷构造
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Reason: reason}}}
}

// NotFoundError 操作引用了页面中不存在的 id
type NotFoundError struct {
	Kind string // component / item / link
	ID   string
}

func (e *NotFoundError) Error() string {
	kind := e.Kind
	if kind == "" {
		kind = "component"
	}
	return fmt.Sprintf("%s %q not found", kind, e.ID)
}

// TypeMismatchError 变体专用方法作用在了错误类型的组件上
type TypeMismatchError struct {
	ID       string
	Expected string
	Actual   string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("component %q is %s, expected %s", e.ID, e.Actual, e.Expected)
}

// TransportError 页面加载/保存的网络或 HTTP 错误
// StatusCode 为 0 表示请求根本没有拿到响应
type TransportError struct {
	StatusCode int
	Status     string
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("transport error: %s", e.Message)
	}
	return fmt.Sprintf("transport error: %s: %s", e.Status, e.Message)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
