package page

import (
	"encoding/json"
	"sort"
	"strings"

	domainErrors "pagebuilder-go-server/domain/errors"

	jsonpatch "github.com/evanphx/json-patch/v5"
)

// Updates data 的局部更新：顶层 key -> 新值
type Updates map[string]any

type patchOp struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// mergeData 浅合并：每个顶层 key 生成一条 RFC 6902 add 操作（已存在即替换）
// 合并结果按原类型严格解码，多出来的 key 视为形状混用
func mergeData(d Data, updates Updates) (Data, error) {
	if len(updates) == 0 {
		return d.clone(), nil
	}

	current, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ops := make([]patchOp, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			return nil, domainErrors.NewValidationError("data", "empty update key")
		}
		ops = append(ops, patchOp{Op: "add", Path: "/" + escapePointer(k), Value: updates[k]})
	}

	opsJSON, err := json.Marshal(ops)
	if err != nil {
		return nil, &domainErrors.ValidationError{
			Fields: []domainErrors.FieldError{{Field: "data", Reason: err.Error()}},
			Err:    err,
		}
	}
	patch, err := jsonpatch.DecodePatch(opsJSON)
	if err != nil {
		return nil, err
	}
	merged, err := patch.Apply(current)
	if err != nil {
		return nil, &domainErrors.ValidationError{
			Fields: []domainErrors.FieldError{{Field: "data", Reason: err.Error()}},
			Err:    err,
		}
	}
	return decodeData(d.ComponentType(), merged)
}

// escapePointer RFC 6901 转义
func escapePointer(key string) string {
	return strings.NewReplacer("~", "~0", "/", "~1").Replace(key)
}
