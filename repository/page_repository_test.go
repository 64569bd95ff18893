package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"
)

func TestSchemaColumns(t *testing.T) {
	testCases := []struct {
		name         string
		schema       string
		wantTemplate any
		hasTemplate  bool
	}{
		{"同步 templateId", `{"id":"p1","templateId":"landing","components":[]}`, "landing", true},
		{"空 templateId 也同步", `{"id":"p1","templateId":"","components":[]}`, "", true},
		{"没有 templateId 字段", `{"id":"p1","components":[]}`, nil, false},
		{"非法 JSON", `{`, nil, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cols := schemaColumns([]byte(tc.schema), int64(3))

			assert.Equal(t, datatypes.JSON(tc.schema), cols["schema"])
			assert.Equal(t, int64(3), cols["version"])
			got, ok := cols["template_id"]
			assert.Equal(t, tc.hasTemplate, ok)
			if tc.hasTemplate {
				assert.Equal(t, tc.wantTemplate, got)
			}
		})
	}
}
