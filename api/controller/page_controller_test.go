package controller

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	domainErrors "pagebuilder-go-server/domain/errors"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIfMatch(t *testing.T) {
	testCases := []struct {
		header  string
		want    int64
		wantErr bool
	}{
		{"", 0, false},
		{"*", 0, false},
		{`"7"`, 7, false},
		{"7", 7, false},
		{` W/"12" `, 12, false},
		{`"0"`, 0, true},
		{`"-1"`, 0, true},
		{"abc", 0, true},
	}
	for _, tc := range testCases {
		t.Run(tc.header, func(t *testing.T) {
			got, err := parseIfMatch(tc.header)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFormatETag(t *testing.T) {
	assert.Equal(t, `"42"`, formatETag(42))
}

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	pc := NewPageController(nil, zerolog.Nop())

	testCases := []struct {
		name string
		err  error
		code int
	}{
		{"校验失败", domainErrors.NewValidationError("id", "empty"), http.StatusBadRequest},
		{"模板不存在", fmt.Errorf("%w: x", domainErrors.ErrTemplateNotFound), http.StatusBadRequest},
		{"页面不存在", domainErrors.ErrPageNotFound, http.StatusNotFound},
		{"快照不存在", domainErrors.ErrVersionNotFound, http.StatusNotFound},
		{"组件不存在", &domainErrors.NotFoundError{Kind: "component", ID: "c1"}, http.StatusNotFound},
		{"类型不符", &domainErrors.TypeMismatchError{ID: "c1", Expected: "TextComponent", Actual: "CardComponent"}, http.StatusUnprocessableEntity},
		{"版本冲突", fmt.Errorf("save: %w", domainErrors.ErrOptimisticLock), http.StatusConflict},
		{"页面已存在", domainErrors.ErrPageAlreadyExists, http.StatusConflict},
		{"无权限", domainErrors.ErrUnauthorized, http.StatusForbidden},
		{"未知错误", assert.AnError, http.StatusInternalServerError},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			pc.respondError(c, tc.err)

			assert.Equal(t, tc.code, w.Code)
		})
	}
}

func TestUserColor(t *testing.T) {
	assert.Equal(t, userColor("alice"), userColor("alice"))
	assert.Contains(t, cursorColors, userColor("bob"))
	assert.Contains(t, cursorColors, userColor(""))
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://app.example.com"}, zerolog.Nop())

	testCases := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:5173", true},
		{"https://app.example.com", true},
		{"https://evil.example.com", false},
	}
	for _, tc := range testCases {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if tc.origin != "" {
			r.Header.Set("Origin", tc.origin)
		}
		assert.Equal(t, tc.want, check(r), tc.origin)
	}
}
