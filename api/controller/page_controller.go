package controller

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"pagebuilder-go-server/api/middleware"
	domainErrors "pagebuilder-go-server/domain/errors"
	"pagebuilder-go-server/usecase"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// --- 响应结构定义 ---

// ErrorResponse 错误响应结构
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// MessageResponse 消息响应结构
type MessageResponse struct {
	Message string `json:"message"`
	PageID  string `json:"pageId,omitempty"`
}

// SaveResponse PUT 成功后的响应，新版本同时放在 ETag 头里
type SaveResponse struct {
	Success bool  `json:"success"`
	Version int64 `json:"version"`
}

// --- 控制器定义 ---

// PageController 页面 HTTP 控制器
type PageController struct {
	pageUseCase *usecase.PageUseCase
	log         zerolog.Logger
}

// NewPageController 创建 PageController 实例
func NewPageController(pageUseCase *usecase.PageUseCase, log zerolog.Logger) *PageController {
	return &PageController{pageUseCase: pageUseCase, log: log}
}

// GetPage 获取页面
// GET /api/pages/:pageId
// 支持 Hub 内存优先读取，回退到数据库；body 即页面文档，版本放在 ETag
func (pc *PageController) GetPage(c *gin.Context) {
	pageID := c.Param("pageId")
	if pageID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "pageId 不能为空"})
		return
	}

	page, err := pc.pageUseCase.GetPage(pageID)
	if err != nil {
		pc.respondError(c, err)
		return
	}

	c.Header("ETag", formatETag(page.Version))
	c.Data(http.StatusOK, "application/json; charset=utf-8", page.Schema)
}

// SavePage 整页保存
// PUT /api/pages/:pageId
// 可选 If-Match: "<version>"，不带则 last-write-wins
func (pc *PageController) SavePage(c *gin.Context) {
	pageID := c.Param("pageId")
	if pageID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "pageId 不能为空"})
		return
	}

	ifMatch, err := parseIfMatch(c.GetHeader("If-Match"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "If-Match 格式无效", Details: err.Error()})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil || len(body) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "请求体不能为空"})
		return
	}

	version, err := pc.pageUseCase.SavePage(pageID, body, ifMatch)
	if err != nil {
		pc.respondError(c, err)
		return
	}

	c.Header("ETag", formatETag(version))
	c.JSON(http.StatusOK, SaveResponse{Success: true, Version: version})
}

// CreatePageRequest 创建页面请求结构
type CreatePageRequest struct {
	PageID     string          `json:"pageId" binding:"required,max=64"`
	TemplateID string          `json:"templateId" binding:"max=64"`
	Page       json.RawMessage `json:"page"` // 可选，传入初始页面文档
}

// CreatePage 创建新页面
// POST /api/pages
// 请求体: { "pageId": "xxx", "templateId": "landing", "page": {...} }
// page 可选，不传则按模板生成（模板也不传则为空白页）
func (pc *PageController) CreatePage(c *gin.Context) {
	var req CreatePageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "请求参数无效", Details: err.Error()})
		return
	}

	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var doc []byte
	if len(req.Page) > 0 && string(req.Page) != "null" {
		doc = req.Page
	}

	page, err := pc.pageUseCase.CreatePage(usecase.CreatePageInput{
		PageID:     req.PageID,
		CreatorID:  userID,
		TemplateID: req.TemplateID,
		Document:   doc,
	})
	if err != nil {
		pc.respondError(c, err)
		return
	}

	c.Header("ETag", formatETag(page.Version))
	c.Data(http.StatusCreated, "application/json; charset=utf-8", page.Schema)
}

// DeletePage 删除页面
// DELETE /api/pages/:pageId
// 注意：此操作会强制关闭协同编辑房间，踢出所有在线用户
func (pc *PageController) DeletePage(c *gin.Context) {
	pageID := c.Param("pageId")
	if pageID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "pageId 不能为空"})
		return
	}

	userID, ok := currentUser(c)
	if !ok {
		return
	}

	if err := pc.pageUseCase.DeletePage(pageID, userID); err != nil {
		pc.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{
		Message: "页面已删除",
		PageID:  pageID,
	})
}

// ========== 工具函数 ==========

// currentUser 取出中间件注入的用户 ID，缺失时直接写 401
func currentUser(c *gin.Context) (string, bool) {
	userID, exists := c.Get(middleware.ContextKeyUserID)
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "未获取到用户信息"})
		return "", false
	}
	return userID.(string), true
}

// respondError 领域错误 -> HTTP 状态码
func (pc *PageController) respondError(c *gin.Context, err error) {
	var (
		validation *domainErrors.ValidationError
		notFound   *domainErrors.NotFoundError
		mismatch   *domainErrors.TypeMismatchError
	)
	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "页面数据无效", Details: err.Error()})
	case errors.Is(err, domainErrors.ErrTemplateNotFound):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "模板不存在", Details: err.Error()})
	case errors.Is(err, domainErrors.ErrPageNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "页面不存在"})
	case errors.Is(err, domainErrors.ErrVersionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "历史版本不存在"})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "引用的对象不存在", Details: err.Error()})
	case errors.As(err, &mismatch):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "组件类型不符", Details: err.Error()})
	case errors.Is(err, domainErrors.ErrOptimisticLock):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "版本冲突，请刷新后重试", Details: err.Error()})
	case errors.Is(err, domainErrors.ErrPageAlreadyExists):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "页面已存在"})
	case errors.Is(err, domainErrors.ErrUnauthorized):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "无权限操作此页面"})
	default:
		pc.log.Error().Err(err).Str("path", c.FullPath()).Msg("[API] 请求处理失败")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "服务器内部错误", Details: err.Error()})
	}
}

func formatETag(version int64) string {
	return `"` + strconv.FormatInt(version, 10) + `"`
}

// parseIfMatch 空值和 * 表示不做版本检查
func parseIfMatch(h string) (int64, error) {
	h = strings.TrimSpace(h)
	if h == "" || h == "*" {
		return 0, nil
	}
	h = strings.TrimPrefix(h, "W/")
	h = strings.Trim(h, `"`)
	v, err := strconv.ParseInt(h, 10, 64)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, errors.New("version must be positive")
	}
	return v, nil
}
