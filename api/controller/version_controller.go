package controller

import (
	"net/http"
	"time"

	"pagebuilder-go-server/domain/entity"

	"github.com/gin-gonic/gin"
)

// VersionInfo 历史快照摘要
type VersionInfo struct {
	ID          string    `json:"id"`
	PageID      string    `json:"pageId"`
	Label       string    `json:"label"`
	PageVersion int64     `json:"pageVersion"`
	CreatorID   string    `json:"creatorId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toVersionInfo(v *entity.PageVersion) VersionInfo {
	return VersionInfo{
		ID:          v.ID,
		PageID:      v.PageID,
		Label:       v.Label,
		PageVersion: v.PageVersion,
		CreatorID:   v.CreatorID,
		CreatedAt:   v.CreatedAt.UTC(),
	}
}

// CreateVersionRequest label 可选，缺省为 v<版本号>
type CreateVersionRequest struct {
	Label string `json:"label" binding:"max=128"`
}

// CreateVersion 保存当前页面的只读快照
// POST /api/pages/:pageId/versions
func (pc *PageController) CreateVersion(c *gin.Context) {
	var req CreateVersionRequest
	// 允许空 body
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "请求参数无效", Details: err.Error()})
			return
		}
	}

	userID, ok := currentUser(c)
	if !ok {
		return
	}

	v, err := pc.pageUseCase.CreateVersion(c.Param("pageId"), userID, req.Label)
	if err != nil {
		pc.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "data": toVersionInfo(v)})
}

// ListVersions 历史快照列表，按创建时间倒序
// GET /api/pages/:pageId/versions
func (pc *PageController) ListVersions(c *gin.Context) {
	versions, err := pc.pageUseCase.ListVersions(c.Param("pageId"))
	if err != nil {
		pc.respondError(c, err)
		return
	}

	data := make([]VersionInfo, 0, len(versions))
	for i := range versions {
		data = append(data, toVersionInfo(&versions[i]))
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

// GetVersion 读取快照，body 与 GET /api/pages/:pageId 相同（页面文档）
// GET /api/pages/:pageId/versions/:versionId
func (pc *PageController) GetVersion(c *gin.Context) {
	v, err := pc.pageUseCase.GetVersion(c.Param("pageId"), c.Param("versionId"))
	if err != nil {
		pc.respondError(c, err)
		return
	}

	c.Header("ETag", formatETag(v.PageVersion))
	c.Data(http.StatusOK, "application/json; charset=utf-8", v.Schema)
}

// ListTemplates 模板目录
// GET /api/templates
func (pc *PageController) ListTemplates(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": pc.pageUseCase.ListTemplates()})
}
