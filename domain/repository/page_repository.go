package repository

import "pagebuilder-go-server/domain/entity"

// PageRepository 页面数据仓库接口
type PageRepository interface {
	// GetByPageID 根据业务 ID 获取页面，不存在返回 (nil, nil)
	GetByPageID(pageID string) (*entity.Page, error)

	// PageExists 只查存在性，不取 schema
	PageExists(pageID string) (bool, error)

	// Create 创建新页面，pageId 已存在返回 ErrPageAlreadyExists
	// 注意：禁止使用 GORM Save，它会覆盖 schema 和 version
	Create(page *entity.Page) error

	// UpdateSchema 条件更新 Schema（协同刷盘和带 If-Match 的 PUT）
	// oldVersion: 期望的当前版本号；newVersion: 写入的新版本号（允许跳跃）
	// 版本不匹配返回 ErrOptimisticLock
	UpdateSchema(pageID string, schema []byte, oldVersion, newVersion int64) error

	// OverwriteSchema 无条件覆盖（last-write-wins 的 PUT），返回新版本号
	// 页面不存在返回 ErrPageNotFound
	OverwriteSchema(pageID string, schema []byte) (int64, error)

	// Delete 删除页面
	// 注意：删除前必须先通过 Hub.CloseRoom 关闭内存中的协同房间
	Delete(pageID string) error
}

// PageVersionRepository 历史快照仓库
type PageVersionRepository interface {
	Create(v *entity.PageVersion) error

	// ListByPageID 按创建时间倒序
	ListByPageID(pageID string) ([]entity.PageVersion, error)

	// Get 不存在返回 (nil, nil)
	Get(pageID, versionID string) (*entity.PageVersion, error)

	DeleteByPageID(pageID string) error
}
