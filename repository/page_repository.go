package repository

import (
	"encoding/json"
	"errors"

	"pagebuilder-go-server/domain/entity"
	domainErrors "pagebuilder-go-server/domain/errors"
	domainRepo "pagebuilder-go-server/domain/repository"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// pageRepository GORM 实现 PageRepository 接口
// 同时实现 ws.PageService 接口供 Hub 使用
type pageRepository struct {
	db *gorm.DB
}

// NewPageRepository 构造函数
func NewPageRepository(db *gorm.DB) domainRepo.PageRepository {
	return &pageRepository{db: db}
}

// ================= domain.PageRepository 接口实现 =================

// GetByPageID 根据业务 ID 查询页面
func (r *pageRepository) GetByPageID(pageID string) (*entity.Page, error) {
	var page entity.Page
	err := r.db.Where("page_id = ?", pageID).First(&page).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // 返回 nil 表示不存在，调用方需处理
	}
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// PageExists 检查页面是否存在（版本列表等只需存在性的场景）
func (r *pageRepository) PageExists(pageID string) (bool, error) {
	var count int64
	err := r.db.Model(&entity.Page{}).Where("page_id = ?", pageID).Count(&count).Error
	return count > 0, err
}

// Create 创建新页面（仅用于首次创建）
// 依赖 gorm.Config.TranslateError 把唯一索引冲突翻译为 ErrDuplicatedKey
func (r *pageRepository) Create(page *entity.Page) error {
	err := r.db.Create(page).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domainErrors.ErrPageAlreadyExists
	}
	return err
}

// UpdateSchema 只更新 Schema 字段（协同编辑热路径）
// ✅ 支持版本跳跃：内存中可能积累了多个版本，一次性刷盘
func (r *pageRepository) UpdateSchema(pageID string, schema []byte, oldVersion, newVersion int64) error {
	result := r.db.Model(&entity.Page{}).
		// WHERE 使用 oldVersion（上次持久化的版本）
		Where("page_id = ? AND version = ?", pageID, oldVersion).
		Updates(schemaColumns(schema, newVersion))

	if result.Error != nil {
		return result.Error
	}

	// RowsAffected == 0：版本冲突或页面不存在
	if result.RowsAffected == 0 {
		return domainErrors.ErrOptimisticLock
	}
	return nil
}

// OverwriteSchema 无条件覆盖并把版本号 +1
// 更新和回读放在同一事务里，MySQL 没有 RETURNING
func (r *pageRepository) OverwriteSchema(pageID string, schema []byte) (int64, error) {
	var version int64
	err := r.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&entity.Page{}).
			Where("page_id = ?", pageID).
			Updates(schemaColumns(schema, gorm.Expr("version + 1")))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domainErrors.ErrPageNotFound
		}
		return tx.Model(&entity.Page{}).
			Where("page_id = ?", pageID).
			Pluck("version", &version).Error
	})
	return version, err
}

// schemaColumns 写 schema 时一并同步 template_id 冗余列
// 文档里没有 templateId 字段时不改动该列
func schemaColumns(schema []byte, version interface{}) map[string]interface{} {
	cols := map[string]interface{}{
		"schema":  datatypes.JSON(schema),
		"version": version,
	}
	var head struct {
		TemplateID *string `json:"templateId"`
	}
	if json.Unmarshal(schema, &head) == nil && head.TemplateID != nil {
		cols["template_id"] = *head.TemplateID
	}
	return cols
}

// Delete 删除页面
func (r *pageRepository) Delete(pageID string) error {
	result := r.db.Where("page_id = ?", pageID).Delete(&entity.Page{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainErrors.ErrPageNotFound
	}
	return nil
}

// ================= ws.PageService 接口实现 =================
// 这些方法供 Hub 直接调用，无需额外适配器

// GetPageState 页面不存在时返回明确错误，阻止幽灵房间的创建
func (r *pageRepository) GetPageState(pageID string) ([]byte, int64, error) {
	page, err := r.GetByPageID(pageID)
	if err != nil {
		return nil, 0, err
	}
	if page == nil {
		return nil, 0, domainErrors.ErrPageNotFound
	}
	return []byte(page.Schema), page.Version, nil
}

// SavePageState 保存页面状态（支持版本跳跃）
func (r *pageRepository) SavePageState(pageID string, state []byte, oldVersion, newVersion int64) error {
	return r.UpdateSchema(pageID, state, oldVersion, newVersion)
}
