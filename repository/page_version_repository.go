package repository

import (
	"errors"

	"pagebuilder-go-server/domain/entity"
	domainRepo "pagebuilder-go-server/domain/repository"

	"gorm.io/gorm"
)

type pageVersionRepository struct {
	db *gorm.DB
}

func NewPageVersionRepository(db *gorm.DB) domainRepo.PageVersionRepository {
	return &pageVersionRepository{db: db}
}

func (r *pageVersionRepository) Create(v *entity.PageVersion) error {
	return r.db.Create(v).Error
}

// ListByPageID 列表不需要 schema，只取摘要列
func (r *pageVersionRepository) ListByPageID(pageID string) ([]entity.PageVersion, error) {
	var versions []entity.PageVersion
	err := r.db.
		Select("id", "page_id", "label", "page_version", "creator_id", "created_at").
		Where("page_id = ?", pageID).
		Order("created_at DESC").
		Find(&versions).Error
	return versions, err
}

func (r *pageVersionRepository) Get(pageID, versionID string) (*entity.PageVersion, error) {
	var v entity.PageVersion
	err := r.db.Where("page_id = ? AND id = ?", pageID, versionID).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// DeleteByPageID 删除页面时级联清理
func (r *pageVersionRepository) DeleteByPageID(pageID string) error {
	return r.db.Where("page_id = ?", pageID).Delete(&entity.PageVersion{}).Error
}
