package entity

import (
	"time"

	"gorm.io/datatypes"
)

// Page 页面记录，Schema 存整份页面文档（components 数组 + 元信息）
// datatypes.JSON 在 PostgreSQL 上映射为 jsonb，在 MySQL 上映射为 JSON
type Page struct {
	ID         uint           `gorm:"primaryKey"`
	PageID     string         `gorm:"uniqueIndex;size:64"`
	TemplateID string         `gorm:"size:64"`
	Schema     datatypes.JSON `gorm:"not null"`
	Version    int64          `gorm:"default:0"`
	CreatorID  string         `gorm:"size:64"` // Clerk user_id
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// PageVersion 页面的历史快照，只读
type PageVersion struct {
	ID          string         `gorm:"primaryKey;size:36"` // uuid
	PageID      string         `gorm:"index;size:64"`
	Label       string         `gorm:"size:128"`
	Schema      datatypes.JSON `gorm:"not null"`
	PageVersion int64          // 快照时页面的版本号
	CreatorID   string         `gorm:"size:64"`
	CreatedAt   time.Time
}
