package usecase

import (
	"errors"
	"fmt"

	"pagebuilder-go-server/domain/entity"
	domainErrors "pagebuilder-go-server/domain/errors"
	"pagebuilder-go-server/domain/repository"
	"pagebuilder-go-server/internal/page"
	"pagebuilder-go-server/internal/template"
	"pagebuilder-go-server/internal/ws"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
)

// PageUseCase 页面业务逻辑层
// ✅ 注入 Hub，解决"数据双源"问题：
// - 有协同编辑时，内存是 source of truth
// - 无协同编辑时，数据库是 source of truth
type PageUseCase struct {
	repo        repository.PageRepository
	versionRepo repository.PageVersionRepository
	hub         *ws.Hub
	catalog     *template.Catalog
	log         zerolog.Logger
}

// NewPageUseCase 构造函数，依赖注入
func NewPageUseCase(
	repo repository.PageRepository,
	versionRepo repository.PageVersionRepository,
	hub *ws.Hub,
	catalog *template.Catalog,
	log zerolog.Logger,
) *PageUseCase {
	return &PageUseCase{
		repo:        repo,
		versionRepo: versionRepo,
		hub:         hub,
		catalog:     catalog,
		log:         log,
	}
}

// GetPage 获取页面
// 优先从 Hub 内存读取（保证读到最新协同状态），否则读数据库
func (uc *PageUseCase) GetPage(pageID string) (*entity.Page, error) {
	// 1. 优先从 Hub 内存读取（协同编辑中的热数据），只读不创建
	if room := uc.hub.GetRoom(pageID); room != nil {
		snapshot, version := room.GetSnapshot()
		if snapshot != nil {
			return &entity.Page{
				PageID:  pageID,
				Schema:  datatypes.JSON(snapshot),
				Version: version,
			}, nil
		}
	}

	// 2. 内存没有，读数据库（非协同编辑状态）
	p, err := uc.repo.GetByPageID(pageID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domainErrors.ErrPageNotFound
	}
	return p, nil
}

// CreatePageInput 创建页面参数
// Document 非空时直接使用它，否则按 TemplateID 从模板目录生成
type CreatePageInput struct {
	PageID     string
	CreatorID  string
	TemplateID string
	Document   []byte
}

// CreatePage 创建新页面，初始版本为 1
func (uc *PageUseCase) CreatePage(in CreatePageInput) (*entity.Page, error) {
	var (
		doc *page.Page
		err error
	)
	if len(in.Document) > 0 {
		doc, err = uc.decode(in.PageID, in.Document)
		if err == nil && doc.TemplateID == "" {
			doc.TemplateID = in.TemplateID
		}
	} else {
		doc, err = uc.catalog.Build(in.TemplateID, in.PageID)
	}
	if err != nil {
		return nil, err
	}

	raw, err := doc.ToJSON()
	if err != nil {
		return nil, err
	}

	p := &entity.Page{
		PageID:     in.PageID,
		TemplateID: doc.TemplateID,
		Schema:     datatypes.JSON(raw),
		Version:    1,
		CreatorID:  in.CreatorID,
	}
	if err := uc.repo.Create(p); err != nil {
		return nil, err
	}

	uc.log.Info().Str("page", in.PageID).Str("template", doc.TemplateID).Msg("[Page] 页面已创建")
	return p, nil
}

// SavePage 整页保存，返回新版本号
// ifMatch 为 0 时 last-write-wins；否则版本不一致返回 ErrOptimisticLock
// 协同房间在线时经由房间写库并替换内存文档，避免下次刷盘把旧内容写回去
func (uc *PageUseCase) SavePage(pageID string, body []byte, ifMatch int64) (int64, error) {
	doc, err := uc.decode(pageID, body)
	if err != nil {
		return 0, err
	}

	if room := uc.hub.GetRoom(pageID); room != nil {
		version, err := room.SaveDocument(doc, ifMatch)
		if err != nil {
			return 0, err
		}
		uc.log.Info().Str("page", pageID).Int64("version", version).Msg("[Page] 在线房间整页保存")
		return version, nil
	}

	raw, err := doc.ToJSON()
	if err != nil {
		return 0, err
	}

	if ifMatch == 0 {
		version, err := uc.repo.OverwriteSchema(pageID, raw)
		if err != nil {
			return 0, err
		}
		uc.log.Info().Str("page", pageID).Int64("version", version).Msg("[Page] 整页保存")
		return version, nil
	}

	if err := uc.repo.UpdateSchema(pageID, raw, ifMatch, ifMatch+1); err != nil {
		// RowsAffected 为 0 可能是页面根本不存在
		if errors.Is(err, domainErrors.ErrOptimisticLock) {
			if exists, existsErr := uc.repo.PageExists(pageID); existsErr == nil && !exists {
				return 0, domainErrors.ErrPageNotFound
			}
		}
		return 0, err
	}
	uc.log.Info().Str("page", pageID).Int64("version", ifMatch+1).Msg("[Page] 整页保存（If-Match）")
	return ifMatch + 1, nil
}

// decode 解析、清洗并校验请求中的页面文档
// 文档 id 为空时取路径 id，不一致视为校验错误
func (uc *PageUseCase) decode(pageID string, body []byte) (*page.Page, error) {
	doc, err := page.FromJSON(body)
	if err != nil {
		return nil, err
	}
	switch doc.ID {
	case "":
		doc.ID = pageID
	case pageID:
	default:
		return nil, domainErrors.NewValidationError("id", fmt.Sprintf("%q does not match page %q", doc.ID, pageID))
	}

	doc.Normalize()
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// DeletePage 删除页面（仅创建者）
// 顺序：先关闭房间（刷盘），再删历史快照和页面
func (uc *PageUseCase) DeletePage(pageID, userID string) error {
	p, err := uc.repo.GetByPageID(pageID)
	if err != nil {
		return err
	}
	if p == nil {
		return domainErrors.ErrPageNotFound
	}
	if p.CreatorID != userID {
		return domainErrors.ErrUnauthorized
	}

	uc.hub.CloseRoom(pageID)

	if err := uc.versionRepo.DeleteByPageID(pageID); err != nil {
		return err
	}
	if err := uc.repo.Delete(pageID); err != nil {
		return err
	}

	uc.log.Info().Str("page", pageID).Str("user", userID).Msg("[Page] 页面已删除")
	return nil
}

// ========== 历史快照 ==========

// CreateVersion 为当前页面（含协同中的内存状态）保存一份只读快照
func (uc *PageUseCase) CreateVersion(pageID, creatorID, label string) (*entity.PageVersion, error) {
	current, err := uc.GetPage(pageID)
	if err != nil {
		return nil, err
	}
	if label == "" {
		label = fmt.Sprintf("v%d", current.Version)
	}

	v := &entity.PageVersion{
		ID:          uuid.NewString(),
		PageID:      pageID,
		Label:       label,
		Schema:      current.Schema,
		PageVersion: current.Version,
		CreatorID:   creatorID,
	}
	if err := uc.versionRepo.Create(v); err != nil {
		return nil, err
	}

	uc.log.Info().Str("page", pageID).Str("version", v.ID).Int64("pageVersion", v.PageVersion).Msg("[Page] 快照已创建")
	return v, nil
}

// ListVersions 按创建时间倒序，不含 schema
func (uc *PageUseCase) ListVersions(pageID string) ([]entity.PageVersion, error) {
	exists, err := uc.repo.PageExists(pageID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domainErrors.ErrPageNotFound
	}
	return uc.versionRepo.ListByPageID(pageID)
}

// GetVersion 读取一份快照
func (uc *PageUseCase) GetVersion(pageID, versionID string) (*entity.PageVersion, error) {
	v, err := uc.versionRepo.Get(pageID, versionID)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, domainErrors.ErrVersionNotFound
	}
	return v, nil
}

// ListTemplates 模板目录
func (uc *PageUseCase) ListTemplates() []template.Summary {
	return uc.catalog.List()
}
