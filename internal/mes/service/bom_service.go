package service

import (
	"context"
	"fmt"
	"time"

	"github.com/db-puzzle/maintenance-OS-sub006/internal/mes/entity"
	"github.com/db-puzzle/maintenance-OS-sub006/internal/mes/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BOMService BOM服务
// 负责BOM/版本/节点树的创建、发布与克隆，以及结构不变量校验。
type BOMService struct {
	bomRepo  *repository.BOMRepository
	itemRepo *repository.ItemRepository
	logRepo  *repository.ActivityLogRepository
	db       *gorm.DB
}

func NewBOMService(bomRepo *repository.BOMRepository, itemRepo *repository.ItemRepository, logRepo *repository.ActivityLogRepository, db *gorm.DB) *BOMService {
	return &BOMService{bomRepo: bomRepo, itemRepo: itemRepo, logRepo: logRepo, db: db}
}

type CreateBOMInput struct {
	Name         string `json:"name" binding:"required"`
	Description  string `json:"description"`
	OutputItemID string `json:"output_item_id" binding:"required"`
}

// CreateBOM 创建BOM（含初始草稿版本v1）
func (s *BOMService) CreateBOM(ctx context.Context, input *CreateBOMInput, createdBy string) (*entity.BillOfMaterial, error) {
	outputItem, err := s.itemRepo.FindByID(ctx, input.OutputItemID)
	if err != nil {
		return nil, fmt.Errorf("产出物料不存在: %w", err)
	}
	if !outputItem.CanBeManufactured {
		return nil, validationErrorf("物料 %s 不可制造，不能作为BOM产出", outputItem.Code)
	}

	number, err := s.nextBOMNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("生成BOM编号失败: %w", err)
	}

	bom := &entity.BillOfMaterial{
		ID:           uuid.New().String(),
		Number:       number,
		Name:         input.Name,
		Description:  input.Description,
		OutputItemID: input.OutputItemID,
		IsActive:     true,
		CreatedBy:    createdBy,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(bom).Error; err != nil {
			return err
		}
		version := &entity.BomVersion{
			ID:               uuid.New().String(),
			BillOfMaterialID: bom.ID,
			VersionNumber:    1,
			IsCurrent:        false,
		}
		return tx.Create(version).Error
	})
	if err != nil {
		return nil, fmt.Errorf("创建BOM失败: %w", err)
	}

	s.logRepo.LogActivity(ctx, "bom", bom.ID, bom.Number, "bom_created", "", "", fmt.Sprintf("创建BOM %s", bom.Name), createdBy)
	return bom, nil
}

// GetBOM 获取BOM详情
func (s *BOMService) GetBOM(ctx context.Context, id string) (*entity.BillOfMaterial, error) {
	return s.bomRepo.FindByID(ctx, id)
}

type AddBomItemInput struct {
	ItemID         string  `json:"item_id" binding:"required"`
	ParentItemID   *string `json:"parent_item_id"`
	Quantity       float64 `json:"quantity" binding:"required"`
	SequenceNumber int     `json:"sequence_number"`
	QRCode         string  `json:"qr_code"`
	Notes          string  `json:"notes"`
}

// AddItem 向版本追加BOM节点
// 已发布版本不可变；根节点的物料必须等于BOM的产出物料，且每个版本最多一个根。
func (s *BOMService) AddItem(ctx context.Context, versionID string, input *AddBomItemInput) (*entity.BomItem, error) {
	if input.Quantity <= 0 {
		return nil, validationErrorf("用量必须大于0，实际为 %v", input.Quantity)
	}

	version, err := s.bomRepo.FindVersion(ctx, versionID)
	if err != nil {
		return nil, fmt.Errorf("BOM版本不存在: %w", err)
	}
	if version.PublishedAt != nil {
		return nil, validationErrorf("版本 v%d 已发布，不可修改", version.VersionNumber)
	}

	bom, err := s.bomRepo.FindByID(ctx, version.BillOfMaterialID)
	if err != nil {
		return nil, fmt.Errorf("BOM不存在: %w", err)
	}

	level := 0
	if input.ParentItemID != nil {
		parent, err := s.bomRepo.FindItem(ctx, *input.ParentItemID)
		if err != nil {
			return nil, fmt.Errorf("父节点不存在: %w", err)
		}
		if parent.BomVersionID != versionID {
			return nil, validationErrorf("父节点不属于版本 v%d", version.VersionNumber)
		}
		level = parent.Level + 1
	} else {
		roots, err := s.bomRepo.RootItems(ctx, versionID)
		if err != nil {
			return nil, err
		}
		if len(roots) > 0 {
			return nil, structuralErrorf("版本 v%d 已存在根节点", version.VersionNumber)
		}
		if input.ItemID != bom.OutputItemID {
			return nil, structuralErrorf("根节点物料必须等于BOM产出物料")
		}
	}

	item := &entity.BomItem{
		ID:             uuid.New().String(),
		BomVersionID:   versionID,
		ItemID:         input.ItemID,
		ParentItemID:   input.ParentItemID,
		Quantity:       input.Quantity,
		Level:          level,
		SequenceNumber: input.SequenceNumber,
		QRCode:         input.QRCode,
		Notes:          input.Notes,
	}
	if err := s.bomRepo.CreateItem(ctx, item); err != nil {
		return nil, fmt.Errorf("创建BOM节点失败: %w", err)
	}
	return item, nil
}

// PublishVersion 发布版本
// 发布后版本不可变并成为当前版本；同一BOM同时只有一个当前版本。
func (s *BOMService) PublishVersion(ctx context.Context, versionID, notes, publishedBy string) (*entity.BomVersion, error) {
	version, err := s.bomRepo.FindVersion(ctx, versionID)
	if err != nil {
		return nil, fmt.Errorf("BOM版本不存在: %w", err)
	}
	if version.PublishedAt != nil {
		return nil, validationErrorf("版本 v%d 已发布", version.VersionNumber)
	}

	// 发布前校验结构不变量
	if _, err := s.RootItem(ctx, versionID); err != nil {
		return nil, err
	}

	now := time.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&entity.BomVersion{}).
			Where("bill_of_material_id = ? AND is_current = ?", version.BillOfMaterialID, true).
			Update("is_current", false).Error; err != nil {
			return err
		}
		version.IsCurrent = true
		version.PublishedAt = &now
		version.PublishedBy = &publishedBy
		version.PublishNotes = notes
		return tx.Save(version).Error
	})
	if err != nil {
		return nil, fmt.Errorf("发布版本失败: %w", err)
	}

	s.logRepo.LogActivity(ctx, "bom", version.BillOfMaterialID, "", "version_published", "", "",
		fmt.Sprintf("发布版本 v%d", version.VersionNumber), publishedBy)
	return version, nil
}

// CloneVersion 克隆版本产生新修订
// 版本一经发布不再改动，修订通过整树克隆并重映射父子关系实现。
func (s *BOMService) CloneVersion(ctx context.Context, versionID, createdBy string) (*entity.BomVersion, error) {
	source, err := s.bomRepo.FindVersion(ctx, versionID)
	if err != nil {
		return nil, fmt.Errorf("BOM版本不存在: %w", err)
	}

	items, err := s.bomRepo.ItemsByVersion(ctx, versionID)
	if err != nil {
		return nil, fmt.Errorf("读取版本节点失败: %w", err)
	}

	maxVersion, err := s.bomRepo.MaxVersionNumber(ctx, source.BillOfMaterialID)
	if err != nil {
		return nil, err
	}

	clone := &entity.BomVersion{
		ID:               uuid.New().String(),
		BillOfMaterialID: source.BillOfMaterialID,
		VersionNumber:    maxVersion + 1,
		IsCurrent:        false,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(clone).Error; err != nil {
			return err
		}

		// 先分配全部新ID，再重映射父引用
		idMap := make(map[string]string, len(items))
		for i := range items {
			idMap[items[i].ID] = uuid.New().String()
		}
		for i := range items {
			src := items[i]
			copied := entity.BomItem{
				ID:             idMap[src.ID],
				BomVersionID:   clone.ID,
				ItemID:         src.ItemID,
				Quantity:       src.Quantity,
				Level:          src.Level,
				SequenceNumber: src.SequenceNumber,
				QRCode:         src.QRCode,
				Notes:          src.Notes,
			}
			if src.ParentItemID != nil {
				mapped := idMap[*src.ParentItemID]
				copied.ParentItemID = &mapped
			}
			if err := tx.Create(&copied).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("克隆版本失败: %w", err)
	}

	s.logRepo.LogActivity(ctx, "bom", source.BillOfMaterialID, "", "version_cloned", "", "",
		fmt.Sprintf("从 v%d 克隆出 v%d", source.VersionNumber, clone.VersionNumber), createdBy)
	return clone, nil
}

// RootItem 获取版本的唯一根节点
// 无根或多根返回 StructuralError。
func (s *BOMService) RootItem(ctx context.Context, versionID string) (*entity.BomItem, error) {
	roots, err := s.bomRepo.RootItems(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if len(roots) == 0 {
		return nil, structuralErrorf("版本没有根节点")
	}
	if len(roots) > 1 {
		return nil, structuralErrorf("版本存在 %d 个根节点", len(roots))
	}
	return &roots[0], nil
}

// GetTree 获取版本的嵌套节点树
func (s *BOMService) GetTree(ctx context.Context, versionID string) ([]*entity.BomItem, error) {
	flat, err := s.bomRepo.ItemsByVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*entity.BomItem, len(flat))
	for i := range flat {
		flat[i].Children = nil
		byID[flat[i].ID] = &flat[i]
	}

	// 自深向浅挂接，保证节点挂到父节点时自身子树已完整
	var roots []*entity.BomItem
	for i := len(flat) - 1; i >= 0; i-- {
		node := &flat[i]
		if node.ParentItemID == nil {
			roots = append(roots, node)
			continue
		}
		if parent, ok := byID[*node.ParentItemID]; ok {
			parent.Children = append([]entity.BomItem{*node}, parent.Children...)
		}
	}
	return roots, nil
}

// nextBOMNumber 生成BOM编号 BOM-YYMM-NNNNN
func (s *BOMService) nextBOMNumber(ctx context.Context) (string, error) {
	prefix := fmt.Sprintf("BOM-%s-", time.Now().Format("0601"))
	count, err := s.bomRepo.CountByNumberPrefix(ctx, prefix)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%05d", prefix, count+1), nil
}
