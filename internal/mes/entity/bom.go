package entity

import "time"

// BillOfMaterial BOM头表
// 描述一个产出物料如何分解，版本化管理；同一时刻最多一个当前版本。
type BillOfMaterial struct {
	ID           string     `json:"id" gorm:"primaryKey;size:36"`
	Number       string     `json:"number" gorm:"size:32;not null;uniqueIndex"` // BOM-YYMM-NNNNN
	Name         string     `json:"name" gorm:"size:128;not null"`
	Description  string     `json:"description,omitempty" gorm:"type:text"`
	OutputItemID string     `json:"output_item_id" gorm:"size:36;not null;index"`
	IsActive     bool       `json:"is_active" gorm:"default:true"`
	CreatedBy    string     `json:"created_by" gorm:"size:64;not null"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty" gorm:"index"`

	// 关联
	OutputItem *Item        `json:"output_item,omitempty" gorm:"foreignKey:OutputItemID"`
	Versions   []BomVersion `json:"versions,omitempty" gorm:"foreignKey:BillOfMaterialID"`
}

func (BillOfMaterial) TableName() string {
	return "mes_bill_of_materials"
}

// BomVersion BOM版本
// 发布后不可变；修订通过克隆产生新版本。
type BomVersion struct {
	ID               string     `json:"id" gorm:"primaryKey;size:36"`
	BillOfMaterialID string     `json:"bill_of_material_id" gorm:"size:36;not null;index"`
	VersionNumber    int        `json:"version_number" gorm:"not null;default:1"`
	IsCurrent        bool       `json:"is_current" gorm:"default:false;index"`
	PublishedBy      *string    `json:"published_by,omitempty" gorm:"size:64"`
	PublishedAt      *time.Time `json:"published_at,omitempty"`
	PublishNotes     string     `json:"publish_notes,omitempty" gorm:"type:text"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`

	// 关联
	BillOfMaterial *BillOfMaterial `json:"bill_of_material,omitempty" gorm:"foreignKey:BillOfMaterialID"`
	Items          []BomItem       `json:"items,omitempty" gorm:"foreignKey:BomVersionID"`
}

func (BomVersion) TableName() string {
	return "mes_bom_versions"
}

// BomItem BOM树节点
// ParentItemID 为空表示根节点；每个版本最多一个根，且根的物料必须等于BOM的产出物料。
// Quantity 是相对直接父项的用量倍数，Level 为树深度（根为0），兄弟按SequenceNumber排序。
type BomItem struct {
	ID             string    `json:"id" gorm:"primaryKey;size:36"`
	BomVersionID   string    `json:"bom_version_id" gorm:"size:36;not null;index"`
	ItemID         string    `json:"item_id" gorm:"size:36;not null;index"`
	ParentItemID   *string   `json:"parent_item_id,omitempty" gorm:"size:36;index"`
	Quantity       float64   `json:"quantity" gorm:"type:numeric(15,4);not null;default:1"`
	Level          int       `json:"level" gorm:"not null;default:0"`
	SequenceNumber int       `json:"sequence_number" gorm:"not null;default:0"`
	QRCode         string    `json:"qr_code,omitempty" gorm:"size:128"` // 外部生成的追溯码，核心只存储比较
	Notes          string    `json:"notes,omitempty" gorm:"type:text"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	// 关联
	Item       *Item      `json:"item,omitempty" gorm:"foreignKey:ItemID"`
	ParentItem *BomItem   `json:"parent_item,omitempty" gorm:"foreignKey:ParentItemID"`
	Children   []BomItem  `json:"children,omitempty" gorm:"foreignKey:ParentItemID"`
	BomVersion *BomVersion `json:"bom_version,omitempty" gorm:"foreignKey:BomVersionID"`
}

func (BomItem) TableName() string {
	return "mes_bom_items"
}
