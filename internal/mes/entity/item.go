package entity

import "time"

// Item 物料主数据
// 能力标志相互独立（可制造/可采购/可销售/虚拟件），不使用单一类型枚举。
// PrimaryBomID 指向该物料自有的激活BOM，是订单展开时重新锚定的入口。
type Item struct {
	ID                string     `json:"id" gorm:"primaryKey;size:36"`
	Code              string     `json:"code" gorm:"size:64;not null;uniqueIndex"`
	Name              string     `json:"name" gorm:"size:128;not null"`
	Description       string     `json:"description,omitempty" gorm:"type:text"`
	Unit              string     `json:"unit" gorm:"size:16;not null;default:pcs"`
	CanBeManufactured bool       `json:"can_be_manufactured" gorm:"default:false"`
	CanBePurchased    bool       `json:"can_be_purchased" gorm:"default:false"`
	CanBeSold         bool       `json:"can_be_sold" gorm:"default:false"`
	IsPhantom         bool       `json:"is_phantom" gorm:"default:false"`
	PrimaryBomID      *string    `json:"primary_bom_id,omitempty" gorm:"size:36"`
	Status            string     `json:"status" gorm:"size:16;not null;default:active"`
	CreatedBy         string     `json:"created_by" gorm:"size:64;not null"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	DeletedAt         *time.Time `json:"deleted_at,omitempty" gorm:"index"`

	// 关联
	PrimaryBom *BillOfMaterial `json:"primary_bom,omitempty" gorm:"foreignKey:PrimaryBomID"`
}

func (Item) TableName() string {
	return "mes_items"
}

// ItemStatus 物料状态
const (
	ItemStatusActive   = "active"
	ItemStatusInactive = "inactive"
)
