package entity

import "time"

// OrderStatus 制造订单状态
// 状态只向前推进，cancelled 是唯一的例外出口。
const (
	OrderStatusDraft      = "draft"
	OrderStatusPlanned    = "planned"
	OrderStatusReleased   = "released"
	OrderStatusInProgress = "in_progress"
	OrderStatusCompleted  = "completed"
	OrderStatusCancelled  = "cancelled"
)

// ManufacturingOrder 制造订单
// 一次需求实例；BOM展开生成的订单树通过 ParentID 自引用关联，
// 子订单计数器与实际子订单数保持一致。
type ManufacturingOrder struct {
	ID                        string     `json:"id" gorm:"primaryKey;size:36"`
	Number                    string     `json:"number" gorm:"size:64;not null;uniqueIndex"` // MO-NNNNN-YYMM，子订单 {parent}-NNN
	ItemID                    string     `json:"item_id" gorm:"size:36;not null;index"`
	BillOfMaterialID          *string    `json:"bill_of_material_id,omitempty" gorm:"size:36;index"`
	ParentID                  *string    `json:"parent_id,omitempty" gorm:"size:36;index"`
	Quantity                  float64    `json:"quantity" gorm:"type:numeric(15,4);not null"`
	ScrappedQuantity          float64    `json:"scrapped_quantity" gorm:"type:numeric(15,4);default:0"`
	Status                    string     `json:"status" gorm:"size:16;not null;default:draft"`
	Priority                  int        `json:"priority" gorm:"default:0"`
	RequestedDate             *time.Time `json:"requested_date,omitempty"`
	ActualStartDate           *time.Time `json:"actual_start_date,omitempty"`
	ActualEndDate             *time.Time `json:"actual_end_date,omitempty"`
	ChildOrdersCount          int        `json:"child_orders_count" gorm:"default:0"`
	CompletedChildOrdersCount int        `json:"completed_child_orders_count" gorm:"default:0"`
	AutoCompleteOnChildren    bool       `json:"auto_complete_on_children" gorm:"default:true"`
	Notes                     string     `json:"notes,omitempty" gorm:"type:text"`
	CreatedBy                 string     `json:"created_by" gorm:"size:64;not null"`
	CreatedAt                 time.Time  `json:"created_at"`
	UpdatedAt                 time.Time  `json:"updated_at"`

	// 关联
	Item           *Item                `json:"item,omitempty" gorm:"foreignKey:ItemID"`
	BillOfMaterial *BillOfMaterial      `json:"bill_of_material,omitempty" gorm:"foreignKey:BillOfMaterialID"`
	Parent         *ManufacturingOrder  `json:"parent,omitempty" gorm:"foreignKey:ParentID"`
	Children       []ManufacturingOrder `json:"children,omitempty" gorm:"foreignKey:ParentID"`
}

func (ManufacturingOrder) TableName() string {
	return "mes_manufacturing_orders"
}

// IsTerminal 订单是否已处于终止状态
func (o *ManufacturingOrder) IsTerminal() bool {
	return o.Status == OrderStatusCompleted || o.Status == OrderStatusCancelled
}

// orderStatusRank 状态推进顺序（cancelled 除外）
var orderStatusRank = map[string]int{
	OrderStatusDraft:      0,
	OrderStatusPlanned:    1,
	OrderStatusReleased:   2,
	OrderStatusInProgress: 3,
	OrderStatusCompleted:  4,
}

// CanTransitionTo 校验状态迁移：只允许向前推进，任何非终止状态可取消。
func (o *ManufacturingOrder) CanTransitionTo(next string) bool {
	if next == OrderStatusCancelled {
		return !o.IsTerminal()
	}
	from, ok := orderStatusRank[o.Status]
	if !ok {
		return false
	}
	to, ok := orderStatusRank[next]
	if !ok {
		return false
	}
	return to > from
}
