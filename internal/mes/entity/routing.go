package entity

import "time"

// RoutingType 工艺路线来源
const (
	RoutingTypeDefined   = "defined"   // 本节点定义，终止继承树诊断
	RoutingTypeInherited = "inherited" // 从祖先继承而来
)

// StepStatus 工序状态
const (
	StepStatusPending    = "pending"
	StepStatusQueued     = "queued"
	StepStatusInProgress = "in_progress"
	StepStatusOnHold     = "on_hold"
	StepStatusCompleted  = "completed"
	StepStatusSkipped    = "skipped"
)

// StepType 工序类型
const (
	StepTypeStandard     = "standard"
	StepTypeQualityCheck = "quality_check"
	StepTypeRework       = "rework"
)

// QualityCheckMode 质检执行模式
const (
	QualityCheckEveryPart = "every_part"
	QualityCheckEntireLot = "entire_lot"
	QualityCheckSampling  = "sampling"
)

// DependencyCompleted 唯一支持的依赖放行条件
const DependencyCompleted = "completed"

// ProductionRouting 生产工艺路线
// 可挂在BOM节点（一对一）或直接挂在制造订单上。
type ProductionRouting struct {
	ID                   string     `json:"id" gorm:"primaryKey;size:36"`
	Number               string     `json:"number" gorm:"size:32;not null;uniqueIndex"`
	Name                 string     `json:"name" gorm:"size:128;not null"`
	BomItemID            *string    `json:"bom_item_id,omitempty" gorm:"size:36;index"`
	ManufacturingOrderID *string    `json:"manufacturing_order_id,omitempty" gorm:"size:36;index"`
	RoutingType          string     `json:"routing_type" gorm:"size:16;not null;default:defined"`
	IsActive             bool       `json:"is_active" gorm:"default:true"`
	CreatedBy            string     `json:"created_by" gorm:"size:64;not null"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
	DeletedAt            *time.Time `json:"deleted_at,omitempty" gorm:"index"`

	// 关联
	BomItem *BomItem      `json:"bom_item,omitempty" gorm:"foreignKey:BomItemID"`
	Steps   []RoutingStep `json:"steps,omitempty" gorm:"foreignKey:RoutingID"`
}

func (ProductionRouting) TableName() string {
	return "mes_production_routings"
}

// RoutingStep 工序
// StepNumber 在同一路线内唯一且连续；除第一道工序外必须有前置依赖，
// 形成严格串行的执行链。
type RoutingStep struct {
	ID                     string    `json:"id" gorm:"primaryKey;size:36"`
	RoutingID              string    `json:"routing_id" gorm:"size:36;not null;index"`
	StepNumber             int       `json:"step_number" gorm:"not null"`
	Name                   string    `json:"name" gorm:"size:128;not null"`
	Description            string    `json:"description,omitempty" gorm:"type:text"`
	StepType               string    `json:"step_type" gorm:"size:16;not null;default:standard"`
	Status                 string    `json:"status" gorm:"size:16;not null;default:pending"`
	SetupTimeMinutes       float64   `json:"setup_time_minutes" gorm:"type:numeric(10,2);default:0"`
	CycleTimeMinutes       float64   `json:"cycle_time_minutes" gorm:"type:numeric(10,2);not null"`
	TeardownTimeMinutes    float64   `json:"teardown_time_minutes" gorm:"type:numeric(10,2);default:0"`
	WorkCellID             *string   `json:"work_cell_id,omitempty" gorm:"size:36;index"`
	DependsOnStepID        *string   `json:"depends_on_step_id,omitempty" gorm:"size:36"`
	CanStartWhenDependency string    `json:"can_start_when_dependency" gorm:"size:16;not null;default:completed"`
	QualityCheckMode       string    `json:"quality_check_mode,omitempty" gorm:"size:16"`
	SamplingSize           *int      `json:"sampling_size,omitempty"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`

	// 关联
	Routing       *ProductionRouting `json:"routing,omitempty" gorm:"foreignKey:RoutingID"`
	WorkCell      *WorkCell          `json:"work_cell,omitempty" gorm:"foreignKey:WorkCellID"`
	DependsOnStep *RoutingStep       `json:"depends_on_step,omitempty" gorm:"foreignKey:DependsOnStepID"`
}

func (RoutingStep) TableName() string {
	return "mes_routing_steps"
}

// IsTerminal 工序是否已处于终止状态
func (s *RoutingStep) IsTerminal() bool {
	return s.Status == StepStatusCompleted || s.Status == StepStatusSkipped
}
