package entity

import "time"

// ExecutionStatus 工序执行记录状态
const (
	ExecutionStatusInProgress = "in_progress"
	ExecutionStatusOnHold     = "on_hold"
	ExecutionStatusCompleted  = "completed"
	ExecutionStatusSkipped    = "skipped"
)

// QualityResult 质检结论
const (
	QualityResultPassed = "passed"
	QualityResultFailed = "failed"
)

// FailureAction 质检失败处置
const (
	FailureActionScrap  = "scrap"
	FailureActionRework = "rework"
)

// ManufacturingStepExecution 工序执行记录
// 一道工序的一次具体执行；逐件质检时一道工序会产生多条记录（PartNumber 1..N）。
// 暂停不阻塞线程，是持久状态：恢复时累计 now - OnHoldAt 到 TotalHoldMinutes。
type ManufacturingStepExecution struct {
	ID                   string     `json:"id" gorm:"primaryKey;size:36"`
	RoutingStepID        string     `json:"routing_step_id" gorm:"size:36;not null;index"`
	ManufacturingOrderID string     `json:"manufacturing_order_id" gorm:"size:36;not null;index"`
	PartNumber           *int       `json:"part_number,omitempty"` // 逐件/抽样质检的件序号
	Status               string     `json:"status" gorm:"size:16;not null;default:in_progress"`
	StartedAt            *time.Time `json:"started_at,omitempty"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
	OnHoldAt             *time.Time `json:"on_hold_at,omitempty"`
	ResumedAt            *time.Time `json:"resumed_at,omitempty"`
	TotalHoldMinutes     float64    `json:"total_hold_minutes" gorm:"type:numeric(12,2);default:0"`
	QualityResult        *string    `json:"quality_result,omitempty" gorm:"size:16"`
	FailureAction        *string    `json:"failure_action,omitempty" gorm:"size:16"`
	Notes                string     `json:"notes,omitempty" gorm:"type:text"`
	ExecutedBy           string     `json:"executed_by" gorm:"size:64;not null"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`

	// 关联
	RoutingStep *RoutingStep `json:"routing_step,omitempty" gorm:"foreignKey:RoutingStepID"`
}

func (ManufacturingStepExecution) TableName() string {
	return "mes_step_executions"
}

// IsClosed 执行记录是否已关闭
func (e *ManufacturingStepExecution) IsClosed() bool {
	return e.Status == ExecutionStatusCompleted || e.Status == ExecutionStatusSkipped
}
