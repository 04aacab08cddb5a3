package entity

import "time"

// ScheduleStatus 排程状态
const (
	ScheduleStatusScheduled  = "scheduled"
	ScheduleStatusReady      = "ready"
	ScheduleStatusInProgress = "in_progress"
	ScheduleStatusCompleted  = "completed"
	ScheduleStatusDelayed    = "delayed"
	ScheduleStatusCancelled  = "cancelled"
)

// ActiveScheduleStatuses 参与冲突检测的状态集合
// completed/cancelled 的区间不再占用产能。
var ActiveScheduleStatuses = []string{
	ScheduleStatusScheduled,
	ScheduleStatusReady,
	ScheduleStatusInProgress,
}

// ProductionSchedule 生产排程
// 绑定一个工作单元和一道工序的具体时间区间 [ScheduledStart, ScheduledEnd)。
// 不变量：同一工作单元上两个活动状态的排程区间不得重叠。
type ProductionSchedule struct {
	ID                   string    `json:"id" gorm:"primaryKey;size:36"`
	WorkCellID           string    `json:"work_cell_id" gorm:"size:36;not null;index"`
	RoutingStepID        string    `json:"routing_step_id" gorm:"size:36;not null;index"`
	ManufacturingOrderID string    `json:"manufacturing_order_id" gorm:"size:36;not null;index"`
	ScheduledStart       time.Time `json:"scheduled_start" gorm:"not null;index"`
	ScheduledEnd         time.Time `json:"scheduled_end" gorm:"not null"`
	Status               string    `json:"status" gorm:"size:16;not null;default:scheduled"`
	BufferTimeMinutes    float64   `json:"buffer_time_minutes" gorm:"type:numeric(10,2);default:0"`
	Notes                string    `json:"notes,omitempty" gorm:"type:text"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`

	// 关联
	WorkCell    *WorkCell    `json:"work_cell,omitempty" gorm:"foreignKey:WorkCellID"`
	RoutingStep *RoutingStep `json:"routing_step,omitempty" gorm:"foreignKey:RoutingStepID"`
}

func (ProductionSchedule) TableName() string {
	return "mes_production_schedules"
}

// IsActive 排程是否占用产能
func (s *ProductionSchedule) IsActive() bool {
	switch s.Status {
	case ScheduleStatusScheduled, ScheduleStatusReady, ScheduleStatusInProgress:
		return true
	}
	return false
}

// Overlaps 半开区间重叠判定
func (s *ProductionSchedule) Overlaps(start, end time.Time) bool {
	return s.ScheduledStart.Before(end) && s.ScheduledEnd.After(start)
}

// DurationMinutes 区间时长（分钟）
func (s *ProductionSchedule) DurationMinutes() float64 {
	return s.ScheduledEnd.Sub(s.ScheduledStart).Minutes()
}
