package entity

import "time"

// WorkCell 工作单元
// 有限产能资源（机台、产线或外协档期），拥有一组排程区间。
type WorkCell struct {
	ID                   string     `json:"id" gorm:"primaryKey;size:36"`
	Code                 string     `json:"code" gorm:"size:64;not null;uniqueIndex"`
	Name                 string     `json:"name" gorm:"size:128;not null"`
	Description          string     `json:"description,omitempty" gorm:"type:text"`
	AvailableHoursPerDay float64    `json:"available_hours_per_day" gorm:"type:numeric(5,2);not null;default:8"`
	EfficiencyPercentage float64    `json:"efficiency_percentage" gorm:"type:numeric(5,2);not null;default:100"`
	IsActive             bool       `json:"is_active" gorm:"default:true"`
	CreatedBy            string     `json:"created_by" gorm:"size:64;not null"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
	DeletedAt            *time.Time `json:"deleted_at,omitempty" gorm:"index"`

	// 关联
	Schedules []ProductionSchedule `json:"schedules,omitempty" gorm:"foreignKey:WorkCellID"`
}

func (WorkCell) TableName() string {
	return "mes_work_cells"
}
