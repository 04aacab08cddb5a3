package entity

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// JSONB jsonb字段
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(b, j)
}

// ActivityLog 业务事件记录
// 核心只产出离散事件数据（订单创建、工序完成、质检失败等），
// 投递与通知由外部系统消费，不在本模块范围内。
type ActivityLog struct {
	ID         string `json:"id" gorm:"primaryKey;size:36"`
	EntityType string `json:"entity_type" gorm:"size:50;not null;index:idx_mes_activity_entity"` // order/step/schedule/bom
	EntityID   string `json:"entity_id" gorm:"size:36;not null;index:idx_mes_activity_entity"`
	EntityCode string `json:"entity_code" gorm:"size:64"`

	Action     string `json:"action" gorm:"size:50;not null"` // order_created/step_completed/quality_failed等
	FromStatus string `json:"from_status" gorm:"size:20"`
	ToStatus   string `json:"to_status" gorm:"size:20"`

	Content  string `json:"content" gorm:"type:text"`
	Metadata JSONB  `json:"metadata" gorm:"type:jsonb"`

	OperatorID string    `json:"operator_id" gorm:"size:64"`
	CreatedAt  time.Time `json:"created_at"`
}

func (ActivityLog) TableName() string {
	return "mes_activity_logs"
}
