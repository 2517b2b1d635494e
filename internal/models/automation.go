package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AutomationRule 自动化规则定义
type AutomationRule struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	WorkspaceID   string    `gorm:"index;not null;size:64" json:"workspace_id"`
	Name          string    `gorm:"not null" json:"name"`
	Description   *string   `gorm:"type:text" json:"description,omitempty"`
	Enabled       bool      `gorm:"index" json:"enabled"`
	TriggerType   string    `gorm:"not null;size:32" json:"trigger_type"` // deal_stale, deal_stage_changed, deal_created
	TriggerConfig string    `gorm:"type:text" json:"trigger_config"`      // JSON: {"staleDays":7} / {"toStageId":"..","fromStageId":".."} / {"stageId":".."}
	ActionType    string    `gorm:"not null;size:32" json:"action_type"`  // create_task
	ActionConfig  string    `gorm:"type:text" json:"action_config"`       // JSON: {"taskTitle":"..","taskDescription":"..","dueDaysFromNow":1}
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (r *AutomationRule) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
