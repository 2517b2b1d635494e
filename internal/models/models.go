package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Task sources
const (
	TaskSourceManual     = "manual"
	TaskSourceAutomation = "automation"
)

// Deal 商机
// UpdatedAt 作为“最近活动时间”参与停滞判断
type Deal struct {
	ID          string         `gorm:"primaryKey;size:36" json:"id"`
	WorkspaceID string         `gorm:"index;not null;size:64" json:"workspace_id"`
	StageID     string         `gorm:"index;not null;size:64" json:"stage_id"`
	ContactID   *string        `gorm:"index;size:36" json:"contact_id,omitempty"`
	Title       string         `gorm:"not null" json:"title"`
	Value       *float64       `json:"value,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (d *Deal) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}

// Task 跟进任务
// 自动化任务在 (deal_id, automation_rule_id) 上唯一；手工任务的 automation_rule_id 为空，不受约束
type Task struct {
	ID               string     `gorm:"primaryKey;size:36" json:"id"`
	WorkspaceID      string     `gorm:"index;not null;size:64" json:"workspace_id"`
	DealID           *string    `gorm:"uniqueIndex:idx_tasks_automation_dedup;size:36" json:"deal_id,omitempty"`
	ContactID        *string    `gorm:"index;size:36" json:"contact_id,omitempty"`
	Title            string     `gorm:"not null" json:"title"`
	Description      *string    `gorm:"type:text" json:"description,omitempty"`
	DueDate          *time.Time `json:"due_date,omitempty"`
	Completed        bool       `gorm:"default:false" json:"completed"`
	Source           string     `gorm:"index;default:'manual'" json:"source"` // manual, automation
	AutomationRuleID *string    `gorm:"uniqueIndex:idx_tasks_automation_dedup;size:36" json:"automation_rule_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (t *Task) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}
