package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dealflow/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrDuplicateAutomationTask is returned when the (deal, rule) pair already
// has an automation task.
var ErrDuplicateAutomationTask = errors.New("automation task already exists for deal")

// TaskService 任务存储，实现 TaskSink
type TaskService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewTaskService(db *gorm.DB, logger *logrus.Logger) *TaskService {
	if logger == nil {
		logger = logrus.New()
	}
	return &TaskService{db: db, logger: logger}
}

// CreateTask persists a task. Automation tasks are idempotent on
// (deal_id, automation_rule_id) via the unique index.
func (s *TaskService) CreateTask(ctx context.Context, req TaskCreationRequest) (*models.Task, error) {
	if strings.TrimSpace(req.WorkspaceID) == "" {
		return nil, fmt.Errorf("workspace required")
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, fmt.Errorf("task title required")
	}
	source := req.Source
	if source == "" {
		source = models.TaskSourceManual
	}

	due := req.DueDate
	now := time.Now()
	task := &models.Task{
		WorkspaceID: req.WorkspaceID,
		ContactID:   req.ContactID,
		Title:       req.Title,
		Description: req.Description,
		Source:      source,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if !due.IsZero() {
		task.DueDate = &due
	}
	if req.DealID != "" {
		dealID := req.DealID
		task.DealID = &dealID
	}
	if source != models.TaskSourceAutomation {
		if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
			return nil, err
		}
		return task, nil
	}

	if req.AutomationRuleID == "" || req.DealID == "" {
		return nil, fmt.Errorf("automation task requires deal and rule")
	}
	ruleID := req.AutomationRuleID
	task.AutomationRuleID = &ruleID

	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(task)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrDuplicateAutomationTask
	}
	return task, nil
}

// TaskListRequest 任务列表过滤条件
type TaskListRequest struct {
	DealID string `form:"deal_id"`
	Source string `form:"source"`
}

// ListTasks 按创建时间倒序列出任务
func (s *TaskService) ListTasks(ctx context.Context, workspaceID string, req *TaskListRequest) ([]models.Task, error) {
	q := s.db.WithContext(ctx).Where("workspace_id = ?", workspaceID)
	if req != nil {
		if req.DealID != "" {
			q = q.Where("deal_id = ?", req.DealID)
		}
		if req.Source != "" {
			q = q.Where("source = ?", req.Source)
		}
	}
	var tasks []models.Task
	if err := q.Order("created_at DESC").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}
