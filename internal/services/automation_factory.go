package services

import (
	"strings"
	"time"

	"dealflow/internal/models"
)

const dealTitleToken = "{dealTitle}"

// TaskCreationRequest 提交给任务存储的创建请求
type TaskCreationRequest struct {
	WorkspaceID      string
	DealID           string
	ContactID        *string
	Title            string
	Description      *string
	DueDate          time.Time
	Source           string
	AutomationRuleID string
}

// RenderTemplate replaces {dealTitle}; any other token is kept verbatim.
func RenderTemplate(tpl string, deal models.Deal) string {
	return strings.ReplaceAll(tpl, dealTitleToken, deal.Title)
}

// TaskFactory renders a rule's CreateTask action against a deal.
type TaskFactory struct {
	now func() time.Time
}

func NewTaskFactory(now func() time.Time) *TaskFactory {
	if now == nil {
		now = time.Now
	}
	return &TaskFactory{now: now}
}

// Build never fails; validation is left to the sink. The caller guarantees
// the rule carries a CreateTaskAction.
func (f *TaskFactory) Build(rule AutomationRule, deal models.Deal) TaskCreationRequest {
	act, _ := rule.Action.(CreateTaskAction)
	req := TaskCreationRequest{
		WorkspaceID:      deal.WorkspaceID,
		DealID:           deal.ID,
		ContactID:        deal.ContactID,
		Title:            RenderTemplate(act.TaskTitle, deal),
		DueDate:          f.now().AddDate(0, 0, act.DueDaysFromNow),
		Source:           models.TaskSourceAutomation,
		AutomationRuleID: rule.ID,
	}
	if act.TaskDescription != nil {
		desc := RenderTemplate(*act.TaskDescription, deal)
		req.Description = &desc
	}
	return req
}
