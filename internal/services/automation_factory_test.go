package services

import (
	"testing"
	"time"

	"dealflow/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTemplate(t *testing.T) {
	deal := models.Deal{Title: "Acme Renewal"}
	tests := []struct {
		tpl  string
		want string
	}{
		{"Follow up: {dealTitle}", "Follow up: Acme Renewal"},
		{"{dealTitle} / {dealTitle}", "Acme Renewal / Acme Renewal"},
		{"No placeholder", "No placeholder"},
		{"{contactName} for {dealTitle}", "{contactName} for Acme Renewal"},
		{"{dealtitle}", "{dealtitle}"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RenderTemplate(tt.tpl, deal))
	}
	// substituted text is not rescanned
	assert.Equal(t, "x {dealTitle}", RenderTemplate("x {dealTitle}", models.Deal{Title: "{dealTitle}"}))
}

func TestTaskFactory_Build(t *testing.T) {
	now := time.Date(2024, 1, 31, 9, 30, 0, 0, time.UTC)
	f := NewTaskFactory(func() time.Time { return now })
	rule := AutomationRule{
		ID:      "rule-1",
		Enabled: true,
		Trigger: DealCreatedTrigger{},
		Action: CreateTaskAction{
			TaskTitle:       "Welcome {dealTitle}",
			TaskDescription: strPtr("Kick off {dealTitle}"),
			DueDaysFromNow:  1,
		},
	}
	deal := models.Deal{ID: "d1", WorkspaceID: "ws-1", Title: "Acme", ContactID: strPtr("c1")}

	req := f.Build(rule, deal)
	assert.Equal(t, "ws-1", req.WorkspaceID)
	assert.Equal(t, "d1", req.DealID)
	assert.Equal(t, "rule-1", req.AutomationRuleID)
	assert.Equal(t, models.TaskSourceAutomation, req.Source)
	assert.Equal(t, "Welcome Acme", req.Title)
	require.NotNil(t, req.Description)
	assert.Equal(t, "Kick off Acme", *req.Description)
	require.NotNil(t, req.ContactID)
	assert.Equal(t, "c1", *req.ContactID)
	assert.Equal(t, time.Date(2024, 2, 1, 9, 30, 0, 0, time.UTC), req.DueDate)
}

func TestTaskFactory_BuildWithoutOptionalFields(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	f := NewTaskFactory(func() time.Time { return now })
	rule := taskRule("r1", DealStaleTrigger{StaleDays: 7}, "Check in", 0)

	req := f.Build(rule, models.Deal{ID: "d1", WorkspaceID: "ws-1", Title: "Beta"})
	assert.Nil(t, req.Description)
	assert.Nil(t, req.ContactID)
	assert.Equal(t, now, req.DueDate)
	assert.Equal(t, "Check in", req.Title)
}
