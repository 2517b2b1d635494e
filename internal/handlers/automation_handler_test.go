package handlers

import (
	"net/http"
	"testing"
	"time"

	"dealflow/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutomationHandler_RuleCRUD(t *testing.T) {
	s := newTestServer(t)
	base := "/api/workspaces/ws-1/automations"

	w := s.do(t, http.MethodPost, base, "ws-1", gin.H{
		"name":           "Stale follow-up",
		"trigger_type":   "deal_stale",
		"trigger_config": gin.H{"staleDays": 7},
		"action_type":    "create_task",
		"action_config":  gin.H{"taskTitle": "Follow up: {dealTitle}", "dueDaysFromNow": 1},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rule := decode[models.AutomationRule](t, w)
	assert.True(t, rule.Enabled)

	w = s.do(t, http.MethodGet, base+"/"+rule.ID, "ws-1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPut, base+"/"+rule.ID, "ws-1", gin.H{"enabled": false})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.False(t, decode[models.AutomationRule](t, w).Enabled)

	w = s.do(t, http.MethodGet, base, "ws-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.AutomationRule](t, w), 1)

	w = s.do(t, http.MethodDelete, base+"/"+rule.ID, "ws-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodGet, base+"/"+rule.ID, "ws-1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAutomationHandler_Validation(t *testing.T) {
	s := newTestServer(t)
	base := "/api/workspaces/ws-1/automations"

	w := s.do(t, http.MethodPost, base, "ws-1", gin.H{"name": "missing trigger"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, base, "ws-1", gin.H{
		"name": "bad stale", "trigger_type": "deal_stale", "trigger_config": gin.H{"staleDays": 0},
		"action_type": "create_task", "action_config": gin.H{"taskTitle": "x"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, base, "ws-1", gin.H{
		"name": "unknown trigger", "trigger_type": "contact_created",
		"action_type": "create_task", "action_config": gin.H{"taskTitle": "x"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAutomationHandler_WorkspaceIsolation(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/workspaces/ws-1/automations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/api/workspaces/ws-1/automations", "ws-2", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAutomationHandler_EditsReachRunningEngine(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/workspaces/ws-1/automations/refresh", "ws-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	engine, ok := s.registry.Lookup("ws-1")
	require.True(t, ok)
	assert.Empty(t, engine.Rules())

	w = s.do(t, http.MethodPost, "/api/workspaces/ws-1/automations", "ws-1", gin.H{
		"name": "Welcome", "trigger_type": "deal_created",
		"action_type": "create_task", "action_config": gin.H{"taskTitle": "Welcome {dealTitle}"},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Len(t, engine.Rules(), 1)
}

func TestAutomationHandler_SweepCreatesStaleTasks(t *testing.T) {
	s := newTestServer(t)
	old := time.Now().Add(-10 * 24 * time.Hour)
	require.NoError(t, s.db.Create(&models.Deal{
		WorkspaceID: "ws-1", StageID: "lead", Title: "Dormant", CreatedAt: old, UpdatedAt: old,
	}).Error)

	w := s.do(t, http.MethodPost, "/api/workspaces/ws-1/automations", "ws-1", gin.H{
		"name": "Stale", "trigger_type": "deal_stale", "trigger_config": gin.H{"staleDays": 7},
		"action_type": "create_task", "action_config": gin.H{"taskTitle": "Revive {dealTitle}"},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	for i := 0; i < 2; i++ {
		w = s.do(t, http.MethodPost, "/api/workspaces/ws-1/automations/sweep?wait=true", "ws-1", nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w = s.do(t, http.MethodGet, "/api/workspaces/ws-1/tasks?source=automation", "ws-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	tasks := decode[[]models.Task](t, w)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Revive Dormant", tasks[0].Title)
}
