package cli

import (
	"bytes"
	"testing"

	"dealflow/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintRules(t *testing.T) {
	var buf bytes.Buffer
	err := printRules(&buf, []models.AutomationRule{
		{ID: "r1", Name: "Stale", Enabled: true, TriggerType: "deal_stale", TriggerConfig: `{"staleDays":7}`,
			ActionType: "create_task", ActionConfig: `{"taskTitle":"x"}`},
		{ID: "r2", Name: "Won", Enabled: false, TriggerType: "deal_stage_changed", TriggerConfig: `{"toStageId":"won","fromStageId":"nego"}`,
			ActionType: "create_task", ActionConfig: `{"taskTitle":"x"}`},
		{ID: "r3", Name: "Broken", Enabled: true, TriggerType: "deal_stale", TriggerConfig: `{"staleDays":0}`,
			ActionType: "create_task", ActionConfig: `{"taskTitle":"x"}`},
	})
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "stale >= 7d")
	assert.Contains(t, out, "stage nego -> won")
	assert.Contains(t, out, "malformed")
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "Version: dev")
}
