package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"dealflow/internal/models"
	"dealflow/internal/services"

	"github.com/spf13/cobra"
)

var rulesCmd = &cobra.Command{
	Use:   "rules <workspace-id>",
	Short: "List a workspace's automation rules with their decoded triggers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log := LoadConfig()
		db, err := openDatabase(cfg, log)
		if err != nil {
			return err
		}
		rules, err := services.NewAutomationRuleService(db, log).ListRules(context.Background(), args[0])
		if err != nil {
			return err
		}
		return printRules(cmd.OutOrStdout(), rules)
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
}

func printRules(out io.Writer, rules []models.AutomationRule) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tENABLED\tTRIGGER\tSTATUS")
	for _, m := range rules {
		rule, err := services.RuleFromModel(m)
		status := "ok"
		if err != nil {
			status = "malformed: " + err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\n", m.ID, m.Name, m.Enabled, describeTrigger(rule.Trigger), status)
	}
	return tw.Flush()
}

func describeTrigger(t services.Trigger) string {
	switch v := t.(type) {
	case services.DealStaleTrigger:
		return fmt.Sprintf("stale >= %dd", v.StaleDays)
	case services.DealStageChangedTrigger:
		if v.FromStageID != nil {
			return fmt.Sprintf("stage %s -> %s", *v.FromStageID, v.ToStageID)
		}
		return "stage * -> " + v.ToStageID
	case services.DealCreatedTrigger:
		if v.StageID != nil {
			return "created in " + *v.StageID
		}
		return "created"
	default:
		return "-"
	}
}
