package cli

import (
	"context"
	"fmt"
	"sync/atomic"

	"dealflow/internal/services"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep <workspace-id>",
	Short: "Run one stale-deal sweep for a workspace and wait for task creation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log := LoadConfig()
		db, err := openDatabase(cfg, log)
		if err != nil {
			return err
		}
		tasks := services.NewTaskService(db, log)
		engine := services.NewAutomationEngine(args[0],
			services.NewAutomationRuleService(db, log),
			services.NewDealService(db, log),
			tasks, log)

		var created int64
		engine.OnTaskCreated(func(evt services.TaskCreatedEvent) {
			atomic.AddInt64(&created, 1)
			fmt.Fprintf(cmd.OutOrStdout(), "created %q for deal %s (rule %s)\n", evt.TaskTitle, evt.DealID, evt.RuleID)
		})

		ctx := context.Background()
		if err := engine.RefreshRules(ctx); err != nil {
			return fmt.Errorf("load rules: %w", err)
		}
		engine.RunStaleDealsCheck(ctx)
		engine.Wait()
		fmt.Fprintf(cmd.OutOrStdout(), "sweep finished: %d task(s) created\n", atomic.LoadInt64(&created))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
