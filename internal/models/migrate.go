package models

import "gorm.io/gorm"

// AllModels 需要迁移的全部模型
func AllModels() []interface{} {
	return []interface{}{&Deal{}, &Task{}, &AutomationRule{}}
}

// AutoMigrate 迁移表结构并创建查询用复合索引
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return err
	}
	for _, stmt := range []string{
		// stale sweeps scan a workspace by last activity
		"CREATE INDEX IF NOT EXISTS idx_deals_workspace_updated ON deals(workspace_id, updated_at)",
		"CREATE INDEX IF NOT EXISTS idx_rules_workspace_enabled ON automation_rules(workspace_id, enabled)",
		"CREATE INDEX IF NOT EXISTS idx_tasks_workspace_created ON tasks(workspace_id, created_at)",
	} {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
