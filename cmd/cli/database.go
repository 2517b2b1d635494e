package cli

import (
	"fmt"

	"dealflow/internal/config"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	gormtracing "gorm.io/plugin/opentelemetry/tracing"
)

// openDatabase 连接 Postgres，按配置设置连接池并在启用追踪时挂载 gorm 插件
func openDatabase(cfg *config.Config, log *logrus.Logger) (*gorm.DB, error) {
	level := logger.Warn
	if cfg.Log.Level == "debug" {
		level = logger.Info
	}
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{Logger: logger.Default.LogMode(level)})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if cfg.Monitoring.Tracing.Enabled {
		if err := db.Use(gormtracing.NewPlugin()); err != nil {
			log.Warnf("gorm tracing plugin: %v", err)
		}
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.Database.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}
	if cfg.Database.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	}
	if cfg.Database.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	}
	return db, nil
}

// LoadConfig 读取配置并初始化日志
func LoadConfig() (*config.Config, *logrus.Logger) {
	cfg := config.Load()
	if err := config.InitLogger(cfg); err != nil {
		logrus.Warnf("init logger: %v", err)
	}
	return cfg, logrus.StandardLogger()
}
