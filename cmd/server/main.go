package main

import (
	"dealflow/cmd/cli"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

func main() {
	// 读取配置文件（默认 ./config.yml）并初始化日志
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("DEALFLOW")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()

	cfg, log := cli.LoadConfig()
	if err := cli.Serve(cfg, log); err != nil {
		logrus.Fatalf("dealflow server: %v", err)
	}
}
