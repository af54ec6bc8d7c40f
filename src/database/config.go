package database

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// DatabaseURL selects the driver: postgres:// DSNs open PostgreSQL,
	// anything else is treated as a SQLite path.
	DatabaseURL  string `envconfig:"DATABASE_URL" default:"data/autotrader.db"`
	GormLogLevel int    `envconfig:"GORM_LOG_LEVEL" default:"2"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
