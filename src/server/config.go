package server

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Port of the health/status listener.
	Port string `envconfig:"PORT" default:"9898"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
