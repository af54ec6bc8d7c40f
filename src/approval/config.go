package approval

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	BotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
	ChatID   string `envconfig:"TELEGRAM_CHAT_ID"`

	// Encrypted alternatives, decrypted with the credentials key when set.
	BotTokenEnc string `envconfig:"TELEGRAM_BOT_TOKEN_ENC"`

	BaseURL      string        `envconfig:"TELEGRAM_BASE_URL" default:"https://api.telegram.org"`
	PollInterval time.Duration `envconfig:"TELEGRAM_POLL_INTERVAL" default:"5s"`
	PollTimeout  int           `envconfig:"TELEGRAM_POLL_TIMEOUT" default:"20"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
