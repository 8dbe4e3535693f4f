package e2e

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// E2E_STOMP_URL points at a running room service, live scenarios are skipped without it
	StompURL string `envconfig:"E2E_STOMP_URL"`
	// E2E_HISTORY_BASE_URL is the REST base of the same room service
	HistoryBaseURL string `envconfig:"E2E_HISTORY_BASE_URL" default:"http://localhost:8080"`
	// E2E_ROOM_ID must exist on the live room service
	RoomID int64 `envconfig:"E2E_ROOM_ID" default:"1"`
	// E2E_COLOURS enables colorized step headers
	Colours bool          `envconfig:"E2E_COLOURS" default:"true"`
	Timeout time.Duration `envconfig:"E2E_TIMEOUT" default:"5s"`
	Debug   bool          `envconfig:"E2E_DEBUG" default:"false"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
