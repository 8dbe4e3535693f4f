package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

type Config struct {
	LogLevel string `env:"LOG_LEVEL,default=INFO"`

	UserID   int64  `env:"USER_ID,required=true"`
	Nickname string `env:"NICKNAME,required=true"`

	Transport string `env:"TRANSPORT,default=stomp"`
	StompURL  string `env:"STOMP_URL,default=ws://localhost:8080/ws"`
	NatsURL   string `env:"NATS_URL,default=nats://127.0.0.1:4222"`
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`

	HistorySource  string        `env:"HISTORY_SOURCE,default=http"`
	HistoryBaseURL string        `env:"HISTORY_BASE_URL,default=http://localhost:8080"`
	HistoryLimit   int           `env:"HISTORY_LIMIT,default=100"`
	HistoryTimeout time.Duration `env:"HISTORY_TIMEOUT,default=5s"`
	HistorySubject string        `env:"HISTORY_SUBJECT,default=rooms.history"`

	ReconnectDelay  time.Duration `env:"RECONNECT_DELAY,default=5s"`
	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=1s"`
	InboxSize       int           `env:"INBOX_SIZE,default=256"`
	SinkBufferSize  int           `env:"SINK_BUFFER_SIZE,default=256"`
	SinkTimeout     time.Duration `env:"SINK_TIMEOUT,default=500ms"`
	MetricInterval  time.Duration `env:"METRIC_INTERVAL,default=10s"`

	BadgerFilepath string        `env:"BADGER_FILEPATH"`
	CacheTTL       time.Duration `env:"CACHE_TTL,default=168h"`
	DebugPort      int           `env:"DEBUG_PORT"`

	CensoredWords   string `env:"CENSORED_WORDS"`
	CharReplacement string `env:"CHARACTER_REPLACEMENT,default=*"`
}

// LoadConfig reads a .env file when present, the environment wins over it.
func LoadConfig(files ...string) (Config, error) {
	_ = godotenv.Load(files...)
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if config.HistoryLimit <= 0 {
		return Config{}, fmt.Errorf("HISTORY_LIMIT must be positive, got %d", config.HistoryLimit)
	}
	return config, nil
}

// Words splits CENSORED_WORDS on commas.
func (c Config) Words() []string {
	var words []string
	for _, w := range strings.Split(c.CensoredWords, ",") {
		if w = strings.TrimSpace(w); w != "" {
			words = append(words, w)
		}
	}
	return words
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
