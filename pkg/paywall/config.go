package paywall

import (
	"errors"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds paywall-wide settings read from the environment.
type Config struct {
	PromoCacheTTL  time.Duration `env:"PAYWALL_PROMO_CACHE_TTL" envDefault:"5m"`
	AutoResetDelay time.Duration `env:"PAYWALL_AUTO_RESET_DELAY" envDefault:"0"` // 0 disables the timer; reset is caller-driven
	CatalogURL     string        `env:"PAYWALL_CATALOG_URL"`
	CatalogToken   string        `env:"PAYWALL_CATALOG_TOKEN"`
	RedisURL       string        `env:"PAYWALL_REDIS_URL"`
	StatusKeyTTL   time.Duration `env:"PAYWALL_STATUS_KEY_TTL" envDefault:"720h"`
}

var defaultEnvLoaded sync.Once

// LoadConfig parses paywall configuration from environment variables,
// loading a .env file first if one exists.
func LoadConfig() (Config, error) {
	defaultEnvLoaded.Do(func() {
		// The .env file might not exist and that's ok.
		_ = godotenv.Load()
	})

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Join(ErrFailedToLoadEnv, err)
	}
	return cfg, nil
}
