package config

import (
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var once sync.Once

func InitConfig() {
	once.Do(func() {
		// .env is optional; real environment variables win.
		_ = godotenv.Load()

		viper.AutomaticEnv()

		viper.BindEnv("database_driver", "DATABASE_DRIVER")
		viper.BindEnv("database_path", "DATABASE_PATH")
		viper.BindEnv("database_dsn", "DATABASE_DSN")
		viper.BindEnv("coingecko_api_key", "COINGECKO_API_KEY")
		viper.BindEnv("coinmarketcap_api_key", "COINMARKETCAP_API_KEY")
		viper.BindEnv("livecoinwatch_api_key", "LIVECOINWATCH_API_KEY")
		viper.BindEnv("api_pro_key", "API_PRO_KEY")
		viper.BindEnv("resend_api_key", "RESEND_API_KEY")
		viper.BindEnv("email_from", "EMAIL_FROM")
		viper.BindEnv("telegram_bot_token", "TELEGRAM_BOT_TOKEN")
		viper.BindEnv("http_timeout", "HTTP_TIMEOUT")
		viper.BindEnv("notify_attempts", "NOTIFY_ATTEMPTS")
		viper.BindEnv("notify_base_delay", "NOTIFY_BASE_DELAY")
		viper.BindEnv("sweep_interval", "SWEEP_INTERVAL")
		viper.BindEnv("sweep_workers", "SWEEP_WORKERS")
		viper.BindEnv("redis_addr", "REDIS_ADDR")
		viper.BindEnv("redis_password", "REDIS_PASSWORD")
		viper.BindEnv("redis_db", "REDIS_DB")
		viper.BindEnv("lock_ttl", "LOCK_TTL")
		viper.BindEnv("metrics_port", "METRICS_PORT")
		viper.BindEnv("debug", "DEBUG")
		viper.BindEnv("log_level", "LOG_LEVEL")
		viper.BindEnv("lang", "LANG")

		viper.SetDefault("database_driver", "sqlite")
		viper.SetDefault("database_path", "data/alerts.db")
		viper.SetDefault("email_from", "CryptoTrack <alerts@cryptotrack.com>")
		viper.SetDefault("http_timeout", 10*time.Second)
		viper.SetDefault("notify_attempts", 3)
		viper.SetDefault("notify_base_delay", time.Second)
		viper.SetDefault("sweep_interval", time.Minute)
		viper.SetDefault("sweep_workers", 1)
		viper.SetDefault("redis_db", 0)
		viper.SetDefault("lock_ttl", 5*time.Minute)
		viper.SetDefault("metrics_port", 9090)
		viper.SetDefault("debug", false)
		viper.SetDefault("lang", "en")
	})
}

func GetString(key string) string {
	InitConfig()
	return viper.GetString(key)
}

func GetInt(key string) int {
	InitConfig()
	return viper.GetInt(key)
}

func GetBool(key string) bool {
	InitConfig()
	return viper.GetBool(key)
}

func GetDuration(key string) time.Duration {
	InitConfig()
	return viper.GetDuration(key)
}

// MaskSecret hides all but the first and last 4 characters of a secret for logging.
func MaskSecret(s string) string {
	if len(s) <= 8 {
		if len(s) == 0 {
			return "(not set)"
		}
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
