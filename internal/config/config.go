package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// StorageConfig es lo que necesitan el almacenamiento, el catalogo y la autenticacion.
// progressctl lo carga solo, sin exigir las credenciales del LLM.
type StorageConfig struct {
	DatabaseURL   string `env:"DATABASE_URL"`
	LocalDBPath   string `env:"LOCAL_DB_PATH" envDefault:"data/local.db"`
	AuthJWTSecret string `env:"AUTH_JWT_SECRET"`
	AuthJWTIssuer string `env:"AUTH_JWT_ISSUER"`
	ModulesFile   string `env:"MODULES_FILE"`
}

// Config centraliza la configuración del servicio.
type Config struct {
	StorageConfig

	HTTPPort           string        `env:"HTTP_PORT" envDefault:"8080"`
	LLMAPIKey          string        `env:"LLM_API_KEY,required"`
	LLMBaseURL         string        `env:"LLM_BASE_URL" envDefault:"https://api.openai.com/v1"`
	LLMModel           string        `env:"LLM_MODEL" envDefault:"gpt-5.1"`
	RedisAddr          string        `env:"REDIS_ADDR"`
	RedisPassword      string        `env:"REDIS_PASSWORD"`
	RedisDB            int           `env:"REDIS_DB" envDefault:"0"`
	AdminToken         string        `env:"ADMIN_TOKEN"`
	InsightsCacheTTL   time.Duration `env:"INSIGHTS_CACHE_TTL" envDefault:"24h"`
	AnalysisRateLimit  int           `env:"ANALYSIS_RATE_LIMIT" envDefault:"20"`
	AnalysisRateWindow time.Duration `env:"ANALYSIS_RATE_WINDOW" envDefault:"1h"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadStorageConfig carga solo la parte de almacenamiento.
func LoadStorageConfig() (*StorageConfig, error) {
	var cfg StorageConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// RemoteEnabled indica si hay Postgres configurado para el backend remoto.
func (c *StorageConfig) RemoteEnabled() bool {
	return c.DatabaseURL != ""
}
