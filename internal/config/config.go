package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

const defaultDSN = "host=localhost user=postgres password=postgres dbname=stockledger port=5432 sslmode=disable"

type Config struct {
	HTTPPort       string `yaml:"http_port"`
	DatabaseDriver string `yaml:"database_driver"` // postgres, mysql, sqlite
	DatabaseDSN    string `yaml:"database_dsn"`
	JWTSecret      string `yaml:"jwt_secret"` // boşsa auth kapalı
	CORSOrigins    string `yaml:"cors_allowed_origins"`
	LogLevel       string `yaml:"log_level"`

	MaxRetries int `yaml:"ledger_max_retries"`
	PageSize   int `yaml:"ledger_page_size"`

	// kategori -> anahtar kelimeler
	Categories map[string][]string `yaml:"categories"`
}

// Load reads the optional YAML file at path, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{
		HTTPPort:       "8080",
		DatabaseDriver: "postgres",
		DatabaseDSN:    defaultDSN,
		CORSOrigins:    "http://localhost:5173",
		LogLevel:       "info",
		MaxRetries:     3,
		PageSize:       100,
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config dosyası okunamadı: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config dosyası çözümlenemedi: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	c.HTTPPort = getEnv("HTTP_PORT", c.HTTPPort)
	c.DatabaseDriver = getEnv("DATABASE_DRIVER", c.DatabaseDriver)
	c.DatabaseDSN = getEnv("DATABASE_DSN", c.DatabaseDSN)
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.CORSOrigins = getEnv("CORS_ALLOWED_ORIGINS", c.CORSOrigins)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.MaxRetries = getEnvInt("LEDGER_MAX_RETRIES", c.MaxRetries)
	c.PageSize = getEnvInt("LEDGER_PAGE_SIZE", c.PageSize)
}

func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("bilinmeyen DATABASE_DRIVER: %q", c.DatabaseDriver)
	}
	if c.DatabaseDSN == "" {
		return errors.New("DATABASE_DSN boş olamaz")
	}
	if c.JWTSecret != "" && len(c.JWTSecret) < 32 {
		return errors.New("JWT_SECRET en az 32 karakter olmalıdır")
	}
	if c.MaxRetries < 0 {
		return errors.New("LEDGER_MAX_RETRIES negatif olamaz")
	}
	if c.PageSize <= 0 {
		return errors.New("LEDGER_PAGE_SIZE pozitif olmalıdır")
	}
	return nil
}

// Warnings lists insecure defaults that are fine locally but not in production.
func (c *Config) Warnings() []string {
	var w []string
	if c.JWTSecret == "" {
		w = append(w, "JWT_SECRET tanımlanmamış, API kimlik doğrulaması kapalı")
	}
	if c.DatabaseDSN == defaultDSN {
		w = append(w, "DATABASE_DSN varsayılan değer kullanılıyor")
	}
	if c.DatabaseDriver == "sqlite" {
		w = append(w, "sqlite sadece test ve yerel kullanım içindir: miktarlar REAL saklanır, 15 anlamlı basamaktan sonrası yuvarlanır")
	}
	if c.CORSOrigins == "http://localhost:5173" {
		w = append(w, "CORS_ALLOWED_ORIGINS varsayılan değer kullanılıyor")
	}
	return w
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
