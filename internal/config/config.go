// Package config содержит логику чтения конфигурации сервиса витрины и клиента.
package config

import (
	"flag"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Хранилища одноразовых кодов.
const (
	OTPBackendMemory = "memory"
	OTPBackendRedis  = "redis"
)

// Config содержит параметры конфигурации сервиса витрины.
type Config struct {
	RunAddress      string   `env:"RUN_ADDRESS"`
	DatabaseURI     string   `env:"DATABASE_URI"`
	RedisAddress    string   `env:"REDIS_ADDRESS"`
	OTPBackend      string   `env:"OTP_BACKEND"`
	SessionSecret   string   `env:"SESSION_SECRET"`
	GoogleClientID  string   `env:"GOOGLE_CLIENT_ID"`
	EmailServiceURL string   `env:"EMAIL_SERVICE_URL"`
	AdminEmails     []string `env:"ADMIN_EMAILS" envSeparator:","`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	fromEnv := *cfg
	var adminEmails string

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.RedisAddress, "r", "", "redis address for one-time codes")
	flag.StringVar(&cfg.OTPBackend, "otp", OTPBackendMemory, "one-time code storage: memory or redis")
	flag.StringVar(&cfg.SessionSecret, "s", "", "session token signing secret")
	flag.StringVar(&cfg.GoogleClientID, "g", "", "google OAuth client id")
	flag.StringVar(&cfg.EmailServiceURL, "m", "", "email service base URL")
	flag.StringVar(&adminEmails, "admins", "", "comma separated admin emails")

	flag.Parse()

	override(&cfg.RunAddress, fromEnv.RunAddress)
	override(&cfg.DatabaseURI, fromEnv.DatabaseURI)
	override(&cfg.RedisAddress, fromEnv.RedisAddress)
	override(&cfg.OTPBackend, fromEnv.OTPBackend)
	override(&cfg.SessionSecret, fromEnv.SessionSecret)
	override(&cfg.GoogleClientID, fromEnv.GoogleClientID)
	override(&cfg.EmailServiceURL, fromEnv.EmailServiceURL)

	cfg.AdminEmails = fromEnv.AdminEmails
	if len(cfg.AdminEmails) == 0 && adminEmails != "" {
		cfg.AdminEmails = splitList(adminEmails)
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.OTPBackend == "" {
		cfg.OTPBackend = OTPBackendMemory
	}

	switch cfg.OTPBackend {
	case OTPBackendMemory:
	case OTPBackendRedis:
		if cfg.RedisAddress == "" {
			return nil, fmt.Errorf("otp backend %q requires redis address", cfg.OTPBackend)
		}
	default:
		return nil, fmt.Errorf("unknown otp backend %q", cfg.OTPBackend)
	}

	return cfg, nil
}

// ClientConfig содержит параметры консольного клиента витрины.
type ClientConfig struct {
	APIAddress    string `env:"STOREFRONT_API"`
	CacheDir      string `env:"CACHE_DIR"`
	MerchantUPIID string `env:"MERCHANT_UPI_ID"`
	MerchantName  string `env:"MERCHANT_NAME"`
}

// ParseClient считывает конфигурацию клиента из набора флагов и переменных окружения.
// Переменные окружения имеют приоритет над флагами. Возвращает оставшиеся аргументы.
func ParseClient(fs *flag.FlagSet, args []string) (*ClientConfig, []string, error) {
	cfg := &ClientConfig{}

	if err := env.Parse(cfg); err != nil {
		return nil, nil, fmt.Errorf("parse env: %w", err)
	}

	fromEnv := *cfg

	fs.StringVar(&cfg.APIAddress, "api", "http://localhost:8080", "storefront API base URL")
	fs.StringVar(&cfg.CacheDir, "cache", ".storefront", "directory for the local client cache")
	fs.StringVar(&cfg.MerchantUPIID, "vpa", "storefront@upi", "merchant UPI id for payment intents")
	fs.StringVar(&cfg.MerchantName, "merchant", "Storefront", "merchant display name for payment intents")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	override(&cfg.APIAddress, fromEnv.APIAddress)
	override(&cfg.CacheDir, fromEnv.CacheDir)
	override(&cfg.MerchantUPIID, fromEnv.MerchantUPIID)
	override(&cfg.MerchantName, fromEnv.MerchantName)

	return cfg, fs.Args(), nil
}

func override(dst *string, envValue string) {
	if envValue != "" {
		*dst = envValue
	}
}

func splitList(s string) []string {
	var res []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			res = append(res, part)
		}
	}
	return res
}
