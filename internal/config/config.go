package config

import "os"

type Config struct {
	Port            string
	OrderStoreURL   string
	OrderStoreToken string
	JWTSecret       string
	Env             string
}

func Load() *Config {
	return &Config{
		Port:            getEnv("PORT", "8082"),
		OrderStoreURL:   getEnv("ORDER_STORE_URL", "http://localhost:3000/api/v1"),
		OrderStoreToken: getEnv("ORDER_STORE_TOKEN", ""),
		JWTSecret:       getEnv("JWT_SECRET", "dev-secret-change-in-production"),
		Env:             getEnv("APP_ENV", "development"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
