package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application settings, materialized once at startup
// and passed by reference to the components that need it.
type Config struct {
	AppName string
	Port    string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig

	AllowedOrigins []string
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// JWTConfig holds token signing settings.
type JWTConfig struct {
	SecretKey     string
	ExpiryMinutes int
}

// AccessTokenTTL returns the configured token lifetime.
func (c JWTConfig) AccessTokenTTL() time.Duration {
	return time.Duration(c.ExpiryMinutes) * time.Minute
}

// Load reads configuration from the environment (and an optional .env
// file) and returns a fully populated Config.
func Load() *Config {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using environment and defaults: %v", err)
	}

	viper.BindEnv("port", "PORT")

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_minutes", "JWT_EXPIRY_MINUTES")

	viper.BindEnv("cors.allowed_origins", "CORS_ALLOWED_ORIGINS")

	viper.SetDefault("port", "8080")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", "5432")
	viper.SetDefault("database.user", "financeuser")
	viper.SetDefault("database.password", "financepass")
	viper.SetDefault("database.name", "financedb")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", time.Minute*5)

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", "6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("jwt.expiry_minutes", 30)

	viper.SetDefault("cors.allowed_origins", []string{
		"http://localhost:3000",
		"http://localhost:19006",
		"http://localhost:8081",
	})

	return &Config{
		AppName: "Personal Finance Tracker",
		Port:    viper.GetString("port"),
		Database: DatabaseConfig{
			Host:            viper.GetString("database.host"),
			Port:            viper.GetString("database.port"),
			User:            viper.GetString("database.user"),
			Password:        viper.GetString("database.password"),
			Name:            viper.GetString("database.name"),
			SSLMode:         viper.GetString("database.ssl_mode"),
			MaxOpenConns:    viper.GetInt("database.max_open_conns"),
			MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: viper.GetDuration("database.conn_max_lifetime"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("redis.host"),
			Port:     viper.GetString("redis.port"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			SecretKey:     viper.GetString("jwt.secret_key"),
			ExpiryMinutes: viper.GetInt("jwt.expiry_minutes"),
		},
		AllowedOrigins: viper.GetStringSlice("cors.allowed_origins"),
	}
}
