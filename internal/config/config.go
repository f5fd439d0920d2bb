package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the submission API.
type Config struct {
	AppName                string
	AppEnv                 string
	AppPort                string
	DatabaseURL            string
	RedisURL               string
	JWTSecret              string
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	ExamDirectoryURL       string
	NATSUrl                string
	MaxPayloadBytes        int64
	BlobWriteTimeout       time.Duration
	EmergencyWriteTimeout  time.Duration
	ReassemblyThreshold    float64
	CheckCacheTTL          time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("EXAMIFY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Examify Submission API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("cloudinary.folder", "examify/submissions")
	v.SetDefault("max_payload_mb", 50)
	v.SetDefault("blob.write_timeout", "30s")
	v.SetDefault("blob.emergency_write_timeout", "15s")
	v.SetDefault("reassembly.threshold", 0.8)
	v.SetDefault("check.cache_ttl", "1m")

	writeTimeout, err := time.ParseDuration(v.GetString("blob.write_timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid blob write timeout: %w", err)
	}

	emergencyTimeout, err := time.ParseDuration(v.GetString("blob.emergency_write_timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid emergency write timeout: %w", err)
	}

	checkTTL, err := time.ParseDuration(v.GetString("check.cache_ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid check cache ttl: %w", err)
	}

	maxPayloadMB := v.GetInt64("max_payload_mb")
	if maxPayloadMB <= 0 {
		maxPayloadMB = 50
	}

	threshold := v.GetFloat64("reassembly.threshold")
	if threshold <= 0 || threshold > 1 {
		threshold = 0.8
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		JWTSecret:              v.GetString("jwt.secret"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		ExamDirectoryURL:       v.GetString("exam_directory.url"),
		NATSUrl:                v.GetString("nats.url"),
		MaxPayloadBytes:        maxPayloadMB * 1024 * 1024,
		BlobWriteTimeout:       writeTimeout,
		EmergencyWriteTimeout:  emergencyTimeout,
		ReassemblyThreshold:    threshold,
		CheckCacheTTL:          checkTTL,
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	return cfg, nil
}
