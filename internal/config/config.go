package config

import (
	"os"
	"strconv"
)

// Config holds the application configuration.
type Config struct {
	ServerPort     int
	DatabasePath   string
	UploadDir      string // Directory where uploaded images are stored
	ModelPath      string // Path to the TFLite classification model
	LabelMapPath   string // Optional JSON side-file with class names
	SessionSecret  string
	SecureCookies  bool
	MaxUploadBytes int64
}

// Load loads configuration from environment variables or sets defaults.
func Load() (*Config, error) {
	portStr := getEnv("PORT", "8080")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, err
	}

	maxUploadStr := getEnv("MAX_UPLOAD_BYTES", "10485760") // 10 MiB
	maxUpload, err := strconv.ParseInt(maxUploadStr, 10, 64)
	if err != nil {
		return nil, err
	}

	return &Config{
		ServerPort:     port,
		DatabasePath:   getEnv("DATABASE_PATH", "./fibrostage.db"),
		UploadDir:      getEnv("UPLOAD_DIR", "./uploads"),
		ModelPath:      getEnv("MODEL_PATH", "./liver_fibrosis_stage_model.tflite"),
		LabelMapPath:   getEnv("LABEL_MAP_PATH", "./label_map.json"),
		SessionSecret:  getEnv("SESSION_SECRET", "change-this-secret-key"),
		SecureCookies:  getEnv("APP_ENV", "development") == "production",
		MaxUploadBytes: maxUpload,
	}, nil
}

// Helper to get an environment variable with a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
