package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseURL       string
	APIPort           string
	BatchSize         int
	CheckpointBatches int
	DownloadTimeout   time.Duration
	UploadDir         string
	QueueSize         int
}

func New() (*Config, error) {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	cfg := &Config{
		DatabaseURL:       databaseURL,
		APIPort:           "8080",
		BatchSize:         5000,
		CheckpointBatches: 5,
		DownloadTimeout:   10 * time.Minute,
		UploadDir:         "/tmp/ingestion-uploads",
		QueueSize:         64,
	}

	if port := os.Getenv("API_PORT"); port != "" {
		cfg.APIPort = port
	}
	if dir := os.Getenv("UPLOAD_DIR"); dir != "" {
		cfg.UploadDir = dir
	}

	var err error
	cfg.BatchSize, err = getEnvAsInt("DB_BATCH_SIZE", cfg.BatchSize)
	if err != nil {
		return nil, err
	}

	cfg.CheckpointBatches, err = getEnvAsInt("CHECKPOINT_BATCHES", cfg.CheckpointBatches)
	if err != nil {
		return nil, err
	}

	cfg.QueueSize, err = getEnvAsInt("JOB_QUEUE_SIZE", cfg.QueueSize)
	if err != nil {
		return nil, err
	}

	timeoutSecs, err := getEnvAsInt("DOWNLOAD_TIMEOUT_SECONDS", int(cfg.DownloadTimeout.Seconds()))
	if err != nil {
		return nil, err
	}
	cfg.DownloadTimeout = time.Duration(timeoutSecs) * time.Second

	return cfg, nil
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: expected an integer, got '%s'", key, valueStr)
	}

	return value, nil
}
