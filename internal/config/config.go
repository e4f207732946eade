package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
)

type Config struct {
	Port         string
	WorkbookPath string
	DirectoryDB  string
	TokenInfoURL string
	Audience     string
	CORSOrigin   string
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		Port:         getEnv("PORT", "8686"),
		WorkbookPath: getEnv("WORKBOOK_PATH", "./salonbook.xlsx"),
		DirectoryDB:  getEnv("DIRECTORY_DB", "./directory.db"),
		TokenInfoURL: getEnv("TOKENINFO_URL", "https://oauth2.googleapis.com/tokeninfo"),
		Audience:     os.Getenv("OAUTH_AUDIENCE"),
		CORSOrigin:   getEnv("CORS_ORIGIN", "*"),
	}

	// Without a registered audience every token would fail the gate, which
	// is safe but useless.
	if cfg.Audience == "" {
		return nil, fmt.Errorf("OAUTH_AUDIENCE is required: set it to this deployment's OAuth client ID")
	}

	// Make sure port is valid
	if _, err := strconv.Atoi(cfg.Port); err != nil {
		slog.Error("Invalid PORT environment variable. Falling back to default.", "PORT", os.Getenv("PORT"))
		cfg.Port = "8686"
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
