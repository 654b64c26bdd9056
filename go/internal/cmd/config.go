package main

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the agent's full configuration. Values come from an optional
// yaml file with PARTNER_* environment variables layered on top.
type Config struct {
	Partner struct {
		ID string `yaml:"id"`
	} `yaml:"partner"`
	Backend struct {
		HTTPBaseURL string `yaml:"http_base_url"`
		SocketURL   string `yaml:"socket_url"`
		AuthToken   string `yaml:"auth_token"`
	} `yaml:"backend"`
	Bus struct {
		URL string `yaml:"url"`
	} `yaml:"bus"`
	Database struct {
		DSN string `yaml:"dsn"`
	} `yaml:"database"`
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func loadConfig(path string) (*Config, error) {
	var config Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.Partner.ID = getEnv("PARTNER_ID", config.Partner.ID)
	config.Backend.HTTPBaseURL = getEnv("PARTNER_BACKEND_URL", config.Backend.HTTPBaseURL)
	config.Backend.SocketURL = getEnv("PARTNER_SOCKET_URL", config.Backend.SocketURL)
	config.Backend.AuthToken = getEnv("PARTNER_AUTH_TOKEN", config.Backend.AuthToken)
	config.Bus.URL = getEnv("PARTNER_BUS_URL", config.Bus.URL)
	config.Database.DSN = getEnv("PARTNER_DB_DSN", config.Database.DSN)
	config.Server.Port = getEnv("PARTNER_STATUS_PORT", config.Server.Port)
	config.Log.Level = getEnv("PARTNER_LOG_LEVEL", config.Log.Level)

	if config.Backend.HTTPBaseURL == "" {
		config.Backend.HTTPBaseURL = "http://localhost:3000"
	}
	if config.Backend.SocketURL == "" {
		config.Backend.SocketURL = "ws://localhost:3000/ws"
	}
	if config.Server.Port == "" {
		config.Server.Port = "8090"
	}
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}

	if config.Partner.ID == "" {
		return nil, fmt.Errorf("partner id is required (PARTNER_ID)")
	}
	return &config, nil
}
