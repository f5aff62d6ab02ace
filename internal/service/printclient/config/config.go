package config

import (
	"errors"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://open-api-os.10ss.net/v2"
	DefaultTimeout = 15 * time.Second
)

var ErrConfiguration = errors.New("printclient: client id, client secret and machine code are required")

type Config struct {
	ClientID      string
	ClientSecret  string
	MachineCode   string
	BaseURL       string
	Timeout       time.Duration
	SignUppercase bool // регистр hex-подписи зависит от эндпоинта провайдера
	UseServerTime bool
}

// Normalize обрезает пробелы вокруг учетных данных и подставляет значения по умолчанию.
func (cfg Config) Normalize() Config {
	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	cfg.ClientSecret = strings.TrimSpace(cfg.ClientSecret)
	cfg.MachineCode = strings.TrimSpace(cfg.MachineCode)
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return cfg
}

func (cfg Config) Validate() error {
	cfg = cfg.Normalize()
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.MachineCode == "" {
		return ErrConfiguration
	}
	return nil
}
