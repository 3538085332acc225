package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config 配置文件结构体
type Config struct {
	Version string `yaml:"version"`

	DevTools struct {
		URL string `yaml:"url"`
	} `yaml:"devtools"`

	Classifier struct {
		Endpoint    string `yaml:"endpoint"`
		URLEndpoint string `yaml:"urlEndpoint"`
		TimeoutMS   int    `yaml:"timeoutMS"`
	} `yaml:"classifier"`

	Alerts struct {
		// Tiers 触发告警路径的判定层级，默认 malicious 与 phishing，
		// suspicious 需显式开启
		Tiers []string `yaml:"tiers"`
	} `yaml:"alerts"`

	Sqlite struct {
		Dsn    string `yaml:"dsn"`
		Prefix string `yaml:"prefix"`
	} `yaml:"sqlite"`

	Log struct {
		Level  string   `yaml:"level"`
		Writer []string `yaml:"writer"`
		File   string   `yaml:"file"`
	} `yaml:"log"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	cfg := &Config{Version: "1.0.0"}
	cfg.DevTools.URL = "http://127.0.0.1:9222"
	cfg.Classifier.Endpoint = "http://127.0.0.1:8000/predict"
	cfg.Classifier.URLEndpoint = ""
	cfg.Classifier.TimeoutMS = 3000
	cfg.Alerts.Tiers = []string{"malicious", "phishing"}
	cfg.Sqlite.Dsn = "websentry.sqlite3"
	cfg.Sqlite.Prefix = "websentry_"
	cfg.Log.Level = "debug"
	cfg.Log.Writer = []string{"console", "file"}
	cfg.Log.File = "websentry.log"
	return cfg
}

// Load 从文件读取配置，文件不存在时返回默认配置
func Load(path string) (*Config, error) {
	cfg := NewConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Classifier.TimeoutMS <= 0 {
		cfg.Classifier.TimeoutMS = 3000
	}
	if len(cfg.Alerts.Tiers) == 0 {
		cfg.Alerts.Tiers = []string{"malicious", "phishing"}
	}
	return cfg, nil
}
