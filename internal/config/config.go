package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const envConfigFile = "TELEGATE_CONFIG_FILE"

type Config struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	DataDir  string `yaml:"data_dir"`
	APIKey   string `yaml:"api_key"`
	LogLevel string `yaml:"log_level"`

	// Telegram defaults seed the telegram channel config on first start.
	TelegramBotToken string `yaml:"telegram_bot_token"`
	TelegramChatID   string `yaml:"telegram_chat_id"`
	TelegramAPIBase  string `yaml:"telegram_api_base"`

	DisableScheduler bool `yaml:"disable_scheduler"`
}

func defaults() Config {
	return Config{
		Host:     "127.0.0.1",
		Port:     "8088",
		DataDir:  ".data",
		LogLevel: "ERRORS",
	}
}

// Load reads the optional YAML file named by TELEGATE_CONFIG_FILE and then
// applies environment overrides. A missing file is not an error.
func Load() (Config, error) {
	cfg := defaults()
	if path := strings.TrimSpace(os.Getenv(envConfigFile)); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	overrideString(&cfg.Host, "TELEGATE_HOST")
	overrideString(&cfg.Port, "TELEGATE_PORT")
	overrideString(&cfg.DataDir, "TELEGATE_DATA_DIR")
	overrideString(&cfg.APIKey, "TELEGATE_API_KEY")
	overrideString(&cfg.LogLevel, "TELEGATE_LOGGER")
	overrideString(&cfg.TelegramBotToken, "TELEGATE_TELEGRAM_BOT_TOKEN")
	overrideString(&cfg.TelegramChatID, "TELEGATE_TELEGRAM_CHAT_ID")
	overrideString(&cfg.TelegramAPIBase, "TELEGATE_TELEGRAM_API_BASE")
	if raw := strings.TrimSpace(os.Getenv("TELEGATE_DISABLE_SCHEDULER")); raw != "" {
		cfg.DisableScheduler = parseEnvBool("TELEGATE_DISABLE_SCHEDULER")
	}
}

func overrideString(dst *string, key string) {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		*dst = value
	}
}

func parseEnvBool(key string) bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv(key)), "true")
}
