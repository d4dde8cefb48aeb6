package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	OpenAI OpenAIConfig `mapstructure:"openai"`
	Chat   ChatConfig   `mapstructure:"chat"`
	Image  ImageConfig  `mapstructure:"image"`
	Serve  ServeConfig  `mapstructure:"serve"`
}

type OpenAIConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	ImageModel string `mapstructure:"image_model"`
}

type ChatConfig struct {
	Instructions string `mapstructure:"instructions"`
	WebSearch    bool   `mapstructure:"web_search"`
}

type ImageConfig struct {
	PartialImages int    `mapstructure:"partial_images"`
	OutputPath    string `mapstructure:"output_path"`
}

type ServeConfig struct {
	Addr    string `mapstructure:"addr"`
	Token   string `mapstructure:"token"`
	Persist bool   `mapstructure:"persist"`
}

func Load() (*Config, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config dir: %w", err)
	}

	configPath := filepath.Join(configDir, "webchat")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configPath)
	viper.AddConfigPath(".")

	// Set defaults
	viper.SetDefault("openai.model", "gpt-5")
	viper.SetDefault("openai.image_model", "gpt-image-1")
	viper.SetDefault("chat.instructions", "You are a helpful, concise assistant.")
	viper.SetDefault("image.partial_images", 3)
	viper.SetDefault("image.output_path", "generated.png")
	viper.SetDefault("serve.addr", "127.0.0.1:8571")
	viper.SetDefault("serve.persist", true)

	// Read config file (optional - won't error if missing)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Expand environment variables in the API key
	cfg.OpenAI.APIKey = expandEnv(cfg.OpenAI.APIKey)

	// Fall back to environment variables for values the file doesn't set
	if cfg.OpenAI.APIKey == "" {
		cfg.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" && !viper.InConfig("openai.model") {
		cfg.OpenAI.Model = v
	}
	if v := os.Getenv("OPENAI_IMAGE_MODEL"); v != "" && !viper.InConfig("openai.image_model") {
		cfg.OpenAI.ImageModel = v
	}
	if v := os.Getenv("ENABLE_WEB_SEARCH"); v != "" && !viper.InConfig("chat.web_search") {
		cfg.Chat.WebSearch = strings.EqualFold(v, "true")
	}

	return &cfg, nil
}

// RequireAPIKey returns an error suitable for command startup when no
// credential is configured. No relay is reachable until this is resolved.
func (c *Config) RequireAPIKey() error {
	if strings.TrimSpace(c.OpenAI.APIKey) == "" {
		return fmt.Errorf("missing OPENAI_API_KEY: set it in the environment or under openai.api_key in %s", configPathForError())
	}
	return nil
}

func configPathForError() string {
	path, err := GetConfigPath()
	if err != nil {
		return "the config file"
	}
	return path
}

// expandEnv expands ${VAR} or $VAR in a string
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		varName := s[2 : len(s)-1]
		return os.Getenv(varName)
	}
	if strings.HasPrefix(s, "$") {
		return os.Getenv(s[1:])
	}
	return s
}

// GetConfigPath returns the path where the config file should be located
func GetConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "webchat", "config.yaml"), nil
}

// GetDataDir returns the directory holding mutable state (session database).
func GetDataDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "webchat"), nil
}
