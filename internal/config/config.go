package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the application's configuration model.
// It captures bot-service credentials, Bilibili access, polling, and storage.
type Config struct {
	Bot      BotConfig      `yaml:"bot"`
	Bilibili BilibiliConfig `yaml:"bilibili"`
	Poll     PollConfig     `yaml:"poll"`
	Storage  StorageConfig  `yaml:"storage"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type BotConfig struct {
	// Bot-service app credentials. If empty, read from env BOT_APPID / BOT_APPSECRET.
	AppID     string `yaml:"appId"`
	AppSecret string `yaml:"appSecret"`
	// Base64 AES key (without trailing '='). If empty, read ENCODING_AES_KEY.
	EncodingAESKey string `yaml:"encodingAesKey"`
	BaseURL        string `yaml:"baseUrl"`
	// Token cache lifetime in milliseconds, as issued by the bot service.
	TokenTTLMS int64 `yaml:"tokenTtlMs"`
}

type BilibiliConfig struct {
	BaseURL string `yaml:"baseUrl"`
	// Raw cookie header string of a logged-in web session.
	// If empty, read from env B_COOKIES.
	Cookies string `yaml:"cookies"`
}

type PollConfig struct {
	IntervalMS int `yaml:"intervalMs"`
}

type StorageConfig struct {
	DBPath string `yaml:"dbPath"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a sensible default configuration.
func Default() Config {
	return Config{
		Bot: BotConfig{
			BaseURL:    "https://openai.weixin.qq.com",
			TokenTTLMS: 7200000,
		},
		Bilibili: BilibiliConfig{
			BaseURL: "https://api.vc.bilibili.com",
		},
		Poll:    PollConfig{IntervalMS: 30000},
		Storage: StorageConfig{DBPath: "./bilirelay.db"},
	}
}

// ResolveEnv fills in config fields from environment variables if not set.
func (c *Config) ResolveEnv() {
	if c.Bot.AppID == "" {
		c.Bot.AppID = os.Getenv("BOT_APPID")
	}
	if c.Bot.AppSecret == "" {
		c.Bot.AppSecret = os.Getenv("BOT_APPSECRET")
	}
	if c.Bot.EncodingAESKey == "" {
		c.Bot.EncodingAESKey = os.Getenv("ENCODING_AES_KEY")
	}
	if v := os.Getenv("BOT_API_BASE_URL"); v != "" {
		c.Bot.BaseURL = v
	}
	if v := os.Getenv("CACHE_EXPIRY"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms > 0 {
			c.Bot.TokenTTLMS = ms
		}
	}
	if v := os.Getenv("B_API_BASE_URL"); v != "" {
		c.Bilibili.BaseURL = v
	}
	if c.Bilibili.Cookies == "" {
		c.Bilibili.Cookies = os.Getenv("B_COOKIES")
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = os.Getenv("METRICS_ADDR")
	}
}

// Validate checks for the presence of everything the relay cannot run without.
// Key material is validated separately when the crypto codec is built.
func (c Config) Validate() error {
	if c.Bot.AppID == "" || c.Bot.AppSecret == "" {
		return errors.New("missing bot app credentials (BOT_APPID / BOT_APPSECRET)")
	}
	if c.Bot.EncodingAESKey == "" {
		return errors.New("missing ENCODING_AES_KEY")
	}
	if c.Bot.BaseURL == "" {
		return errors.New("missing bot base URL")
	}
	if c.Bilibili.BaseURL == "" {
		return errors.New("missing bilibili base URL")
	}
	if c.Bilibili.Cookies == "" {
		return errors.New("missing bilibili cookies (B_COOKIES)")
	}
	return nil
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	cfg.ResolveEnv()
	return cfg, nil
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
