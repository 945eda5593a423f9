// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"telegram-vpn-provisioning/internal/domain/model"
)

type RuntimeConfig struct {
	Dev bool
}

const (
	BotModePolling = "polling"
	BotModeNoop    = "noop"
)

type BotConfig struct {
	Token    string `yaml:"token"`
	AdminID  int64  `yaml:"admin_id"` // the single approver
	Workers  int    `yaml:"workers"`  // polling workers
	Language string `yaml:"language"` // es | en
	Mode     string `yaml:"mode"`     // polling | noop (log outbound messages only)
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type RegistryConfig struct {
	Path string `yaml:"path"`
}

type ProvisionerConfig struct {
	Command    []string      `yaml:"command"` // argv prefix; the client id is appended
	ClientsDir string        `yaml:"clients_dir"`
	Timeout    time.Duration `yaml:"timeout"`
}

type PlanConfig struct {
	Key   string `yaml:"key"`
	Name  string `yaml:"name"`
	Days  int    `yaml:"days"`
	Hours int    `yaml:"hours"`
}

type PaymentMethodConfig struct {
	ID           string `yaml:"id"`
	Label        string `yaml:"label"`
	Destination  string `yaml:"destination"`
	RequiresCode bool   `yaml:"requires_code"`
}

type PaymentConfig struct {
	Methods []PaymentMethodConfig `yaml:"methods"`
}

type PurchaseConfig struct {
	SessionTTL time.Duration `yaml:"session_ttl"`
}

type WatcherConfig struct {
	Interval       time.Duration `yaml:"interval"`
	AlertThreshold time.Duration `yaml:"alert_threshold"`
}

type ListingConfig struct {
	ExpiringWindow time.Duration `yaml:"expiring_window"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type WebConfig struct {
	Port      int           `yaml:"port"` // 0 disables the admin API
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type Config struct {
	Bot         BotConfig         `yaml:"bot"`
	Log         LogConfig         `yaml:"log"`
	Registry    RegistryConfig    `yaml:"registry"`
	Provisioner ProvisionerConfig `yaml:"provisioner"`
	Plans       []PlanConfig      `yaml:"plans"`
	Payment     PaymentConfig     `yaml:"payment"`
	Purchase    PurchaseConfig    `yaml:"purchase"`
	Watcher     WatcherConfig     `yaml:"watcher"`
	Listing     ListingConfig     `yaml:"listing"`
	Redis       RedisConfig       `yaml:"redis"`
	Web         WebConfig         `yaml:"web"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file, applies .env / environment overrides and defaults,
// then validates the result.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	// .env is optional
	_ = godotenv.Load()
	return Parse(b, dev)
}

// Parse builds a Config from YAML bytes and the process environment.
func Parse(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("VPNBOT_BOT_TOKEN"); v != "" {
		cfg.Bot.Token = v
	}
	if v := os.Getenv("VPNBOT_ADMIN_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("VPNBOT_ADMIN_ID: %w", err)
		}
		cfg.Bot.AdminID = id
	}
	if v := os.Getenv("VPNBOT_REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("VPNBOT_WEB_JWT_SECRET"); v != "" {
		cfg.Web.JWTSecret = v
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Bot.Workers <= 0 {
		cfg.Bot.Workers = 8
	}
	if cfg.Bot.Mode == "" {
		cfg.Bot.Mode = BotModePolling
	}
	if cfg.Bot.Language == "" {
		cfg.Bot.Language = "es"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Registry.Path == "" {
		cfg.Registry.Path = "data/configuraciones.json"
	}
	if cfg.Provisioner.ClientsDir == "" {
		cfg.Provisioner.ClientsDir = "data/clientes"
	}
	if cfg.Provisioner.Timeout <= 0 {
		cfg.Provisioner.Timeout = time.Minute
	}
	if len(cfg.Plans) == 0 {
		cfg.Plans = []PlanConfig{
			{Key: "free", Name: "Free (5 horas)", Hours: 5},
			{Key: "d15", Name: "15 días", Days: 15},
			{Key: "d30", Name: "30 días", Days: 30},
		}
	}
	if len(cfg.Payment.Methods) == 0 {
		cfg.Payment.Methods = []PaymentMethodConfig{
			{ID: "balance-transfer", Label: "💳 Saldo"},
			{ID: "card-transfer", Label: "🏦 Transferencia CUP", RequiresCode: true},
		}
	}
	if cfg.Purchase.SessionTTL <= 0 {
		cfg.Purchase.SessionTTL = 24 * time.Hour
	}
	if cfg.Watcher.Interval <= 0 {
		cfg.Watcher.Interval = time.Hour
	}
	if cfg.Watcher.AlertThreshold <= 0 {
		cfg.Watcher.AlertThreshold = 24 * time.Hour
	}
	if cfg.Listing.ExpiringWindow <= 0 {
		cfg.Listing.ExpiringWindow = 72 * time.Hour
	}
	if cfg.Web.TokenTTL <= 0 {
		cfg.Web.TokenTTL = 30 * time.Minute
	}
}

// Validate performs the minimal checks needed to start the bot.
func (c *Config) Validate() error {
	switch c.Bot.Mode {
	case BotModePolling:
		if c.Bot.Token == "" {
			return errors.New("bot.token is required")
		}
	case BotModeNoop:
	default:
		return fmt.Errorf("bot.mode: unknown mode %q", c.Bot.Mode)
	}
	if c.Bot.AdminID == 0 {
		return errors.New("bot.admin_id is required")
	}
	if len(c.Provisioner.Command) == 0 || strings.TrimSpace(c.Provisioner.Command[0]) == "" {
		return errors.New("provisioner.command is required")
	}
	if _, err := c.PlanCatalog(); err != nil {
		return fmt.Errorf("plans: %w", err)
	}
	seen := map[string]struct{}{}
	for _, m := range c.Payment.Methods {
		if m.ID == "" {
			return errors.New("payment.methods: id is required")
		}
		if _, dup := seen[m.ID]; dup {
			return fmt.Errorf("payment.methods: duplicate id %q", m.ID)
		}
		seen[m.ID] = struct{}{}
	}
	if c.Web.Port != 0 && c.Web.JWTSecret == "" {
		return errors.New("web.jwt_secret is required when web.port is set")
	}
	return nil
}

// PlanCatalog converts the configured plans into the domain catalog.
func (c *Config) PlanCatalog() (*model.PlanCatalog, error) {
	plans := make([]model.PlanDefinition, 0, len(c.Plans))
	for _, p := range c.Plans {
		plans = append(plans, model.PlanDefinition{Key: p.Key, Name: p.Name, Days: p.Days, Hours: p.Hours})
	}
	return model.NewPlanCatalog(plans...)
}

// PaymentMethods converts the configured methods, preserving order.
func (c *Config) PaymentMethods() []model.PaymentMethod {
	out := make([]model.PaymentMethod, 0, len(c.Payment.Methods))
	for _, m := range c.Payment.Methods {
		label := m.Label
		if label == "" {
			label = m.ID
		}
		out = append(out, model.PaymentMethod{ID: m.ID, Label: label, Destination: m.Destination, RequiresCode: m.RequiresCode})
	}
	return out
}
