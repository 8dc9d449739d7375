package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds all vigil configuration. Defaults < YAML file < environment.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Energy     EnergyConfig     `yaml:"energy"`
	Guardian   GuardianConfig   `yaml:"guardian"`
	Escalation EscalationConfig `yaml:"escalation"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
}

type ServerConfig struct {
	Bind string `yaml:"bind" env:"VIGIL_BIND"`
	Port int    `yaml:"port" env:"VIGIL_PORT"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" env:"VIGIL_DB_PATH"`
}

type EnergyConfig struct {
	BaseEarn         int64   `yaml:"base_earn" env:"VIGIL_ENERGY_BASE_EARN"`
	LuckyProbability float64 `yaml:"lucky_probability" env:"VIGIL_ENERGY_LUCKY_PROBABILITY"`
	LuckyMultiplier  int64   `yaml:"lucky_multiplier" env:"VIGIL_ENERGY_LUCKY_MULTIPLIER"`
	StreakCap        float64 `yaml:"streak_cap" env:"VIGIL_ENERGY_STREAK_CAP"`
}

type GuardianConfig struct {
	AnxietyHours  int `yaml:"anxiety_hours" env:"VIGIL_CURSE_ANXIETY_HOURS"`
	WeaknessHours int `yaml:"weakness_hours" env:"VIGIL_CURSE_WEAKNESS_HOURS"`
	CursedHours   int `yaml:"cursed_hours" env:"VIGIL_CURSE_CURSED_HOURS"`
}

type EscalationConfig struct {
	SummaryMin        int `yaml:"summary_min" env:"VIGIL_SCAN_SUMMARY_MIN"`
	TopN              int `yaml:"top_n" env:"VIGIL_SCAN_TOP_N"`
	DispatchDelayMS   int `yaml:"dispatch_delay_ms" env:"VIGIL_SCAN_DISPATCH_DELAY_MS"`
	RenotifyCooldownH int `yaml:"renotify_cooldown_hours" env:"VIGIL_SCAN_RENOTIFY_COOLDOWN_HOURS"`
	// ScanIntervalMin enables the built-in scan ticker when > 0. Off by
	// default: most deployments invoke POST /api/scan from a scheduler.
	ScanIntervalMin int `yaml:"scan_interval_minutes" env:"VIGIL_SCAN_INTERVAL_MINUTES"`
}

type DispatchConfig struct {
	// Mode selects the notification channel: "log", "webhook" or "kafka".
	Mode         string   `yaml:"mode" env:"VIGIL_DISPATCH_MODE"`
	WebhookURL   string   `yaml:"webhook_url" env:"VIGIL_DISPATCH_WEBHOOK_URL"`
	KafkaBrokers []string `yaml:"kafka_brokers" env:"VIGIL_DISPATCH_KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `yaml:"kafka_topic" env:"VIGIL_DISPATCH_KAFKA_TOPIC"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 38800,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		Energy: EnergyConfig{
			BaseEarn:         10,
			LuckyProbability: 0.05,
			LuckyMultiplier:  10,
			StreakCap:        3.0,
		},
		Guardian: GuardianConfig{
			AnxietyHours:  24,
			WeaknessHours: 48,
			CursedHours:   72,
		},
		Escalation: EscalationConfig{
			SummaryMin:        3,
			TopN:              5,
			DispatchDelayMS:   200,
			RenotifyCooldownH: 24,
		},
		Dispatch: DispatchConfig{
			Mode:       "log",
			KafkaTopic: "vigil.alerts",
		},
	}
}

// Load builds the effective configuration: defaults, overlaid by the YAML
// file at path (if it exists), overlaid by environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	g := c.Guardian
	if !(g.AnxietyHours > 0 && g.AnxietyHours < g.WeaknessHours && g.WeaknessHours < g.CursedHours) {
		return fmt.Errorf("curse thresholds must be ascending, got %d/%d/%d",
			g.AnxietyHours, g.WeaknessHours, g.CursedHours)
	}
	if c.Energy.BaseEarn <= 0 {
		return fmt.Errorf("energy base_earn must be positive, got %d", c.Energy.BaseEarn)
	}
	if c.Energy.LuckyProbability < 0 || c.Energy.LuckyProbability > 1 {
		return fmt.Errorf("energy lucky_probability must be in [0,1], got %g", c.Energy.LuckyProbability)
	}
	switch c.Dispatch.Mode {
	case "log", "webhook", "kafka":
	default:
		return fmt.Errorf("unknown dispatch mode %q", c.Dispatch.Mode)
	}
	if c.Dispatch.Mode == "webhook" && c.Dispatch.WebhookURL == "" {
		return fmt.Errorf("dispatch mode webhook requires webhook_url")
	}
	if c.Dispatch.Mode == "kafka" && len(c.Dispatch.KafkaBrokers) == 0 {
		return fmt.Errorf("dispatch mode kafka requires kafka_brokers")
	}
	return nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
