package config

import (
	"fmt"
	"os"
	"time"

	"live-quiz-service/internal/app"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Auth struct {
		Secret string `yaml:"secret"`
	} `yaml:"auth"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Scoring Scoring `yaml:"scoring"`
	Log     struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
}

// Scoring configures the bonus tables.
type Scoring struct {
	StreakTiers  []StreakTier `yaml:"streak_tiers"`
	SpeedBonuses []int        `yaml:"speed_bonuses"`
}

type StreakTier struct {
	Length int `yaml:"length"`
	Bonus  int `yaml:"bonus"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.Redis.TTL = "10m"
	cfg.Quiz.TTL = "10m"
	cfg.Log.Level = "info"

	rules := app.DefaultScoringRules()
	for _, tier := range rules.StreakTiers {
		cfg.Scoring.StreakTiers = append(cfg.Scoring.StreakTiers, StreakTier{Length: tier.Length, Bonus: tier.Bonus})
	}
	cfg.Scoring.SpeedBonuses = append([]int(nil), rules.SpeedBonuses...)
	return cfg
}

// Load reads YAML config from path on top of Default. AUTH_SECRET overrides auth.secret.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv copies environment overrides into cfg.
func (c *Config) ApplyEnv() {
	if secret := os.Getenv("AUTH_SECRET"); secret != "" {
		c.Auth.Secret = secret
	}
}

// Validate rejects bonus tables that cannot be applied.
func (c Config) Validate() error {
	for i, tier := range c.Scoring.StreakTiers {
		if tier.Length <= 0 {
			return fmt.Errorf("scoring.streak_tiers[%d]: length must be positive", i)
		}
		if tier.Bonus < 0 {
			return fmt.Errorf("scoring.streak_tiers[%d]: bonus must not be negative", i)
		}
	}
	for i, bonus := range c.Scoring.SpeedBonuses {
		if bonus < 0 {
			return fmt.Errorf("scoring.speed_bonuses[%d]: bonus must not be negative", i)
		}
	}
	return nil
}

// ScoringRules converts the scoring section for the session service.
func (c Config) ScoringRules() app.ScoringRules {
	rules := app.ScoringRules{SpeedBonuses: append([]int(nil), c.Scoring.SpeedBonuses...)}
	for _, tier := range c.Scoring.StreakTiers {
		rules.StreakTiers = append(rules.StreakTiers, app.StreakTier{Length: tier.Length, Bonus: tier.Bonus})
	}
	return rules
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
