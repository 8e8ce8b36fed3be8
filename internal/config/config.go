package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "purr.yaml"

type Notify struct {
	// Kind is one of "", "log", "nats", "redis" or "sqs".
	Kind   string `yaml:"kind" json:"kind"`
	URL    string `yaml:"url" json:"url"`
	Target string `yaml:"target" json:"target"`
}

type Config struct {
	APIBaseURL      string `yaml:"api_base_url" json:"api_base_url"`
	APIToken        string `yaml:"api_token" json:"api_token"`
	PollIntervalSec int    `yaml:"poll_interval_sec" json:"poll_interval_sec"`
	DeadlineSec     int    `yaml:"deadline_sec" json:"deadline_sec"`
	LeaseSec        int    `yaml:"lease_sec" json:"lease_sec"`
	DBPath          string `yaml:"db_path" json:"db_path"`
	ListenAddr      string `yaml:"listen_addr" json:"listen_addr"`
	ReapIntervalSec int    `yaml:"reap_interval_sec" json:"reap_interval_sec"`
	ReapGraceSec    int    `yaml:"reap_grace_sec" json:"reap_grace_sec"`
	LogLevel        string `yaml:"log_level" json:"log_level"`
	Notify          Notify `yaml:"notify" json:"notify"`
}

func Default() *Config {
	return &Config{
		APIBaseURL:      "http://localhost:8080",
		PollIntervalSec: 2,
		DeadlineSec:     60,
		LeaseSec:        60,
		DBPath:          "purr.db",
		ListenAddr:      ":8080",
		ReapIntervalSec: 60,
		ReapGraceSec:    3600,
		LogLevel:        "info",
	}
}

// Load reads a YAML (or JSON) config file over the defaults. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return c, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return c, nil
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ApplyEnv loads envFile when present and overrides fields from PURR_*
// variables. Variables already set in the process win over the file.
func (c *Config) ApplyEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	setString(&c.APIBaseURL, "PURR_API_BASE_URL")
	setString(&c.APIToken, "PURR_API_TOKEN")
	setString(&c.DBPath, "PURR_DB_PATH")
	setString(&c.ListenAddr, "PURR_LISTEN_ADDR")
	setString(&c.LogLevel, "PURR_LOG_LEVEL")
	setString(&c.Notify.Kind, "PURR_NOTIFY_KIND")
	setString(&c.Notify.URL, "PURR_NOTIFY_URL")
	setString(&c.Notify.Target, "PURR_NOTIFY_TARGET")
	for name, dst := range map[string]*int{
		"PURR_POLL_INTERVAL_SEC": &c.PollIntervalSec,
		"PURR_DEADLINE_SEC":      &c.DeadlineSec,
		"PURR_LEASE_SEC":         &c.LeaseSec,
		"PURR_REAP_INTERVAL_SEC": &c.ReapIntervalSec,
		"PURR_REAP_GRACE_SEC":    &c.ReapGraceSec,
	} {
		if err := setInt(dst, name); err != nil {
			return err
		}
	}
	return nil
}

// Set updates one field by its config key, as used by `config set`.
func (c *Config) Set(key, val string) error {
	switch key {
	case "api-base-url":
		c.APIBaseURL = val
	case "api-token":
		c.APIToken = val
	case "db-path":
		c.DBPath = val
	case "listen-addr":
		c.ListenAddr = val
	case "log-level":
		c.LogLevel = val
	case "notify-kind":
		c.Notify.Kind = val
	case "notify-url":
		c.Notify.URL = val
	case "notify-target":
		c.Notify.Target = val
	case "poll-interval-sec", "deadline-sec", "lease-sec", "reap-interval-sec", "reap-grace-sec":
		v, err := strconv.Atoi(val)
		if err != nil || v <= 0 {
			return fmt.Errorf("invalid value for %s: %s", key, val)
		}
		switch key {
		case "poll-interval-sec":
			c.PollIntervalSec = v
		case "deadline-sec":
			c.DeadlineSec = v
		case "lease-sec":
			c.LeaseSec = v
		case "reap-interval-sec":
			c.ReapIntervalSec = v
		default:
			c.ReapGraceSec = v
		}
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}

func (c *Config) PollInterval() time.Duration { return seconds(c.PollIntervalSec, 2) }
func (c *Config) Deadline() time.Duration     { return seconds(c.DeadlineSec, 60) }
func (c *Config) Lease() time.Duration        { return seconds(c.LeaseSec, 60) }
func (c *Config) ReapInterval() time.Duration { return seconds(c.ReapIntervalSec, 60) }
func (c *Config) ReapGrace() time.Duration    { return seconds(c.ReapGraceSec, 3600) }

func seconds(v, def int) time.Duration {
	if v <= 0 {
		v = def
	}
	return time.Duration(v) * time.Second
}

func setString(dst *string, name string) {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, name string) error {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = i
	return nil
}
