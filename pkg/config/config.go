package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk YAML configuration. Environment variables
// (CHABRUSH_*) override file values; command-line flags override both.
type Config struct {
	Server struct {
		Address string `yaml:"address"`
		Port    int    `yaml:"port"`
	} `yaml:"server"`
	Storage struct {
		DBPath string `yaml:"db_path"`
	} `yaml:"storage"`
	Security struct {
		// KeyFile holds the hex-encoded AES-256 key. If absent a key is
		// generated and written there on first start.
		KeyFile string `yaml:"key_file"`
		// KeyHex provisions the key inline (takes precedence over KeyFile).
		KeyHex    string `yaml:"key_hex"`
		RateLimit struct {
			RPS   float64 `yaml:"rps"`
			Burst int     `yaml:"burst"`
		} `yaml:"rate_limit"`
	} `yaml:"security"`
	Limits struct {
		// MaxMessageRunes bounds plaintext length in code points.
		MaxMessageRunes int `yaml:"max_message_runes"`
	} `yaml:"limits"`
	Calls struct {
		// RingTimeout is how long a call may stay ringing before the
		// sweeper ends it with reason timeout. Seconds; 0 disables.
		RingTimeoutSec int `yaml:"ring_timeout_sec"`
		// SweepCron is the gronx cron expression driving timeout sweeps.
		SweepCron string `yaml:"sweep_cron"`
	} `yaml:"calls"`
	Delivery struct {
		// RoomBuffer is the per-subscriber event queue capacity.
		RoomBuffer int `yaml:"room_buffer"`
	} `yaml:"delivery"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// Addr returns the listen address in host:port form.
func (c *Config) Addr() string {
	host := c.Server.Address
	port := c.Server.Port
	if port == 0 {
		port = 8080
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Load reads the YAML file at path (if any) and applies env overrides.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("CHABRUSH_ADDR"); v != "" {
		host, port, err := net.SplitHostPort(v)
		if err == nil {
			cfg.Server.Address = host
			if p, err := strconv.Atoi(port); err == nil {
				cfg.Server.Port = p
			}
		}
	}
	if v := os.Getenv("CHABRUSH_DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("CHABRUSH_ENCRYPTION_KEY"); v != "" {
		cfg.Security.KeyHex = v
	}
	if v := os.Getenv("CHABRUSH_KEY_FILE"); v != "" {
		cfg.Security.KeyFile = v
	}
	if v := os.Getenv("CHABRUSH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CHABRUSH_RING_TIMEOUT_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Calls.RingTimeoutSec = n
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.DBPath == "" {
		cfg.Storage.DBPath = "./data"
	}
	if cfg.Security.KeyFile == "" && cfg.Security.KeyHex == "" {
		cfg.Security.KeyFile = "secret.key"
	}
	if cfg.Limits.MaxMessageRunes <= 0 {
		cfg.Limits.MaxMessageRunes = 10000
	}
	if cfg.Calls.SweepCron == "" {
		cfg.Calls.SweepCron = "* * * * *"
	}
	if cfg.Delivery.RoomBuffer <= 0 {
		cfg.Delivery.RoomBuffer = 256
	}
	if cfg.Security.RateLimit.RPS <= 0 {
		cfg.Security.RateLimit.RPS = 50
	}
	if cfg.Security.RateLimit.Burst <= 0 {
		cfg.Security.RateLimit.Burst = 100
	}
}

// ParseCommandFlags centralizes flag parsing for cmd/chabrush. It returns
// the raw values plus a map reporting which flags the user explicitly set,
// so explicit flags can win over config/env.
func ParseCommandFlags() (addr, db, cfgPath string, set map[string]bool) {
	addrFlag := flag.String("addr", ":8080", "listen address")
	dbFlag := flag.String("db", "./data", "pebble database path")
	cfgFlag := flag.String("config", "", "path to YAML config file")
	flag.Parse()
	set = map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return *addrFlag, *dbFlag, *cfgFlag, set
}

// ResolveConfigPath picks the config file path: explicit flag wins, then
// CHABRUSH_CONFIG, then a ./chabrush.yaml if present.
func ResolveConfigPath(flagVal string, flagSet bool) string {
	if flagSet && strings.TrimSpace(flagVal) != "" {
		return flagVal
	}
	if v := os.Getenv("CHABRUSH_CONFIG"); v != "" {
		return v
	}
	if _, err := os.Stat("chabrush.yaml"); err == nil {
		return "chabrush.yaml"
	}
	return ""
}
