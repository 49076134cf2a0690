// Package config loads the daemon's runtime configuration, layering a
// local JSON file (for development) under environment variables (for
// deployment), the same layering order the teacher's server.LoadConfigFile
// plus kafka.ParseConfig combination used, just collapsed into one struct.
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"time"
)

// Config is the full set of knobs the psid daemon reads at startup.
type Config struct {
	ListenAddr string `json:"listen_addr"`
	MetricsAddr string `json:"metrics_addr"`

	DatabaseURL    string `json:"database_url"`
	MaxDBConns     int    `json:"max_db_conns"`
	MigrationsPath string `json:"migrations_path"`

	SessionTTL      time.Duration `json:"-"`
	SessionTTLSecs  int           `json:"session_ttl_secs"`
	SweepInterval   time.Duration `json:"-"`
	SweepIntervalSecs int         `json:"sweep_interval_secs"`

	RoundConcurrency int `json:"round_concurrency"`
	SecurityBits     int `json:"security_bits"`

	KafkaBrokers    []string `json:"kafka_brokers"`
	KafkaEnabled    bool     `json:"kafka_enabled"`
	KafkaEnv        string   `json:"kafka_env"`
}

// Default returns the configuration used when no file or environment
// override is present.
func Default() Config {
	return Config{
		ListenAddr:        ":2416",
		MetricsAddr:       ":9090",
		MaxDBConns:        10,
		MigrationsPath:    "file://server/migrations",
		SessionTTLSecs:    3600,
		SweepIntervalSecs: 60,
		RoundConcurrency:  8,
		SecurityBits:      3072,
		KafkaEnv:          "default",
	}
}

// LoadFile reads a JSON config file, starting from Default and overlaying
// any fields the file sets.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	cfg.resolveDurations()
	return cfg, nil
}

// ApplyEnv overlays environment variables onto cfg, taking precedence over
// whatever a config file set — the same override order the teacher's
// PORT/MAX_DB_CONNECTION env handling in main.go and InitDbConfig follows.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("MAX_DB_CONNECTION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxDBConns = n
		}
	}
	if v := os.Getenv("SESSION_TTL_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.SessionTTLSecs = n
		}
	}
	if v := os.Getenv("ROUND_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RoundConcurrency = n
		}
	}
	if v := os.Getenv("SECURITY_BITS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.SecurityBits = n
		}
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.KafkaBrokers = splitNonEmpty(v, ',')
		c.KafkaEnabled = len(c.KafkaBrokers) > 0
	}
	if v := os.Getenv("KAFKA_ENV"); v != "" {
		c.KafkaEnv = v
	}
	c.resolveDurations()
}

func (c *Config) resolveDurations() {
	c.SessionTTL = time.Duration(c.SessionTTLSecs) * time.Second
	c.SweepInterval = time.Duration(c.SweepIntervalSecs) * time.Second
}

func splitNonEmpty(s string, sep byte) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
