package main

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"gopkg.in/yaml.v3"
)

// Config carries the deployment settings of the orchestrator process.
// Environment variables override the file values so containerised
// deployments can keep one base file.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`

	// NATSURL points at the agent fleet's NATS cluster.
	NATSURL string `yaml:"nats_url"`

	// MySQLDSN selects the durable store. Empty runs on the in-memory
	// store, which is only suitable for development.
	MySQLDSN string `yaml:"mysql_dsn"`

	// KafkaBrokers enables event publishing when non empty.
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`

	Concurrency   int           `yaml:"concurrency"`
	TickInterval  time.Duration `yaml:"tick_interval"`
	SweepSchedule string        `yaml:"sweep_schedule"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr:    ":8080",
		NATSURL:       "nats://127.0.0.1:4222",
		KafkaTopic:    "manuscript-workflow-events",
		Concurrency:   8,
		TickInterval:  time.Second,
		SweepSchedule: "@every 5m",
	}
}

func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "read config", j.KV("path", path))
		}

		err = yaml.Unmarshal(b, &cfg)
		if err != nil {
			return Config{}, errors.Wrap(err, "parse config", j.KV("path", path))
		}
	}

	applyEnv(&cfg)

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ORCH_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("ORCH_NATS_URL"); v != "" {
		cfg.NATSURL = v
	}
	if v := os.Getenv("ORCH_MYSQL_DSN"); v != "" {
		cfg.MySQLDSN = v
	}
	if v := os.Getenv("ORCH_KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = strings.Split(v, ",")
	}
	if v := os.Getenv("ORCH_KAFKA_TOPIC"); v != "" {
		cfg.KafkaTopic = v
	}
	if v := os.Getenv("ORCH_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil && n > 0 {
			cfg.Concurrency = n
		}
	}
	if v := os.Getenv("ORCH_TICK_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil && d > 0 {
			cfg.TickInterval = d
		}
	}
	if v := os.Getenv("ORCH_SWEEP_SCHEDULE"); v != "" {
		cfg.SweepSchedule = v
	}
}
