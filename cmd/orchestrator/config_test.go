package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.ListenAddr)
	require.Equal(t, 8, cfg.Concurrency)
	require.Equal(t, time.Second, cfg.TickInterval)
	require.Empty(t, cfg.MySQLDSN)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	err := os.WriteFile(path, []byte(`
listen_addr: ":9000"
nats_url: nats://nats.internal:4222
mysql_dsn: user:pass@tcp(db.internal:3306)/orchestrator
kafka_brokers:
  - kafka-1:9092
  - kafka-2:9092
concurrency: 16
tick_interval: 250ms
sweep_schedule: "@every 1m"
`), 0o644)
	require.NoError(t, err)

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.ListenAddr)
	require.Equal(t, "nats://nats.internal:4222", cfg.NATSURL)
	require.Equal(t, "user:pass@tcp(db.internal:3306)/orchestrator", cfg.MySQLDSN)
	require.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 16, cfg.Concurrency)
	require.Equal(t, 250*time.Millisecond, cfg.TickInterval)
	require.Equal(t, "@every 1m", cfg.SweepSchedule)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ORCH_LISTEN_ADDR", ":7777")
	t.Setenv("ORCH_KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("ORCH_CONCURRENCY", "3")
	t.Setenv("ORCH_TICK_INTERVAL", "2s")

	cfg, err := loadConfig("")
	require.NoError(t, err)
	require.Equal(t, ":7777", cfg.ListenAddr)
	require.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 3, cfg.Concurrency)
	require.Equal(t, 2*time.Second, cfg.TickInterval)
}

func TestWithParseTime(t *testing.T) {
	dsn, err := withParseTime("user:pass@tcp(db.internal:3306)/orchestrator")
	require.NoError(t, err)
	require.Contains(t, dsn, "parseTime=true")
	require.Equal(t, 1, strings.Count(dsn, "?"))

	// A DSN that already carries parameters keeps them.
	dsn, err = withParseTime("user:pass@tcp(db.internal:3306)/orchestrator?charset=utf8mb4")
	require.NoError(t, err)
	require.Contains(t, dsn, "parseTime=true")
	require.Contains(t, dsn, "charset=utf8mb4")
	require.Equal(t, 1, strings.Count(dsn, "?"))

	_, err = withParseTime("not a dsn")
	require.Error(t, err)
}

func TestEnvOverridesIgnoreInvalid(t *testing.T) {
	t.Setenv("ORCH_CONCURRENCY", "not-a-number")
	t.Setenv("ORCH_TICK_INTERVAL", "-5s")

	cfg, err := loadConfig("")
	require.NoError(t, err)
	require.Equal(t, 8, cfg.Concurrency)
	require.Equal(t, time.Second, cfg.TickInterval)
}
