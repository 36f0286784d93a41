// Command orchestrator runs the manuscript processing automation service:
// it accepts submissions over HTTP, drives their workflows against the
// agent fleet over NATS and publishes status events to Kafka.
package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/luno/jettison/log"

	"github.com/scholarpress/orchestrator"
	"github.com/scholarpress/orchestrator/adapters/jlog"
	"github.com/scholarpress/orchestrator/adapters/kafkanotify"
	"github.com/scholarpress/orchestrator/adapters/memstore"
	"github.com/scholarpress/orchestrator/adapters/natsagent"
	"github.com/scholarpress/orchestrator/adapters/sqlstore"
	"github.com/scholarpress/orchestrator/adapters/webapi"
)

var configPath = flag.String("config", "", "path to the yaml config file")

func main() {
	flag.Parse()

	ctx := context.Background()

	err := run(ctx)
	if err != nil {
		log.Error(ctx, errors.Wrap(err, ""))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	logger := jlog.New()

	store, err := connectStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	conn, err := natsagent.Connect(cfg.NATSURL, logger)
	if err != nil {
		return errors.Wrap(err, "connect nats")
	}
	defer conn.Close()

	hub := webapi.NewHub(logger)

	opts := []orchestrator.Option{
		orchestrator.WithLogger(logger),
		orchestrator.WithNotifier(hub),
		orchestrator.WithMaxConcurrency(cfg.Concurrency),
		orchestrator.WithTickInterval(cfg.TickInterval),
		orchestrator.WithRecoverySweep(cfg.SweepSchedule),
	}

	if len(cfg.KafkaBrokers) > 0 {
		notifier := kafkanotify.New(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		defer notifier.Close()

		opts = append(opts, orchestrator.WithNotifier(notifier))
	}

	o := orchestrator.New(store, natsagent.New(conn), opts...)

	err = o.Run(ctx)
	if err != nil {
		return err
	}
	defer o.Stop()

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      webapi.NewServer(o, hub, logger).Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	log.Info(ctx, "orchestrator listening", j.KV("addr", cfg.ListenAddr))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return errors.Wrap(err, "http server")
	case <-stop:
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

func connectStore(ctx context.Context, cfg Config, logger orchestrator.Logger) (orchestrator.Store, error) {
	if cfg.MySQLDSN == "" {
		logger.Debug(ctx, "no mysql dsn configured, using in-memory store", nil)
		return memstore.New(), nil
	}

	dsn, err := withParseTime(cfg.MySQLDSN)
	if err != nil {
		return nil, err
	}

	dbc, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open mysql")
	}

	err = dbc.PingContext(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "ping mysql")
	}

	return sqlstore.New(dbc, dbc, "workflow_instances", "workflow_tasks", "agent_samples"), nil
}

// withParseTime enables parseTime on the configured DSN without clobbering
// any parameters it already carries.
func withParseTime(dsn string) (string, error) {
	c, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", errors.Wrap(err, "invalid mysql dsn")
	}

	c.ParseTime = true

	return c.FormatDSN(), nil
}
