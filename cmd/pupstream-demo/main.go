// Command pupstream-demo appends interleaved events to a set of streams and
// replays them through partitioned subscriptions, checking that every stream
// is delivered in version order.
//
// Usage:
//
//	go run github.com/getpup/pupstream/cmd/pupstream-demo -streams 16 -events 100
//	go run github.com/getpup/pupstream/cmd/pupstream-demo -database demo.db -partitions 4 -metrics-addr :9090
//
// Every flag defaults to its PUPSTREAM_DEMO_* environment variable.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/juju/worker/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/getpup/pupstream/es"
	"github.com/getpup/pupstream/es/adapters/memory"
	"github.com/getpup/pupstream/es/adapters/sqlite"
	"github.com/getpup/pupstream/es/adapters/sqlstore"
	"github.com/getpup/pupstream/es/bus"
	"github.com/getpup/pupstream/es/dispatch"
	"github.com/getpup/pupstream/es/logging"
	"github.com/getpup/pupstream/es/migrations"
	"github.com/getpup/pupstream/es/projection"
	"github.com/getpup/pupstream/es/projection/runner"
	"github.com/getpup/pupstream/es/store"
	"github.com/getpup/pupstream/es/subscription"
)

type config struct {
	Database    string        `env:"PUPSTREAM_DEMO_DATABASE"`
	Streams     int           `env:"PUPSTREAM_DEMO_STREAMS" envDefault:"8"`
	Events      int           `env:"PUPSTREAM_DEMO_EVENTS" envDefault:"50"`
	Partitions  int           `env:"PUPSTREAM_DEMO_PARTITIONS" envDefault:"2"`
	Timeout     time.Duration `env:"PUPSTREAM_DEMO_TIMEOUT" envDefault:"1m"`
	MetricsAddr string        `env:"PUPSTREAM_DEMO_METRICS_ADDR"`
	Logging     string        `env:"PUPSTREAM_LOGGING_CONFIG" envDefault:"<root>=INFO"`
}

func loadConfig(args []string) (config, error) {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return config{}, errors.Annotate(err, "parsing environment")
	}

	flags := flag.NewFlagSet("pupstream-demo", flag.ContinueOnError)
	flags.StringVar(&cfg.Database, "database", cfg.Database, "SQLite database path; empty uses the in-memory store")
	flags.IntVar(&cfg.Streams, "streams", cfg.Streams, "Number of streams to append to")
	flags.IntVar(&cfg.Events, "events", cfg.Events, "Number of events per stream")
	flags.IntVar(&cfg.Partitions, "partitions", cfg.Partitions, "Number of subscription partitions")
	flags.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Maximum time to wait for delivery")
	flags.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Address to serve /metrics on; empty disables it")
	flags.StringVar(&cfg.Logging, "logging-config", cfg.Logging, "loggo logging configuration")
	if err := flags.Parse(args); err != nil {
		return config{}, errors.Trace(err)
	}

	if cfg.Streams <= 0 {
		return config{}, errors.NotValidf("streams %d", cfg.Streams)
	}
	if cfg.Events <= 0 {
		return config{}, errors.NotValidf("events %d", cfg.Events)
	}
	if cfg.Partitions <= 0 {
		return config{}, errors.NotValidf("partitions %d", cfg.Partitions)
	}
	return cfg, nil
}

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if err := logging.Configure(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", errors.ErrorStack(err))
		os.Exit(1)
	}
}

// backend bundles the store roles the demo needs.
type backend struct {
	db          *sql.DB
	events      store.EventStore
	reader      store.EventReader
	checkpoints store.CheckpointStore
}

func openBackend(ctx context.Context, path string, logger es.Logger) (*backend, error) {
	if path == "" {
		s := memory.NewStore(memory.Config{Logger: logger})
		return &backend{events: s, reader: s, checkpoints: s}, nil
	}

	db, err := sqlite.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err := migrations.Apply(ctx, db, migrations.SQLite, migrations.DefaultConfig()); err != nil {
		_ = db.Close()
		return nil, errors.Trace(err)
	}
	s := sqlite.NewStore(sqlstore.NewConfig(sqlstore.WithLogger(logger)))
	return &backend{db: db, events: s, reader: s, checkpoints: s}, nil
}

func (b *backend) close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

// inTx runs fn in a transaction when the backend is SQL, and with a nil
// transaction otherwise.
func (b *backend) inTx(ctx context.Context, fn func(tx es.DBTX) error) error {
	if b.db == nil {
		return fn(nil)
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Trace(err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Trace(tx.Commit())
}

// seed appends cfg.Events events to each of cfg.Streams new streams, one
// event per stream in turn so the streams interleave in the global log.
func seed(ctx context.Context, b *backend, cfg config) error {
	ids := make([]string, cfg.Streams)
	for i := range ids {
		ids[i] = uuid.NewString()
	}
	for v := 0; v < cfg.Events; v++ {
		for _, id := range ids {
			event := es.Event{
				CreatedAt:     time.Now(),
				AggregateType: "Counter",
				AggregateID:   id,
				EventID:       uuid.New(),
				EventType:     "Incremented",
				EventVersion:  1,
				Payload:       []byte(fmt.Sprintf(`{"value":%d}`, v+1)),
			}
			err := b.inTx(ctx, func(tx es.DBTX) error {
				_, err := b.events.Append(ctx, tx, es.Exact(int64(v)), []es.Event{event})
				return err
			})
			if err != nil {
				return errors.Annotatef(err, "appending to stream %s", id)
			}
		}
	}
	return nil
}

func serveMetrics(addr string, registry *prometheus.Registry, logger es.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "metrics server failed", "error", err)
		}
	}()
	return server
}

func run(ctx context.Context, cfg config) error {
	logger := logging.New("pupstream.demo")

	b, err := openBackend(ctx, cfg.Database, logging.New("pupstream.store"))
	if err != nil {
		return errors.Trace(err)
	}
	defer func() { _ = b.close() }()

	started := time.Now()
	if err := seed(ctx, b, cfg); err != nil {
		return errors.Trace(err)
	}
	total := cfg.Streams * cfg.Events
	logger.Info(ctx, "events appended", "streams", cfg.Streams, "events", total, "took", time.Since(started))

	registry := prometheus.NewRegistry()
	if cfg.MetricsAddr != "" {
		server := serveMetrics(cfg.MetricsAddr, registry, logger)
		defer func() { _ = server.Close() }()
	}

	check := newOrderCheck(total)
	units, err := runner.StartPartitions("order-check", cfg.Partitions, func(partitionKey int) (worker.Worker, error) {
		return startPartition(b, cfg, partitionKey, check, registry)
	})
	if err != nil {
		return errors.Trace(err)
	}

	runCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	go func() {
		select {
		case <-check.done:
			cancel()
		case <-runCtx.Done():
		}
	}()

	started = time.Now()
	err = runner.New().Run(runCtx, units...)
	if err != nil && !errors.Is(err, context.Canceled) {
		return errors.Trace(err)
	}
	seen := check.seen()
	if seen != total {
		return errors.Errorf("delivered %d of %d events", seen, total)
	}
	logger.Info(ctx, "events delivered in stream order",
		"events", seen,
		"partitions", cfg.Partitions,
		"took", time.Since(started))
	return nil
}

func startPartition(b *backend, cfg config, partitionKey int, check *orderCheck, registry *prometheus.Registry) (worker.Worker, error) {
	name := fmt.Sprintf("partition-%d", partitionKey)

	busConfig := bus.DefaultConfig()
	busConfig.Engine.Logger = logging.New("pupstream.dispatch." + name)
	events, err := bus.New(context.Background(), busConfig)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err := projection.Register(events, check); err != nil {
		events.Complete()
		return nil, errors.Trace(err)
	}
	if err := registry.Register(dispatch.NewCollector("pupstream", name, events)); err != nil {
		events.Complete()
		return nil, errors.Annotatef(err, "registering %s metrics", name)
	}

	subConfig := subscription.DefaultConfig()
	subConfig.Name = fmt.Sprintf("%s-%d-of-%d", check.Name(), partitionKey, cfg.Partitions)
	if b.db != nil {
		subConfig.DB = b.db
	}
	subConfig.Reader = b.reader
	subConfig.Checkpoints = b.checkpoints
	subConfig.Publisher = events
	subConfig.Logger = logging.New("pupstream.subscription." + name)
	subConfig.PollInterval = 100 * time.Millisecond
	subConfig.PartitionKey = partitionKey
	subConfig.TotalPartitions = cfg.Partitions

	sub, err := subscription.New(subConfig)
	if err != nil {
		events.Complete()
		return nil, errors.Trace(err)
	}
	return sub, nil
}
