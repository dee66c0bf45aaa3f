package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"matchbook/domain/orderbook"
	"matchbook/infra/archive"
	"matchbook/infra/config"
	"matchbook/infra/kafka"
	"matchbook/infra/logger"
	"matchbook/infra/metrics"
	entrywal "matchbook/infra/wal/entry"
	exitwal "matchbook/infra/wal/exit"
	"matchbook/jobs/broadcaster"
	"matchbook/service"
)

func main() {
	os.Exit(start(os.Args[1:]))
}

// start returns the process exit code once every deferred cleanup, the
// final log flush included, has run.
func start(args []string) int {
	fs := flag.NewFlagSet("matchbook", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to YAML config")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return 2
	}

	log := logger.New(cfg)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("matchbook stopped", zap.Error(err))
		return 1
	}
	log.Info("matchbook stopped")
	return 0
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	// ---------------- Entry WAL ----------------

	journal, err := entrywal.Open(entrywal.Config{
		Dir:            cfg.Journal.Dir,
		SegmentSize:    cfg.Journal.SegmentSize,
		SyncEveryWrite: cfg.Journal.Sync,
	})
	if err != nil {
		return fmt.Errorf("journal init: %w", err)
	}
	defer journal.Close()

	// ---------------- Exit WAL ----------------

	var outbox *exitwal.ExitWAL
	if cfg.Outbox.Dir != "" {
		if outbox, err = exitwal.Open(cfg.Outbox.Dir); err != nil {
			return fmt.Errorf("outbox init: %w", err)
		}
		defer outbox.Close()
	}

	// ---------------- Archive ----------------

	var trades *archive.Archive
	if cfg.Archive.Path != "" {
		if trades, err = archive.Open(cfg.Archive.Path); err != nil {
			return fmt.Errorf("archive init: %w", err)
		}
		defer trades.Close()
	}

	// ---------------- Observers ----------------

	collector := metrics.NewCollector()
	notifiers := []orderbook.Notifier{logger.NewBookEvents(log)}

	var publisher *kafka.EventPublisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic)
		defer producer.Close()
		publisher = kafka.NewEventPublisher(producer, cfg.Kafka.Buffer, log)
		notifiers = append(notifiers, publisher)
	}

	// ---------------- Service ----------------

	deps := service.Deps{
		Journal:   journal,
		Metrics:   collector,
		Notifiers: notifiers,
		TapeLimit: cfg.Book.TapeLimit,
		RandomIDs: cfg.RandomIDs(),
		Log:       log,
	}
	if outbox != nil {
		deps.Outbox = outbox
	}
	if trades != nil {
		deps.Archive = trades
	}
	svc := service.NewOrderService(deps)

	// ---------------- Replay ----------------

	snapPath := ""
	if cfg.Snapshot.Dir != "" {
		snapPath = service.SnapshotPath(cfg.Snapshot.Dir)
	}
	last, err := svc.Replay(ctx, snapPath)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	log.Info("book ready", zap.Uint64("journal_seq", last))

	// ---------------- Jobs ----------------

	if publisher != nil {
		go publisher.Run(ctx)
	}
	if cfg.Kafka.Enabled && outbox != nil {
		relay, err := broadcaster.New(outbox, broadcaster.Config{
			Brokers:    cfg.Kafka.Brokers,
			Topic:      cfg.Kafka.TradesTopic,
			Interval:   cfg.Kafka.RelayInterval,
			MaxRetries: cfg.Kafka.MaxRetries,
		}, log)
		if err != nil {
			return fmt.Errorf("trade relay: %w", err)
		}
		defer relay.Close()
		relay.Start(ctx)
	}
	if cfg.Snapshot.Dir != "" {
		svc.StartSnapshotJob(ctx, cfg.Snapshot.Dir, cfg.Snapshot.Interval)
	}
	if cfg.Metrics.Textfile != "" {
		go writeMetrics(ctx, collector, cfg.Metrics.Textfile, cfg.Metrics.Interval, log)
	}

	// ---------------- Commands ----------------

	go func() {
		<-ctx.Done()
		_ = os.Stdin.Close()
	}()
	err = serve(ctx, svc, os.Stdin, os.Stdout)
	if cfg.Snapshot.Dir != "" {
		if _, serr := svc.TakeSnapshot(cfg.Snapshot.Dir); serr != nil {
			log.Warn("final snapshot", zap.Error(serr))
		}
	}
	return err
}

func writeMetrics(ctx context.Context, c *metrics.Collector, path string, every time.Duration, log *zap.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := c.WriteTextfile(path); err != nil {
				log.Warn("metrics textfile", zap.String("path", path), zap.Error(err))
			}
		}
	}
}
