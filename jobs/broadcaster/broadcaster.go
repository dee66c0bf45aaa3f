package broadcaster

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	exitwal "matchbook/infra/wal/exit"
)

// Broadcaster relays the trade tape from the outbox to Kafka. Delivery
// is at-least-once: a crash between send and ack resends the trade.
type Broadcaster struct {
	exitWAL    *exitwal.ExitWAL
	producer   sarama.SyncProducer
	topic      string
	interval   time.Duration
	maxRetries uint32
	log        *zap.Logger
}

type Config struct {
	Brokers    []string
	Topic      string
	Interval   time.Duration
	MaxRetries uint32
}

// ------------------------------------------------
// CONSTRUCTOR
// ------------------------------------------------

func New(exitWAL *exitwal.ExitWAL, cfg Config, log *zap.Logger) (*Broadcaster, error) {
	sc := sarama.NewConfig()
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 5
	sc.Producer.Idempotent = false

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, err
	}
	return NewWithProducer(exitWAL, producer, cfg, log), nil
}

// NewWithProducer wires an existing producer, typically a mock in tests.
func NewWithProducer(exitWAL *exitwal.ExitWAL, producer sarama.SyncProducer, cfg Config, log *zap.Logger) *Broadcaster {
	if cfg.Interval <= 0 {
		cfg.Interval = 250 * time.Millisecond
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 10
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Broadcaster{
		exitWAL:    exitWAL,
		producer:   producer,
		topic:      cfg.Topic,
		interval:   cfg.Interval,
		maxRetries: cfg.MaxRetries,
		log:        log.Named("broadcaster"),
	}
}

// ------------------------------------------------
// START LOOP
// ------------------------------------------------

func (b *Broadcaster) Start(ctx context.Context) {
	b.log.Info("started", zap.String("topic", b.topic))

	go func() {
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				b.log.Info("stopped")
				return

			case <-ticker.C:
				if _, err := b.ReplayOnce(); err != nil {
					b.log.Warn("relay pass", zap.Error(err))
				}
			}
		}
	}()
}

// ------------------------------------------------
// RELAY
// ------------------------------------------------

// ReplayOnce publishes every NEW record, every SENT record left behind by
// an interrupted pass and every FAILED record still under the retry cap.
// It returns how many were acknowledged.
func (b *Broadcaster) ReplayOnce() (int, error) {
	var pending []exitwal.ExitRecord
	collect := func(rec exitwal.ExitRecord) error {
		pending = append(pending, rec)
		return nil
	}
	for _, state := range []exitwal.ExitState{exitwal.StateNew, exitwal.StateSent} {
		if err := b.exitWAL.ScanByState(state, collect); err != nil {
			return 0, err
		}
	}
	err := b.exitWAL.ScanByState(exitwal.StateFailed, func(rec exitwal.ExitRecord) error {
		if rec.Retries >= b.maxRetries {
			return nil
		}
		return collect(rec)
	})
	if err != nil {
		return 0, err
	}

	acked := 0
	for _, rec := range pending {
		ok, err := b.deliver(rec)
		if err != nil {
			return acked, err
		}
		if ok {
			acked++
		}
	}
	return acked, nil
}

// deliver moves one record through SENT to ACKED or FAILED. Only outbox
// errors are returned; a broker failure is recorded and retried later.
func (b *Broadcaster) deliver(rec exitwal.ExitRecord) (bool, error) {
	if err := b.exitWAL.MarkSent(rec.TxID); err != nil {
		return false, err
	}

	msg := &sarama.ProducerMessage{
		Topic: b.topic,
		Key:   sarama.StringEncoder(rec.TxID),
		Value: sarama.ByteEncoder(rec.Payload),
	}
	if _, _, err := b.producer.SendMessage(msg); err != nil {
		b.log.Warn("send trade", zap.String("tx_id", rec.TxID), zap.Uint32("retries", rec.Retries), zap.Error(err))
		return false, b.exitWAL.MarkFailed(rec.TxID)
	}

	return true, b.exitWAL.MarkAcked(rec.TxID)
}

// ------------------------------------------------
// SHUTDOWN
// ------------------------------------------------

func (b *Broadcaster) Close() error {
	return b.producer.Close()
}
