package kafka

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"matchbook/domain/orderbook"
)

const maxBatch = 256

// EventPublisher streams book events to Kafka. Notify runs inside the
// book's critical section, so it only encodes and enqueues; Run does the
// network I/O. When the buffer is full the event is dropped and counted.
type EventPublisher struct {
	producer *Producer
	queue    chan kafka.Message
	dropped  atomic.Uint64
	log      *zap.Logger
}

func NewEventPublisher(p *Producer, buffer int, log *zap.Logger) *EventPublisher {
	if buffer <= 0 {
		buffer = 1024
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &EventPublisher{
		producer: p,
		queue:    make(chan kafka.Message, buffer),
		log:      log.Named("kafka"),
	}
}

func (p *EventPublisher) Notify(ev orderbook.Event) {
	value, err := json.Marshal(ev)
	if err != nil {
		p.log.Warn("encode event", zap.String("type", string(ev.Type)), zap.Error(err))
		return
	}
	key := ev.OrderID
	if key == "" {
		key = ev.Price.String()
	}
	msg := kafka.Message{
		Key:     []byte(key),
		Value:   value,
		Headers: []kafka.Header{{Key: "type", Value: []byte(ev.Type)}},
	}
	select {
	case p.queue <- msg:
	default:
		p.dropped.Add(1)
	}
}

// Dropped is how many events were discarded on a full buffer.
func (p *EventPublisher) Dropped() uint64 { return p.dropped.Load() }

// Run drains the buffer until ctx is done, then flushes what is queued.
func (p *EventPublisher) Run(ctx context.Context) {
	p.log.Info("publisher started")
	defer p.log.Info("publisher stopped")

	for {
		select {
		case <-ctx.Done():
			p.flush(context.WithoutCancel(ctx))
			return
		case msg := <-p.queue:
			p.write(ctx, p.batch(msg))
		}
	}
}

func (p *EventPublisher) batch(first kafka.Message) []kafka.Message {
	msgs := []kafka.Message{first}
	for len(msgs) < maxBatch {
		select {
		case m := <-p.queue:
			msgs = append(msgs, m)
		default:
			return msgs
		}
	}
	return msgs
}

func (p *EventPublisher) flush(ctx context.Context) {
	for {
		select {
		case msg := <-p.queue:
			p.write(ctx, p.batch(msg))
		default:
			return
		}
	}
}

func (p *EventPublisher) write(ctx context.Context, msgs []kafka.Message) {
	if err := p.producer.SendBatch(ctx, msgs); err != nil {
		p.log.Warn("publish events", zap.Int("count", len(msgs)), zap.Error(err))
	}
}
