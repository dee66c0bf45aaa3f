// Package metrics exposes book activity as Prometheus series. There is no
// HTTP listener; WriteTextfile produces a file for the node exporter's
// textfile collector.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"matchbook/domain/orderbook"
)

const namespace = "matchbook"

// Collector counts book events and holds the gauges the service refreshes
// after every command.
type Collector struct {
	registry *prometheus.Registry

	events   *prometheus.CounterVec
	trades   prometheus.Counter
	volume   prometheus.Counter
	notional prometheus.Counter

	depth   *prometheus.GaugeVec
	resting *prometheus.GaugeVec
	best    *prometheus.GaugeVec

	rejected *prometheus.CounterVec
	journal  prometheus.Gauge
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "book_events_total",
			Help:      "Book events by type.",
		}, []string{"type"}),
		trades: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Trades printed to the tape.",
		}),
		volume: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traded_quantity_total",
			Help:      "Sum of traded quantity.",
		}),
		notional: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traded_notional_total",
			Help:      "Sum of price times quantity over all trades.",
		}),
		depth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "price_levels",
			Help:      "Number of price levels per side.",
		}, []string{"side"}),
		resting: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "resting_orders",
			Help:      "Number of resting orders per side.",
		}, []string{"side"}),
		best: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_price",
			Help:      "Best price per side, 0 when the side is empty.",
		}, []string{"side"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_commands_total",
			Help:      "Commands rejected by validation, by field.",
		}, []string{"field"}),
		journal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "journal_sequence",
			Help:      "Last journal sequence applied to the book.",
		}),
	}
	c.registry.MustRegister(c.events, c.trades, c.volume, c.notional,
		c.depth, c.resting, c.best, c.rejected, c.journal)
	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Notify implements orderbook.Notifier.
func (c *Collector) Notify(ev orderbook.Event) {
	c.events.WithLabelValues(string(ev.Type)).Inc()
	if ev.Type != orderbook.EventTransactionNew {
		return
	}
	c.trades.Inc()
	c.volume.Add(ev.Quantity.InexactFloat64())
	c.notional.Add(ev.Quantity.Mul(ev.Price).InexactFloat64())
}

// ObserveBook refreshes the per-side gauges.
func (c *Collector) ObserveBook(b *orderbook.OrderBook) {
	for _, tree := range []*orderbook.OrderTree{b.Bids, b.Asks} {
		side := tree.Side().String()
		c.depth.WithLabelValues(side).Set(float64(tree.Depth()))
		c.resting.WithLabelValues(side).Set(float64(tree.Len()))
		price, _ := tree.BestPrice()
		c.best.WithLabelValues(side).Set(price.InexactFloat64())
	}
}

func (c *Collector) Rejected(field string) {
	c.rejected.WithLabelValues(field).Inc()
}

func (c *Collector) JournalSeq(seq uint64) {
	c.journal.Set(float64(seq))
}

// WriteTextfile atomically writes every series to path.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}
