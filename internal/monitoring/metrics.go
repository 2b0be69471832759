package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the bot's Prometheus collectors on their own registry.
type Metrics struct {
	registry *prometheus.Registry

	tradesOpened    *prometheus.CounterVec
	tradesClosed    *prometheus.CounterVec
	realizedPnL     *prometheus.CounterVec
	openTrades      prometheus.Gauge
	signalScore     *prometheus.GaugeVec
	watcherTriggers *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	currentPrice    *prometheus.GaugeVec
	balance         prometheus.Gauge
	paused          prometheus.Gauge
}

// NewMetrics creates and registers all collectors, plus the Go runtime collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		tradesOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "futures_bot_trades_opened_total",
			Help: "Total number of trades opened",
		}, []string{"symbol", "side"}),
		tradesClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "futures_bot_trades_closed_total",
			Help: "Total number of trades closed",
		}, []string{"symbol", "side", "reason"}),
		realizedPnL: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "futures_bot_realized_pnl_total",
			Help: "Realized PnL in quote currency, split into profit and loss",
		}, []string{"symbol", "result"}),
		openTrades: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "futures_bot_open_trades",
			Help: "Number of open trades",
		}),
		signalScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "futures_bot_signal_score",
			Help: "Latest signal score per symbol, signed by direction",
		}, []string{"symbol"}),
		watcherTriggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "futures_bot_watcher_triggers_total",
			Help: "Watcher transitions to triggered",
		}, []string{"kind"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "futures_bot_errors_total",
			Help: "Total number of errors",
		}, []string{"category"}),
		currentPrice: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "futures_bot_current_price",
			Help: "Current price of trading symbol",
		}, []string{"symbol"}),
		balance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "futures_bot_balance",
			Help: "Tradable quote balance",
		}),
		paused: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "futures_bot_paused",
			Help: "1 when new entries are paused",
		}),
	}

	m.registry.MustRegister(
		m.tradesOpened, m.tradesClosed, m.realizedPnL, m.openTrades, m.signalScore,
		m.watcherTriggers, m.errorsTotal, m.currentPrice, m.balance, m.paused,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) RecordTradeOpened(symbol, side string) {
	m.tradesOpened.WithLabelValues(symbol, side).Inc()
}

func (m *Metrics) RecordTradeClosed(symbol, side, reason string, pnl float64) {
	m.tradesClosed.WithLabelValues(symbol, side, reason).Inc()
	if pnl >= 0 {
		m.realizedPnL.WithLabelValues(symbol, "profit").Add(pnl)
	} else {
		m.realizedPnL.WithLabelValues(symbol, "loss").Add(-pnl)
	}
}

func (m *Metrics) SetOpenTrades(n int) { m.openTrades.Set(float64(n)) }

// UpdateSignalScore stores score as positive for longs and negative for shorts.
func (m *Metrics) UpdateSignalScore(symbol string, signedScore float64) {
	m.signalScore.WithLabelValues(symbol).Set(signedScore)
}

func (m *Metrics) RecordWatcherTrigger(kind string) {
	m.watcherTriggers.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordError(category string) {
	m.errorsTotal.WithLabelValues(category).Inc()
}

func (m *Metrics) UpdatePrice(symbol string, price float64) {
	m.currentPrice.WithLabelValues(symbol).Set(price)
}

func (m *Metrics) SetBalance(v float64) { m.balance.Set(v) }

func (m *Metrics) SetPaused(p bool) {
	if p {
		m.paused.Set(1)
		return
	}
	m.paused.Set(0)
}
