package usecase

import "github.com/prometheus/client_golang/prometheus"

var (
	mtxOrders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_orders_total",
			Help: "Orders placed, by purpose",
		},
		[]string{"purpose"}, // entry|take_profit|stop_loss|market_close
	)

	mtxTriggers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_triggers_total",
			Help: "Lifecycle triggers fired, by kind and detection path",
		},
		[]string{"kind", "path"}, // kind: take_profit|stop_loss|end_of_day; path: order|position|schedule
	)

	mtxResets = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_resets_total",
			Help: "Cancel-all-and-reset sweeps executed",
		},
	)

	mtxBalance = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_balance_total",
			Help: "Last known total account balance",
		},
	)
)

func init() {
	prometheus.MustRegister(mtxOrders, mtxTriggers, mtxResets, mtxBalance)
}
