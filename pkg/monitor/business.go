package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics 定义业务监控指标
type BusinessMetrics struct {
	PipelineStageTotal    *prometheus.CounterVec
	PipelineFailuresTotal *prometheus.CounterVec
	EstimateDuration      *prometheus.HistogramVec
	LedgerPending         *prometheus.GaugeVec
	LedgerFinalizedTotal  *prometheus.CounterVec
	OutboxRelayedTotal    prometheus.Counter
}

// Business 全局实例，未初始化时下面的辅助函数什么也不做
var Business *BusinessMetrics

// InitBusinessMetrics 初始化业务指标
func InitBusinessMetrics() {
	Business = &BusinessMetrics{
		PipelineStageTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "overlay_pipeline_stage_total",
			Help: "Pipeline stage transitions by intent",
		}, []string{"intent", "stage"}),
		PipelineFailuresTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "overlay_pipeline_failures_total",
			Help: "Pipeline failures by intent and error kind",
		}, []string{"intent", "kind"}),
		EstimateDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "overlay_estimate_duration_seconds",
			Help:    "Duration of the estimate + select step",
			Buckets: prometheus.DefBuckets,
		}, []string{"intent"}),
		LedgerPending: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "overlay_ledger_pending",
			Help: "Pending transactions per chain",
		}, []string{"chain_id"}),
		LedgerFinalizedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "overlay_ledger_finalized_total",
			Help: "Finalized transactions by receipt status",
		}, []string{"chain_id", "status"}),
		OutboxRelayedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "overlay_outbox_relayed_total",
			Help: "Outbox messages delivered to the message queue",
		}),
	}
}

func Stage(intent, stage string) {
	if Business != nil {
		Business.PipelineStageTotal.WithLabelValues(intent, stage).Inc()
	}
}

func Failure(intent, kind string) {
	if Business != nil {
		Business.PipelineFailuresTotal.WithLabelValues(intent, kind).Inc()
	}
}

func ObserveEstimate(intent string, seconds float64) {
	if Business != nil {
		Business.EstimateDuration.WithLabelValues(intent).Observe(seconds)
	}
}

func SetPending(chainID string, n int) {
	if Business != nil {
		Business.LedgerPending.WithLabelValues(chainID).Set(float64(n))
	}
}

func Finalized(chainID, status string) {
	if Business != nil {
		Business.LedgerFinalizedTotal.WithLabelValues(chainID, status).Inc()
	}
}

func Relayed() {
	if Business != nil {
		Business.OutboxRelayedTotal.Inc()
	}
}
