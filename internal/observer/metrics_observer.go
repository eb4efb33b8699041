package observer

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsObserver records session events as prometheus metrics
type MetricsObserver struct {
	analyses        *prometheus.CounterVec
	analysisSeconds *prometheus.HistogramVec
	sessionChanges  *prometheus.CounterVec
	historyOps      *prometheus.CounterVec
}

// NewMetricsObserver creates the collectors and registers them with reg
func NewMetricsObserver(reg prometheus.Registerer) (*MetricsObserver, error) {
	o := &MetricsObserver{
		analyses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "olive_inspector",
				Name:      "analyses_total",
				Help:      "Analyze calls by outcome",
			},
			[]string{"outcome"},
		),
		analysisSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "olive_inspector",
				Name:      "analysis_duration_seconds",
				Help:      "Time spent waiting for the detection server",
				Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
			},
			[]string{"outcome"},
		),
		sessionChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "olive_inspector",
				Name:      "session_changes_total",
				Help:      "Session mutations by kind",
			},
			[]string{"kind"},
		),
		historyOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "olive_inspector",
				Name:      "history_operations_total",
				Help:      "History operations by kind",
			},
			[]string{"operation"},
		),
	}

	for _, c := range []prometheus.Collector{o.analyses, o.analysisSeconds, o.sessionChanges, o.historyOps} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// OnEvent handles session events by updating metrics
func (o *MetricsObserver) OnEvent(ctx context.Context, event SessionEvent) {
	switch event.EventType {
	case AnalysisCompleted:
		o.observeAnalysis("success", event)
	case AnalysisNoDetection:
		o.observeAnalysis("no_detection", event)
	case AnalysisFailed:
		outcome := event.ErrorType
		if outcome == "" {
			outcome = "error"
		}
		o.observeAnalysis(outcome, event)
	case ImageSelected:
		o.sessionChanges.WithLabelValues("image_selected").Inc()
	case SessionReset:
		o.sessionChanges.WithLabelValues("reset").Inc()
	case HistorySaved:
		o.historyOps.WithLabelValues("save").Inc()
	case HistoryDeleted:
		o.historyOps.WithLabelValues("delete").Inc()
	case HistoryCleared:
		o.historyOps.WithLabelValues("clear").Inc()
	}
}

func (o *MetricsObserver) observeAnalysis(outcome string, event SessionEvent) {
	o.analyses.WithLabelValues(outcome).Inc()
	o.analysisSeconds.WithLabelValues(outcome).Observe(event.ProcessingTime.Seconds())
}

// GetObserverName returns the observer name
func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}
