package metrics

import (
	"context"
	"sync"
	"time"

	"cryptotrack-alerts/internal/types"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	log "github.com/sirupsen/logrus"
)

const (
	namespace = "cryptotrack"
	subsystem = "alerts"
)

// Store persists counter totals across restarts.
type Store interface {
	SaveMetric(ctx context.Context, metricName string, value float64) error
	GetMetric(ctx context.Context, metricName string) (float64, error)
	SaveMetricWithLabels(ctx context.Context, metricName, labelKey, labelValue string, value float64) error
	GetMetricsWithLabels(ctx context.Context, metricName string) (map[string]map[string]float64, error)
}

type AlertMetrics struct {
	Sweeps              prometheus.Counter
	AlertsChecked       prometheus.Counter
	AlertsTriggered     prometheus.Counter
	NotificationsSent   prometheus.Counter
	NotificationsFailed prometheus.Counter
	SweepErrors         *prometheus.CounterVec
	ProviderFailures    *prometheus.CounterVec
	SweepDuration       prometheus.Histogram
	Mutex               sync.Mutex
}

func NewAlertMetrics(reg prometheus.Registerer) *AlertMetrics {
	m := &AlertMetrics{
		Sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sweeps_total",
			Help:      "The total number of completed sweeps",
		}),
		AlertsChecked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "checked_total",
			Help:      "The total number of alerts evaluated",
		}),
		AlertsTriggered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "triggered_total",
			Help:      "The total number of alerts marked triggered",
		}),
		NotificationsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "notifications_sent_total",
			Help:      "The total number of delivered notifications",
		}),
		NotificationsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "notifications_failed_total",
			Help:      "The total number of notifications that exhausted their retries",
		}),
		SweepErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "sweep_errors_total",
				Help:      "Per alert failures by stage",
			},
			[]string{"stage"},
		),
		ProviderFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "provider_failures_total",
				Help:      "Market data provider failures by provider",
			},
			[]string{"provider"},
		),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sweep_duration_seconds",
			Help:      "Wall time of one sweep",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.Sweeps,
		m.AlertsChecked,
		m.AlertsTriggered,
		m.NotificationsSent,
		m.NotificationsFailed,
		m.SweepErrors,
		m.ProviderFailures,
		m.SweepDuration,
	)

	return m
}

// ProviderFailed counts one failed upstream call.
func (m *AlertMetrics) ProviderFailed(provider string) {
	m.ProviderFailures.WithLabelValues(provider).Inc()
}

func (m *AlertMetrics) StageFailed(stage string) {
	m.SweepErrors.WithLabelValues(stage).Inc()
}

func (m *AlertMetrics) NotificationResult(err error) {
	if err != nil {
		m.NotificationsFailed.Inc()
		return
	}
	m.NotificationsSent.Inc()
}

func (m *AlertMetrics) SweepFinished(summary types.SweepSummary, elapsed time.Duration) {
	m.Sweeps.Inc()
	m.AlertsChecked.Add(float64(summary.TotalChecked))
	m.AlertsTriggered.Add(float64(len(summary.Processed)))
	m.SweepDuration.Observe(elapsed.Seconds())
}

type counterEntry struct {
	name    string
	counter prometheus.Counter
}

func (m *AlertMetrics) counters() []counterEntry {
	return []counterEntry{
		{"sweeps_total", m.Sweeps},
		{"checked_total", m.AlertsChecked},
		{"triggered_total", m.AlertsTriggered},
		{"notifications_sent_total", m.NotificationsSent},
		{"notifications_failed_total", m.NotificationsFailed},
	}
}

func (m *AlertMetrics) labeled() map[string]*prometheus.CounterVec {
	return map[string]*prometheus.CounterVec{
		"sweep_errors_total":      m.SweepErrors,
		"provider_failures_total": m.ProviderFailures,
	}
}

// LoadFromStore adds persisted totals to the live counters.
func (m *AlertMetrics) LoadFromStore(ctx context.Context, store Store) error {
	m.Mutex.Lock()
	defer m.Mutex.Unlock()

	for _, c := range m.counters() {
		value, err := store.GetMetric(ctx, c.name)
		if err != nil {
			return errors.Wrapf(err, "could not load metric %s", c.name)
		}
		c.counter.Add(value)
	}

	for name, vec := range m.labeled() {
		values, err := store.GetMetricsWithLabels(ctx, name)
		if err != nil {
			return errors.Wrapf(err, "could not load metric %s", name)
		}
		for _, byValue := range values {
			for labelValue, value := range byValue {
				vec.WithLabelValues(labelValue).Add(value)
			}
		}
	}

	log.Debug("📊 Metrics loaded from database.")
	return nil
}

// SaveToStore writes the current counter totals.
func (m *AlertMetrics) SaveToStore(ctx context.Context, store Store) error {
	m.Mutex.Lock()
	defer m.Mutex.Unlock()

	for _, c := range m.counters() {
		if err := store.SaveMetric(ctx, c.name, GetMetricValue(c.counter)); err != nil {
			return err
		}
	}

	for name, vec := range m.labeled() {
		metricChan := make(chan prometheus.Metric)
		go func() {
			vec.Collect(metricChan)
			close(metricChan)
		}()

		var saveErr error
		for metric := range metricChan {
			metricProto := &dto.Metric{}
			if err := metric.Write(metricProto); err != nil {
				log.Errorf("Failed to read %s metric: %v", name, err)
				continue
			}
			for _, label := range metricProto.Label {
				err := store.SaveMetricWithLabels(ctx, name, label.GetName(), label.GetValue(), metricProto.Counter.GetValue())
				if err != nil && saveErr == nil {
					saveErr = err
				}
			}
		}
		if saveErr != nil {
			return saveErr
		}
	}

	log.Debug("💾 Metrics saved to database.")
	return nil
}

// GetMetricValue reads the current value of a single counter or gauge.
func GetMetricValue(metric prometheus.Collector) float64 {
	var metricValue float64
	metricChan := make(chan prometheus.Metric, 1)
	metric.Collect(metricChan)
	close(metricChan)

	metricProto := &dto.Metric{}
	if err := (<-metricChan).Write(metricProto); err != nil {
		log.Errorf("Failed to read metric value: %v", err)
		return 0
	}

	if metricProto.Counter != nil {
		metricValue = metricProto.Counter.GetValue()
	} else if metricProto.Gauge != nil {
		metricValue = metricProto.Gauge.GetValue()
	}
	return metricValue
}
