package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SagaMetrics содержит метрики оркестрации fulfillment-саг.
type SagaMetrics struct {
	// Счётчики жизненного цикла саги
	sagaStarted          prometheus.Counter
	sagaCompleted        prometheus.Counter
	sagaFailed           *prometheus.CounterVec
	sagaCompensated      prometheus.Counter
	compensationsStarted prometheus.Counter

	// Гистограмма времени жизни саги
	sagaDuration prometheus.Histogram

	// Счётчики событий
	eventsPublished *prometheus.CounterVec
	domainEvents    prometheus.Counter
}

// NewSagaMetrics создаёт новый экземпляр метрик саги.
func NewSagaMetrics() *SagaMetrics {
	return newSagaMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newSagaMetricsWithRegisterer(registerer prometheus.Registerer) *SagaMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &SagaMetrics{
		sagaStarted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_saga_started_total",
			Help: "Total number of fulfillment sagas started",
		}),
		sagaCompleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_saga_completed_total",
			Help: "Total number of fulfillment sagas completed successfully",
		}),
		sagaFailed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "fulfillment_saga_failed_total",
			Help: "Total number of fulfillment sagas failed grouped by stage",
		}, []string{"stage"}),
		sagaCompensated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_saga_compensated_total",
			Help: "Total number of fulfillment sagas rolled back",
		}),
		compensationsStarted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_saga_compensations_started_total",
			Help: "Total number of compensation runs started",
		}),
		sagaDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "fulfillment_saga_duration_seconds",
			Help:    "Duration of fulfillment sagas in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		eventsPublished: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "fulfillment_events_published_total",
			Help: "Total number of integration events published grouped by topic",
		}, []string{"topic"}),
		domainEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_domain_events_total",
			Help: "Total number of domain events drained from the order aggregate",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordSagaStarted увеличивает счётчик запущенных саг.
func (m *SagaMetrics) RecordSagaStarted() {
	m.sagaStarted.Inc()
}

// RecordSagaCompleted увеличивает счётчик завершённых саг.
func (m *SagaMetrics) RecordSagaCompleted() {
	m.sagaCompleted.Inc()
}

// RecordSagaFailed увеличивает счётчик проваленных саг по стадии.
func (m *SagaMetrics) RecordSagaFailed(stage string) {
	m.sagaFailed.WithLabelValues(stage).Inc()
}

// RecordSagaCompensated увеличивает счётчик откаченных саг.
func (m *SagaMetrics) RecordSagaCompensated() {
	m.sagaCompensated.Inc()
}

// RecordCompensationStarted увеличивает счётчик запусков компенсации.
func (m *SagaMetrics) RecordCompensationStarted() {
	m.compensationsStarted.Inc()
}

// RecordSagaDuration записывает время жизни саги.
func (m *SagaMetrics) RecordSagaDuration(duration time.Duration) {
	m.sagaDuration.Observe(duration.Seconds())
}

// RecordEventPublished увеличивает счётчик опубликованных событий по топику.
func (m *SagaMetrics) RecordEventPublished(topic string) {
	m.eventsPublished.WithLabelValues(topic).Inc()
}

// RecordDomainEvent увеличивает счётчик дренированных доменных событий.
func (m *SagaMetrics) RecordDomainEvent() {
	m.domainEvents.Inc()
}
