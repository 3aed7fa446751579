package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewSagaMetrics(t *testing.T) {
	metrics := newSagaMetricsWithRegisterer(prometheus.NewRegistry())

	if metrics == nil {
		t.Fatal("metrics should not be nil")
	}
	if metrics.sagaStarted == nil {
		t.Error("sagaStarted counter should not be nil")
	}
	if metrics.sagaCompleted == nil {
		t.Error("sagaCompleted counter should not be nil")
	}
	if metrics.sagaFailed == nil {
		t.Error("sagaFailed counter vec should not be nil")
	}
	if metrics.sagaCompensated == nil {
		t.Error("sagaCompensated counter should not be nil")
	}
	if metrics.compensationsStarted == nil {
		t.Error("compensationsStarted counter should not be nil")
	}
	if metrics.sagaDuration == nil {
		t.Error("sagaDuration histogram should not be nil")
	}
	if metrics.eventsPublished == nil {
		t.Error("eventsPublished counter vec should not be nil")
	}
	if metrics.domainEvents == nil {
		t.Error("domainEvents counter should not be nil")
	}
}

func TestRegisterTwiceReturnsExistingCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()

	first := newSagaMetricsWithRegisterer(registry)
	second := newSagaMetricsWithRegisterer(registry)

	first.RecordSagaStarted()
	second.RecordSagaStarted()

	metric := &dto.Metric{}
	if err := first.sagaStarted.Write(metric); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if metric.Counter.GetValue() != 2.0 {
		t.Errorf("counter value = %f, want 2.0 (same underlying collector)", metric.Counter.GetValue())
	}
}

func counterValue(t *testing.T, counter prometheus.Counter) float64 {
	t.Helper()
	metric := &dto.Metric{}
	if err := counter.Write(metric); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return metric.Counter.GetValue()
}

func TestRecordLifecycleCounters(t *testing.T) {
	metrics := newSagaMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordSagaStarted()
	metrics.RecordSagaStarted()
	metrics.RecordSagaCompleted()
	metrics.RecordSagaCompensated()
	metrics.RecordCompensationStarted()
	metrics.RecordDomainEvent()

	if got := counterValue(t, metrics.sagaStarted); got != 2.0 {
		t.Errorf("sagaStarted = %f, want 2.0", got)
	}
	if got := counterValue(t, metrics.sagaCompleted); got != 1.0 {
		t.Errorf("sagaCompleted = %f, want 1.0", got)
	}
	if got := counterValue(t, metrics.sagaCompensated); got != 1.0 {
		t.Errorf("sagaCompensated = %f, want 1.0", got)
	}
	if got := counterValue(t, metrics.compensationsStarted); got != 1.0 {
		t.Errorf("compensationsStarted = %f, want 1.0", got)
	}
	if got := counterValue(t, metrics.domainEvents); got != 1.0 {
		t.Errorf("domainEvents = %f, want 1.0", got)
	}
}

func TestRecordSagaFailedByStage(t *testing.T) {
	metrics := newSagaMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordSagaFailed("payment_processing")
	metrics.RecordSagaFailed("payment_processing")
	metrics.RecordSagaFailed("timeout")

	if got := counterValue(t, metrics.sagaFailed.WithLabelValues("payment_processing")); got != 2.0 {
		t.Errorf("failed{payment_processing} = %f, want 2.0", got)
	}
	if got := counterValue(t, metrics.sagaFailed.WithLabelValues("timeout")); got != 1.0 {
		t.Errorf("failed{timeout} = %f, want 1.0", got)
	}
	if got := counterValue(t, metrics.sagaFailed.WithLabelValues("untouched")); got != 0.0 {
		t.Errorf("failed{untouched} = %f, want 0.0", got)
	}
}

func TestRecordEventPublishedByTopic(t *testing.T) {
	metrics := newSagaMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordEventPublished("orders.created")
	metrics.RecordEventPublished("orders.created")

	if got := counterValue(t, metrics.eventsPublished.WithLabelValues("orders.created")); got != 2.0 {
		t.Errorf("published{orders.created} = %f, want 2.0", got)
	}
}

func TestRecordSagaDuration(t *testing.T) {
	metrics := newSagaMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordSagaDuration(1500 * time.Millisecond)

	metric := &dto.Metric{}
	if err := metrics.sagaDuration.Write(metric); err != nil {
		t.Fatalf("write histogram: %v", err)
	}
	if metric.Histogram.GetSampleCount() != 1 {
		t.Errorf("sample count = %d, want 1", metric.Histogram.GetSampleCount())
	}
	if metric.Histogram.GetSampleSum() != 1.5 {
		t.Errorf("sample sum = %f, want 1.5", metric.Histogram.GetSampleSum())
	}
}
