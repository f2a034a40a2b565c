package perf

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	jobmetrics "github.com/noven-pro/receiving/internal/jobs"
	"github.com/noven-pro/receiving/internal/receiving"
	"github.com/noven-pro/receiving/jobs"
)

func TestQualityHandoffThroughputAndReliability(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	svc := receiving.NewService(receiving.NewMemoryRepository(), receiving.Dependencies{}, receiving.ServiceConfig{})
	job := jobs.NewQualityHandoffJob(svc, nil, nil, metrics)

	handle := func(d receiving.Delivery) error {
		task, err := jobs.NewQualityHandoffTask(receiving.SentToQualityEvent{DeliveryID: d.ID, SentAt: d.UpdatedAt})
		if err != nil {
			t.Fatalf("build task: %v", err)
		}
		return job.Handle(ctx, task)
	}

	for i := 0; i < 60; i++ {
		d, err := svc.CreateDelivery(ctx, receiving.CreateDeliveryInput{Supplier: "Bench"})
		if err != nil {
			t.Fatalf("create delivery: %v", err)
		}
		if d, err = svc.SendToQuality(ctx, d.ID); err != nil {
			t.Fatalf("send to quality: %v", err)
		}
		if err := handle(d); err != nil {
			t.Fatalf("handoff %s: %v", d.ID, err)
		}
	}

	// Deliveries still open are skipped without retry.
	for i := 0; i < 3; i++ {
		d, err := svc.CreateDelivery(ctx, receiving.CreateDeliveryInput{Supplier: "Open"})
		if err != nil {
			t.Fatalf("create delivery: %v", err)
		}
		if err := handle(d); !errors.Is(err, asynq.SkipRetry) {
			t.Fatalf("expected skip retry, got %v", err)
		}
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	labels := func(status string) map[string]string {
		return map[string]string{"job": jobs.TaskQualityHandoff, "status": status}
	}
	success := metricValue(t, families, "receiving_jobs_total", labels("success"))
	failure := metricValue(t, families, "receiving_jobs_total", labels("failure"))
	if success != 60 || failure != 3 {
		t.Fatalf("unexpected hand-off outcomes: success=%v failure=%v", success, failure)
	}
	if ratio := success / (success + failure); ratio < 0.9 {
		t.Fatalf("hand-off success ratio too low: %f", ratio)
	}

	mean := histogramMean(t, families, "receiving_job_duration_seconds", map[string]string{"job": jobs.TaskQualityHandoff})
	if mean > 0.5 {
		t.Fatalf("hand-off duration above budget: %f", mean)
	}
	if lag := histogramMean(t, families, "receiving_quality_handoff_lag_seconds", nil); lag > 2.0 {
		t.Fatalf("hand-off lag above budget: %f", lag)
	}
}

func TestQualityHandoffPayloadSize(t *testing.T) {
	task, err := jobs.NewQualityHandoffTask(receiving.SentToQualityEvent{Supplier: "Acme", Reference: "PO-1", ItemCount: 40})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if !json.Valid(task.Payload()) || len(task.Payload()) > 1024 {
		t.Fatalf("unexpected payload %q", task.Payload())
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				if fam.GetType() == dto.MetricType_COUNTER {
					return metric.GetCounter().GetValue()
				}
				if fam.GetType() == dto.MetricType_GAUGE {
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	for key, want := range labels {
		found := false
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == key {
				found = lp.GetValue() == want
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
