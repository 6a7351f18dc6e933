package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/briskprint/printservice/internal/domain"
)

type fakeMetricRepo struct {
	mu      sync.Mutex
	metrics []domain.HealthMetric
}

func (f *fakeMetricRepo) AppendHealthMetric(ctx domain.Context, m domain.HealthMetric) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metrics = append(f.metrics, m)
	return "metric-1", nil
}
func (f *fakeMetricRepo) RecentHealthMetrics(ctx domain.Context, resource domain.ResourceType, limit int) ([]domain.HealthMetric, error) {
	return f.metrics, nil
}

type fakeSelfHealingRepo struct {
	mu     sync.Mutex
	events []domain.SelfHealingEvent
}

func (f *fakeSelfHealingRepo) AppendSelfHealingEvent(ctx domain.Context, e domain.SelfHealingEvent) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return "evt-1", nil
}

func TestMonitor_SampleOne_HealthyNoSelfHealing(t *testing.T) {
	metrics := &fakeMetricRepo{}
	events := &fakeSelfHealingRepo{}
	m := New(metrics, events, 10)
	m.AddSampler(domain.ResourceMemory, func(ctx domain.Context) (float64, map[string]string, error) {
		return 10, nil, nil
	})

	m.sampleOne(context.Background(), domain.ResourceMemory, m.Samplers[domain.ResourceMemory])

	st, _ := m.Status(context.Background())
	if st[domain.ResourceMemory].Status != domain.HealthHealthy {
		t.Fatalf("expected healthy, got %s", st[domain.ResourceMemory].Status)
	}
	if len(events.events) != 0 {
		t.Fatalf("expected no self-healing events, got %d", len(events.events))
	}
}

func TestMonitor_SampleOne_CriticalRecordsSelfHealingOnce(t *testing.T) {
	metrics := &fakeMetricRepo{}
	events := &fakeSelfHealingRepo{}
	m := New(metrics, events, 10)
	m.AddSampler(domain.ResourceMemory, func(ctx domain.Context) (float64, map[string]string, error) {
		return 90, nil, nil
	})

	m.sampleOne(context.Background(), domain.ResourceMemory, m.Samplers[domain.ResourceMemory])
	m.sampleOne(context.Background(), domain.ResourceMemory, m.Samplers[domain.ResourceMemory])

	if len(events.events) != 1 {
		t.Fatalf("expected exactly 1 self-healing event across repeats, got %d", len(events.events))
	}
	if len(metrics.metrics) != 2 {
		t.Fatalf("expected 2 persisted metrics, got %d", len(metrics.metrics))
	}
}

func TestMonitor_SampleOne_SamplerErrorSkipsUpdate(t *testing.T) {
	m := New(&fakeMetricRepo{}, &fakeSelfHealingRepo{}, 10)
	m.AddSampler(domain.ResourceMemory, func(ctx domain.Context) (float64, map[string]string, error) {
		return 0, nil, errors.New("boom")
	})

	m.sampleOne(context.Background(), domain.ResourceMemory, m.Samplers[domain.ResourceMemory])

	st, _ := m.Status(context.Background())
	if _, ok := st[domain.ResourceMemory]; ok {
		t.Fatal("expected no metric recorded on sampler error")
	}
}

func TestMonitor_History_BoundedByCapacity(t *testing.T) {
	m := New(&fakeMetricRepo{}, &fakeSelfHealingRepo{}, 2)
	val := 0.0
	m.AddSampler(domain.ResourceMemory, func(ctx domain.Context) (float64, map[string]string, error) {
		val++
		return val, nil, nil
	})
	for i := 0; i < 5; i++ {
		m.sampleOne(context.Background(), domain.ResourceMemory, m.Samplers[domain.ResourceMemory])
	}
	hist := m.History(domain.ResourceMemory)
	if len(hist) != 2 {
		t.Fatalf("expected history capped at 2, got %d", len(hist))
	}
}

func TestMonitor_TriggerCheck(t *testing.T) {
	m := New(&fakeMetricRepo{}, &fakeSelfHealingRepo{}, 10)
	m.AddSampler(domain.ResourceMemory, func(ctx domain.Context) (float64, map[string]string, error) {
		return 5, nil, nil
	})
	m.Samplers = map[domain.ResourceType]Sampler{domain.ResourceMemory: m.Samplers[domain.ResourceMemory]}

	if err := m.TriggerCheck(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	st, _ := m.Status(context.Background())
	if _, ok := st[domain.ResourceMemory]; !ok {
		t.Fatal("expected memory metric recorded after trigger")
	}
}

func TestMonitor_Run_StopsOnContextCancel(t *testing.T) {
	m := New(&fakeMetricRepo{}, &fakeSelfHealingRepo{}, 10)
	m.Samplers = map[domain.ResourceType]Sampler{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, 10*time.Millisecond)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
