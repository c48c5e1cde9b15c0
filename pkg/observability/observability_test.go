package observability

import (
	"context"
	"testing"
	"time"
)

func TestNewMetricsDisabledReturnsNil(t *testing.T) {
	m, err := NewMetrics(&MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m != nil {
		t.Fatal("expected nil Metrics when disabled")
	}
}

func TestNilMetricsMethodsAreNoops(t *testing.T) {
	var m *Metrics

	m.RecordStep("start", 10*time.Millisecond)
	m.RecordTurn("start")
	m.RecordPathFailed("tool_error")
	m.RecordLLMCall("claude-sonnet-4-20250514", 200*time.Millisecond)
	m.RecordLLMTokens("claude-sonnet-4-20250514", 100, 50)
	m.RecordLLMError("claude-sonnet-4-20250514", "transport_error")
	m.RecordToolCall("search", 5*time.Millisecond)
	m.RecordToolError("search", "invalid_input")

	if m.Registry() != nil {
		t.Fatal("expected nil registry for nil Metrics")
	}
}

func TestEnabledMetricsRecordWithoutPanicking(t *testing.T) {
	m, err := NewMetrics(&MetricsConfig{Enabled: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m == nil {
		t.Fatal("expected non-nil Metrics when enabled")
	}

	m.RecordStep("start", 10*time.Millisecond)
	m.RecordStep("start", 20*time.Millisecond)
	m.RecordTurn("start")
	m.RecordPathFailed("tool_error")
	m.RecordLLMCall("claude-sonnet-4-20250514", 200*time.Millisecond)
	m.RecordLLMTokens("claude-sonnet-4-20250514", 100, 50)
	m.RecordLLMError("claude-sonnet-4-20250514", "transport_error")
	m.RecordToolCall("search", 5*time.Millisecond)
	m.RecordToolError("search", "invalid_input")

	if m.Registry() == nil {
		t.Fatal("expected a registry once metrics are enabled")
	}

	count, err := gatherCount(m)
	if err != nil {
		t.Fatalf("gathering metrics: %v", err)
	}
	if count == 0 {
		t.Fatal("expected at least one metric family registered")
	}
}

func gatherCount(m *Metrics) (int, error) {
	families, err := m.Registry().Gather()
	if err != nil {
		return 0, err
	}
	return len(families), nil
}

func TestManagerDisabledByDefault(t *testing.T) {
	mgr, err := NewManager(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mgr.MetricsEnabled() {
		t.Fatal("expected metrics disabled without config")
	}
	if mgr.Metrics() != nil {
		t.Fatal("expected nil Metrics from a disabled manager")
	}
}
