package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("BROADCAST_BACKEND", "")
	t.Setenv("SNAP_TIMEOUT", "")
	t.Setenv("HISTORY_CAPACITY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BroadcastBackend != BroadcastRabbitMQ {
		t.Errorf("expected rabbitmq backend, got %s", cfg.BroadcastBackend)
	}
	if cfg.SnapTimeout != 3*time.Second {
		t.Errorf("expected 3s snap timeout, got %v", cfg.SnapTimeout)
	}
	if cfg.HistoryCapacity != 10000 {
		t.Errorf("expected history capacity 10000, got %d", cfg.HistoryCapacity)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("BROADCAST_BACKEND", "nats")
	t.Setenv("DIRECTIONS_TIMEOUT", "750ms")
	t.Setenv("ROUTE_CAPACITY", "12")
	t.Setenv("SNAP_INTERPOLATE", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BroadcastBackend != BroadcastNATS {
		t.Errorf("expected nats backend, got %s", cfg.BroadcastBackend)
	}
	if cfg.DirectionsTimeout != 750*time.Millisecond {
		t.Errorf("expected 750ms, got %v", cfg.DirectionsTimeout)
	}
	if cfg.RouteCapacity != 12 {
		t.Errorf("expected 12, got %d", cfg.RouteCapacity)
	}
	if !cfg.SnapInterpolate {
		t.Error("expected interpolate enabled")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"BROADCAST_BACKEND", "kafka"},
		{"SNAP_TIMEOUT", "soon"},
		{"HISTORY_TTL", "-1s"},
		{"ROUTE_CAPACITY", "many"},
		{"SNAP_INTERPOLATE", "maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%q", tt.key, tt.value)
			}
		})
	}
}
