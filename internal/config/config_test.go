package config

import "testing"

func TestEffectiveMaxSendFloor(t *testing.T) {
	c := &Config{MaxSend: 1000}
	if got := c.EffectiveMaxSend(); got != 350000 {
		t.Fatalf("EffectiveMaxSend() = %d, want floor 350000", got)
	}
	c.MaxSend = 500000
	if got := c.EffectiveMaxSend(); got != 500000 {
		t.Fatalf("EffectiveMaxSend() = %d, want 500000", got)
	}
}

func TestLowWatermark(t *testing.T) {
	c := &Config{MaxSessions: 10}
	if got := c.LowWatermark(); got != 9 {
		t.Fatalf("LowWatermark() = %d, want 9", got)
	}
}

func TestParseServices(t *testing.T) {
	services, err := parseServices("0.0.0.0:50001:tcp, 127.0.0.1:8000:RPC")
	if err != nil {
		t.Fatalf("parseServices: %v", err)
	}
	if len(services) != 2 {
		t.Fatalf("want 2 services, got %d", len(services))
	}
	if services[1].Protocol != "rpc" || !services[1].IsRPC() {
		t.Fatalf("expected protocol normalized to lowercase rpc, got %+v", services[1])
	}
}

func TestParseServicesRejectsUnknownProtocol(t *testing.T) {
	if _, err := parseServices("host:1:quic"); err == nil {
		t.Fatal("expected error for unknown protocol")
	}
}

func TestValidateRejectsInvertedCostLimits(t *testing.T) {
	c := &Config{
		MaxSessions:       1,
		CostSoftLimit:     100,
		CostHardLimit:     50,
		InitialConcurrent: 1,
		Services:          "h:1:tcp",
		LogLevel:          "info",
		LogFormat:         "json",
	}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error when hard limit <= soft limit")
	}
}
