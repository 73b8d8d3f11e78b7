package adapter

import (
	"context"
	"errors"
	"testing"
	"time"

	nmap "github.com/Ullaakut/nmap/v3"

	"interlink/internal/domain"
	"interlink/internal/logger"
)

func TestNmapSource_Options(t *testing.T) {
	log := logger.NewTestLogger()

	t.Run("defaults", func(t *testing.T) {
		src := NewNmapSource([]string{"192.168.1.0/24"}, log)
		if src.portRange != defaultNmapPorts {
			t.Errorf("expected default ports, got %s", src.portRange)
		}
		if src.kind != domain.KindIoTDevice {
			t.Errorf("expected kind iot_device, got %s", src.kind)
		}
		if !src.serviceDetection {
			t.Error("expected service detection enabled by default")
		}
		if src.Name() != "nmap" {
			t.Errorf("expected name 'nmap', got %s", src.Name())
		}
	})

	t.Run("WithTimeout", func(t *testing.T) {
		src := NewNmapSource(nil, log, WithTimeout(20*time.Minute))
		if src.timeout != 20*time.Minute {
			t.Errorf("expected timeout 20m, got %v", src.timeout)
		}
	})

	t.Run("WithPortRange", func(t *testing.T) {
		src := NewNmapSource(nil, log, WithPortRange("1-1000"))
		if src.portRange != "1-1000" {
			t.Errorf("expected port range 1-1000, got %s", src.portRange)
		}
	})

	t.Run("WithPortRange ignores invalid", func(t *testing.T) {
		src := NewNmapSource(nil, log, WithPortRange("80-"))
		if src.portRange != defaultNmapPorts {
			t.Errorf("expected default ports after invalid range, got %s", src.portRange)
		}
	})

	t.Run("WithTargets", func(t *testing.T) {
		src := NewNmapSource(nil, log, WithTargets([]string{"10.0.0.0/28", "broker.local"}))
		if len(src.targets) != 2 {
			t.Errorf("expected 2 targets, got %d", len(src.targets))
		}
	})

	t.Run("WithKind", func(t *testing.T) {
		src := NewNmapSource(nil, log, WithKind(domain.KindUnknown))
		if src.kind != domain.KindUnknown {
			t.Errorf("expected kind unknown, got %s", src.kind)
		}
	})

	t.Run("WithSkipHostDiscovery and WithOSDetection", func(t *testing.T) {
		src := NewNmapSource(nil, log, WithSkipHostDiscovery(true), WithOSDetection(true))
		if !src.skipHostDiscovery || !src.osDetection {
			t.Error("expected skip host discovery and OS detection enabled")
		}
	})

	t.Run("WithTopPorts", func(t *testing.T) {
		src := NewNmapSource(nil, log, WithTopPorts(2000))
		if src.portRange != "1-1024" {
			t.Errorf("expected 1-1024, got %s", src.portRange)
		}
	})

	t.Run("WithIoTPorts", func(t *testing.T) {
		src := NewNmapSource(nil, log, WithIoTPorts())
		if _, err := parsePorts(src.portRange); err != nil {
			t.Errorf("IoT port list should be valid: %v", err)
		}
	})

	t.Run("WithFastScan", func(t *testing.T) {
		src := NewNmapSource(nil, log, WithFastScan())
		if src.serviceDetection {
			t.Error("expected service detection disabled in fast scan")
		}
		if src.timeout != 5*time.Minute {
			t.Errorf("expected timeout 5m in fast scan, got %v", src.timeout)
		}
	})
}

func TestNmapSource_ProcessResults(t *testing.T) {
	src := NewNmapSource([]string{"192.168.1.0/24"}, logger.NewTestLogger())

	result := &nmap.Run{
		Hosts: []nmap.Host{
			{
				Addresses: []nmap.Address{
					{Addr: "AA:BB:CC:DD:EE:FF", AddrType: "mac", Vendor: "Test Vendor"},
					{Addr: "192.168.1.100", AddrType: "ipv4"},
				},
				Hostnames: []nmap.Hostname{{Name: "sensor01.local"}},
				Status:    nmap.Status{State: "up"},
				Ports: []nmap.Port{
					{ID: 1883, Protocol: "tcp", State: nmap.State{State: "open"}, Service: nmap.Service{Name: "mqtt"}},
					{ID: 80, Protocol: "tcp", State: nmap.State{State: "open"}},
					{ID: 5683, Protocol: "udp", State: nmap.State{State: "open"}},
					{ID: 443, Protocol: "tcp", State: nmap.State{State: "closed"}},
				},
			},
			{
				Addresses: []nmap.Address{{Addr: "192.168.1.101", AddrType: "ipv4"}},
				Status:    nmap.Status{State: "down"},
			},
		},
	}

	records, err := src.processResults(result)
	if err != nil {
		t.Fatalf("processResults failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record for the host that is up, got %d", len(records))
	}

	rec := records[0]
	if rec.ID != "192-168-1-100" {
		t.Errorf("expected ID 192-168-1-100, got %s", rec.ID)
	}
	if rec.Name != "sensor01" {
		t.Errorf("expected name 'sensor01', got %s", rec.Name)
	}
	if rec.Address != "192.168.1.100" {
		t.Errorf("expected address 192.168.1.100, got %s", rec.Address)
	}
	if rec.Kind != string(domain.KindIoTDevice) {
		t.Errorf("expected kind iot_device, got %s", rec.Kind)
	}
	if !rec.Reachable {
		t.Error("expected host that is up to be reachable")
	}

	want := []domain.Interface{
		{Name: "tcp/1883", Protocol: "mqtt"},
		{Name: "tcp/80", Protocol: "http"},
		{Name: "udp/5683", Protocol: "coap"},
	}
	if len(rec.Interfaces) != len(want) {
		t.Fatalf("expected %d interfaces, got %d: %v", len(want), len(rec.Interfaces), rec.Interfaces)
	}
	for i, iface := range want {
		if rec.Interfaces[i] != iface {
			t.Errorf("interface %d = %+v, want %+v", i, rec.Interfaces[i], iface)
		}
	}
}

func TestNmapSource_ProcessResultsEdgeCases(t *testing.T) {
	src := NewNmapSource(nil, logger.NewTestLogger())

	if _, err := src.processResults(nil); err == nil {
		t.Error("expected error for nil result")
	}

	result := &nmap.Run{
		Hosts: []nmap.Host{
			{Status: nmap.Status{State: "up"}},
			{
				Addresses: []nmap.Address{{Addr: "fe80::1", AddrType: "ipv6"}},
				Status:    nmap.Status{State: "up"},
				Ports: []nmap.Port{
					{ID: 31337, Protocol: "tcp", State: nmap.State{State: "open"}},
				},
			},
		},
	}

	records, err := src.processResults(result)
	if err != nil {
		t.Fatalf("processResults failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].ID != "fe80--1" {
		t.Errorf("expected ID fe80--1, got %s", records[0].ID)
	}
	if records[0].Name != "fe80::1" {
		t.Errorf("expected name to fall back to the address, got %s", records[0].Name)
	}
	if records[0].Interfaces[0].Protocol != "unknown-31337" {
		t.Errorf("expected unknown-31337 protocol, got %s", records[0].Interfaces[0].Protocol)
	}
}

func TestNmapSource_DiscoverNoTargets(t *testing.T) {
	src := NewNmapSource(nil, logger.NewTestLogger())

	records, err := src.Discover(context.Background())
	if err != nil {
		t.Errorf("Discover with no targets failed: %v", err)
	}
	if records != nil {
		t.Error("expected no records for no targets")
	}
}

func TestNmapSource_Check(t *testing.T) {
	src := NewNmapSource([]string{"127.0.0.1"}, logger.NewTestLogger())

	// nmap may be absent in CI
	if err := src.Check(context.Background()); err != nil {
		if !errors.Is(err, ErrNmapUnavailable) {
			t.Errorf("expected ErrNmapUnavailable, got %v", err)
		}
	}
}

func TestParsePorts(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantError bool
	}{
		{"single port", "80", false},
		{"multiple ports", "80,443,8080", false},
		{"port range", "1-1000", false},
		{"mixed format", "22,80-443,8080", false},
		{"with spaces", "22, 80, 443", false},
		{"invalid range", "80-", true},
		{"invalid port", "99999", true},
		{"invalid format", "abc", true},
		{"negative port", "-1", true},
		{"reversed range", "443-80", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parsePorts(tt.input)
			if (err != nil) != tt.wantError {
				t.Errorf("parsePorts(%s) error = %v, wantError %v", tt.input, err, tt.wantError)
			}
			if err != nil && !errors.Is(err, ErrInvalidPort) {
				t.Errorf("parsePorts(%s) error should wrap ErrInvalidPort, got %v", tt.input, err)
			}
		})
	}
}

func TestExpandTargets(t *testing.T) {
	tests := []struct {
		name      string
		input     []string
		wantCount int
		wantError bool
	}{
		{"single IP", []string{"192.168.1.1"}, 1, false},
		{"CIDR notation", []string{"192.168.1.0/30"}, 1, false},
		{"multiple targets", []string{"192.168.1.1", "10.0.0.0/28"}, 2, false},
		{"invalid CIDR", []string{"192.168.1.0/99"}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := expandTargets(tt.input)
			if (err != nil) != tt.wantError {
				t.Errorf("expandTargets() error = %v, wantError %v", err, tt.wantError)
				return
			}
			if !tt.wantError && len(result) != tt.wantCount {
				t.Errorf("expandTargets() got %d targets, want %d", len(result), tt.wantCount)
			}
		})
	}
}

func TestSanitizeIP(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"IPv4", "192.168.1.1", "192-168-1-1"},
		{"IPv4 with zeros", "10.0.0.1", "10-0-0-1"},
		{"IPv6", "2001:db8::1", "2001-db8--1"},
		{"malformed IP passthrough", "test-host", "test-host"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizeIP(tt.input)
			if got != tt.want {
				t.Errorf("sanitizeIP(%s) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}
