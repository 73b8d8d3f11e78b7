package adapter

import (
	"time"

	"interlink/internal/domain"
)

// NmapOption is a functional option for configuring NmapSource
type NmapOption func(*NmapSource)

// WithTimeout sets the timeout for scanning a single target
func WithTimeout(d time.Duration) NmapOption {
	return func(n *NmapSource) {
		if d > 0 {
			n.timeout = d
		}
	}
}

// WithPortRange sets the ports to scan. Invalid lists are ignored.
// Format: "80,443,8080" or "1-1000" or "22,80-443,8080"
func WithPortRange(ports string) NmapOption {
	return func(n *NmapSource) {
		if validated, err := parsePorts(ports); err == nil {
			n.portRange = validated
		}
	}
}

// WithServiceDetection enables or disables service version detection (-sV)
func WithServiceDetection(enabled bool) NmapOption {
	return func(n *NmapSource) {
		n.serviceDetection = enabled
	}
}

// WithOSDetection enables or disables OS detection (-O)
// Note: OS detection requires root privileges
func WithOSDetection(enabled bool) NmapOption {
	return func(n *NmapSource) {
		n.osDetection = enabled
	}
}

// WithSkipHostDiscovery treats all hosts as online (-Pn)
func WithSkipHostDiscovery(skip bool) NmapOption {
	return func(n *NmapSource) {
		n.skipHostDiscovery = skip
	}
}

// WithTargets replaces the target list. Lists with a malformed CIDR are ignored.
func WithTargets(targets []string) NmapOption {
	return func(n *NmapSource) {
		if expanded, err := expandTargets(targets); err == nil {
			n.targets = expanded
		}
	}
}

// WithKind sets the system kind assigned to scanned hosts
func WithKind(kind domain.SystemKind) NmapOption {
	return func(n *NmapSource) {
		n.kind = kind
	}
}

// WithIoTPorts scans the ports common on devices and brokers
func WithIoTPorts() NmapOption {
	return func(n *NmapSource) {
		n.portRange = "80,443,502,1883,4840,5672,5683,8080,8883"
	}
}

// WithTopPorts configures scanning of top N ports
// Common values: 10, 100, 1000
func WithTopPorts(count int) NmapOption {
	return func(n *NmapSource) {
		switch {
		case count <= 10:
			n.portRange = "21,22,23,25,80,110,139,443,445,3389"
		case count <= 100:
			n.portRange = "21-23,25,53,80,110,111,135,139,143,443,445,502,993,995,1723,1883,3306,3389,5900,8080,8883"
		default:
			n.portRange = "1-1024"
		}
	}
}

// WithFastScan scans few ports without service detection
func WithFastScan() NmapOption {
	return func(n *NmapSource) {
		n.portRange = "22,80,443,1883"
		n.serviceDetection = false
		n.timeout = 5 * time.Minute
	}
}
