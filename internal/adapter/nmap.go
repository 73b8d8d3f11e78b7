package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	nmap "github.com/Ullaakut/nmap/v3"

	"interlink/internal/domain"
	"interlink/internal/logger"
)

// wellKnownPorts maps ports to the protocol tag used when nmap has no service name
var wellKnownPorts = map[int]string{
	21:   "ftp",
	22:   "ssh",
	23:   "telnet",
	25:   "smtp",
	53:   "dns",
	80:   "http",
	443:  "https",
	502:  "modbus",
	1883: "mqtt",
	3306: "mysql",
	4840: "opcua",
	5432: "postgres",
	5672: "amqp",
	5683: "coap",
	6443: "k8s-api",
	8080: "http",
	8443: "https",
	8883: "mqtts",
	9090: "prometheus",
	9100: "node-exporter",
}

const defaultNmapPorts = "22,80,443,502,1883,4840,5672,5683,8080,8443,8883"

// NmapSource discovers systems by scanning networks with nmap. Every host that is
// up becomes one record; every open port becomes one interface.
type NmapSource struct {
	targets           []string
	timeout           time.Duration
	portRange         string
	kind              domain.SystemKind
	serviceDetection  bool
	osDetection       bool
	skipHostDiscovery bool
	log               logger.Logger
}

// NewNmapSource creates a new nmap-based discovery source.
// targets is a list of CIDR ranges, IPs or hostnames.
func NewNmapSource(targets []string, log logger.Logger, opts ...NmapOption) *NmapSource {
	n := &NmapSource{
		targets:          targets,
		timeout:          10 * time.Minute,
		portRange:        defaultNmapPorts,
		kind:             domain.KindIoTDevice,
		serviceDetection: true,
		osDetection:      false, // Requires root
		log:              log.WithComponent("nmap"),
	}

	for _, opt := range opts {
		opt(n)
	}

	return n
}

// Name returns the source identifier
func (n *NmapSource) Name() string {
	return "nmap"
}

// Check verifies the nmap binary can be run
func (n *NmapSource) Check(ctx context.Context) error {
	scanner, err := nmap.NewScanner(
		ctx,
		nmap.WithTargets("localhost"),
		nmap.WithListScan(),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNmapUnavailable, err)
	}

	if _, _, err := scanner.Run(); err != nil {
		return fmt.Errorf("%w: %v", ErrNmapUnavailable, err)
	}
	return nil
}

// Discover scans every target. A failing target is logged and skipped; the call
// fails only when every target failed.
func (n *NmapSource) Discover(ctx context.Context) ([]domain.RawRecord, error) {
	if len(n.targets) == 0 {
		n.log.Debug().Msg("no targets configured")
		return nil, nil
	}

	n.log.Info().Strs("targets", n.targets).Str("ports", n.portRange).Msg("starting scan")

	var (
		records []domain.RawRecord
		errs    []error
	)
	for _, target := range n.targets {
		result, err := n.scanTarget(ctx, target)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			n.log.Warn().Err(err).Str("target", target).Msg("scan failed")
			errs = append(errs, fmt.Errorf("%s: %w", target, err))
			continue
		}
		recs, err := n.processResults(result)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", target, err))
			continue
		}
		records = append(records, recs...)
	}

	if len(errs) == len(n.targets) {
		return nil, errors.Join(errs...)
	}

	n.log.Info().Int("hosts", len(records)).Msg("scan complete")
	return records, nil
}

// scanTarget runs nmap against a single target
func (n *NmapSource) scanTarget(ctx context.Context, target string) (*nmap.Run, error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	opts := []nmap.Option{
		nmap.WithTargets(target),
		nmap.WithPorts(n.portRange),
	}
	if n.serviceDetection {
		opts = append(opts, nmap.WithServiceInfo())
	}
	if n.osDetection {
		opts = append(opts, nmap.WithOSDetection())
	}
	// For networks that drop ICMP
	if n.skipHostDiscovery {
		opts = append(opts, nmap.WithSkipHostDiscovery())
	}

	scanner, err := nmap.NewScanner(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create scanner: %w", err)
	}

	n.log.Debug().Str("target", target).Msg("scanning target")
	result, warnings, err := scanner.Run()
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	if warnings != nil && len(*warnings) > 0 {
		n.log.Warn().Str("target", target).Strs("warnings", *warnings).Msg("nmap warnings")
	}

	return result, nil
}

// processResults converts nmap hosts that are up into raw records
func (n *NmapSource) processResults(result *nmap.Run) ([]domain.RawRecord, error) {
	if result == nil {
		return nil, fmt.Errorf("nil scan result")
	}

	var records []domain.RawRecord
	for _, host := range result.Hosts {
		if len(host.Addresses) == 0 || host.Status.State != "up" {
			continue
		}

		var ip string
		for _, addr := range host.Addresses {
			if addr.AddrType == "ipv4" {
				ip = addr.Addr
				break
			}
		}
		if ip == "" {
			ip = host.Addresses[0].Addr
		}

		records = append(records, domain.RawRecord{
			ID:         sanitizeIP(ip),
			Name:       hostLabel(host, ip),
			Kind:       string(n.kind),
			Address:    ip,
			Interfaces: n.interfacesFromPorts(host.Ports),
			Reachable:  true,
		})
	}

	return records, nil
}

// interfacesFromPorts creates one interface per open port, tagged with the detected service
func (n *NmapSource) interfacesFromPorts(ports []nmap.Port) []domain.Interface {
	var ifaces []domain.Interface

	for _, port := range ports {
		if port.State.State != "open" {
			continue
		}

		protocol := port.Service.Name
		if protocol == "" {
			protocol = wellKnownPorts[int(port.ID)]
			if protocol == "" {
				protocol = fmt.Sprintf("unknown-%d", port.ID)
			}
		}

		transport := port.Protocol
		if transport == "" {
			transport = "tcp"
		}

		ifaces = append(ifaces, domain.Interface{
			Name:     fmt.Sprintf("%s/%d", transport, port.ID),
			Protocol: protocol,
		})
	}

	return ifaces
}

// hostLabel prefers the short reverse-DNS name over the IP
func hostLabel(host nmap.Host, ip string) string {
	if len(host.Hostnames) == 0 {
		return ip
	}
	hostname := host.Hostnames[0].Name
	if idx := strings.Index(hostname, "."); idx > 0 {
		if short := hostname[:idx]; len(short) > 2 {
			return short
		}
	}
	return hostname
}

// sanitizeIP converts an IP address to a valid system ID
func sanitizeIP(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed != nil {
		ip = parsed.String()
	}
	ip = strings.ReplaceAll(ip, ".", "-")
	return strings.ReplaceAll(ip, ":", "-")
}

// expandTargets validates CIDR targets, leaving IPs and hostnames as they are
func expandTargets(targets []string) ([]string, error) {
	var expanded []string
	for _, target := range targets {
		if strings.Contains(target, "/") {
			_, ipNet, err := net.ParseCIDR(target)
			if err != nil {
				return nil, fmt.Errorf("invalid CIDR %s: %w", target, err)
			}
			// nmap handles expansion itself
			expanded = append(expanded, ipNet.String())
		} else {
			expanded = append(expanded, target)
		}
	}
	return expanded, nil
}

// parsePorts validates a port list.
// Supported: "80,443,8080" or "1-1000" or "22,80-443,8080"
func parsePorts(portRange string) (string, error) {
	for _, part := range strings.Split(portRange, ",") {
		part = strings.TrimSpace(part)
		if strings.Contains(part, "-") {
			rangeParts := strings.Split(part, "-")
			if len(rangeParts) != 2 {
				return "", fmt.Errorf("%w: range %s", ErrInvalidPort, part)
			}
			start, err := strconv.Atoi(strings.TrimSpace(rangeParts[0]))
			if err != nil || start < 1 || start > 65535 {
				return "", fmt.Errorf("%w: %s", ErrInvalidPort, rangeParts[0])
			}
			end, err := strconv.Atoi(strings.TrimSpace(rangeParts[1]))
			if err != nil || end < 1 || end > 65535 || end < start {
				return "", fmt.Errorf("%w: %s", ErrInvalidPort, rangeParts[1])
			}
		} else {
			port, err := strconv.Atoi(part)
			if err != nil || port < 1 || port > 65535 {
				return "", fmt.Errorf("%w: %s", ErrInvalidPort, part)
			}
		}
	}
	return portRange, nil
}
