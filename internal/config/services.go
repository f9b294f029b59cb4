package config

import (
	"fmt"
	"strconv"
	"strings"
)

var validProtocols = map[string]bool{
	"tcp": true, "ssl": true, "ws": true, "wss": true, "rpc": true,
}

// parseServices parses a comma-separated "host:port:protocol" list.
func parseServices(raw string) ([]Service, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("no services configured")
	}

	var services []Service
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("malformed service entry %q, want host:port:protocol", entry)
		}
		host, portStr, protocol := parts[0], parts[1], strings.ToLower(parts[2])
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("malformed port in %q: %w", entry, err)
		}
		if !validProtocols[protocol] {
			return nil, fmt.Errorf("unknown protocol %q in %q", protocol, entry)
		}
		services = append(services, Service{Host: host, Port: port, Protocol: protocol})
	}
	if len(services) == 0 {
		return nil, fmt.Errorf("no services configured")
	}
	return services, nil
}

// IsRPC reports whether this service is the local operator surface.
func (s Service) IsRPC() bool { return s.Protocol == "rpc" }

// Addr renders "host:port" for net.Listen.
func (s Service) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
