package routing

import (
	"fmt"
	"strings"

	"github.com/deckhandhq/deckhand/internal/fsys"
	"github.com/deckhandhq/deckhand/internal/topology"
)

// Config is the parsed reverse-proxy routing file: one or more server blocks
// with ordered path-based routes.
type Config struct {
	Servers []Server `json:"servers"`
	Source  string   `json:"source,omitempty"`
}

// Server is a single server block.
type Server struct {
	Listen    int        `json:"listen"`
	Locations []Location `json:"locations"`
}

// Location maps a path prefix to an upstream service.
type Location struct {
	Modifier string   `json:"modifier,omitempty"`
	Prefix   string   `json:"prefix"`
	Upstream Upstream `json:"upstream"`
}

// Upstream is the forward target of a location: a service name with an
// optional internal port.
type Upstream struct {
	Service string `json:"service"`
	Port    int    `json:"port,omitempty"`
	Raw     string `json:"raw"`
}

// Load reads and parses the routing file at path.
func Load(filesystem fsys.FileSystem, path string) (*Config, error) {
	content, err := filesystem.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routing file: %w", err)
	}

	config, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse routing file %s: %w", path, err)
	}
	config.Source = path

	return config, nil
}

// Parse parses routing rules out of nginx-style configuration content.
// Server blocks are found whether or not they are wrapped in an http block.
func Parse(content []byte) (*Config, error) {
	directives, err := ParseDirectives(content)
	if err != nil {
		return nil, err
	}

	config := &Config{}
	collectServers(directives, config)

	if len(config.Servers) == 0 {
		return nil, fmt.Errorf("no server block found")
	}

	return config, nil
}

func collectServers(directives []Directive, config *Config) {
	for _, d := range directives {
		if d.Name == "server" {
			config.Servers = append(config.Servers, parseServer(d))
			continue
		}
		collectServers(d.Children, config)
	}
}

func parseServer(d Directive) Server {
	server := Server{Listen: 80}

	for _, child := range d.Children {
		switch child.Name {
		case "listen":
			if len(child.Args) > 0 {
				if port, err := parsePort(child.Args[0]); err == nil {
					server.Listen = port
				}
			}
		case "location":
			if loc, ok := parseLocation(child); ok {
				server.Locations = append(server.Locations, loc)
			}
		}
	}

	return server
}

func parseLocation(d Directive) (Location, bool) {
	loc := Location{}

	switch len(d.Args) {
	case 1:
		loc.Prefix = d.Args[0]
	case 2:
		loc.Modifier = d.Args[0]
		loc.Prefix = d.Args[1]
	default:
		return loc, false
	}

	for _, child := range d.Children {
		if child.Name == "proxy_pass" && len(child.Args) > 0 {
			loc.Upstream = parseUpstream(child.Args[0])
		}
	}

	if loc.Upstream.Service == "" {
		return loc, false
	}

	return loc, true
}

func parseUpstream(raw string) Upstream {
	upstream := Upstream{Raw: raw}

	target := raw
	if idx := strings.Index(target, "://"); idx >= 0 {
		target = target[idx+3:]
	}
	target = strings.TrimSuffix(target, "/")

	if host, port, ok := strings.Cut(target, ":"); ok {
		upstream.Service = host
		if p, err := parsePort(port); err == nil {
			upstream.Port = p
		}
	} else {
		upstream.Service = target
	}

	return upstream
}

// Resolve returns the location a request path forwards to. An exact-match
// location wins outright; otherwise the longest matching prefix wins, so /api
// routes take precedence over the root location. Regex locations are not
// supported and never match.
func (s *Server) Resolve(path string) (*Location, error) {
	var best *Location

	for i := range s.Locations {
		loc := &s.Locations[i]

		switch loc.Modifier {
		case "=":
			if path == loc.Prefix {
				return loc, nil
			}
		case "", "^~":
			if strings.HasPrefix(path, loc.Prefix) {
				if best == nil || len(loc.Prefix) > len(best.Prefix) {
					best = loc
				}
			}
		}
	}

	if best == nil {
		return nil, fmt.Errorf("no location matches path %q", path)
	}

	return best, nil
}

// CrossCheck verifies routing rules against the topology: every upstream must
// reference a declared service, and an upstream port must be one of that
// service's container target ports. A proxied service without a healthcheck
// gets an advisory warning, since the proxy starts routing to a recreated
// container before it is necessarily ready.
func (c *Config) CrossCheck(topo *topology.Topology) []topology.Violation {
	var violations []topology.Violation
	warned := make(map[string]bool)

	for _, server := range c.Servers {
		for _, loc := range server.Locations {
			svc, ok := topo.Services[loc.Upstream.Service]
			if !ok {
				violations = append(violations, topology.Violation{
					Severity: topology.SeverityError,
					Message:  fmt.Sprintf("location %q forwards to undeclared service %q", loc.Prefix, loc.Upstream.Service),
				})
				continue
			}

			if loc.Upstream.Port > 0 && !hasTargetPort(svc, loc.Upstream.Port) {
				violations = append(violations, topology.Violation{
					Severity: topology.SeverityError,
					Message: fmt.Sprintf("location %q forwards to %s:%d but service %q declares no such container port",
						loc.Prefix, loc.Upstream.Service, loc.Upstream.Port, svc.Name),
				})
			}

			if !svc.HasHealthcheck && !warned[svc.Name] {
				warned[svc.Name] = true
				violations = append(violations, topology.Violation{
					Severity: topology.SeverityWarning,
					Message: fmt.Sprintf("proxied service %q declares no healthcheck; requests may fail briefly during recreation",
						svc.Name),
				})
			}
		}
	}

	return violations
}

func hasTargetPort(svc topology.Service, port int) bool {
	// A service with no declared ports can still listen internally; only an
	// explicit mismatch is an error.
	if len(svc.Ports) == 0 {
		return true
	}
	for _, p := range svc.Ports {
		if p.Target == port {
			return true
		}
	}
	return false
}
