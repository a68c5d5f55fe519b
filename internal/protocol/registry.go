package protocol

import (
	"maps"
	"slices"
)

// Registry maps a port to the handler used for it. A Registry is read-only
// after construction and safe for concurrent use.
type Registry struct {
	factories map[int]Factory
}

// NewRegistry creates a registry from a port to factory map.
// A nil or empty map gives a registry that has no handlers, so the service
// detector always takes the generic path.
func NewRegistry(factories map[int]Factory) *Registry {
	return &Registry{factories: maps.Clone(factories)}
}

// DefaultRegistry wires the built-in handlers to their well-known ports.
func DefaultRegistry() *Registry {
	ssh := func(cfg Config) Handler { return NewSSH(cfg) }
	telnet := func(cfg Config) Handler { return NewTelnet(cfg) }
	dns := func(cfg Config) Handler { return NewDNS(cfg) }
	http := func(cfg Config) Handler { return NewHTTP(cfg) }
	smb := func(cfg Config) Handler { return NewSMB(cfg) }

	return NewRegistry(map[int]Factory{
		22:   ssh,
		23:   telnet,
		53:   dns,
		80:   http,
		8000: http,
		8008: http,
		8080: http,
		139:  smb,
		445:  smb,
	})
}

// Lookup returns the factory registered for port.
func (r *Registry) Lookup(port int) (Factory, bool) {
	if r == nil {
		return nil, false
	}
	f, ok := r.factories[port]
	return f, ok
}

// Ports returns the registered ports in ascending order.
func (r *Registry) Ports() []int {
	if r == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(r.factories))
}
