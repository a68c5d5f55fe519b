package model

// DefaultService is the service label of a port that was not fingerprinted.
const DefaultService = "Unknown"

// PortResult is the outcome of scanning one port.
// It is created once per scanned port and never modified afterwards.
type PortResult struct {
	// Port is the scanned TCP port.
	Port int `json:"port"`

	// State is the classification returned by the state scanner.
	State PortState `json:"state"`

	// Service is the identification string produced by the service
	// detector, or DefaultService when detection was skipped.
	Service string `json:"service"`
}

// NewPortResult returns a PortResult whose Service falls back to
// DefaultService when service is empty.
func NewPortResult(port int, state PortState, service string) PortResult {
	if service == "" {
		service = DefaultService
	}
	return PortResult{
		Port:    port,
		State:   state,
		Service: service,
	}
}
