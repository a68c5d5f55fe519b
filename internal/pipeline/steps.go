package pipeline

import (
	"context"
	"time"

	"github.com/nao1215/portscout/internal/model"
	"github.com/nao1215/portscout/internal/portscan"
)

// StateStep classifies the port with a state scanner.
type StateStep struct {
	scanner portscan.Scanner
}

// NewStateStep creates a StateStep.
func NewStateStep(scanner portscan.Scanner) *StateStep {
	return &StateStep{scanner: scanner}
}

// Name returns "state".
func (s *StateStep) Name() string {
	return "state"
}

// Do sets job.State.
func (s *StateStep) Do(ctx context.Context, job *PortJob) error {
	job.State = s.scanner.Scan(ctx, job.IP, job.Port, job.SrcPort)
	return nil
}

// ServiceDetector identifies the service on an open port.
// *detector.Detector implements it.
type ServiceDetector interface {
	Detect(ctx context.Context, ip string, port int, timeout time.Duration) string
}

// ServiceStep fingerprints open ports. Closed and filtered ports keep the
// default service label.
type ServiceStep struct {
	detector ServiceDetector
	timeout  time.Duration
}

// NewServiceStep creates a ServiceStep whose detection uses timeout.
func NewServiceStep(detector ServiceDetector, timeout time.Duration) *ServiceStep {
	return &ServiceStep{detector: detector, timeout: timeout}
}

// Name returns "service".
func (s *ServiceStep) Name() string {
	return "service"
}

// Do sets job.Service when the port is open.
func (s *ServiceStep) Do(ctx context.Context, job *PortJob) error {
	if job.State != model.Open {
		return nil
	}
	job.Service = s.detector.Detect(ctx, job.IP, job.Port, s.timeout)
	return nil
}
