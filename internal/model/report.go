package model

import (
	"slices"
	"time"
)

// ScanReport collects the results of one scan run against one target.
//
// Results are appended in completion order. With the worker pool that order
// is not the port order, so writers that need a stable layout call Sorted.
type ScanReport struct {
	// ID is the history database row ID. Zero for reports that were never stored.
	ID int64 `json:"id,omitempty"`

	// Target is the scanned host.
	Target string `json:"target"`

	// Mode is the effective state scanner mode ("SYN" or "CONNECT").
	Mode string `json:"mode"`

	// ServiceDetection records whether open ports were fingerprinted.
	ServiceDetection bool `json:"service_detection"`

	// StartedAt and FinishedAt bound the run.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Results holds exactly one entry per scanned port.
	Results []PortResult `json:"results"`

	// Cancelled is true when the run stopped before every port was scanned.
	Cancelled bool `json:"cancelled,omitempty"`
}

// Summary counts results per state.
type Summary struct {
	Total    int `json:"total"`
	Open     int `json:"open"`
	Closed   int `json:"closed"`
	Filtered int `json:"filtered"`
}

// NewScanReport creates an empty report for target scanned in mode.
func NewScanReport(target, mode string, serviceDetection bool) *ScanReport {
	return &ScanReport{
		Target:           target,
		Mode:             mode,
		ServiceDetection: serviceDetection,
		StartedAt:        time.Now(),
		Results:          make([]PortResult, 0),
	}
}

// Add appends a result. Callers running concurrently must serialize calls.
func (r *ScanReport) Add(result PortResult) {
	r.Results = append(r.Results, result)
}

// Finish stamps the end time.
func (r *ScanReport) Finish() {
	r.FinishedAt = time.Now()
}

// Duration returns the wall time of the run, or zero if it has not finished.
func (r *ScanReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Summary counts the results per state.
func (r *ScanReport) Summary() Summary {
	s := Summary{Total: len(r.Results)}
	for _, res := range r.Results {
		switch res.State {
		case Open:
			s.Open++
		case Closed:
			s.Closed++
		default:
			s.Filtered++
		}
	}
	return s
}

// Sorted returns a copy of the results ordered by port.
func (r *ScanReport) Sorted() []PortResult {
	out := slices.Clone(r.Results)
	slices.SortFunc(out, func(a, b PortResult) int {
		return a.Port - b.Port
	})
	return out
}

// OpenPorts returns the open results ordered by port.
func (r *ScanReport) OpenPorts() []PortResult {
	var out []PortResult
	for _, res := range r.Sorted() {
		if res.State == Open {
			out = append(out, res)
		}
	}
	return out
}

// Result returns the result for port, if present.
func (r *ScanReport) Result(port int) (PortResult, bool) {
	for _, res := range r.Results {
		if res.Port == port {
			return res, true
		}
	}
	return PortResult{}, false
}
