package model

import "slices"

// ChangeKind classifies how a port differs between two reports.
type ChangeKind string

const (
	// ChangeOpened: the port is open now and was not open before (or was not scanned).
	ChangeOpened ChangeKind = "opened"

	// ChangeClosed: the port was open before and is not open now.
	ChangeClosed ChangeKind = "closed"

	// ChangeStateChanged: the port moved between Closed and Filtered.
	ChangeStateChanged ChangeKind = "state_changed"

	// ChangeServiceChanged: the port stayed open but identifies differently.
	ChangeServiceChanged ChangeKind = "service_changed"
)

// PortChange describes a single port difference between two reports.
type PortChange struct {
	Port     int        `json:"port"`
	Kind     ChangeKind `json:"kind"`
	Previous PortResult `json:"previous"`
	Current  PortResult `json:"current"`
}

// Diff compares two reports of the same target. Ports present in only one
// report count as Filtered on the other side. The result is ordered by port.
func Diff(previous, current *ScanReport) []PortChange {
	prev := indexByPort(previous)
	cur := indexByPort(current)

	ports := make([]int, 0, len(prev)+len(cur))
	for p := range prev {
		ports = append(ports, p)
	}
	for p := range cur {
		if _, ok := prev[p]; !ok {
			ports = append(ports, p)
		}
	}
	slices.Sort(ports)

	var changes []PortChange
	for _, p := range ports {
		before, ok := prev[p]
		if !ok {
			before = NewPortResult(p, Filtered, "")
		}
		after, ok := cur[p]
		if !ok {
			after = NewPortResult(p, Filtered, "")
		}

		var kind ChangeKind
		switch {
		case before.State != Open && after.State == Open:
			kind = ChangeOpened
		case before.State == Open && after.State != Open:
			kind = ChangeClosed
		case before.State != after.State:
			kind = ChangeStateChanged
		case before.State == Open && before.Service != after.Service:
			kind = ChangeServiceChanged
		default:
			continue
		}

		changes = append(changes, PortChange{
			Port:     p,
			Kind:     kind,
			Previous: before,
			Current:  after,
		})
	}
	return changes
}

func indexByPort(r *ScanReport) map[int]PortResult {
	m := make(map[int]PortResult)
	if r == nil {
		return m
	}
	for _, res := range r.Results {
		m[res.Port] = res
	}
	return m
}
