// Package model defines the data structures shared by the scanner, the
// service detector, the report writers and the history database.
//
// Everything here is transient and built per scan run: a ScanTarget names
// what to probe, every probed port yields exactly one PortResult, and a
// ScanReport collects them for rendering and storage.
package model
