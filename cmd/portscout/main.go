// Package main provides the entry point for the portscout CLI.
//
// portscout is a TCP port scanner with service fingerprinting. It classifies
// each port as open, closed, or filtered (SYN or CONNECT scan) and identifies
// what answers on open ports.
//
// Usage:
//
//	portscout scan 192.168.0.10 -p 20-25,80,443
//	portscout compare 192.168.0.10
//
// See --help for all available options.
package main

// main is the entry point for portscout.
func main() {
	Execute()
}
