// Package protocol provides protocol handlers that fingerprint network
// services over an open TCP connection.
//
// # Architecture
//
// Every handler implements the Handler interface: Handle performs the
// network exchange and returns a RawResult, and Parse turns that result into
// a human-readable identification string. Handlers are created per
// connection by a Factory looked up in a Registry keyed by port.
//
// Design decision: Handlers are registered as constructor functions rather
// than shared instances because:
//  1. A handler carries per-connection settings (host, port, timeout)
//  2. No state can leak between two ports scanned in parallel
//  3. Tests and callers can build registries with custom handlers
//
// # Supported Protocols
//
//   - SSH (22): identification, server KEXINIT algorithms, offered auth methods
//   - Telnet (23): option refusal and login banner extraction
//   - DNS (53): version.bind CHAOS TXT query over TCP
//   - HTTP (80, 8000, 8008, 8080): status, Server header, page title
//   - SMB (139, 445): SMBv1 dialect negotiation
//   - Generic (any port): passive read classified by the banner package
//
// InspectTLS is not a Handler. It opens its own connection, because a TLS
// handshake must start on a fresh stream.
//
// # Security Considerations
//
//   - Handlers never authenticate and never send credentials
//   - Every blocking step honors the configured timeout and the context
//   - Parse only reads bytes; it performs no I/O
package protocol
