// Package detector identifies the service behind an open port.
//
// Detection runs in a fixed order: TLS inspection on the HTTPS ports, then
// the protocol handler registered for the port, then a generic banner grab
// matched against known signatures. Detect always returns a display string;
// failures are reported inside it as "Unknown (<detail>)".
package detector
