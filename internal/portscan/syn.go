package portscan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/nao1215/portscout/internal/config"
	"github.com/nao1215/portscout/internal/model"
)

const (
	// synWindow is the advertised receive window of probe segments.
	synWindow = 1024

	// maxSegment is large enough for any TCP segment on a standard MTU.
	maxSegment = 1500
)

var errNotIP = errors.New("target is not an IP address")

// SYNScanner classifies ports with a half-open handshake: it sends one SYN
// and reads the reply from a raw socket.
//
// Design decision: The raw socket is opened per Scan call rather than once
// per scanner because:
//  1. Every socket is owned by exactly one probe and closed on every path
//  2. Concurrent probes cannot consume each other's replies by accident
//  3. No background reader goroutine has to be stopped at shutdown
type SYNScanner struct {
	timeout  time.Duration
	logger   *slog.Logger
	sourceIP func(net.IP) (net.IP, error)
}

// Mode returns config.ModeSYN.
func (s *SYNScanner) Mode() config.ScanMode {
	return config.ModeSYN
}

// Scan sends a SYN from srcPort to ip:port and waits up to the timeout for
// a matching reply. SYN+ACK is Open (the half-open connection is torn down
// with a RST); RST is Closed; silence or anything else is Filtered.
func (s *SYNScanner) Scan(ctx context.Context, ip string, port, srcPort int) model.PortState {
	state, err := s.probe(ctx, ip, port, srcPort)
	if err != nil {
		s.logger.Debug("syn probe failed", "port", port, "error", err)
		return model.Filtered
	}
	return state
}

func (s *SYNScanner) probe(ctx context.Context, ip string, port, srcPort int) (model.PortState, error) {
	dst := net.ParseIP(ip)
	if dst == nil {
		return model.Filtered, fmt.Errorf("%w: %q", errNotIP, ip)
	}
	src, err := s.sourceIP(dst)
	if err != nil {
		return model.Filtered, err
	}

	network := "ip4:tcp"
	if dst.To4() == nil {
		network = "ip6:tcp"
	}
	conn, err := net.ListenPacket(network, src.String())
	if err != nil {
		return model.Filtered, fmt.Errorf("open raw socket: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0)) //nolint:errcheck
	})
	defer stop()
	if err := conn.SetDeadline(time.Now().Add(s.timeout)); err != nil {
		return model.Filtered, err
	}

	syn, err := buildSegment(src, dst, srcPort, port, rand.Uint32(), 0, segmentSYN)
	if err != nil {
		return model.Filtered, err
	}
	if _, err := conn.WriteTo(syn, &net.IPAddr{IP: dst}); err != nil {
		return model.Filtered, fmt.Errorf("send SYN: %w", err)
	}

	buf := make([]byte, maxSegment)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			// Deadline or cancellation: no answer.
			return model.Filtered, nil
		}
		addr, ok := from.(*net.IPAddr)
		if !ok || !addr.IP.Equal(dst) {
			continue
		}
		reply, err := decodeSegment(buf[:n])
		if err != nil || int(reply.SrcPort) != port || int(reply.DstPort) != srcPort {
			continue
		}

		state := classifyReply(reply)
		if state == model.Open {
			s.reset(conn, src, dst, srcPort, port, reply.Ack)
		}
		return state, nil
	}
}

// reset aborts the half-open connection the SYN+ACK created on the target.
func (s *SYNScanner) reset(conn net.PacketConn, src, dst net.IP, srcPort, port int, seq uint32) {
	rst, err := buildSegment(src, dst, srcPort, port, seq, 0, segmentRST)
	if err == nil {
		_, err = conn.WriteTo(rst, &net.IPAddr{IP: dst})
	}
	if err != nil {
		s.logger.Debug("failed to send RST", "port", port, "error", err)
	}
}

type segmentKind int

const (
	segmentSYN segmentKind = iota
	segmentRST
)

// buildSegment serializes a bare TCP segment with its checksum computed
// over the IPv4 or IPv6 pseudo-header. The kernel prepends the IP header.
func buildSegment(src, dst net.IP, srcPort, dstPort int, seq, ack uint32, kind segmentKind) ([]byte, error) {
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(srcPort),
		DstPort: layers.TCPPort(dstPort),
		Seq:     seq,
		Ack:     ack,
	}
	switch kind {
	case segmentSYN:
		tcp.SYN = true
		tcp.Window = synWindow
		tcp.Options = []layers.TCPOption{{
			OptionType:   layers.TCPOptionKindMSS,
			OptionLength: 4,
			OptionData:   []byte{0x05, 0xb4}, // 1460
		}}
	case segmentRST:
		tcp.RST = true
	}

	var network gopacket.NetworkLayer
	if src4, dst4 := src.To4(), dst.To4(); src4 != nil && dst4 != nil {
		network = &layers.IPv4{SrcIP: src4, DstIP: dst4, Protocol: layers.IPProtocolTCP}
	} else {
		network = &layers.IPv6{SrcIP: src.To16(), DstIP: dst.To16(), NextHeader: layers.IPProtocolTCP}
	}
	if err := tcp.SetNetworkLayerForChecksum(network); err != nil {
		return nil, err
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, tcp); err != nil {
		return nil, fmt.Errorf("serialize TCP segment: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeSegment parses a TCP segment without its IP header.
func decodeSegment(data []byte) (*layers.TCP, error) {
	var tcp layers.TCP
	if err := tcp.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return nil, err
	}
	return &tcp, nil
}

func classifyReply(tcp *layers.TCP) model.PortState {
	switch {
	case tcp.SYN && tcp.ACK:
		return model.Open
	case tcp.RST:
		return model.Closed
	default:
		return model.Filtered
	}
}
