// Package network receives raw sensor packets over UDP and feeds them
// through a parser into a sweep builder. It also supports offline replay
// of recorded pcap captures through the same consumer interfaces, so the
// downstream pipeline cannot tell a live sensor from a recording.
package network

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/banshee-data/sweepsegment/internal/sweep"
)

// Parser converts raw packet payloads into sweep points.
type Parser interface {
	// ParsePacket parses a single UDP payload. The returned stamp is the
	// sensor acquisition time for the packet.
	ParsePacket(data []byte) ([]sweep.Point, time.Time, error)
}

// SweepBuilder accumulates parsed points into complete sweeps.
type SweepBuilder interface {
	AddPoints(points []sweep.Point, stamp time.Time)
}

// PacketStatsInterface defines the interface for recording packet statistics.
type PacketStatsInterface interface {
	// AddPacket records a received packet of the given size.
	AddPacket(bytes int)
	// AddPoints records points successfully parsed from a packet.
	AddPoints(count int)
	// AddDropped records a packet rejected by the parser.
	AddDropped()
	// LogStats writes a summary of accumulated statistics to the log.
	LogStats()
}

// noopStats is a no-op implementation of PacketStatsInterface used when
// no stats collector is configured.
type noopStats struct{}

func (noopStats) AddPacket(bytes int) {}
func (noopStats) AddPoints(count int) {}
func (noopStats) AddDropped()         {}
func (noopStats) LogStats()           {}

// UDPListener receives sensor packets on a UDP port and forwards them to
// a parser and sweep builder.
type UDPListener struct {
	address       string
	rcvBuf        int
	logInterval   time.Duration
	stats         PacketStatsInterface
	parser        Parser
	builder       SweepBuilder
	socketFactory UDPSocketFactory

	connMu sync.RWMutex
	conn   UDPSocket
}

// UDPListenerConfig configures a UDPListener.
type UDPListenerConfig struct {
	// Address is the UDP listen address, e.g. ":2368".
	Address string
	// RcvBuf is the requested OS receive buffer size in bytes.
	// Zero leaves the OS default in place.
	RcvBuf int
	// LogInterval is how often packet statistics are logged.
	// Defaults to one minute.
	LogInterval time.Duration
	// Stats receives packet statistics. Optional.
	Stats PacketStatsInterface
	// Parser converts payloads to points. Optional; without a parser the
	// listener only counts packets.
	Parser Parser
	// Builder receives parsed points. Optional.
	Builder SweepBuilder
	// SocketFactory creates the listen socket. Defaults to real UDP sockets.
	SocketFactory UDPSocketFactory
}

// NewUDPListener creates a UDP listener from the given config.
func NewUDPListener(config UDPListenerConfig) *UDPListener {
	stats := config.Stats
	if stats == nil {
		stats = noopStats{}
	}
	logInterval := config.LogInterval
	if logInterval <= 0 {
		logInterval = time.Minute
	}
	socketFactory := config.SocketFactory
	if socketFactory == nil {
		socketFactory = NewRealUDPSocketFactory()
	}
	return &UDPListener{
		address:       config.Address,
		rcvBuf:        config.RcvBuf,
		logInterval:   logInterval,
		stats:         stats,
		parser:        config.Parser,
		builder:       config.Builder,
		socketFactory: socketFactory,
	}
}

// Start listens for UDP packets until the context is cancelled. It blocks,
// so callers normally run it in a goroutine.
func (l *UDPListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address %q: %v", l.address, err)
	}

	conn, err := l.socketFactory.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP %s: %v", addr, err)
	}
	l.setConn(conn)
	defer conn.Close()

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			log.Printf("Warning: failed to set UDP receive buffer to %d bytes: %v", l.rcvBuf, err)
		}
	}

	log.Printf("UDP listener started on %s", conn.LocalAddr())

	go l.startStatsLogging(ctx)

	// VLP-16 data packets are 1206 bytes; leave margin for other models.
	buf := make([]byte, 2048)
	deadlineErrLogged := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// Short deadline so ctx cancellation is noticed promptly.
		if err := conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond)); err != nil {
			if !deadlineErrLogged {
				log.Printf("Warning: failed to set read deadline: %v", err)
				deadlineErrLogged = true
			}
		}

		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				// Socket closed during shutdown.
				return ctx.Err()
			}
			log.Printf("UDP read error: %v", err)
			continue
		}

		l.handlePacket(buf[:n])
	}
}

// handlePacket records and parses a single packet payload.
func (l *UDPListener) handlePacket(data []byte) {
	l.stats.AddPacket(len(data))

	if l.parser == nil {
		return
	}

	points, stamp, err := l.parser.ParsePacket(data)
	if err != nil {
		// Malformed packets are dropped, not fatal: a shared network
		// segment can carry unrelated traffic on the same port.
		log.Printf("Packet parse error: %v", err)
		l.stats.AddDropped()
		return
	}
	l.stats.AddPoints(len(points))

	if l.builder != nil && len(points) > 0 {
		l.builder.AddPoints(points, stamp)
	}
}

// startStatsLogging periodically logs packet statistics until the context
// is cancelled. An early first report confirms packets are arriving.
func (l *UDPListener) startStatsLogging(ctx context.Context) {
	initial := time.NewTimer(2 * time.Second)
	defer initial.Stop()
	select {
	case <-ctx.Done():
		return
	case <-initial.C:
		l.stats.LogStats()
	}

	ticker := time.NewTicker(l.logInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.stats.LogStats()
		}
	}
}

// setConn stores the active socket for Close.
func (l *UDPListener) setConn(conn UDPSocket) {
	l.connMu.Lock()
	defer l.connMu.Unlock()
	l.conn = conn
}

// Close closes the listen socket, unblocking a pending read in Start.
func (l *UDPListener) Close() error {
	l.connMu.RLock()
	defer l.connMu.RUnlock()
	if l.conn != nil {
		return l.conn.Close()
	}
	return nil
}
