package network

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// ReplayPCAPFile replays sensor packets from a capture file through the
// parser and builder, as if they had arrived on the UDP listener. Only UDP
// packets addressed to udpPort are processed. The file must be in classic
// pcap format. A nil stats collector is allowed.
func ReplayPCAPFile(ctx context.Context, pcapFile string, udpPort int, parser Parser, builder SweepBuilder, stats PacketStatsInterface) error {
	if stats == nil {
		stats = noopStats{}
	}

	f, err := os.Open(pcapFile)
	if err != nil {
		return fmt.Errorf("failed to open pcap file: %v", err)
	}
	defer f.Close()

	reader, err := pcapgo.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to read pcap header: %v", err)
	}
	linkType := reader.LinkType()

	log.Printf("Replaying pcap file %s (link type %v), filtering UDP port %d", pcapFile, linkType, udpPort)

	var packetsRead, packetsMatched, totalPoints int
	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			log.Printf("pcap replay cancelled after %d packets", packetsRead)
			return ctx.Err()
		default:
		}

		data, ci, err := reader.ReadPacketData()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read pcap packet %d: %v", packetsRead+1, err)
		}
		packetsRead++
		if packetsRead%10000 == 0 {
			log.Printf("pcap replay progress: %d packets read, %d matched, %d points",
				packetsRead, packetsMatched, totalPoints)
		}

		payload := udpPayload(data, linkType, udpPort)
		if payload == nil {
			continue
		}
		packetsMatched++
		stats.AddPacket(len(payload))

		if parser == nil {
			continue
		}
		points, stamp, err := parser.ParsePacket(payload)
		if err != nil {
			log.Printf("Packet parse error at packet %d: %v", packetsRead, err)
			stats.AddDropped()
			continue
		}
		stats.AddPoints(len(points))
		totalPoints += len(points)

		if builder != nil && len(points) > 0 {
			// Prefer the capture timestamp so replay preserves the
			// recorded timeline.
			if !ci.Timestamp.IsZero() {
				stamp = ci.Timestamp
			}
			builder.AddPoints(points, stamp)
		}
	}

	log.Printf("pcap replay complete: %d packets read, %d matched port %d, %d points in %v",
		packetsRead, packetsMatched, udpPort, totalPoints, time.Since(start).Round(time.Millisecond))
	return nil
}

// udpPayload extracts the UDP payload from a captured frame if it is
// addressed to wantPort. Returns nil for non-UDP traffic and other ports.
func udpPayload(data []byte, linkType layers.LinkType, wantPort int) []byte {
	packet := gopacket.NewPacket(data, linkType, gopacket.Default)
	udpLayer := packet.Layer(layers.LayerTypeUDP)
	if udpLayer == nil {
		return nil
	}
	udp, ok := udpLayer.(*layers.UDP)
	if !ok {
		return nil
	}
	if int(udp.DstPort) != wantPort {
		return nil
	}
	return udp.Payload
}
