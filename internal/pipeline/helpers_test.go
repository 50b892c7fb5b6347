package pipeline

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// flow is a synthesized IPv4 packet.
type flow struct {
	src, dst string
}

// writeCapture writes flows as a pcap in a temporary directory and returns its path.
func writeCapture(t *testing.T, name string, flows ...flow) string {
	t.Helper()

	var buf bytes.Buffer
	w := pcapgo.NewWriter(&buf)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		t.Fatalf("failed to write pcap header: %v", err)
	}

	base := time.Unix(1700000000, 0)
	for i, f := range flows {
		eth := &layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
			DstMAC:       net.HardwareAddr{6, 7, 8, 9, 10, 11},
			EthernetType: layers.EthernetTypeIPv4,
		}
		ip := &layers.IPv4{
			Version:  4,
			IHL:      5,
			TTL:      64,
			Protocol: layers.IPProtocolUDP,
			SrcIP:    net.ParseIP(f.src).To4(),
			DstIP:    net.ParseIP(f.dst).To4(),
		}
		udp := &layers.UDP{SrcPort: 40000, DstPort: 9001}
		if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
			t.Fatalf("failed to set checksum layer: %v", err)
		}

		sb := gopacket.NewSerializeBuffer()
		opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
		if err := gopacket.SerializeLayers(sb, opts, eth, ip, udp); err != nil {
			t.Fatalf("failed to serialize frame: %v", err)
		}

		data := sb.Bytes()
		ci := gopacket.CaptureInfo{
			Timestamp:     base.Add(time.Duration(i) * time.Second),
			CaptureLength: len(data),
			Length:        len(data),
		}
		if err := w.WritePacket(ci, data); err != nil {
			t.Fatalf("failed to write frame: %v", err)
		}
	}

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("failed to write capture: %v", err)
	}
	return path
}

// writeList writes an exit list file and returns its path.
func writeList(t *testing.T, addrs ...string) string {
	t.Helper()

	var buf bytes.Buffer
	for _, a := range addrs {
		buf.WriteString(a + "\n")
	}
	path := filepath.Join(t.TempDir(), "exits.txt")
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("failed to write list: %v", err)
	}
	return path
}
