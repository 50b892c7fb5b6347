package capture

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// baseTime is the capture time of the first synthesized frame.
var baseTime = time.Unix(1700000000, 250000000)

var (
	testSrcMAC = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	testDstMAC = net.HardwareAddr{0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb}
)

// serialize encodes layers into a frame.
func serialize(t *testing.T, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		t.Fatalf("failed to serialize frame: %v", err)
	}
	return buf.Bytes()
}

// ipv4Frame returns an Ethernet/IPv4/TCP frame from src to dst.
func ipv4Frame(t *testing.T, src, dst string) []byte {
	t.Helper()

	eth := &layers.Ethernet{SrcMAC: testSrcMAC, DstMAC: testDstMAC, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.ParseIP(src).To4(),
		DstIP:    net.ParseIP(dst).To4(),
	}
	tcp := &layers.TCP{SrcPort: 40000, DstPort: 443, SYN: true, Window: 1024}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatalf("failed to set checksum layer: %v", err)
	}
	return serialize(t, eth, ip, tcp)
}

// ipv6Frame returns an Ethernet/IPv6/UDP frame from src to dst.
func ipv6Frame(t *testing.T, src, dst string) []byte {
	t.Helper()

	eth := &layers.Ethernet{SrcMAC: testSrcMAC, DstMAC: testDstMAC, EthernetType: layers.EthernetTypeIPv6}
	ip := &layers.IPv6{
		Version:    6,
		NextHeader: layers.IPProtocolUDP,
		HopLimit:   64,
		SrcIP:      net.ParseIP(src),
		DstIP:      net.ParseIP(dst),
	}
	udp := &layers.UDP{SrcPort: 40000, DstPort: 53}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatalf("failed to set checksum layer: %v", err)
	}
	return serialize(t, eth, ip, udp, gopacket.Payload([]byte("query")))
}

// arpFrame returns an Ethernet/ARP request frame.
func arpFrame(t *testing.T) []byte {
	t.Helper()

	eth := &layers.Ethernet{SrcMAC: testSrcMAC, DstMAC: net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, EthernetType: layers.EthernetTypeARP}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte(testSrcMAC),
		SourceProtAddress: []byte{10, 0, 0, 1},
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    []byte{10, 0, 0, 2},
	}
	return serialize(t, eth, arp)
}

// truncatedIPv4Frame returns an Ethernet frame announcing IPv4 but carrying
// fewer bytes than a minimal IPv4 header.
func truncatedIPv4Frame() []byte {
	frame := make([]byte, 0, 24)
	frame = append(frame, testDstMAC...)
	frame = append(frame, testSrcMAC...)
	frame = append(frame, 0x08, 0x00)
	return append(frame, 0x45, 0x00, 0x00, 0x28, 0x00, 0x00, 0x00, 0x00, 0x40, 0x06)
}

// ethHeaderLen is the offset of the IP header in frames built here.
const ethHeaderLen = 14

// patchIPHeader returns a copy of frame with the IP header bytes at offset
// (relative to the start of the IP header) replaced by b.
func patchIPHeader(frame []byte, offset int, b ...byte) []byte {
	out := bytes.Clone(frame)
	copy(out[ethHeaderLen+offset:], b)
	return out
}

// buildPcap writes frames into a classic pcap, one second apart from baseTime.
func buildPcap(t *testing.T, frames ...[]byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := pcapgo.NewWriter(&buf)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		t.Fatalf("failed to write pcap header: %v", err)
	}
	for i, f := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     baseTime.Add(time.Duration(i) * time.Second),
			CaptureLength: len(f),
			Length:        len(f),
		}
		if err := w.WritePacket(ci, f); err != nil {
			t.Fatalf("failed to write frame %d: %v", i, err)
		}
	}
	return buf.Bytes()
}

// buildPcapNG writes frames into a pcapng file.
func buildPcapNG(t *testing.T, frames ...[]byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	w, err := pcapgo.NewNgWriter(&buf, layers.LinkTypeEthernet)
	if err != nil {
		t.Fatalf("failed to create pcapng writer: %v", err)
	}
	for i, f := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     baseTime.Add(time.Duration(i) * time.Second),
			CaptureLength: len(f),
			Length:        len(f),
		}
		if err := w.WritePacket(ci, f); err != nil {
			t.Fatalf("failed to write frame %d: %v", i, err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("failed to flush pcapng writer: %v", err)
	}
	return buf.Bytes()
}
