package capture

import (
	"context"
	"net"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/exitwatch/internal/model"
)

// decodeChunkSize is the number of frames one decode goroutine handles.
const decodeChunkSize = 512

// outcome classifies a decoded frame.
type outcome int

const (
	outcomeNonIP outcome = iota
	outcomeIP
	outcomeMalformed
)

// decoded is the result of decoding a single frame. note is set on a kept
// record whose frame was cut short.
type decoded struct {
	outcome outcome
	record  model.PacketRecord
	reason  string
	note    string
}

// decodeFrames decodes frames in parallel. Results are written to an indexed
// slice and collected in frame order, so output does not depend on scheduling.
func decodeFrames(ctx context.Context, frames []frame, linkType layers.LinkType, workers int) ([]model.PacketRecord, model.CaptureStats, model.Diagnostics, error) {
	results := make([]decoded, len(frames))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < len(frames); start += decodeChunkSize {
		end := min(start+decodeChunkSize, len(frames))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				results[i] = decodeFrame(frames[i], linkType)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, model.CaptureStats{}, nil, err
	}

	stats := model.CaptureStats{Frames: len(frames)}
	records := make([]model.PacketRecord, 0, len(frames))
	var diags model.Diagnostics
	for i, res := range results {
		switch res.outcome {
		case outcomeIP:
			stats.IPFrames++
			records = append(records, res.record)
			if res.note != "" {
				diags = append(diags, model.Diagnostic{
					Stage:   model.StageCapture,
					Kind:    model.KindTruncatedFrame,
					Index:   frames[i].index,
					Message: res.note,
				})
			}
		case outcomeMalformed:
			stats.MalformedFrames++
			diags = append(diags, model.Diagnostic{
				Stage:   model.StageCapture,
				Kind:    model.KindMalformedFrame,
				Index:   frames[i].index,
				Message: res.reason,
			})
		default:
			stats.NonIPFrames++
		}
	}

	return records, stats, diags, nil
}

// decodeFrame extracts the outermost IP header of a frame. A record is only
// produced when that header decoded cleanly.
func decodeFrame(f frame, linkType layers.LinkType) decoded {
	packet := gopacket.NewPacket(f.data, linkType, gopacket.DecodeOptions{NoCopy: true})
	capturedAt := model.NewTimestamp(f.info.Timestamp)

	network := packet.NetworkLayer()
	if errLayer := packet.ErrorLayer(); errLayer != nil && (network == nil || failedAt(packet, errLayer, network)) {
		return decoded{outcome: outcomeMalformed, reason: errLayer.Error().Error()}
	}

	var res decoded
	switch ip := network.(type) {
	case *layers.IPv4:
		res = ipRecord(f.index, ip.SrcIP, ip.DstIP, capturedAt, model.ProtocolIPv4)
	case *layers.IPv6:
		res = ipRecord(f.index, ip.SrcIP, ip.DstIP, capturedAt, model.ProtocolIPv6)
	default:
		return decoded{outcome: outcomeNonIP}
	}

	if res.outcome == outcomeIP && packet.Metadata().Truncated {
		res.note = "frame is shorter than its IP length; addresses kept, payload incomplete"
	}
	return res
}

// failedAt reports whether errLayer was raised while decoding layer.
// gopacket registers a layer before validating it and appends the failure
// directly after it, so an IPv4 header with a bad IHL or total length still
// shows up as the network layer.
func failedAt(packet gopacket.Packet, errLayer gopacket.ErrorLayer, layer gopacket.Layer) bool {
	ls := packet.Layers()
	for i := 1; i < len(ls); i++ {
		if ls[i] == gopacket.Layer(errLayer) {
			return ls[i-1] == layer
		}
	}
	return false
}

func ipRecord(index int, src, dst net.IP, capturedAt model.Timestamp, proto model.Protocol) decoded {
	source, ok := addrString(src)
	if !ok {
		return decoded{outcome: outcomeMalformed, reason: "invalid source address"}
	}
	destination, ok := addrString(dst)
	if !ok {
		return decoded{outcome: outcomeMalformed, reason: "invalid destination address"}
	}
	return decoded{
		outcome: outcomeIP,
		record: model.PacketRecord{
			Index:       index,
			Source:      source,
			Destination: destination,
			CapturedAt:  capturedAt,
			Protocol:    proto,
		},
	}
}

// addrString renders an address the same way the exit list is normalized.
func addrString(ip net.IP) (string, bool) {
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return "", false
	}
	return addr.String(), true
}
