package capture

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"golang.org/x/crypto/sha3"

	"github.com/nao1215/exitwatch/internal/model"
)

// Capture container formats reported in model.CaptureInfo.Format.
const (
	FormatPcap   = "pcap"
	FormatPcapNG = "pcapng"
	FormatFields = "fields"
)

// StdinPath is the capture path reported for stream input.
const StdinPath = "-"

// cancelCheckInterval is how many frames are read between context checks.
const cancelCheckInterval = 1024

// Result is a parsed capture.
type Result struct {
	// Records holds one record per IP-bearing frame, in capture order.
	Records []model.PacketRecord

	// Diagnostics holds per-frame warnings.
	Diagnostics model.Diagnostics

	// Info describes the capture: format, link type, size, digest and stats.
	Info model.CaptureInfo
}

// options configures parsing.
type options struct {
	workers int
	comma   rune
	logger  *slog.Logger
}

// Option configures Parse, ParseBytes, ParseFile and ParseFieldExport.
type Option func(*options)

// WithWorkers sets how many goroutines decode frames. Values below 1 are ignored.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithComma sets the field separator of a field export. The default is a tab.
func WithComma(r rune) Option {
	return func(o *options) {
		o.comma = r
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		workers: runtime.GOMAXPROCS(0),
		comma:   '\t',
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ParseFile reads and parses the capture at path.
func ParseFile(ctx context.Context, path string, opts ...Option) (*Result, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}

	result, err := ParseBytes(ctx, data, opts...)
	if err != nil {
		return nil, withPath(err, path)
	}
	result.Info.Path = path
	return result, nil
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided capture path is intentional
	if err != nil {
		return nil, &CaptureNotFoundError{Path: path, Err: err}
	}
	return data, nil
}

// Parse reads the whole stream and parses it as a capture.
func Parse(ctx context.Context, r io.Reader, opts ...Option) (*Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &CaptureNotFoundError{Path: StdinPath, Err: err}
	}

	result, err := ParseBytes(ctx, data, opts...)
	if err != nil {
		return nil, err
	}
	result.Info.Path = StdinPath
	return result, nil
}

// ParseBytes parses an in-memory pcap or pcapng capture.
func ParseBytes(ctx context.Context, data []byte, opts ...Option) (*Result, error) {
	o := newOptions(opts)

	format, err := detectFormat(data)
	if err != nil {
		return nil, &CaptureFormatError{Err: err}
	}

	src, err := openContainer(format, data)
	if err != nil {
		return nil, &CaptureFormatError{Err: err}
	}

	linkType := src.LinkType()
	if !supportedLinkType(linkType) {
		return nil, &CaptureFormatError{Err: fmt.Errorf("%w: %s", ErrUnsupportedLinkType, linkType)}
	}

	frames, diags, err := readFrames(ctx, src)
	if err != nil {
		return nil, err
	}

	records, stats, decodeDiags, err := decodeFrames(ctx, frames, linkType, o.workers)
	if err != nil {
		return nil, err
	}
	diags = append(decodeDiags, diags...)

	o.logger.Debug("capture parsed",
		"format", format,
		"linkType", linkType.String(),
		"frames", stats.Frames,
		"records", len(records),
		"malformed", stats.MalformedFrames,
	)

	return &Result{
		Records:     records,
		Diagnostics: diags,
		Info: model.CaptureInfo{
			Format:   format,
			LinkType: linkType.String(),
			Size:     int64(len(data)),
			Digest:   Digest(data),
			Stats:    stats,
		},
	}, nil
}

// Digest returns the hex SHA3-256 digest of data.
func Digest(data []byte) string {
	sum := sha3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// withPath fills in the capture path of a format error.
func withPath(err error, path string) error {
	var formatErr *CaptureFormatError
	if errors.As(err, &formatErr) && formatErr.Path == "" {
		formatErr.Path = path
	}
	return err
}

// detectFormat identifies the container by its leading magic number.
func detectFormat(data []byte) (string, error) {
	if len(data) < 4 {
		return "", fmt.Errorf("%w: only %d bytes", ErrUnknownFormat, len(data))
	}
	switch {
	case bytes.Equal(data[:4], []byte{0x0a, 0x0d, 0x0d, 0x0a}):
		return FormatPcapNG, nil
	case bytes.Equal(data[:4], []byte{0xa1, 0xb2, 0xc3, 0xd4}),
		bytes.Equal(data[:4], []byte{0xd4, 0xc3, 0xb2, 0xa1}),
		bytes.Equal(data[:4], []byte{0xa1, 0xb2, 0x3c, 0x4d}),
		bytes.Equal(data[:4], []byte{0x4d, 0x3c, 0xb2, 0xa1}),
		bytes.Equal(data[:2], []byte{0x1f, 0x8b}):
		// pcapgo.Reader transparently decompresses gzip input.
		return FormatPcap, nil
	default:
		return "", ErrUnknownFormat
	}
}

// packetSource is the subset of pcapgo.Reader and pcapgo.NgReader used here.
type packetSource interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

func openContainer(format string, data []byte) (packetSource, error) {
	switch format {
	case FormatPcapNG:
		return pcapgo.NewNgReader(bytes.NewReader(data), pcapgo.DefaultNgReaderOptions)
	default:
		return pcapgo.NewReader(bytes.NewReader(data))
	}
}

// supportedLinkType reports whether gopacket can decode IP frames of lt.
func supportedLinkType(lt layers.LinkType) bool {
	switch lt {
	case layers.LinkTypeNull,
		layers.LinkTypeEthernet,
		layers.LinkTypePPP,
		layers.LinkTypeRaw,
		layers.LinkTypeIEEE802_11,
		layers.LinkTypeLoop,
		layers.LinkTypeLinuxSLL,
		layers.LinkTypePFLog,
		layers.LinkTypeIEEE80211Radio,
		layers.LinkTypeIPv4,
		layers.LinkTypeIPv6:
		return true
	default:
		return false
	}
}

// frame is one raw record read from the container.
type frame struct {
	index int
	data  []byte
	info  gopacket.CaptureInfo
}

// readFrames reads every record from src. Damage in a record header or a
// record cut short by the end of the input stops reading with a diagnostic;
// frames read so far are kept.
func readFrames(ctx context.Context, src packetSource) ([]frame, model.Diagnostics, error) {
	var frames []frame
	var diags model.Diagnostics

	for {
		if len(frames)%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
		}

		data, ci, err := src.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			diags = append(diags, model.Diagnostic{
				Stage:   model.StageCapture,
				Kind:    model.KindTruncatedCapture,
				Index:   len(frames) + 1,
				Message: "capture ends inside a damaged record: " + err.Error(),
			})
			break
		}

		frames = append(frames, frame{index: len(frames) + 1, data: data, info: ci})
	}

	return frames, diags, nil
}
