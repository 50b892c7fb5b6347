package capture

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"strings"

	"github.com/nao1215/exitwatch/internal/model"
)

// ParseFieldExport parses a tshark field export such as the output of
//
//	tshark -r in.pcap -T fields -e frame.time_epoch -e ip.src -e ip.dst -e ipv6.src -e ipv6.dst
//
// Columns are the epoch timestamp, the IPv4 source and destination and,
// optionally, the IPv6 source and destination. A leading header row is
// skipped. Rows with no address pair are counted as non-IP frames. Rows with
// a non-numeric timestamp or an invalid address are skipped with a
// diagnostic. An empty timestamp yields a record whose capture time is unset.
func ParseFieldExport(ctx context.Context, r io.Reader, opts ...Option) (*Result, error) {
	o := newOptions(opts)

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &CaptureNotFoundError{Path: StdinPath, Err: err}
	}
	if _, err := detectFormat(data); err == nil {
		return nil, &CaptureFormatError{Err: ErrBinaryFieldExport}
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = o.comma
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	result := &Result{
		Info: model.CaptureInfo{
			Path:   StdinPath,
			Format: FormatFields,
			Size:   int64(len(data)),
			Digest: Digest(data),
		},
	}

	rowIndex := 0
	headerChecked := false
	for {
		if rowIndex%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if !headerChecked {
			headerChecked = true
			if err == nil && isHeader(row) {
				continue
			}
		}
		rowIndex++
		result.Info.Stats.Frames++

		if err != nil {
			var parseErr *csv.ParseError
			if !errors.As(err, &parseErr) {
				return nil, &CaptureFormatError{Err: err}
			}
			result.addDiagnostic(model.KindInvalidRow, rowIndex, parseErr.Error())
			continue
		}

		result.addRow(rowIndex, row)
	}

	o.logger.Debug("field export parsed",
		"rows", result.Info.Stats.Frames,
		"records", len(result.Records),
		"malformed", result.Info.Stats.MalformedFrames,
	)
	return result, nil
}

// ParseFieldExportFile reads and parses the field export at path.
func ParseFieldExportFile(ctx context.Context, path string, opts ...Option) (*Result, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	result, err := ParseFieldExport(ctx, bytes.NewReader(data), opts...)
	if err != nil {
		return nil, withPath(err, path)
	}
	result.Info.Path = path
	return result, nil
}

// addRow converts one export row into a record.
func (r *Result) addRow(index int, row []string) {
	if len(row) < 3 {
		r.addDiagnostic(model.KindInvalidRow, index, fmt.Sprintf("expected at least 3 fields, got %d", len(row)))
		return
	}

	src, dst, proto := firstValue(row[1]), firstValue(row[2]), model.ProtocolIPv4
	if src == "" && dst == "" && len(row) >= 5 {
		src, dst, proto = firstValue(row[3]), firstValue(row[4]), model.ProtocolIPv6
	}
	if src == "" && dst == "" {
		r.Info.Stats.NonIPFrames++
		return
	}

	source, ok := parseAddr(src)
	if !ok {
		r.addDiagnostic(model.KindInvalidAddress, index, fmt.Sprintf("invalid source address %q", src))
		return
	}
	destination, ok := parseAddr(dst)
	if !ok {
		r.addDiagnostic(model.KindInvalidAddress, index, fmt.Sprintf("invalid destination address %q", dst))
		return
	}

	var capturedAt model.Timestamp
	if ts := strings.TrimSpace(row[0]); ts != "" {
		parsed, err := model.ParseTimestamp(ts)
		if err != nil {
			r.addDiagnostic(model.KindInvalidTimestamp, index, err.Error())
			return
		}
		capturedAt = parsed
	}

	r.Info.Stats.IPFrames++
	r.Records = append(r.Records, model.PacketRecord{
		Index:       index,
		Source:      source,
		Destination: destination,
		CapturedAt:  capturedAt,
		Protocol:    proto,
	})
}

func (r *Result) addDiagnostic(kind model.DiagnosticKind, index int, msg string) {
	r.Info.Stats.MalformedFrames++
	r.Diagnostics = append(r.Diagnostics, model.Diagnostic{
		Stage:   model.StageCapture,
		Kind:    kind,
		Index:   index,
		Message: msg,
	})
}

// isHeader reports whether row is a column header rather than data.
func isHeader(row []string) bool {
	if len(row) == 0 {
		return false
	}
	first := strings.ToLower(strings.TrimSpace(row[0]))
	return strings.Contains(first, "time") || strings.Contains(first, "epoch")
}

// firstValue returns the first of tshark's comma-joined occurrences.
// Tunnelled frames list the outer header first.
func firstValue(field string) string {
	v, _, _ := strings.Cut(strings.TrimSpace(field), ",")
	return strings.TrimSpace(v)
}

func parseAddr(s string) (string, bool) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return "", false
	}
	return addr.WithZone("").String(), true
}
