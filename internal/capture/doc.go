// Package capture reads packet captures into normalized packet records.
//
// Supported inputs are classic pcap files (every byte order and timestamp
// precision, optionally gzip-compressed), pcapng files, and tshark field
// exports. Frames are decoded with gopacket; only frames carrying an IPv4 or
// IPv6 header produce a record. Frames without an IP header are skipped
// silently, and malformed frames are skipped with a diagnostic, so a single
// bad frame never aborts a capture.
//
// A missing or unreadable capture fails with *CaptureNotFoundError and an
// unrecognized container fails with *CaptureFormatError. In both cases no
// partial result is returned.
package capture
