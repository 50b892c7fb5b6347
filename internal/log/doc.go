// Package log provides slog handlers that keep secrets and, on request,
// suspect addresses out of log output.
//
// SecureHandler wraps any slog.Handler. It always masks credential-bearing
// attributes such as proxy authorization, passwords and tokens. With address
// redaction enabled it also replaces IP addresses logged under suspect keys
// (source, src, suspect) with a stable pseudonym, so log lines about the same
// host still correlate while the address itself stays out of shared logs.
//
//	logger := log.NewSecureLogger(os.Stderr, verbose, log.WithAddressRedaction(true))
//	slog.SetDefault(logger)
package log
