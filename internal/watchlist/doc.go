// Package watchlist provides the set of watched Tor exit-node addresses.
//
// A Set is built once per run and is immutable afterwards. Sets are
// persisted in a plain line format: one address per line, newline-terminated,
// no header and no comments. Writing a Set and reading it back yields an
// equal Set.
//
// Providers obtain a Set from a file, a cache refreshed over HTTP (the Tor
// Project bulk exit list), or a chain of both. When no provider can supply a
// list, Load fails with *UnavailableError; callers treat that as "no match
// possible" rather than as a fatal error.
package watchlist
