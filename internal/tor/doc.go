// Package tor routes exit list downloads through the Tor network.
//
// Fetching the exit list over Tor keeps the investigating host from
// announcing its interest in Tor to the list server. Client wraps a SOCKS5
// dialer from golang.org/x/net/proxy; EmbeddedTor starts a private Tor daemon
// with tornago when no external daemon is running.
package tor
