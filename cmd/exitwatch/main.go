// Package main provides the entry point for the exitwatch CLI.
//
// exitwatch reads packet captures, matches every destination address against
// the Tor exit node list and reports which local hosts contacted an exit
// node, and when.
//
// Usage:
//
//	exitwatch analyze capture.pcap
//	exitwatch analyze --fetch --json capture.pcapng
//	exitwatch exitlist update
//
// See --help for all available options.
package main

func main() {
	Execute()
}
