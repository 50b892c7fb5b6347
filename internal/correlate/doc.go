// Package correlate selects the packet records whose destination is a
// watched address.
//
// Only the destination is checked: a host behind the capture point that
// connects out to an exit node is the suspect, while traffic arriving from
// an exit node is not reported.
package correlate
