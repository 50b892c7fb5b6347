package watchlist

import (
	"bytes"
	"encoding/hex"
	"net/netip"
	"sort"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Set is an immutable set of watched IP address literals.
// The zero value and a nil *Set are both empty sets.
type Set struct {
	members map[string]struct{}
}

// Normalize returns the canonical text form of an IP literal.
// Surrounding whitespace and IPv6 zones are removed and IPv6 is rendered in
// RFC 5952 form. ok is false when s is not an IP literal.
func Normalize(s string) (addr string, ok bool) {
	ip, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return "", false
	}
	return ip.WithZone("").String(), true
}

// NewSet builds a Set from addrs. Duplicates collapse; entries that are not
// IP literals are left out and returned in input order.
func NewSet(addrs ...string) (*Set, []string) {
	s := &Set{members: make(map[string]struct{}, len(addrs))}
	var rejected []string
	for _, a := range addrs {
		n, ok := Normalize(a)
		if !ok {
			rejected = append(rejected, a)
			continue
		}
		s.members[n] = struct{}{}
	}
	return s, rejected
}

// Contains reports whether addr is in the set. addr is compared as-is,
// without normalization.
func (s *Set) Contains(addr string) bool {
	if s == nil {
		return false
	}
	_, ok := s.members[addr]
	return ok
}

// Len returns the number of addresses in the set.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.members)
}

// Addresses returns the members sorted lexically.
func (s *Set) Addresses() []string {
	if s == nil {
		return []string{}
	}
	addrs := make([]string, 0, len(s.members))
	for a := range s.members {
		addrs = append(addrs, a)
	}
	sort.Strings(addrs)
	return addrs
}

// Equal reports whether s and o have the same members.
func (s *Set) Equal(o *Set) bool {
	if s.Len() != o.Len() {
		return false
	}
	for _, a := range s.Addresses() {
		if !o.Contains(a) {
			return false
		}
	}
	return true
}

// Digest returns the hex SHA3-256 digest of the set in line format.
// Equal sets have equal digests.
func (s *Set) Digest() string {
	var buf bytes.Buffer
	_ = Write(&buf, s) //nolint:errcheck // bytes.Buffer writes do not fail
	sum := sha3.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}
