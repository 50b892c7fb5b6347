package tor

import "errors"

var (
	// ErrNotSOCKSProxy means something listens at the proxy address but it
	// does not accept an unauthenticated SOCKS5 session.
	ErrNotSOCKSProxy = errors.New("proxy does not speak unauthenticated SOCKS5")

	// ErrProxyUnreachable means no TCP connection to the proxy could be made.
	ErrProxyUnreachable = errors.New("Tor proxy unreachable") //nolint:staticcheck // proper noun

	// ErrProxyTimeout means the proxy accepted the connection but did not answer.
	ErrProxyTimeout = errors.New("Tor proxy did not answer in time") //nolint:staticcheck // proper noun

	// ErrInvalidProxyAddress is returned by NewClient for anything but "host:port".
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")

	// ErrNotRunning is returned by EmbeddedTor.NewClient before Start.
	ErrNotRunning = errors.New("embedded Tor daemon is not running")
)

// ProxyStatus is the outcome of Client.CheckConnection.
type ProxyStatus int

// Proxy check outcomes.
const (
	ProxyStatusOK ProxyStatus = iota
	ProxyStatusNotSOCKS
	ProxyStatusUnreachable
	ProxyStatusTimeout
)

var proxyStatuses = [...]struct {
	text string
	err  error
}{
	ProxyStatusOK:          {"ok", nil},
	ProxyStatusNotSOCKS:    {"not a SOCKS5 proxy", ErrNotSOCKSProxy},
	ProxyStatusUnreachable: {"unreachable", ErrProxyUnreachable},
	ProxyStatusTimeout:     {"timed out", ErrProxyTimeout},
}

var errUnknownProxyStatus = errors.New("unknown proxy status")

func (s ProxyStatus) known() bool {
	return s >= 0 && int(s) < len(proxyStatuses)
}

// String implements fmt.Stringer.
func (s ProxyStatus) String() string {
	if !s.known() {
		return "unknown"
	}
	return proxyStatuses[s].text
}

// Err returns the sentinel error for s, or nil for ProxyStatusOK.
func (s ProxyStatus) Err() error {
	if !s.known() {
		return errUnknownProxyStatus
	}
	return proxyStatuses[s].err
}
