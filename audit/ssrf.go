package audit

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/tachyon-beep/elspeth-sub008/errtax"
)

var errNoAddresses = errors.New("no addresses found")

// dnsLookupTimeout bounds the hostname-resolution step of
// ValidateSourceURL so a slow or hanging resolver cannot stall a call.
const dnsLookupTimeout = 2 * time.Second

// ValidateSourceURL enforces the SSRF boundary: the URL must be
// well-formed, carry no embedded userinfo, and resolve (directly as an
// IP literal or via DNS) to an address that is not loopback,
// link-local, multicast, unspecified, private, or carrier-grade NAT.
// Call this once per hop — including every redirect — since a
// same-origin request can still redirect to an internal address.
func ValidateSourceURL(ctx context.Context, rawURL string) error {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return errtax.SSRFBlocked(rawURL, "invalid source url")
	}
	if parsed.User != nil {
		return errtax.SSRFBlocked(rawURL, "source url must not include userinfo")
	}

	host := strings.ToLower(strings.TrimSuffix(parsed.Hostname(), "."))
	if host == "" {
		return errtax.SSRFBlocked(rawURL, "source url must include a hostname")
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return errtax.SSRFBlocked(host, "localhost is not allowed")
	}

	if ip := net.ParseIP(host); ip != nil {
		if isDisallowedSourceIP(ip) {
			return errtax.SSRFBlocked(ip.String(), "disallowed IP range")
		}
		return nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, dnsLookupTimeout)
	defer cancel()

	addrs, err := net.DefaultResolver.LookupIPAddr(lookupCtx, host)
	if err != nil {
		return errtax.Network(host, err)
	}
	if len(addrs) == 0 {
		return errtax.Network(host, errNoAddresses)
	}
	for _, addr := range addrs {
		if isDisallowedSourceIP(addr.IP) {
			return errtax.SSRFBlocked(host, "resolves to a disallowed IP range")
		}
	}
	return nil
}

func isDisallowedSourceIP(ip net.IP) bool {
	if ip == nil {
		return true
	}
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsMulticast() || ip.IsUnspecified() {
		return true
	}
	if ip.IsPrivate() {
		return true
	}
	// Carrier-grade NAT, RFC 6598: 100.64.0.0/10.
	if v4 := ip.To4(); v4 != nil {
		if v4[0] == 100 && v4[1] >= 64 && v4[1] <= 127 {
			return true
		}
	}
	return false
}
