package visitors

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"strings"
	"time"
)

// hashLength is the number of hex characters kept from the digest.
const hashLength = 16

// VisitorHash creates a privacy-first pseudonymous visitor identifier.
// The hash rotates at local midnight of now, so the same visitor cannot be
// followed across days. The IP is only hashed, never stored by this function.
func VisitorHash(ipAddress, userAgent, salt string, now time.Time) string {
	day := now.Format("2006-01-02")
	data := fmt.Sprintf("%s|%s|%s|%s", ipAddress, userAgent, day, salt)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])[:hashLength]
}

// AnonymiseIP zeroes the host part of an address: the last octet for IPv4
// and the last two hextets for IPv6. Input that does not parse is returned as is.
func AnonymiseIP(ipAddress string) string {
	ip := net.ParseIP(strings.TrimSpace(ipAddress))
	if ip == nil {
		return ipAddress
	}

	if v4 := ip.To4(); v4 != nil {
		masked := v4.Mask(net.CIDRMask(24, 32))
		return masked.String()
	}

	masked := ip.Mask(net.CIDRMask(96, 128))
	return masked.String()
}
