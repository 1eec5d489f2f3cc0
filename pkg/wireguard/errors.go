package wireguard

import (
	"errors"
	"strings"
)

var (
	ErrInterfaceNotFound    = errors.New("wireguard interface not found")
	ErrMalformedDump        = errors.New("malformed wireguard dump")
	ErrInvalidPublicKey     = errors.New("invalid wireguard public key")
	ErrLinkProbeUnsupported = errors.New("link probe is not supported on this platform")
)

var interfaceNotFoundMarkers = []string{
	"no such device",
	"not found",
	"does not exist",
}

// IsInterfaceNotFound reports whether wg stderr output describes a missing device.
func IsInterfaceNotFound(stderr string) bool {
	lower := strings.ToLower(strings.TrimSpace(stderr))
	if lower == "" {
		return false
	}
	for _, marker := range interfaceNotFoundMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
