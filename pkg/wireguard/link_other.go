//go:build !linux

package wireguard

func LinkExists(string) (bool, error) {
	return false, ErrLinkProbeUnsupported
}
