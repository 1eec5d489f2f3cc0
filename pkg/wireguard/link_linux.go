//go:build linux

package wireguard

import (
	"errors"
	"fmt"
	"os"

	"github.com/vishvananda/netlink"
)

// LinkExists reports whether a network link with the given name is present.
func LinkExists(name string) (bool, error) {
	_, err := netlink.LinkByName(name)
	if err != nil {
		var linkNotFoundErr netlink.LinkNotFoundError
		if os.IsNotExist(err) || errors.As(err, &linkNotFoundErr) {
			return false, nil
		}
		return false, fmt.Errorf("failed to find interface by name %s: %w", name, err)
	}
	return true, nil
}
