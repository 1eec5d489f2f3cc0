package provision

import (
	"net/netip"
	"strings"

	"github.com/asaskevich/govalidator"
)

type CreateOptions struct {
	Name         string
	Iface        string
	AllowedIPs   []string
	DNS          string
	EndpointHost string
	EndpointPort *int
}

// requestedAddress returns the caller supplied /32, if any.
func (o *CreateOptions) requestedAddress() (*netip.Prefix, error) {
	if len(o.AllowedIPs) == 0 {
		return nil, nil
	}
	if len(o.AllowedIPs) != 1 {
		return nil, ErrSingleAllowedIP
	}

	prefix, err := netip.ParsePrefix(strings.TrimSpace(o.AllowedIPs[0]))
	if err != nil || !prefix.Addr().Is4() || prefix.Bits() != 32 {
		return nil, ErrInvalidAllowedIP
	}
	return &prefix, nil
}

// dns normalizes the DNS option into the comma separated form wg-quick reads.
// Entries are resolver addresses or search domains.
func (o *CreateOptions) dns() (string, error) {
	if strings.TrimSpace(o.DNS) == "" {
		return "", nil
	}

	entries := make([]string, 0)
	for _, entry := range strings.Split(o.DNS, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !govalidator.IsIP(entry) && !govalidator.IsDNSName(entry) {
			return "", ErrInvalidDNS
		}
		entries = append(entries, entry)
	}
	return strings.Join(entries, ", "), nil
}
