package wireguard

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"time"
)

const (
	interfaceDumpFields = 4
	peerDumpFields      = 8

	dumpNone = "(none)"
	dumpOff  = "off"
)

// ParseDump decodes `wg show <iface> dump` output. Any malformed line fails the
// whole read; empty output means the interface does not exist.
func ParseDump(iface string, output string, now time.Time) (*State, error) {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: %s", ErrInterfaceNotFound, iface)
	}

	lines := strings.Split(trimmed, "\n")
	interfaceFields := splitDumpFields(lines[0])
	if len(interfaceFields) < interfaceDumpFields {
		return nil, fmt.Errorf("%w: interface line has %d fields, expected %d", ErrMalformedDump, len(interfaceFields), interfaceDumpFields)
	}

	listenPort, err := strconv.ParseUint(strings.TrimSpace(interfaceFields[2]), 10, 16)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse listen port: %v", ErrMalformedDump, err)
	}
	if err := validateFirewallMark(interfaceFields[3]); err != nil {
		return nil, err
	}

	state := &State{
		Iface:       iface,
		GeneratedAt: now.UTC(),
		Interface: InterfaceSnapshot{
			PublicKey:  parseDumpString(interfaceFields[1]),
			ListenPort: uint16(listenPort),
		},
		Peers: make([]PeerSnapshot, 0, len(lines)-1),
	}

	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}

		peer, err := parsePeerLine(line)
		if err != nil {
			return nil, err
		}
		state.Peers = append(state.Peers, *peer)
	}

	return state, nil
}

func parsePeerLine(line string) (*PeerSnapshot, error) {
	fields := splitDumpFields(line)
	if len(fields) < peerDumpFields {
		return nil, fmt.Errorf("%w: peer line has %d fields, expected %d", ErrMalformedDump, len(fields), peerDumpFields)
	}

	publicKey := strings.TrimSpace(fields[0])

	allowedIPs, err := parseAllowedIPsField(fields[3], ",")
	if err != nil {
		return nil, fmt.Errorf("%w: peer %s: %v", ErrMalformedDump, publicKey, err)
	}

	latestHandshake, err := strconv.ParseInt(strings.TrimSpace(fields[4]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse latest handshake for peer %s: %v", ErrMalformedDump, publicKey, err)
	}

	rxBytes, err := strconv.ParseUint(strings.TrimSpace(fields[5]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse receive bytes for peer %s: %v", ErrMalformedDump, publicKey, err)
	}

	txBytes, err := strconv.ParseUint(strings.TrimSpace(fields[6]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse transmit bytes for peer %s: %v", ErrMalformedDump, publicKey, err)
	}

	keepalive, err := parseKeepalive(fields[7])
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse keepalive for peer %s: %v", ErrMalformedDump, publicKey, err)
	}

	var endpoint *string
	if value := parseDumpString(fields[2]); value != "" {
		endpoint = &value
	}

	return &PeerSnapshot{
		PublicKey:           publicKey,
		HasPresharedKey:     parseDumpString(fields[1]) != "",
		Endpoint:            endpoint,
		AllowedIPs:          allowedIPs,
		LatestHandshake:     latestHandshake,
		RxBytes:             rxBytes,
		TxBytes:             txBytes,
		PersistentKeepalive: keepalive,
	}, nil
}

// ParseAllowedIPs decodes `wg show <iface> allowed-ips` output into the set of
// IPv4 host addresses (/32 entries) currently assigned to peers.
func ParseAllowedIPs(output string) (map[netip.Addr]struct{}, error) {
	used := make(map[netip.Addr]struct{})
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		publicKey, rest, ok := strings.Cut(line, "\t")
		if !ok {
			return nil, fmt.Errorf("%w: allowed-ips line without tab separator for %q", ErrMalformedDump, publicKey)
		}

		prefixes, err := parseAllowedIPsField(rest, " ")
		if err != nil {
			return nil, fmt.Errorf("%w: peer %s: %v", ErrMalformedDump, publicKey, err)
		}

		for _, prefix := range prefixes {
			parsed := netip.MustParsePrefix(prefix)
			if parsed.Addr().Is4() && parsed.Bits() == 32 {
				used[parsed.Addr()] = struct{}{}
			}
		}
	}
	return used, nil
}

func parseAllowedIPsField(field string, separator string) ([]string, error) {
	field = strings.TrimSpace(field)
	allowedIPs := make([]string, 0)
	if field == "" || field == dumpNone {
		return allowedIPs, nil
	}

	for _, entry := range strings.Split(field, separator) {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		prefix, err := netip.ParsePrefix(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid allowed ip %q: %w", entry, err)
		}
		allowedIPs = append(allowedIPs, prefix.String())
	}
	return allowedIPs, nil
}

func parseKeepalive(v string) (*int, error) {
	v = strings.TrimSpace(v)
	if v == dumpOff {
		return nil, nil
	}
	n, err := strconv.ParseUint(v, 10, 16)
	if err != nil {
		return nil, err
	}
	keepalive := int(n)
	return &keepalive, nil
}

func validateFirewallMark(v string) error {
	v = strings.TrimSpace(v)
	if v == dumpOff {
		return nil
	}
	// wg prints a set mark as 0x%x.
	if _, err := strconv.ParseUint(v, 0, 32); err != nil {
		return fmt.Errorf("%w: failed to parse firewall mark: %v", ErrMalformedDump, err)
	}
	return nil
}

func splitDumpFields(line string) []string {
	line = strings.TrimRight(line, "\r")
	return strings.Split(line, "\t")
}

func parseDumpString(v string) string {
	v = strings.TrimSpace(v)
	if v == dumpNone {
		return ""
	}
	return v
}
