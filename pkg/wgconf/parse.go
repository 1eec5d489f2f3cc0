package wgconf

import (
	"fmt"
	"strings"
	"unicode"
)

type Peer struct {
	PublicKey  string
	AllowedIPs []string
}

// ParsePeers returns the [Peer] sections of a wg-quick style config.
func ParsePeers(content string) []Peer {
	peers := make([]Peer, 0)
	walkPeerSections(content, func() {
		peers = append(peers, Peer{AllowedIPs: make([]string, 0)})
	}, func(key string, value string) {
		peer := &peers[len(peers)-1]
		switch key {
		case keyPublicKey:
			peer.PublicKey = value
		case keyAllowedIPs:
			peer.AllowedIPs = append(peer.AllowedIPs, splitAllowedIPs(value)...)
		}
	})
	return peers
}

// ContainsPeer reports whether any [Peer] section carries publicKey or lists
// cidr as one of its allowed IPs.
func ContainsPeer(content string, publicKey string, cidr string) bool {
	found := false
	walkPeerSections(content, nil, func(key string, value string) {
		switch key {
		case keyPublicKey:
			if value == publicKey {
				found = true
			}
		case keyAllowedIPs:
			for _, entry := range splitAllowedIPs(value) {
				if entry == cidr {
					found = true
				}
			}
		}
	})
	return found
}

// AppendPeer appends a [Peer] stanza separated from the existing content by
// one blank line.
func AppendPeer(content string, publicKey string, cidr string) string {
	var sb strings.Builder
	trimmed := strings.TrimRightFunc(content, unicode.IsSpace)
	sb.WriteString(trimmed)
	if trimmed != "" {
		sb.WriteString("\n\n")
	}
	fmt.Fprintf(&sb, "[Peer]\nPublicKey = %s\nAllowedIPs = %s\n\n", publicKey, cidr)
	return sb.String()
}

const (
	keyPublicKey  = "publickey"
	keyAllowedIPs = "allowedips"
)

// walkPeerSections calls onValue for every PublicKey and AllowedIPs entry
// inside a [Peer] section. onSection, when set, is called as each [Peer]
// header is entered. Keys are passed lower-cased.
func walkPeerSections(content string, onSection func(), onValue func(key string, value string)) {
	inPeer := false
	lines := strings.FieldsFunc(content, func(r rune) bool {
		return r == '\r' || r == '\n'
	})
	for _, rawLine := range lines {
		line := strings.TrimSpace(rawLine)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		if strings.HasPrefix(line, "[") {
			inPeer = strings.EqualFold(line, "[Peer]")
			if inPeer && onSection != nil {
				onSection()
			}
			continue
		}

		if !inPeer {
			continue
		}

		key, value, ok := parseConfigValue(line)
		if !ok {
			continue
		}
		if key == keyPublicKey || key == keyAllowedIPs {
			onValue(key, value)
		}
	}
}

func parseConfigValue(line string) (string, string, bool) {
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return "", "", false
	}

	value = strings.TrimSpace(value)
	if idx := strings.IndexAny(value, "#;"); idx >= 0 {
		value = strings.TrimSpace(value[:idx])
	}
	return strings.ToLower(strings.TrimSpace(key)), value, true
}

func splitAllowedIPs(value string) []string {
	entries := make([]string, 0)
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			entries = append(entries, entry)
		}
	}
	return entries
}
