package wireguard

import (
	"time"
)

type InterfaceSnapshot struct {
	PublicKey  string `json:"publicKey"`
	ListenPort uint16 `json:"listenPort"`
}

type PeerSnapshot struct {
	PublicKey           string   `json:"publicKey"`
	HasPresharedKey     bool     `json:"hasPresharedKey"`
	Endpoint            *string  `json:"endpoint"`
	AllowedIPs          []string `json:"allowedIps"`
	LatestHandshake     int64    `json:"latestHandshakeEpoch"`
	RxBytes             uint64   `json:"rxBytes"`
	TxBytes             uint64   `json:"txBytes"`
	PersistentKeepalive *int     `json:"persistentKeepaliveSeconds"`
}

// State is a point-in-time read of an interface. It is rebuilt from the kernel on every query.
type State struct {
	Iface       string            `json:"iface"`
	GeneratedAt time.Time         `json:"generatedAtUtc"`
	Interface   InterfaceSnapshot `json:"interface"`
	Peers       []PeerSnapshot    `json:"peers"`
}
