package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/UnAfraid/wg-gateway/pkg/pool"
)

const defaultLockFileName = "wg-gateway-peer-alloc.lock"

type WireGuard struct {
	Interface        string        `default:"wg1"`
	EndpointHost     string        `split_words:"true"`
	EndpointPort     uint16        `split_words:"true" default:"51820"`
	AddressPoolCidr  string        `split_words:"true" default:"10.8.0.0/24"`
	PoolFallback     bool          `split_words:"true" default:"false"`
	ClientAllowedIps string        `split_words:"true" default:"0.0.0.0/0"`
	PersistPeers     bool          `split_words:"true" default:"false"`
	ConfigPath       string        `split_words:"true"`
	ConfigDir        string        `split_words:"true" default:"/etc/wireguard"`
	LockPath         string        `split_words:"true"`
	LockTimeout      time.Duration `split_words:"true" default:"15s"`
	WgPath           string        `split_words:"true" default:"wg"`
	QrencodePath     string        `split_words:"true" default:"qrencode"`
	KeyGenerator     string        `split_words:"true" default:"exec"`
	QrRenderer       string        `split_words:"true" default:"exec"`
	UseSudo          bool          `split_words:"true" default:"false"`
	SudoPath         string        `split_words:"true" default:"sudo"`
}

func (w *WireGuard) Validate() error {
	if _, err := pool.Resolve(w.AddressPoolCidr, w.PoolFallback); err != nil {
		return fmt.Errorf("invalid address pool %q: %w", w.AddressPoolCidr, err)
	}
	if w.LockTimeout <= 0 {
		return fmt.Errorf("lock timeout must be positive, got %s", w.LockTimeout)
	}
	if w.ConfigPath != "" && !filepath.IsAbs(w.ConfigPath) {
		return fmt.Errorf("config path must be absolute: %q", w.ConfigPath)
	}
	switch strings.ToLower(w.KeyGenerator) {
	case "exec", "builtin":
	default:
		return fmt.Errorf("unsupported key generator %q", w.KeyGenerator)
	}
	switch strings.ToLower(w.QrRenderer) {
	case "exec", "builtin":
	default:
		return fmt.Errorf("unsupported qr renderer %q", w.QrRenderer)
	}
	return nil
}

func (w *WireGuard) ResolvedLockPath() string {
	if strings.TrimSpace(w.LockPath) != "" {
		return w.LockPath
	}
	return filepath.Join(os.TempDir(), defaultLockFileName)
}
