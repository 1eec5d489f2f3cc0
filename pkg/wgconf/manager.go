package wgconf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/netip"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	backupTimeLayout  = "20060102150405.000000"
	maxBackupAttempts = 100
)

var ErrPeerExists = errors.New("peer already exists in config")

// RuntimeConfig is the part of the tunnel controller needed to capture and
// re-apply the live interface configuration.
type RuntimeConfig interface {
	ShowConfig(ctx context.Context, iface string) (string, error)
	SyncConfig(ctx context.Context, iface string, path string) error
}

type Manager interface {
	Path(iface string) string
	EnsureAbsent(path string, publicKey string, cidr netip.Prefix) error
	Persist(ctx context.Context, iface string, publicKey string, cidr netip.Prefix) error
	ReadPeers(iface string) ([]Peer, bool, error)
}

type manager struct {
	runtime      RuntimeConfig
	configDir    string
	pathOverride string
	tempDir      string
	now          func() time.Time
}

func NewManager(runtime RuntimeConfig, configDir string, pathOverride string) Manager {
	return &manager{
		runtime:      runtime,
		configDir:    configDir,
		pathOverride: pathOverride,
		tempDir:      os.TempDir(),
		now:          time.Now,
	}
}

func (m *manager) Path(iface string) string {
	if m.pathOverride != "" {
		return m.pathOverride
	}
	return filepath.Join(m.configDir, iface+".conf")
}

func (m *manager) EnsureAbsent(path string, publicKey string, cidr netip.Prefix) error {
	content, exists, err := readConfig(path)
	if err != nil {
		return err
	}
	if exists && ContainsPeer(content, publicKey, cidr.String()) {
		return fmt.Errorf("%w: %s", ErrPeerExists, path)
	}
	return nil
}

// Persist re-syncs the live interface from its own runtime config and then
// records the peer in the interface config file, backing up any previous
// version first.
func (m *manager) Persist(ctx context.Context, iface string, publicKey string, cidr netip.Prefix) error {
	path := m.Path(iface)
	existing, exists, err := readConfig(path)
	if err != nil {
		return err
	}
	if exists && ContainsPeer(existing, publicKey, cidr.String()) {
		return fmt.Errorf("%w: %s", ErrPeerExists, path)
	}

	runtimeConfig, err := m.runtime.ShowConfig(ctx, iface)
	if err != nil {
		return err
	}

	syncPath, err := writeTempFile(m.tempDir, fmt.Sprintf("wg-gateway-%s-*.conf", iface), []byte(runtimeConfig))
	if err != nil {
		return err
	}
	defer removeFile(syncPath)

	if err := m.runtime.SyncConfig(ctx, iface, syncPath); err != nil {
		return err
	}

	if !exists {
		return writeFileAtomically(path, []byte(runtimeConfig))
	}

	if err := m.backup(path); err != nil {
		return err
	}
	return writeFileAtomically(path, []byte(AppendPeer(existing, publicKey, cidr.String())))
}

// ReadPeers returns the peers recorded in the interface config file and
// whether the file exists.
func (m *manager) ReadPeers(iface string) ([]Peer, bool, error) {
	content, exists, err := readConfig(m.Path(iface))
	if err != nil || !exists {
		return nil, exists, err
	}
	return ParsePeers(content), true, nil
}

func (m *manager) backup(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config for backup: %w", err)
	}
	defer src.Close()

	dst, backupPath, err := m.createBackupFile(path)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		removeFile(backupPath)
		return fmt.Errorf("failed to copy config backup %s: %w", backupPath, err)
	}
	if err := dst.Sync(); err != nil {
		_ = dst.Close()
		removeFile(backupPath)
		return fmt.Errorf("failed to sync config backup %s: %w", backupPath, err)
	}
	if err := dst.Close(); err != nil {
		removeFile(backupPath)
		return fmt.Errorf("failed to close config backup %s: %w", backupPath, err)
	}

	logrus.
		WithField("path", path).
		WithField("backup", backupPath).
		Info("backed up wireguard config")
	return nil
}

// createBackupFile opens a new backup next to path. Existing backups are never
// overwritten: a name collision gets a counter suffix.
func (m *manager) createBackupFile(path string) (*os.File, string, error) {
	base := path + ".bak." + m.now().UTC().Format(backupTimeLayout)
	for i := 0; i < maxBackupAttempts; i++ {
		backupPath := base
		if i > 0 {
			backupPath = fmt.Sprintf("%s.%d", base, i)
		}

		dst, err := os.OpenFile(backupPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			return dst, backupPath, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", fmt.Errorf("failed to create config backup %s: %w", backupPath, err)
		}
	}
	return nil, "", fmt.Errorf("failed to create config backup %s: %d names already taken", base, maxBackupAttempts)
}

func readConfig(path string) (string, bool, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return string(content), true, nil
}

func writeFileAtomically(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}

	tmpPath, err := writeTempFile(dir, filepath.Base(path)+".tmp.*", content)
	if err != nil {
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		removeFile(tmpPath)
		return fmt.Errorf("failed to move config into place: %w", err)
	}
	return nil
}

func writeTempFile(dir string, pattern string, content []byte) (string, error) {
	tmpFile, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}
	path := tmpFile.Name()

	cleanup := func() {
		_ = tmpFile.Close()
		removeFile(path)
	}

	if _, err := tmpFile.Write(content); err != nil {
		cleanup()
		return "", fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := tmpFile.Chmod(0o600); err != nil {
		cleanup()
		return "", fmt.Errorf("failed to chmod temporary file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		cleanup()
		return "", fmt.Errorf("failed to sync temporary file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		cleanup()
		return "", fmt.Errorf("failed to close temporary file: %w", err)
	}

	return path, nil
}

func removeFile(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logrus.
			WithError(err).
			WithField("path", path).
			Warn("failed to remove temporary file")
	}
}
