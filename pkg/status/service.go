package status

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"slices"
	"strings"

	"github.com/UnAfraid/wg-gateway/pkg/wgconf"
	"github.com/UnAfraid/wg-gateway/pkg/wireguard"
)

var (
	ErrUnsupportedMode = errors.New("only mode=dry-run is supported")
	ErrInterfaceDown   = errors.New("wireguard interface is not present")
)

type Service interface {
	Iface() string
	State(ctx context.Context) (*wireguard.State, error)
	Reconcile(ctx context.Context, mode string) (*Report, error)
	Ready(ctx context.Context) error
}

type service struct {
	iface        string
	persistPeers bool
	controller   wireguard.Controller
	configs      wgconf.Manager
	linkExists   func(name string) (bool, error)
}

func NewService(iface string, persistPeers bool, controller wireguard.Controller, configs wgconf.Manager) Service {
	return &service{
		iface:        iface,
		persistPeers: persistPeers,
		controller:   controller,
		configs:      configs,
		linkExists:   wireguard.LinkExists,
	}
}

func (s *service) Iface() string {
	return s.iface
}

func (s *service) State(ctx context.Context) (*wireguard.State, error) {
	return s.controller.State(ctx, s.iface)
}

// Reconcile compares the persisted interface config with the live interface
// without changing either. Without persistence there is nothing to compare
// and the report is empty.
func (s *service) Reconcile(ctx context.Context, mode string) (*Report, error) {
	mode = strings.TrimSpace(mode)
	if mode == "" {
		mode = ModeDryRun
	}
	if mode != ModeDryRun {
		return nil, ErrUnsupportedMode
	}

	report := &Report{
		Iface:   s.iface,
		Mode:    mode,
		Details: make([]Detail, 0),
	}
	if !s.persistPeers {
		return report, nil
	}

	state, err := s.controller.State(ctx, s.iface)
	if err != nil {
		return nil, err
	}

	persistedPeers, _, err := s.configs.ReadPeers(s.iface)
	if err != nil {
		return nil, fmt.Errorf("failed to read persisted peers: %w", err)
	}

	runtime := make(map[string][]string, len(state.Peers))
	for _, peer := range state.Peers {
		runtime[peer.PublicKey] = normalizeAllowedIPs(peer.AllowedIPs)
	}

	persisted := make(map[string]struct{}, len(persistedPeers))
	for _, peer := range persistedPeers {
		if peer.PublicKey == "" {
			continue
		}
		persisted[peer.PublicKey] = struct{}{}

		persistedAllowedIPs := normalizeAllowedIPs(peer.AllowedIPs)
		runtimeAllowedIPs, ok := runtime[peer.PublicKey]
		switch {
		case !ok:
			report.Summary.Missing++
			report.Details = append(report.Details, Detail{
				Kind:                DetailMissing,
				PublicKey:           peer.PublicKey,
				PersistedAllowedIPs: persistedAllowedIPs,
			})
		case !slices.Equal(persistedAllowedIPs, runtimeAllowedIPs):
			report.Summary.Drift++
			report.Details = append(report.Details, Detail{
				Kind:                DetailDrift,
				PublicKey:           peer.PublicKey,
				PersistedAllowedIPs: persistedAllowedIPs,
				RuntimeAllowedIPs:   runtimeAllowedIPs,
			})
		}
	}

	for _, peer := range state.Peers {
		if _, ok := persisted[peer.PublicKey]; ok {
			continue
		}
		report.Summary.Orphan++
		report.Details = append(report.Details, Detail{
			Kind:              DetailOrphan,
			PublicKey:         peer.PublicKey,
			RuntimeAllowedIPs: runtime[peer.PublicKey],
		})
	}

	return report, nil
}

// Ready checks that the configured interface link exists, asking wg directly
// where netlink is unavailable.
func (s *service) Ready(ctx context.Context) error {
	exists, err := s.linkExists(s.iface)
	if errors.Is(err, wireguard.ErrLinkProbeUnsupported) {
		_, err = s.controller.PublicKey(ctx, s.iface)
		return err
	}
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrInterfaceDown, s.iface)
	}
	return nil
}

func normalizeAllowedIPs(allowedIPs []string) []string {
	normalized := make([]string, 0, len(allowedIPs))
	for _, allowedIP := range allowedIPs {
		if prefix, err := netip.ParsePrefix(allowedIP); err == nil {
			allowedIP = prefix.String()
		}
		normalized = append(normalized, allowedIP)
	}
	slices.Sort(normalized)
	return slices.Compact(normalized)
}
