package provision

import (
	"context"
	"fmt"
	"net/netip"
	"regexp"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/sirupsen/logrus"

	"github.com/UnAfraid/wg-gateway/pkg/lock"
	"github.com/UnAfraid/wg-gateway/pkg/metrics"
	"github.com/UnAfraid/wg-gateway/pkg/pool"
	"github.com/UnAfraid/wg-gateway/pkg/qr"
	"github.com/UnAfraid/wg-gateway/pkg/wgconf"
	"github.com/UnAfraid/wg-gateway/pkg/wireguard"
	"github.com/UnAfraid/wg-gateway/pkg/wireguard/keygen"
)

const (
	defaultEndpointPort     = 51820
	defaultClientAllowedIPs = "0.0.0.0/0"
)

var ifacePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,32}$`)

type Options struct {
	Iface            string
	EndpointHost     string
	EndpointPort     int
	ClientAllowedIPs string
	PersistPeers     bool
	LockTimeout      time.Duration
}

type Service interface {
	CreatePeer(ctx context.Context, options *CreateOptions) (*Result, error)
	RemovePeer(ctx context.Context, iface string, publicKey string) error
}

type service struct {
	options    Options
	controller wireguard.Controller
	keys       keygen.Generator
	renderer   qr.Renderer
	pool       pool.Pool
	lock       *lock.FileLock
	configs    wgconf.Manager
}

func NewService(
	options Options,
	controller wireguard.Controller,
	keys keygen.Generator,
	renderer qr.Renderer,
	addressPool pool.Pool,
	allocationLock *lock.FileLock,
	configs wgconf.Manager,
) Service {
	if strings.TrimSpace(options.ClientAllowedIPs) == "" {
		options.ClientAllowedIPs = defaultClientAllowedIPs
	}
	return &service{
		options:    options,
		controller: controller,
		keys:       keys,
		renderer:   renderer,
		pool:       addressPool,
		lock:       allocationLock,
		configs:    configs,
	}
}

func (s *service) CreatePeer(ctx context.Context, options *CreateOptions) (*Result, error) {
	result, err := s.createPeer(ctx, options)
	err = Classify(err)
	metrics.PeersProvisioned.WithLabelValues(kindOf(err)).Inc()
	return result, err
}

func (s *service) createPeer(ctx context.Context, options *CreateOptions) (*Result, error) {
	if options == nil {
		return nil, ErrCreateOptionsRequired
	}

	name := strings.TrimSpace(options.Name)
	if name == "" {
		return nil, ErrNameRequired
	}

	iface, err := s.resolveIface(options.Iface)
	if err != nil {
		return nil, err
	}

	endpointHost, err := s.resolveEndpointHost(options.EndpointHost)
	if err != nil {
		return nil, err
	}

	endpointPort, err := s.resolveEndpointPort(options.EndpointPort)
	if err != nil {
		return nil, err
	}

	dns, err := options.dns()
	if err != nil {
		return nil, err
	}

	requested, err := options.requestedAddress()
	if err != nil {
		return nil, err
	}

	serverPublicKey, err := s.controller.PublicKey(ctx, iface)
	if err != nil {
		return nil, err
	}

	keyPair, err := s.keys.Generate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}

	address, err := s.registerPeer(ctx, iface, keyPair.PublicKey, requested)
	if err != nil {
		return nil, err
	}

	config := clientConfig{
		PrivateKey:       keyPair.PrivateKey,
		Address:          address.String(),
		DNS:              dns,
		ServerPublicKey:  serverPublicKey,
		EndpointHost:     endpointHost,
		EndpointPort:     endpointPort,
		ClientAllowedIPs: s.options.ClientAllowedIPs,
	}.render()

	png, err := s.renderer.RenderPNG(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to render qr code: %w", err)
	}

	logrus.
		WithField("iface", iface).
		WithField("name", name).
		WithField("address", address.String()).
		WithField("publicKey", keyPair.PublicKey).
		Info("wireguard peer created")

	return &Result{
		Iface:     iface,
		Name:      name,
		Address:   address.String(),
		PublicKey: keyPair.PublicKey,
		Config:    config,
		QRCode:    png,
	}, nil
}

// registerPeer is the allocation critical section: the used set is re-read
// from the kernel while holding the lock and the peer is registered before it
// is released.
func (s *service) registerPeer(ctx context.Context, iface string, publicKey string, requested *netip.Prefix) (netip.Prefix, error) {
	handle, err := s.lock.Acquire(ctx, s.options.LockTimeout)
	if err != nil {
		return netip.Prefix{}, err
	}
	defer s.release(handle)

	used, err := s.controller.UsedAddresses(ctx, iface)
	if err != nil {
		return netip.Prefix{}, err
	}

	address, err := s.resolveAddress(requested, used)
	if err != nil {
		return netip.Prefix{}, err
	}

	if s.options.PersistPeers {
		if err := s.configs.EnsureAbsent(s.configs.Path(iface), publicKey, address); err != nil {
			return netip.Prefix{}, err
		}
	}

	if err := s.controller.SetPeer(ctx, iface, publicKey, address); err != nil {
		return netip.Prefix{}, err
	}

	if s.options.PersistPeers {
		if err := s.configs.Persist(ctx, iface, publicKey, address); err != nil {
			s.rollbackPeer(ctx, iface, publicKey)
			return netip.Prefix{}, err
		}
	}

	return address, nil
}

// rollbackPeer drops a peer whose config could not be persisted so no
// unreachable peer is left in the kernel.
func (s *service) rollbackPeer(ctx context.Context, iface string, publicKey string) {
	if err := s.controller.RemovePeer(context.WithoutCancel(ctx), iface, publicKey); err != nil {
		logrus.
			WithError(err).
			WithField("iface", iface).
			WithField("publicKey", publicKey).
			Error("failed to roll back wireguard peer after persist failure")
		return
	}
	logrus.
		WithField("iface", iface).
		WithField("publicKey", publicKey).
		Warn("rolled back wireguard peer after persist failure")
}

func (s *service) RemovePeer(ctx context.Context, iface string, publicKey string) error {
	err := s.removePeer(ctx, iface, publicKey)
	return Classify(err)
}

func (s *service) removePeer(ctx context.Context, iface string, publicKey string) error {
	iface, err := s.resolveIface(iface)
	if err != nil {
		return err
	}

	publicKey = strings.TrimSpace(publicKey)
	if err := wireguard.ValidatePublicKey(publicKey); err != nil {
		return ErrInvalidPublicKey
	}

	handle, err := s.lock.Acquire(ctx, s.options.LockTimeout)
	if err != nil {
		return err
	}
	defer s.release(handle)

	if err := s.controller.RemovePeer(ctx, iface, publicKey); err != nil {
		return err
	}

	logrus.
		WithField("iface", iface).
		WithField("publicKey", publicKey).
		Info("wireguard peer removed")
	return nil
}

func (s *service) release(handle *lock.Handle) {
	if err := handle.Release(); err != nil {
		logrus.
			WithError(err).
			WithField("path", s.lock.Path()).
			Warn("failed to release allocation lock")
	}
}

func (s *service) resolveIface(iface string) (string, error) {
	iface = strings.TrimSpace(iface)
	if iface == "" {
		iface = s.options.Iface
	}
	if !ifacePattern.MatchString(iface) {
		return "", ErrInvalidIface
	}
	return iface, nil
}

func (s *service) resolveEndpointHost(requestHost string) (string, error) {
	host := strings.TrimSpace(requestHost)
	if host == "" {
		host = strings.TrimSpace(s.options.EndpointHost)
	}
	if host == "" {
		return "", ErrEndpointHostRequired
	}
	if !govalidator.IsHost(host) {
		return "", ErrInvalidEndpointHost
	}
	return host, nil
}

func (s *service) resolveEndpointPort(requestPort *int) (int, error) {
	if requestPort != nil {
		if *requestPort < 1 || *requestPort > 65535 {
			return 0, ErrInvalidEndpointPort
		}
		return *requestPort, nil
	}
	if s.options.EndpointPort > 0 {
		return s.options.EndpointPort, nil
	}
	return defaultEndpointPort, nil
}

func (s *service) resolveAddress(requested *netip.Prefix, used map[netip.Addr]struct{}) (netip.Prefix, error) {
	if requested == nil {
		return s.pool.Allocate(used)
	}
	if _, ok := used[requested.Addr()]; ok {
		return netip.Prefix{}, ErrAddressInUse
	}
	return *requested, nil
}
