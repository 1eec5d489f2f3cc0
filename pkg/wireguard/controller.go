package wireguard

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"github.com/UnAfraid/wg-gateway/pkg/command"
)

// Controller is the capability surface of the wg control tool.
type Controller interface {
	PublicKey(ctx context.Context, iface string) (string, error)
	State(ctx context.Context, iface string) (*State, error)
	UsedAddresses(ctx context.Context, iface string) (map[netip.Addr]struct{}, error)
	SetPeer(ctx context.Context, iface string, publicKey string, allowedIP netip.Prefix) error
	RemovePeer(ctx context.Context, iface string, publicKey string) error
	ShowConfig(ctx context.Context, iface string) (string, error)
	SyncConfig(ctx context.Context, iface string, path string) error
}

type execController struct {
	runner command.Runner
	wgPath string
	now    func() time.Time
}

func NewController(runner command.Runner, wgPath string) Controller {
	return &execController{
		runner: runner,
		wgPath: wgPath,
		now:    time.Now,
	}
}

func (c *execController) PublicKey(ctx context.Context, iface string) (string, error) {
	output, err := c.runWG(ctx, iface, "show", iface, "public-key")
	if err != nil {
		return "", err
	}

	key := strings.TrimSpace(string(output))
	if key == "" {
		return "", fmt.Errorf("%w: wg show public-key returned empty output", command.ErrToolFailure)
	}
	return key, nil
}

func (c *execController) State(ctx context.Context, iface string) (*State, error) {
	output, err := c.runWG(ctx, iface, "show", iface, "dump")
	if err != nil {
		return nil, err
	}
	return ParseDump(iface, string(output), c.now())
}

func (c *execController) UsedAddresses(ctx context.Context, iface string) (map[netip.Addr]struct{}, error) {
	output, err := c.runWG(ctx, iface, "show", iface, "allowed-ips")
	if err != nil {
		return nil, err
	}
	return ParseAllowedIPs(string(output))
}

func (c *execController) SetPeer(ctx context.Context, iface string, publicKey string, allowedIP netip.Prefix) error {
	if err := ValidatePublicKey(publicKey); err != nil {
		return err
	}
	_, err := c.runWG(ctx, iface, "set", iface, "peer", publicKey, "allowed-ips", allowedIP.String())
	return err
}

func (c *execController) RemovePeer(ctx context.Context, iface string, publicKey string) error {
	if err := ValidatePublicKey(publicKey); err != nil {
		return err
	}
	_, err := c.runWG(ctx, iface, "set", iface, "peer", publicKey, "remove")
	return err
}

func (c *execController) ShowConfig(ctx context.Context, iface string) (string, error) {
	output, err := c.runWG(ctx, iface, "showconf", iface)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(string(output)) == "" {
		return "", fmt.Errorf("%w: wg showconf returned empty output", command.ErrToolFailure)
	}
	return string(output), nil
}

func (c *execController) SyncConfig(ctx context.Context, iface string, path string) error {
	_, err := c.runWG(ctx, iface, "syncconf", iface, path)
	return err
}

func (c *execController) runWG(ctx context.Context, iface string, args ...string) ([]byte, error) {
	cmd := command.Command{
		Name: c.wgPath,
		Args: args,
	}

	result, err := c.runner.Run(ctx, cmd)
	if err != nil {
		return nil, err
	}

	if !result.Success() {
		toolError := command.NewToolError(cmd, result)
		if IsInterfaceNotFound(toolError.Stderr) {
			return nil, fmt.Errorf("%w: %s", ErrInterfaceNotFound, iface)
		}

		logrus.
			WithField("iface", iface).
			WithField("command", cmd.String()).
			WithField("exitCode", toolError.ExitCode).
			WithField("stderr", toolError.Stderr).
			Error("wg command failed")
		return nil, toolError
	}

	return result.Stdout, nil
}

func ValidatePublicKey(publicKey string) error {
	if _, err := wgtypes.ParseKey(publicKey); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return nil
}
