package provision

import (
	"context"
	"errors"
	"fmt"

	"github.com/UnAfraid/wg-gateway/pkg/lock"
	"github.com/UnAfraid/wg-gateway/pkg/pool"
	"github.com/UnAfraid/wg-gateway/pkg/wgconf"
	"github.com/UnAfraid/wg-gateway/pkg/wireguard"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
	ErrInternal   = errors.New("internal error")

	ErrCreateOptionsRequired = fmt.Errorf("%w: create peer options are required", ErrValidation)
	ErrNameRequired          = fmt.Errorf("%w: name is required", ErrValidation)
	ErrInvalidIface          = fmt.Errorf("%w: iface must match [A-Za-z0-9_-]{1,32}", ErrValidation)
	ErrEndpointHostRequired  = fmt.Errorf("%w: endpointHost is required (request or WG_GATEWAY_WIREGUARD_ENDPOINT_HOST)", ErrValidation)
	ErrInvalidEndpointHost   = fmt.Errorf("%w: endpointHost must be a hostname or IP address", ErrValidation)
	ErrInvalidEndpointPort   = fmt.Errorf("%w: endpointPort must be between 1 and 65535", ErrValidation)
	ErrInvalidDNS            = fmt.Errorf("%w: dns must list resolver addresses or search domains", ErrValidation)
	ErrSingleAllowedIP       = fmt.Errorf("%w: allowedIps must contain a single /32 entry", ErrValidation)
	ErrInvalidAllowedIP      = fmt.Errorf("%w: allowedIps must be a valid IPv4 /32 CIDR", ErrValidation)
	ErrInvalidPublicKey      = fmt.Errorf("%w: publicKey is not a valid wireguard key", ErrValidation)
	ErrAddressInUse          = fmt.Errorf("%w: allowedIps is already in use", ErrConflict)
)

// Classify maps an error onto one of ErrValidation, ErrConflict,
// wireguard.ErrInterfaceNotFound, lock.ErrBusy or ErrInternal. The original
// error stays reachable through errors.Is and errors.As.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrInternal),
		errors.Is(err, wireguard.ErrInterfaceNotFound),
		errors.Is(err, lock.ErrBusy):
		return err
	case errors.Is(err, pool.ErrPoolExhausted),
		errors.Is(err, wgconf.ErrPeerExists):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	case errors.Is(err, wireguard.ErrInvalidPublicKey):
		return fmt.Errorf("%w: %w", ErrValidation, err)
	default:
		return fmt.Errorf("%w: %w", ErrInternal, err)
	}
}

func kindOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, wireguard.ErrInterfaceNotFound):
		return "not_found"
	case errors.Is(err, lock.ErrBusy):
		return "busy"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}
