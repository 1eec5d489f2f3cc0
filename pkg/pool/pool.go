package pool

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	DefaultCidr = "10.8.0.0/24"

	firstHost = 2
	lastHost  = 254
)

var (
	ErrInvalidPool   = errors.New("address pool must be an IPv4 /24")
	ErrPoolExhausted = errors.New("address pool exhausted")
)

// Pool is an IPv4 /24 from which peer addresses .2-.254 are handed out.
type Pool struct {
	prefix netip.Prefix
}

func ParsePool(cidr string) (Pool, error) {
	prefix, err := netip.ParsePrefix(strings.TrimSpace(cidr))
	if err != nil {
		return Pool{}, fmt.Errorf("%w: %v", ErrInvalidPool, err)
	}
	if !prefix.Addr().Is4() || prefix.Bits() != 24 {
		return Pool{}, ErrInvalidPool
	}
	return Pool{prefix: prefix.Masked()}, nil
}

// Resolve parses cidr. When fallback is set an invalid pool is replaced with
// DefaultCidr and a warning is logged instead of failing.
func Resolve(cidr string, fallback bool) (Pool, error) {
	p, err := ParsePool(cidr)
	if err == nil {
		return p, nil
	}
	if !fallback {
		return Pool{}, err
	}

	logrus.
		WithError(err).
		WithField("configured", cidr).
		WithField("fallback", DefaultCidr).
		Warn("configured address pool is not an IPv4 /24, falling back to default pool")

	return ParsePool(DefaultCidr)
}

func (p Pool) Prefix() netip.Prefix {
	return p.prefix
}

func (p Pool) String() string {
	return p.prefix.String()
}

func (p Pool) Contains(addr netip.Addr) bool {
	return p.prefix.Contains(addr)
}

// Allocate returns the lowest free host address as a /32.
func (p Pool) Allocate(used map[netip.Addr]struct{}) (netip.Prefix, error) {
	if !p.prefix.IsValid() {
		return netip.Prefix{}, ErrInvalidPool
	}

	base := p.prefix.Addr().As4()
	for host := firstHost; host <= lastHost; host++ {
		candidate := netip.AddrFrom4([4]byte{base[0], base[1], base[2], byte(host)})
		if _, ok := used[candidate]; ok {
			continue
		}
		return netip.PrefixFrom(candidate, 32), nil
	}

	return netip.Prefix{}, fmt.Errorf("%w: no free address in %s", ErrPoolExhausted, p.prefix)
}
