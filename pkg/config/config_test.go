package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("WG_GATEWAY_JWT_SECRET", strings.Repeat("s", 32))

	conf, err := Load("wg-gateway")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if conf.WireGuard.Interface != "wg1" {
		t.Fatalf("expected wg1, got %q", conf.WireGuard.Interface)
	}
	if conf.WireGuard.EndpointPort != 51820 {
		t.Fatalf("expected port 51820, got %d", conf.WireGuard.EndpointPort)
	}
	if conf.WireGuard.AddressPoolCidr != "10.8.0.0/24" {
		t.Fatalf("unexpected pool %q", conf.WireGuard.AddressPoolCidr)
	}
	if conf.WireGuard.LockTimeout != 15*time.Second {
		t.Fatalf("unexpected lock timeout %s", conf.WireGuard.LockTimeout)
	}
	if conf.JwtDuration != 15*time.Minute || conf.RefreshTokenDuration != 7*24*time.Hour {
		t.Fatalf("unexpected token durations %s %s", conf.JwtDuration, conf.RefreshTokenDuration)
	}
	if conf.RateLimit.Window != time.Minute || conf.RateLimit.MaxPerIp != 10 || conf.RateLimit.MaxPerUser != 5 {
		t.Fatalf("unexpected rate limit %+v", conf.RateLimit)
	}
	if conf.HttpServer.Address() != ":8080" {
		t.Fatalf("unexpected http address %q", conf.HttpServer.Address())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("WG_GATEWAY_JWT_SECRET", strings.Repeat("s", 32))
	t.Setenv("WG_GATEWAY_WIREGUARD_INTERFACE", "wg0")
	t.Setenv("WG_GATEWAY_WIREGUARD_ENDPOINT_HOST", "vpn.example.com")
	t.Setenv("WG_GATEWAY_WIREGUARD_PERSIST_PEERS", "true")
	t.Setenv("WG_GATEWAY_WIREGUARD_LOCK_PATH", "/run/wg-gateway.lock")

	conf, err := Load("wg-gateway")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conf.WireGuard.Interface != "wg0" || conf.WireGuard.EndpointHost != "vpn.example.com" || !conf.WireGuard.PersistPeers {
		t.Fatalf("overrides not applied: %+v", conf.WireGuard)
	}
	if conf.WireGuard.ResolvedLockPath() != "/run/wg-gateway.lock" {
		t.Fatalf("unexpected lock path %q", conf.WireGuard.ResolvedLockPath())
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "short secret",
			env:  map[string]string{"WG_GATEWAY_JWT_SECRET": "short"},
			want: "jwt secret must be at least 32 characters",
		},
		{
			name: "pool",
			env:  map[string]string{
				"WG_GATEWAY_JWT_SECRET":                  strings.Repeat("s", 32),
				"WG_GATEWAY_WIREGUARD_ADDRESS_POOL_CIDR": "10.8.0.0/16",
			},
			want: "invalid address pool",
		},
		{
			name: "key generator",
			env:  map[string]string{
				"WG_GATEWAY_JWT_SECRET":              strings.Repeat("s", 32),
				"WG_GATEWAY_WIREGUARD_KEY_GENERATOR": "magic",
			},
			want: "unsupported key generator",
		},
		{
			name: "relative config path",
			env:  map[string]string{
				"WG_GATEWAY_JWT_SECRET":            strings.Repeat("s", 32),
				"WG_GATEWAY_WIREGUARD_CONFIG_PATH": "wg1.conf",
			},
			want: "config path must be absolute",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.env {
				t.Setenv(key, value)
			}
			_, err := Load("wg-gateway")
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadPoolFallback(t *testing.T) {
	t.Setenv("WG_GATEWAY_JWT_SECRET", strings.Repeat("s", 32))
	t.Setenv("WG_GATEWAY_WIREGUARD_ADDRESS_POOL_CIDR", "not-a-cidr")
	t.Setenv("WG_GATEWAY_WIREGUARD_POOL_FALLBACK", "true")

	if _, err := Load("wg-gateway"); err != nil {
		t.Fatalf("fallback should accept a bad pool, got %v", err)
	}
}
