package provision

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"github.com/UnAfraid/wg-gateway/pkg/command"
	"github.com/UnAfraid/wg-gateway/pkg/lock"
	"github.com/UnAfraid/wg-gateway/pkg/pool"
	"github.com/UnAfraid/wg-gateway/pkg/wgconf"
	"github.com/UnAfraid/wg-gateway/pkg/wireguard"
	"github.com/UnAfraid/wg-gateway/pkg/wireguard/keygen"
)

const testServerPublicKey = "HIgo9xNzJMWLKASShiTqIybxZ0U3wGLiUeJ1PKf8ykw="

type fakeController struct {
	mu           sync.Mutex
	publicKeyErr error
	setPeerErr   error
	used         map[netip.Addr]struct{}
	peers        map[string]netip.Prefix
	removed      []string
}

func newFakeController(used ...string) *fakeController {
	c := &fakeController{
		used:  make(map[netip.Addr]struct{}),
		peers: make(map[string]netip.Prefix),
	}
	for _, addr := range used {
		c.used[netip.MustParseAddr(addr)] = struct{}{}
	}
	return c
}

func (c *fakeController) PublicKey(context.Context, string) (string, error) {
	if c.publicKeyErr != nil {
		return "", c.publicKeyErr
	}
	return testServerPublicKey, nil
}

func (c *fakeController) State(context.Context, string) (*wireguard.State, error) {
	return nil, errors.New("not implemented")
}

func (c *fakeController) UsedAddresses(context.Context, string) (map[netip.Addr]struct{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	used := make(map[netip.Addr]struct{}, len(c.used))
	for addr := range c.used {
		used[addr] = struct{}{}
	}
	return used, nil
}

func (c *fakeController) SetPeer(_ context.Context, _ string, publicKey string, allowedIP netip.Prefix) error {
	if c.setPeerErr != nil {
		return c.setPeerErr
	}

	// widen the window between reading the used set and registering
	time.Sleep(2 * time.Millisecond)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.used[allowedIP.Addr()] = struct{}{}
	c.peers[publicKey] = allowedIP
	return nil
}

func (c *fakeController) RemovePeer(_ context.Context, _ string, publicKey string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removed = append(c.removed, publicKey)
	if allowedIP, ok := c.peers[publicKey]; ok {
		delete(c.used, allowedIP.Addr())
		delete(c.peers, publicKey)
	}
	return nil
}

func (c *fakeController) ShowConfig(context.Context, string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	publicKeys := make([]string, 0, len(c.peers))
	for publicKey := range c.peers {
		publicKeys = append(publicKeys, publicKey)
	}
	sort.Strings(publicKeys)

	var sb strings.Builder
	sb.WriteString("[Interface]\nListenPort = 51820\n")
	for _, publicKey := range publicKeys {
		fmt.Fprintf(&sb, "\n[Peer]\nPublicKey = %s\nAllowedIPs = %s\n", publicKey, c.peers[publicKey])
	}
	return sb.String(), nil
}

func (c *fakeController) SyncConfig(context.Context, string, string) error {
	return nil
}

func (c *fakeController) peerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.peers)
}

type fakeKeys struct{}

func (fakeKeys) Generate(context.Context) (*keygen.KeyPair, error) {
	key, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	return &keygen.KeyPair{
		PrivateKey: key.String(),
		PublicKey:  key.PublicKey().String(),
	}, nil
}

type fakeRenderer struct {
	err error
}

func (r fakeRenderer) RenderPNG(_ context.Context, text string) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	return []byte("png:" + text), nil
}

type fakeConfigs struct {
	ensureErr  error
	persistErr error
	persisted  []string
}

func (f *fakeConfigs) Path(iface string) string {
	return "/etc/wireguard/" + iface + ".conf"
}

func (f *fakeConfigs) EnsureAbsent(string, string, netip.Prefix) error {
	return f.ensureErr
}

func (f *fakeConfigs) Persist(_ context.Context, _ string, publicKey string, cidr netip.Prefix) error {
	if f.persistErr != nil {
		return f.persistErr
	}
	f.persisted = append(f.persisted, publicKey+" "+cidr.String())
	return nil
}

func (f *fakeConfigs) ReadPeers(string) ([]wgconf.Peer, bool, error) {
	return nil, false, nil
}

type testEnv struct {
	controller *fakeController
	configs    *fakeConfigs
	lockPath   string
	options    Options
	renderer   fakeRenderer
}

func newTestEnv(t *testing.T, used ...string) *testEnv {
	t.Helper()
	return &testEnv{
		controller: newFakeController(used...),
		configs:    &fakeConfigs{},
		lockPath:   filepath.Join(t.TempDir(), "alloc.lock"),
		options: Options{
			Iface:        "wg1",
			EndpointHost: "vpn.example.com",
			EndpointPort: 51820,
			LockTimeout:  30 * time.Second,
		},
	}
}

func (e *testEnv) service(t *testing.T) Service {
	t.Helper()
	return e.serviceWithConfigs(t, e.configs)
}

func (e *testEnv) serviceWithConfigs(t *testing.T, configs wgconf.Manager) Service {
	t.Helper()
	addressPool, err := pool.ParsePool(pool.DefaultCidr)
	if err != nil {
		t.Fatalf("parse pool: %v", err)
	}
	return NewService(e.options, e.controller, fakeKeys{}, e.renderer, addressPool, lock.New(e.lockPath), configs)
}

func intPtr(v int) *int {
	return &v
}

func TestCreatePeerAllocatesNextAddress(t *testing.T) {
	env := newTestEnv(t, "10.8.0.2")
	env.options.EndpointHost = ""

	result, err := env.service(t).CreatePeer(context.Background(), &CreateOptions{
		Name:         "phone",
		EndpointHost: "vpn.example.com",
		EndpointPort: intPtr(51820),
	})
	if err != nil {
		t.Fatalf("create peer: %v", err)
	}

	if result.Address != "10.8.0.3/32" {
		t.Fatalf("expected 10.8.0.3/32, got %s", result.Address)
	}
	if result.Iface != "wg1" || result.Name != "phone" {
		t.Fatalf("unexpected result: %+v", result)
	}

	_, peerSection, ok := strings.Cut(result.Config, "[Peer]")
	if !ok {
		t.Fatalf("config has no peer section:\n%s", result.Config)
	}
	for _, fragment := range []string{
		"PublicKey = " + testServerPublicKey,
		"Endpoint = vpn.example.com:51820",
		"AllowedIPs = 0.0.0.0/0",
	} {
		if !strings.Contains(peerSection, fragment) {
			t.Fatalf("expected peer section to contain %q, got:\n%s", fragment, peerSection)
		}
	}
	if !strings.Contains(result.Config, "Address = 10.8.0.3/32\n") {
		t.Fatalf("expected interface address in config:\n%s", result.Config)
	}
	if strings.Contains(result.Config, "DNS") {
		t.Fatalf("expected no DNS line:\n%s", result.Config)
	}
	if string(result.QRCode) != "png:"+result.Config {
		t.Fatalf("expected qr code to encode the client config")
	}
	if !strings.HasPrefix(result.QRCodeDataURL(), "data:image/png;base64,") {
		t.Fatalf("unexpected data url: %s", result.QRCodeDataURL())
	}
	if got := env.controller.peers[result.PublicKey]; got.String() != "10.8.0.3/32" {
		t.Fatalf("expected peer registered with 10.8.0.3/32, got %s", got)
	}
	if len(env.configs.persisted) != 0 {
		t.Fatalf("expected no persistence when disabled, got %v", env.configs.persisted)
	}
}

func TestCreatePeerClientConfig(t *testing.T) {
	env := newTestEnv(t)
	env.options.ClientAllowedIPs = "10.8.0.0/24"
	env.options.EndpointPort = 0

	result, err := env.service(t).CreatePeer(context.Background(), &CreateOptions{
		Name: "laptop",
		DNS:  " 1.1.1.1 ",
	})
	if err != nil {
		t.Fatalf("create peer: %v", err)
	}

	privateKey, _, _ := strings.Cut(strings.TrimPrefix(result.Config, "[Interface]\nPrivateKey = "), "\n")
	want := "[Interface]\n" +
		"PrivateKey = " + privateKey + "\n" +
		"Address = 10.8.0.2/32\n" +
		"DNS = 1.1.1.1\n" +
		"\n" +
		"[Peer]\n" +
		"PublicKey = " + testServerPublicKey + "\n" +
		"Endpoint = vpn.example.com:51820\n" +
		"AllowedIPs = 10.8.0.0/24\n" +
		"\n"
	if result.Config != want {
		t.Fatalf("unexpected config:\n%q\nwant:\n%q", result.Config, want)
	}

	key, err := wgtypes.ParseKey(privateKey)
	if err != nil {
		t.Fatalf("parse private key: %v", err)
	}
	if key.PublicKey().String() != result.PublicKey {
		t.Fatalf("result public key does not match config private key")
	}
}

func TestCreatePeerConcurrentRequestsGetDistinctAddresses(t *testing.T) {
	env := newTestEnv(t)
	service := env.service(t)

	const requests = 24
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		addresses = make(map[string]string)
	)
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			result, err := service.CreatePeer(context.Background(), &CreateOptions{Name: fmt.Sprintf("peer-%d", i)})
			if err != nil {
				t.Errorf("create peer %d: %v", i, err)
				return
			}

			mu.Lock()
			defer mu.Unlock()
			if other, ok := addresses[result.Address]; ok {
				t.Errorf("address %s assigned to both %s and %s", result.Address, other, result.Name)
			}
			addresses[result.Address] = result.Name
		}(i)
	}
	wg.Wait()

	if len(addresses) != requests {
		t.Fatalf("expected %d distinct addresses, got %d", requests, len(addresses))
	}
	for i := 2; i < 2+requests; i++ {
		if _, ok := addresses[fmt.Sprintf("10.8.0.%d/32", i)]; !ok {
			t.Fatalf("expected 10.8.0.%d/32 to be assigned, got %v", i, addresses)
		}
	}
}

func TestCreatePeerLockBusy(t *testing.T) {
	env := newTestEnv(t)
	env.options.LockTimeout = 300 * time.Millisecond

	holder, err := lock.New(env.lockPath).Acquire(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("acquire holder: %v", err)
	}
	defer holder.Release()

	_, err = env.service(t).CreatePeer(context.Background(), &CreateOptions{Name: "phone"})
	if !errors.Is(err, lock.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if errors.Is(err, ErrInternal) || errors.Is(err, ErrConflict) {
		t.Fatalf("busy must not be classified as internal or conflict: %v", err)
	}
	if env.controller.peerCount() != 0 {
		t.Fatalf("expected no peer registered")
	}
}

func TestCreatePeerRequestedAddress(t *testing.T) {
	env := newTestEnv(t, "10.8.0.2")
	service := env.service(t)

	result, err := service.CreatePeer(context.Background(), &CreateOptions{
		Name:       "router",
		AllowedIPs: []string{" 10.8.0.42/32 "},
	})
	if err != nil {
		t.Fatalf("create peer: %v", err)
	}
	if result.Address != "10.8.0.42/32" {
		t.Fatalf("expected requested address, got %s", result.Address)
	}

	_, err = service.CreatePeer(context.Background(), &CreateOptions{
		Name:       "router-2",
		AllowedIPs: []string{"10.8.0.2/32"},
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for used address, got %v", err)
	}
	if env.controller.peerCount() != 1 {
		t.Fatalf("expected conflicting peer not to be registered")
	}
}

func TestCreatePeerValidation(t *testing.T) {
	tests := []struct {
		name    string
		options *CreateOptions
		setup   func(options *Options)
	}{
		{name: "nil options", options: nil},
		{name: "missing name", options: &CreateOptions{Name: "  "}},
		{name: "bad iface", options: &CreateOptions{Name: "phone", Iface: "wg1;rm"}},
		{name: "long iface", options: &CreateOptions{Name: "phone", Iface: strings.Repeat("a", 33)}},
		{name: "missing endpoint host", options: &CreateOptions{Name: "phone"}, setup: func(o *Options) { o.EndpointHost = "" }},
		{name: "endpoint host with newline", options: &CreateOptions{Name: "phone", EndpointHost: "vpn\nexample"}},
		{name: "port zero", options: &CreateOptions{Name: "phone", EndpointPort: intPtr(0)}},
		{name: "port too large", options: &CreateOptions{Name: "phone", EndpointPort: intPtr(65536)}},
		{name: "dns with newline", options: &CreateOptions{Name: "phone", DNS: "1.1.1.1\nPostUp = id"}},
		{name: "two allowed ips", options: &CreateOptions{Name: "phone", AllowedIPs: []string{"10.8.0.5/32", "10.8.0.6/32"}}},
		{name: "not a /32", options: &CreateOptions{Name: "phone", AllowedIPs: []string{"10.8.0.0/24"}}},
		{name: "ipv6", options: &CreateOptions{Name: "phone", AllowedIPs: []string{"fd00::5/128"}}},
		{name: "garbage cidr", options: &CreateOptions{Name: "phone", AllowedIPs: []string{"ten.eight"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.controller.publicKeyErr = errors.New("must not be called")
			if tt.setup != nil {
				tt.setup(&env.options)
			}

			_, err := env.service(t).CreatePeer(context.Background(), tt.options)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestCreatePeerInterfaceNotFound(t *testing.T) {
	env := newTestEnv(t)
	env.controller.publicKeyErr = fmt.Errorf("%w: wg9", wireguard.ErrInterfaceNotFound)

	_, err := env.service(t).CreatePeer(context.Background(), &CreateOptions{Name: "phone", Iface: "wg9"})
	if !errors.Is(err, wireguard.ErrInterfaceNotFound) {
		t.Fatalf("expected ErrInterfaceNotFound, got %v", err)
	}
}

func TestCreatePeerToolFailureIsInternal(t *testing.T) {
	env := newTestEnv(t)
	env.controller.setPeerErr = &command.ToolError{Tool: "wg", Subcommand: "set", ExitCode: 1, Stderr: "Operation not permitted"}

	_, err := env.service(t).CreatePeer(context.Background(), &CreateOptions{Name: "phone"})
	if !errors.Is(err, ErrInternal) {
		t.Fatalf("expected ErrInternal, got %v", err)
	}
	var toolError *command.ToolError
	if !errors.As(err, &toolError) || toolError.ExitCode != 1 {
		t.Fatalf("expected tool error to stay reachable, got %v", err)
	}

	// the lock must be free again after a failure inside the critical section
	handle, err := lock.New(env.lockPath).Acquire(context.Background(), 100*time.Millisecond)
	if err != nil {
		t.Fatalf("expected lock to be released: %v", err)
	}
	_ = handle.Release()
}

func TestCreatePeerRendererFailureIsInternal(t *testing.T) {
	env := newTestEnv(t)
	env.renderer = fakeRenderer{err: command.ErrExecutableNotFound}

	_, err := env.service(t).CreatePeer(context.Background(), &CreateOptions{Name: "phone"})
	if !errors.Is(err, ErrInternal) || !errors.Is(err, command.ErrExecutableNotFound) {
		t.Fatalf("expected internal executable-not-found error, got %v", err)
	}
}

func TestCreatePeerPoolExhaustedIsConflict(t *testing.T) {
	used := make([]string, 0, 253)
	for i := 2; i <= 254; i++ {
		used = append(used, fmt.Sprintf("10.8.0.%d", i))
	}
	env := newTestEnv(t, used...)

	_, err := env.service(t).CreatePeer(context.Background(), &CreateOptions{Name: "phone"})
	if !errors.Is(err, ErrConflict) || !errors.Is(err, pool.ErrPoolExhausted) {
		t.Fatalf("expected conflict wrapping ErrPoolExhausted, got %v", err)
	}
}

func TestCreatePeerPersistence(t *testing.T) {
	env := newTestEnv(t)
	env.options.PersistPeers = true

	result, err := env.service(t).CreatePeer(context.Background(), &CreateOptions{Name: "phone"})
	if err != nil {
		t.Fatalf("create peer: %v", err)
	}
	if len(env.configs.persisted) != 1 || env.configs.persisted[0] != result.PublicKey+" 10.8.0.2/32" {
		t.Fatalf("unexpected persisted peers: %v", env.configs.persisted)
	}
}

func TestCreatePeerPersistedConflictSkipsRegistration(t *testing.T) {
	env := newTestEnv(t)
	env.options.PersistPeers = true
	env.configs.ensureErr = fmt.Errorf("%w: /etc/wireguard/wg1.conf", wgconf.ErrPeerExists)

	_, err := env.service(t).CreatePeer(context.Background(), &CreateOptions{Name: "phone"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if env.controller.peerCount() != 0 || len(env.configs.persisted) != 0 {
		t.Fatalf("expected nothing registered or persisted")
	}
}

func TestCreatePeerPersistFailureRollsBackPeer(t *testing.T) {
	env := newTestEnv(t)
	env.options.PersistPeers = true
	env.configs.persistErr = errors.New("disk full")

	_, err := env.service(t).CreatePeer(context.Background(), &CreateOptions{Name: "phone"})
	if !errors.Is(err, ErrInternal) {
		t.Fatalf("expected ErrInternal, got %v", err)
	}
	if env.controller.peerCount() != 0 {
		t.Fatalf("expected peer removed from the interface after persist failure")
	}
	if len(env.controller.removed) != 1 {
		t.Fatalf("expected exactly one rollback, got %v", env.controller.removed)
	}
	if _, ok := env.controller.used[netip.MustParseAddr("10.8.0.2")]; ok {
		t.Fatalf("expected rolled back address to be free again")
	}
}

func TestCreatePeerBackToBackWithPersistedConfig(t *testing.T) {
	env := newTestEnv(t)
	env.options.PersistPeers = true

	configDir := t.TempDir()
	configPath := filepath.Join(configDir, "wg1.conf")
	if err := os.WriteFile(configPath, []byte("[Interface]\nListenPort = 51820\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	service := env.serviceWithConfigs(t, wgconf.NewManager(env.controller, configDir, ""))

	const requests = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []*Result
	)
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			result, err := service.CreatePeer(context.Background(), &CreateOptions{Name: fmt.Sprintf("peer-%d", i)})
			if err != nil {
				t.Errorf("create peer %d: %v", i, err)
				return
			}

			mu.Lock()
			defer mu.Unlock()
			results = append(results, result)
		}(i)
	}
	wg.Wait()

	if len(results) != requests {
		t.Fatalf("expected %d successful creations, got %d", requests, len(results))
	}
	if env.controller.peerCount() != requests || len(env.controller.removed) != 0 {
		t.Fatalf("expected %d kernel peers and no rollbacks, got %d peers, removed %v", requests, env.controller.peerCount(), env.controller.removed)
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	for _, result := range results {
		if !wgconf.ContainsPeer(string(content), result.PublicKey, result.Address) {
			t.Fatalf("expected %s %s in config:\n%s", result.PublicKey, result.Address, content)
		}
	}

	backups, err := filepath.Glob(configPath + ".bak.*")
	if err != nil {
		t.Fatalf("glob backups: %v", err)
	}
	if len(backups) != requests {
		t.Fatalf("expected one backup per creation, got %v", backups)
	}
}

func TestRemovePeer(t *testing.T) {
	env := newTestEnv(t)
	service := env.service(t)

	if err := service.RemovePeer(context.Background(), "", "short"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for bad key, got %v", err)
	}
	if err := service.RemovePeer(context.Background(), "wg 1", testServerPublicKey); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for bad iface, got %v", err)
	}

	if err := service.RemovePeer(context.Background(), "", testServerPublicKey); err != nil {
		t.Fatalf("remove peer: %v", err)
	}
	if len(env.controller.removed) != 1 || env.controller.removed[0] != testServerPublicKey {
		t.Fatalf("unexpected removed peers: %v", env.controller.removed)
	}
}
