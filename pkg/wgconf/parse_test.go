package wgconf

import (
	"testing"
)

const testConfig = `[Interface]
PrivateKey = yAnz5TF+lXXJte14tji3zlMNq+hd2rYUIgJBgB3fBmk=
ListenPort = 51820
# AllowedIPs = 10.8.0.9/32
AllowedIPs = 10.8.0.7/32

[Peer]
# PublicKey = TrMvSoP4jYQlY6RIzBgbssQqY3vxI2Pi+y71lOWWXX0=
publickey = xTIBA5rboUvnH4htodjb6e697QjLERt1NAB4mZqp8Dg= # laptop
AllowedIPs = 10.8.0.2/32, fd00::2/128

[peer]
; phone
PublicKey=HIgo9xNzJMWLKASShiTqIybxZ0U3wGLiUeJ1PKf8ykw=
AllowedIPs = 10.8.0.3/32 ; phone
`

func TestContainsPeer(t *testing.T) {
	tests := []struct {
		name      string
		publicKey string
		cidr      string
		want      bool
	}{
		{name: "public key with inline comment", publicKey: "xTIBA5rboUvnH4htodjb6e697QjLERt1NAB4mZqp8Dg=", cidr: "10.8.0.50/32", want: true},
		{name: "public key without spaces", publicKey: "HIgo9xNzJMWLKASShiTqIybxZ0U3wGLiUeJ1PKf8ykw=", cidr: "10.8.0.50/32", want: true},
		{name: "second allowed ip entry", publicKey: "new", cidr: "fd00::2/128", want: true},
		{name: "allowed ip with inline comment", publicKey: "new", cidr: "10.8.0.3/32", want: true},
		{name: "commented public key", publicKey: "TrMvSoP4jYQlY6RIzBgbssQqY3vxI2Pi+y71lOWWXX0=", cidr: "10.8.0.50/32", want: false},
		{name: "interface section ignored", publicKey: "new", cidr: "10.8.0.7/32", want: false},
		{name: "commented allowed ip", publicKey: "new", cidr: "10.8.0.9/32", want: false},
		{name: "cidr prefix only", publicKey: "new", cidr: "10.8.0.2", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ContainsPeer(testConfig, tt.publicKey, tt.cidr); got != tt.want {
				t.Fatalf("ContainsPeer() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestContainsPeerEmptyConfig(t *testing.T) {
	if ContainsPeer("  \n", "key", "10.8.0.2/32") {
		t.Fatalf("expected empty config to contain no peers")
	}
}

func TestParsePeers(t *testing.T) {
	peers := ParsePeers(testConfig)
	if len(peers) != 2 {
		t.Fatalf("expected 2 peers, got %+v", peers)
	}

	if peers[0].PublicKey != "xTIBA5rboUvnH4htodjb6e697QjLERt1NAB4mZqp8Dg=" {
		t.Fatalf("unexpected first peer key: %q", peers[0].PublicKey)
	}
	if len(peers[0].AllowedIPs) != 2 || peers[0].AllowedIPs[0] != "10.8.0.2/32" || peers[0].AllowedIPs[1] != "fd00::2/128" {
		t.Fatalf("unexpected first peer allowed ips: %v", peers[0].AllowedIPs)
	}
	if peers[1].PublicKey != "HIgo9xNzJMWLKASShiTqIybxZ0U3wGLiUeJ1PKf8ykw=" {
		t.Fatalf("unexpected second peer key: %q", peers[1].PublicKey)
	}
	if len(peers[1].AllowedIPs) != 1 || peers[1].AllowedIPs[0] != "10.8.0.3/32" {
		t.Fatalf("unexpected second peer allowed ips: %v", peers[1].AllowedIPs)
	}
}

func TestAppendPeer(t *testing.T) {
	got := AppendPeer("[Interface]\nListenPort = 51820\n\n\n", "key", "10.8.0.2/32")
	want := "[Interface]\nListenPort = 51820\n\n[Peer]\nPublicKey = key\nAllowedIPs = 10.8.0.2/32\n\n"
	if got != want {
		t.Fatalf("unexpected config:\n%q\nwant:\n%q", got, want)
	}

	got = AppendPeer("", "key", "10.8.0.2/32")
	want = "[Peer]\nPublicKey = key\nAllowedIPs = 10.8.0.2/32\n\n"
	if got != want {
		t.Fatalf("unexpected config for empty input:\n%q", got)
	}
}
