package provision

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

type clientConfig struct {
	PrivateKey       string
	Address          string
	DNS              string
	ServerPublicKey  string
	EndpointHost     string
	EndpointPort     int
	ClientAllowedIPs string
}

func (c clientConfig) render() string {
	var sb strings.Builder
	sb.WriteString("[Interface]\n")
	fmt.Fprintf(&sb, "PrivateKey = %s\n", c.PrivateKey)
	fmt.Fprintf(&sb, "Address = %s\n", c.Address)
	if c.DNS != "" {
		fmt.Fprintf(&sb, "DNS = %s\n", c.DNS)
	}
	sb.WriteString("\n")
	sb.WriteString("[Peer]\n")
	fmt.Fprintf(&sb, "PublicKey = %s\n", c.ServerPublicKey)
	fmt.Fprintf(&sb, "Endpoint = %s\n", endpoint(c.EndpointHost, c.EndpointPort))
	fmt.Fprintf(&sb, "AllowedIPs = %s\n", c.ClientAllowedIPs)
	sb.WriteString("\n")
	return sb.String()
}

// endpoint joins host and port, bracketing bare IPv6 literals.
func endpoint(host string, port int) string {
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		return net.JoinHostPort(host, strconv.Itoa(port))
	}
	return host + ":" + strconv.Itoa(port)
}
