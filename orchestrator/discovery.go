// orchestrator/discovery.go
// Optional mDNS advertisement so dashboards and CLIs on the LAN can find the
// orchestrator without manual IP configuration. Backend servers are NOT
// discovered this way — the routing table is static config only.

package orchestrator

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/mdns"
	"github.com/sirupsen/logrus"
)

const (
	mdnsServiceName = "_splitserve._tcp"
	mdnsDomain      = "local."
)

// Advertise announces the orchestrator as an mDNS service on the local
// network. Returns a cleanup function to call on shutdown.
func Advertise(listen string) (func(), error) {
	hostname, _ := os.Hostname()
	port := listenPort(listen)

	ips := getOutboundIPs()
	logrus.Infof("[mDNS] Advertising %s on port %d (IPs: %v)", mdnsServiceName, port, ips)

	info := []string{
		fmt.Sprintf("splitserve orchestrator on %s", hostname),
	}
	service, err := mdns.NewMDNSService(
		hostname,        // instance name
		mdnsServiceName, // service type
		mdnsDomain,      // domain
		"",              // host name (empty = use OS hostname)
		port,            // port
		ips,             // IPs to advertise
		info,            // TXT records
	)
	if err != nil {
		return nil, fmt.Errorf("mdns service creation failed: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("mdns server start failed: %w", err)
	}

	cleanup := func() {
		logrus.Info("[mDNS] Stopping mDNS advertisement")
		server.Shutdown()
	}
	return cleanup, nil
}

// listenPort extracts the port from a bind address like ":8080" or "0.0.0.0:8080".
func listenPort(listen string) int {
	idx := strings.LastIndex(listen, ":")
	if idx < 0 {
		return 8080
	}
	port, err := strconv.Atoi(listen[idx+1:])
	if err != nil {
		return 8080
	}
	return port
}

// getOutboundIPs returns non-loopback IPv4 addresses on this machine.
func getOutboundIPs() []net.IP {
	var result []net.IP

	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}

	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipNet.IP
		// Skip loopback and IPv6 for simplicity
		if ip.IsLoopback() || ip.To4() == nil {
			continue
		}
		result = append(result, ip)
	}
	return result
}
