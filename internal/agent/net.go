package agent

import (
	"context"
	"strings"

	psnet "github.com/shirou/gopsutil/v4/net"

	"github.com/srhthu/GPU-Calendar-Monitor/internal/models"
)

// interfaceAddrs enumerates non-loopback IPv4 addresses per interface.
func interfaceAddrs(ctx context.Context) ([]models.InterfaceAddr, error) {
	ifaces, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.InterfaceAddr
	for _, iface := range ifaces {
		if iface.Name == "lo" {
			continue
		}
		for _, addr := range iface.Addrs {
			ip, _, _ := strings.Cut(addr.Addr, "/")
			if ip == "" || strings.Contains(ip, ":") {
				continue
			}
			out = append(out, models.InterfaceAddr{Name: iface.Name, Addr: ip})
		}
	}
	return out, nil
}
