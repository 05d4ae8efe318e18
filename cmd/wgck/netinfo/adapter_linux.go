package netinfo

import (
	"net"

	"github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"
)

func isDefaultRoute(dst *net.IPNet) bool {
	if dst == nil {
		return true
	}
	ones, _ := dst.Mask.Size()
	return ones == 0 && dst.IP.IsUnspecified()
}

// DefaultAdapter names the link carrying the IPv4 default route, fallback
// when there is none.
func DefaultAdapter(fallback string) string {
	routes, err := netlink.RouteList(nil, netlink.FAMILY_V4)
	if err != nil {
		logrus.WithError(err).Warn("failed to list routes")
		return fallback
	}
	for _, route := range routes {
		if !isDefaultRoute(route.Dst) || route.LinkIndex <= 0 {
			continue
		}
		link, err := netlink.LinkByIndex(route.LinkIndex)
		if err != nil {
			logrus.WithError(err).WithField("index", route.LinkIndex).Warn("failed to find link")
			continue
		}
		return link.Attrs().Name
	}
	return fallback
}
