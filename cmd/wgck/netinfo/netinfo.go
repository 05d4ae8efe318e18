// Package netinfo answers the two host questions the server and client
// templates need: the public address of this host and the egress adapter.
package netinfo

import (
	"context"
	"fmt"
	"net"

	"wg-confkeeper/models"

	"github.com/asaskevich/govalidator"
	externalip "github.com/glendc/go-external-ip"
	"github.com/sirupsen/logrus"
)

type lookupResult struct {
	ip  net.IP
	err error
}

// lookup is swapped in tests
var lookup = func() (net.IP, error) {
	return externalip.DefaultConsensus(nil, nil).ExternalIP()
}

// ExternalAddress returns override when set, otherwise asks the public
// resolvers. Only IPv4 is accepted and the result never carries a mask.
func ExternalAddress(ctx context.Context, override string) (models.Address, error) {
	if override != "" {
		if !govalidator.IsIPv4(override) {
			return models.Address{}, fmt.Errorf("%w: endpoint %q is not an IPv4 address", models.ErrInvalidAddress, override)
		}
		return models.ParseAddress(override)
	}

	ch := make(chan lookupResult, 1)
	resolve := lookup
	go func() {
		ip, err := resolve()
		ch <- lookupResult{ip: ip, err: err}
	}()

	var res lookupResult
	select {
	case <-ctx.Done():
		return models.Address{}, fmt.Errorf("%w: external address lookup: %v", models.ErrExternalTool, ctx.Err())
	case res = <-ch:
	}
	if res.err != nil {
		return models.Address{}, fmt.Errorf("%w: external address lookup: %v", models.ErrExternalTool, res.err)
	}
	ip4 := res.ip.To4()
	if ip4 == nil {
		return models.Address{}, fmt.Errorf("%w: external address %v is not IPv4", models.ErrExternalTool, res.ip)
	}
	logrus.WithField("address", ip4.String()).Debug("external address resolved")
	return models.ParseAddress(ip4.String())
}
