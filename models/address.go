package models

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

const subnetBits = 24

// Address is a dotted-quad ipv4 address with an optional prefix length kept as
// written in the document.
type Address struct {
	Octets [4]int
	Prefix string
}

func ParseAddress(s string) (Address, error) {
	var addr Address
	ip := strings.TrimSpace(s)
	if before, after, ok := strings.Cut(ip, "/"); ok {
		ip = strings.TrimSpace(before)
		addr.Prefix = strings.TrimSpace(after)
		if bits, err := strconv.Atoi(addr.Prefix); err != nil || bits < 0 || bits > 32 {
			return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
		}
	}

	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	for i, part := range parts {
		v, err := strconv.Atoi(part)
		if err != nil || v < 0 || v > 255 {
			return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
		}
		addr.Octets[i] = v
	}
	return addr, nil
}

// IP returns the dotted quad without the prefix.
func (a Address) IP() string {
	return fmt.Sprintf("%d.%d.%d.%d", a.Octets[0], a.Octets[1], a.Octets[2], a.Octets[3])
}

func (a Address) String() string {
	if a.Prefix == "" {
		return a.IP()
	}
	return a.IP() + "/" + a.Prefix
}

func (a Address) HasPrefix() bool {
	return a.Prefix != ""
}

// Next increments the address by one, carrying into the higher octets.
// 255.255.255.255 wraps to 0.0.0.0.
func (a Address) Next() Address {
	for i := len(a.Octets) - 1; i >= 0; i-- {
		a.Octets[i]++
		if a.Octets[i] > 255 {
			a.Octets[i] = 0
			continue
		}
		break
	}
	return a
}

func (a Address) Last() int {
	return a.Octets[3]
}

func (a Address) WithPrefix(prefix string) Address {
	a.Prefix = prefix
	return a
}

func (a Address) netip() netip.Addr {
	return netip.AddrFrom4([4]byte{byte(a.Octets[0]), byte(a.Octets[1]), byte(a.Octets[2]), byte(a.Octets[3])})
}

// SameSubnet24 reports whether both addresses share the first three octets.
func (a Address) SameSubnet24(other Address) bool {
	p, err := a.netip().Prefix(subnetBits)
	if err != nil {
		return false
	}
	return p.Contains(other.netip())
}
