package models

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Registry maps public keys to peers, kept in document order.
type Registry struct {
	order []string
	peers map[string]*PeerRecord
}

func NewRegistry() *Registry {
	return &Registry{
		order: make([]string, 0, 20),
		peers: make(map[string]*PeerRecord),
	}
}

func (r *Registry) Insert(p *PeerRecord) error {
	if p.PublicKey == "" {
		return fmt.Errorf("%w: peer without public key", ErrMalformedDocument)
	}
	if _, ok := r.peers[p.PublicKey]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, p.PublicKey)
	}
	r.order = append(r.order, p.PublicKey)
	r.peers[p.PublicKey] = p
	return nil
}

func (r *Registry) Get(pub string) (*PeerRecord, bool) {
	p, ok := r.peers[pub]
	return p, ok
}

func (r *Registry) Len() int {
	return len(r.order)
}

// Peers returns the records in document order.
func (r *Registry) Peers() []*PeerRecord {
	out := make([]*PeerRecord, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.peers[key])
	}
	return out
}

// FindByName returns the first peer carrying name.
func (r *Registry) FindByName(name string) (*PeerRecord, error) {
	for _, key := range r.order {
		if p := r.peers[key]; p.Name == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrPeerNotFound, name)
}

// NextFreeAddress starts right after the server address and moves past the
// highest peer address of the server's /24. Freed addresses are never reused.
func (r *Registry) NextFreeAddress(server Address) (Address, error) {
	candidate := server.Next()
	last := candidate.Last()
	for _, key := range r.order {
		p := r.peers[key]
		if p.AllowedIPs == nil || !server.SameSubnet24(*p.AllowedIPs) {
			continue
		}
		last = max(last, p.AllowedIPs.Last()+1)
	}
	if last > 255 {
		return Address{}, fmt.Errorf("%w: %s", ErrSubnetExhausted, server)
	}
	candidate.Octets[3] = last
	return candidate.WithPrefix(PeerAddressPrefix), nil
}

// Validate reports every consistency problem at once. None of them stop a load,
// but they make name lookups or allocation ambiguous.
func (r *Registry) Validate(server *Address) error {
	var result error
	names := make(map[string]string)
	addrs := make(map[string]string)
	for _, key := range r.order {
		p := r.peers[key]
		if p.Name == "" {
			result = multierror.Append(result, fmt.Errorf("peer %s has no name", key))
		} else if other, ok := names[p.Name]; ok {
			result = multierror.Append(result, fmt.Errorf("%w: %q used by %s and %s", ErrDuplicateName, p.Name, other, key))
		} else {
			names[p.Name] = key
		}

		if p.AllowedIPs == nil {
			result = multierror.Append(result, fmt.Errorf("peer %s has no allowed address", key))
			continue
		}
		ip := p.AllowedIPs.IP()
		if other, ok := addrs[ip]; ok {
			result = multierror.Append(result, fmt.Errorf("address %s used by %s and %s", ip, other, key))
		} else {
			addrs[ip] = key
		}
		if server != nil && !server.SameSubnet24(*p.AllowedIPs) {
			result = multierror.Append(result, fmt.Errorf("address %s of %s is outside %s", ip, key, server))
		}
	}
	return result
}
