package models

import (
	"errors"
	"testing"
)

func mustAddr(t *testing.T, s string) *Address {
	t.Helper()
	addr, err := ParseAddress(s)
	if err != nil {
		t.Fatal(err)
	}
	return &addr
}

func TestNextFreeAddressOrderIndependent(t *testing.T) {
	server := *mustAddr(t, "10.0.0.1/24")
	peers := []*PeerRecord{
		{PublicKey: "k2", Name: "two", AllowedIPs: mustAddr(t, "10.0.0.2/32")},
		{PublicKey: "k5", Name: "five", AllowedIPs: mustAddr(t, "10.0.0.5/32")},
	}

	forward := NewRegistry()
	reverse := NewRegistry()
	for i := range peers {
		if err := forward.Insert(peers[i]); err != nil {
			t.Fatal(err)
		}
		if err := reverse.Insert(peers[len(peers)-1-i]); err != nil {
			t.Fatal(err)
		}
	}

	a, err := forward.NextFreeAddress(server)
	if err != nil {
		t.Fatal(err)
	}
	b, err := reverse.NextFreeAddress(server)
	if err != nil {
		t.Fatal(err)
	}
	if a.String() != "10.0.0.6/32" || b.String() != "10.0.0.6/32" {
		t.Fatalf("expected 10.0.0.6/32 both ways, got %s and %s", a, b)
	}
}

func TestNextFreeAddressEmptyAndForeignSubnet(t *testing.T) {
	server := *mustAddr(t, "10.0.0.1/24")
	r := NewRegistry()
	if err := r.Insert(&PeerRecord{PublicKey: "k", AllowedIPs: mustAddr(t, "10.9.0.40/32")}); err != nil {
		t.Fatal(err)
	}
	if err := r.Insert(&PeerRecord{PublicKey: "n"}); err != nil {
		t.Fatal(err)
	}
	addr, err := r.NextFreeAddress(server)
	if err != nil {
		t.Fatal(err)
	}
	if addr.String() != "10.0.0.2/32" {
		t.Fatalf("expected 10.0.0.2/32, got %s", addr)
	}
}

func TestNextFreeAddressExhausted(t *testing.T) {
	server := *mustAddr(t, "10.0.0.1/24")
	r := NewRegistry()
	if err := r.Insert(&PeerRecord{PublicKey: "k", AllowedIPs: mustAddr(t, "10.0.0.255/32")}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.NextFreeAddress(server); !errors.Is(err, ErrSubnetExhausted) {
		t.Fatalf("expected ErrSubnetExhausted, got %v", err)
	}
}

func TestRegistryInsertFind(t *testing.T) {
	r := NewRegistry()
	if err := r.Insert(&PeerRecord{PublicKey: "a", Name: "alice"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Insert(&PeerRecord{PublicKey: "b", Name: "bob"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Insert(&PeerRecord{PublicKey: "a", Name: "again"}); !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
	if err := r.Insert(&PeerRecord{Name: "nokey"}); !errors.Is(err, ErrMalformedDocument) {
		t.Fatalf("expected ErrMalformedDocument, got %v", err)
	}

	p, err := r.FindByName("bob")
	if err != nil || p.PublicKey != "b" {
		t.Fatalf("FindByName(bob) = %v, %v", p, err)
	}
	if _, err := r.FindByName("carol"); !errors.Is(err, ErrPeerNotFound) {
		t.Fatalf("expected ErrPeerNotFound, got %v", err)
	}

	if r.Len() != 2 || r.Peers()[0].Name != "alice" || r.Peers()[1].Name != "bob" {
		t.Fatalf("unexpected registry content %v", r.Peers())
	}
}

func TestRegistryFindByNameFirstMatch(t *testing.T) {
	r := NewRegistry()
	_ = r.Insert(&PeerRecord{PublicKey: "a", Name: "dup"})
	_ = r.Insert(&PeerRecord{PublicKey: "b", Name: "dup"})
	p, err := r.FindByName("dup")
	if err != nil || p.PublicKey != "a" {
		t.Fatalf("expected first match, got %v, %v", p, err)
	}
}

func TestRegistryValidate(t *testing.T) {
	server := mustAddr(t, "10.0.0.1/24")
	r := NewRegistry()
	_ = r.Insert(&PeerRecord{PublicKey: "a", Name: "alice", AllowedIPs: mustAddr(t, "10.0.0.2/32")})
	if err := r.Validate(server); err != nil {
		t.Fatalf("expected clean registry, got %v", err)
	}

	_ = r.Insert(&PeerRecord{PublicKey: "b", Name: "alice", AllowedIPs: mustAddr(t, "10.0.0.2/32")})
	_ = r.Insert(&PeerRecord{PublicKey: "c", Name: "carol", AllowedIPs: mustAddr(t, "10.1.0.2/32")})
	err := r.Validate(server)
	if !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName in %v", err)
	}
}

func TestValidClientName(t *testing.T) {
	for _, name := range []string{"alice", "Bob_2", "a-b", "x"} {
		if !ValidClientName(name) {
			t.Errorf("expected %q to be valid", name)
		}
	}
	long := make([]byte, 64)
	for i := range long {
		long[i] = 'a'
	}
	for _, name := range []string{"", "bad name", "al/ice", "ünï", string(long)} {
		if ValidClientName(name) {
			t.Errorf("expected %q to be invalid", name)
		}
	}
}
