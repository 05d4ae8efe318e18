package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"wg-confkeeper/models"
)

const testServerDoc = `[Interface]
#_GenKeyTime = 2024-05-01T10:00:00Z
PrivateKey = SERVERPRIV
#_PublicKey = SERVERPUB
Address = 10.0.0.1/24
ListenPort = 51820
Jc = 5

PostUp = iptables -A FORWARD -i awg0 -j ACCEPT
`

const testAliceBlock = `
[Peer]
PublicKey = pub-priv01
PresharedKey = psk01
AllowedIPs = 10.0.0.2/32
#_GenKeyTime = 2024-06-01T12:00:00Z
#_Peer = pub-priv01
#_Name = alice
#_AllowedIPs = 10.0.0.2/32
`

type fakeKeys struct {
	n int
}

func (f *fakeKeys) PrivateKey(_ context.Context) (string, error) {
	f.n++
	return fmt.Sprintf("priv%02d", f.n), nil
}

func (f *fakeKeys) PublicKey(_ context.Context, priv string) (string, error) {
	return "pub-" + priv, nil
}

func (f *fakeKeys) PresharedKey(_ context.Context) (string, error) {
	return fmt.Sprintf("psk%02d", f.n), nil
}

type failingKeys struct{}

func (failingKeys) PrivateKey(_ context.Context) (string, error) {
	return "", models.ErrExternalTool
}

func (failingKeys) PublicKey(_ context.Context, _ string) (string, error) {
	return "", models.ErrExternalTool
}

func (failingKeys) PresharedKey(_ context.Context) (string, error) {
	return "", models.ErrExternalTool
}

func fixedClock() time.Time {
	return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
}

func writeDoc(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "awg0.conf")
	if err := os.WriteFile(path, []byte(text), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func openDoc(t *testing.T, path string) *Document {
	t.Helper()
	d, err := Open(path, WithClock(fixedClock))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func readDoc(t *testing.T, path string) string {
	t.Helper()
	buf, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(buf)
}

func TestParseServerDocument(t *testing.T) {
	d, err := Parse(testServerDoc)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if v, _ := d.Interface().Get("ListenPort"); v != "51820" {
		t.Errorf("unexpected ListenPort %q", v)
	}
	if v, _ := d.Interface().Get("PostUp"); !strings.HasPrefix(v, "iptables") {
		t.Errorf("unexpected PostUp %q", v)
	}
	if d.ServerPublicKey() != "SERVERPUB" {
		t.Errorf("unexpected server public key %q", d.ServerPublicKey())
	}
	if d.Meta()["GenKeyTime"] != "2024-05-01T10:00:00Z" {
		t.Errorf("unexpected meta %v", d.Meta())
	}
	addr, err := d.ServerAddress()
	if err != nil || addr.String() != "10.0.0.1/24" {
		t.Errorf("ServerAddress = %v, %v", addr, err)
	}
	if d.Registry().Len() != 0 {
		t.Errorf("expected no peers, got %d", d.Registry().Len())
	}
	if d.Text() != testServerDoc {
		t.Error("text not preserved")
	}
}

func TestParseLastWriteWins(t *testing.T) {
	d, err := Parse("[Interface]\nListenPort = 1\nnot a field\nListenPort = 2\n")
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := d.Interface().Get("ListenPort"); v != "2" {
		t.Fatalf("expected last write to win, got %q", v)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	tests := map[string]string{
		"unmanaged peer":        testServerDoc + "\n[Peer]\nPublicKey = X\nAllowedIPs = 10.0.0.2/32\n",
		"name before peer":      "[Interface]\nAddress = 10.0.0.1/24\n#_Name = alice\n",
		"allowed ips alone":     "[Interface]\n#_AllowedIPs = 10.0.0.2/32\n",
		"second interface":      testServerDoc + "[Interface]\nAddress = 10.0.0.1/24\n",
		"key mismatch":          testServerDoc + "\n[Peer]\nPublicKey = A\n#_Peer = B\n",
		"name before peer line": testServerDoc + "\n[Peer]\nPublicKey = A\n#_Name = x\n#_Peer = A\n",
		"empty peer key":        testServerDoc + "#_Peer =\n",
	}
	for name, text := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse(text); !errors.Is(err, models.ErrMalformedDocument) {
				t.Fatalf("expected ErrMalformedDocument, got %v", err)
			}
		})
	}
}

func TestParseDuplicateKey(t *testing.T) {
	text := testServerDoc + testAliceBlock + strings.ReplaceAll(testAliceBlock, "alice", "alice2")
	if _, err := Parse(text); !errors.Is(err, models.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestParseInvalidPeerAddress(t *testing.T) {
	text := testServerDoc + strings.ReplaceAll(testAliceBlock, "#_AllowedIPs = 10.0.0.2/32", "#_AllowedIPs = 10.0.0.300/32")
	if _, err := Parse(text); !errors.Is(err, models.ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
}

func TestParseDirectiveOnlyPeers(t *testing.T) {
	text := `[Interface]
Address = 10.0.0.1/24
#_GenKeyTime = 2023-01-01T00:00:00
#_Peer = LEGACY
#_Name = bob
#_AllowedIPs = 10.0.0.7/32

PostDown = true
`
	d, err := Parse(text)
	if err != nil {
		t.Fatal(err)
	}
	p, err := d.Registry().FindByName("bob")
	if err != nil {
		t.Fatal(err)
	}
	if p.PublicKey != "LEGACY" || p.AllowedIPs.String() != "10.0.0.7/32" || p.GenKeyTime != "2023-01-01T00:00:00" {
		t.Fatalf("unexpected peer %+v", p)
	}
	if p.Created().Year() != 2023 {
		t.Errorf("unexpected creation time %v", p.Created())
	}
	if _, ok := d.Meta()["GenKeyTime"]; ok {
		t.Error("peer generation time leaked into server meta")
	}
	if v, _ := d.Interface().Get("PostDown"); v != "true" {
		t.Errorf("expected PostDown to stay in interface, got %q", v)
	}

	if _, err := d.Delete("bob"); err != nil {
		t.Fatal(err)
	}
	want := "[Interface]\nAddress = 10.0.0.1/24\n\nPostDown = true\n"
	if d.Text() != want {
		t.Fatalf("unexpected text after delete:\n%s", d.Text())
	}
}

func TestParseStanzaAllowedIPsFallback(t *testing.T) {
	text := testServerDoc + "\n[Peer]\nPublicKey = K\nAllowedIPs = 10.0.0.9/32, fd00::9/128\n#_Peer = K\n#_Name = carol\n"
	d, err := Parse(text)
	if err != nil {
		t.Fatal(err)
	}
	p, _ := d.Registry().FindByName("carol")
	if p == nil || p.AllowedIPs == nil || p.AllowedIPs.String() != "10.0.0.9/32" {
		t.Fatalf("unexpected peer %+v", p)
	}
}

func TestAddAppendsBlock(t *testing.T) {
	path := writeDoc(t, testServerDoc)
	d := openDoc(t, path)

	p, err := d.Add(context.Background(), "alice", &fakeKeys{})
	if err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	if p.AllowedIPs.String() != "10.0.0.2/32" || p.PrivateKey != "priv01" || p.PresharedKey != "psk01" {
		t.Fatalf("unexpected peer %+v", p)
	}
	if got := readDoc(t, path); got != testServerDoc+testAliceBlock {
		fmt.Println(got)
		t.Fatal("document mismatch")
	}
}

func TestAddKeepsPrivateKeysForRun(t *testing.T) {
	d := openDoc(t, writeDoc(t, testServerDoc))
	keys := &fakeKeys{}
	if _, err := d.Add(context.Background(), "alice", keys); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Add(context.Background(), "bob", keys); err != nil {
		t.Fatal(err)
	}
	alice, _ := d.Registry().FindByName("alice")
	if alice.PrivateKey != "priv01" {
		t.Fatalf("private key lost after second add: %+v", alice)
	}
}

func TestAddInvalidNameLeavesDocument(t *testing.T) {
	path := writeDoc(t, testServerDoc)
	d := openDoc(t, path)

	for _, name := range []string{"", "bad name", "evil;rm", strings.Repeat("a", 64)} {
		if _, err := d.Add(context.Background(), name, &fakeKeys{}); !errors.Is(err, models.ErrInvalidClientName) {
			t.Fatalf("Add(%q): expected ErrInvalidClientName, got %v", name, err)
		}
	}
	if readDoc(t, path) != testServerDoc {
		t.Fatal("document changed")
	}
}

func TestAddRejectsDuplicateName(t *testing.T) {
	d := openDoc(t, writeDoc(t, testServerDoc))
	keys := &fakeKeys{}
	if _, err := d.Add(context.Background(), "alice", keys); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Add(context.Background(), "alice", keys); !errors.Is(err, models.ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
}

func TestAddKeyToolFailure(t *testing.T) {
	path := writeDoc(t, testServerDoc)
	d := openDoc(t, path)
	if _, err := d.Add(context.Background(), "alice", failingKeys{}); !errors.Is(err, models.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool, got %v", err)
	}
	if readDoc(t, path) != testServerDoc {
		t.Fatal("document changed")
	}
}

func TestAddUpdateDeleteRoundTrip(t *testing.T) {
	path := writeDoc(t, testServerDoc)
	d := openDoc(t, path)
	keys := &fakeKeys{}

	if _, err := d.Add(context.Background(), "alice", keys); err != nil {
		t.Fatal(err)
	}
	p, err := d.Update(context.Background(), "alice", keys)
	if err != nil {
		t.Fatal(err)
	}
	if p.PublicKey != "pub-priv02" || p.PresharedKey != "psk02" || p.PrivateKey != "priv02" {
		t.Fatalf("unexpected updated peer %+v", p)
	}
	if _, ok := d.Registry().Get("pub-priv01"); ok {
		t.Fatal("old key still registered")
	}
	if _, err := d.Delete("alice"); err != nil {
		t.Fatal(err)
	}

	got := readDoc(t, path)
	if got != testServerDoc {
		fmt.Println(got)
		t.Fatal("document not restored")
	}
	if d.Registry().Len() != 0 {
		t.Fatal("registry not empty")
	}
	if strings.Contains(got, "[Peer]") || strings.Contains(got, "#_Peer") || strings.Contains(got, "#_Name") {
		t.Fatal("orphan peer lines left")
	}
}

func TestUpdateIsOrderIndependent(t *testing.T) {
	text := testServerDoc + `
[Peer]
AllowedIPs = 10.0.0.2/32
PresharedKey = OLDPSK
# hand written note
PublicKey = OLD
Endpoint = 1.2.3.4:51820
#_Peer = OLD
#_Name = alice

[Peer]
PublicKey = OTHER
#_Peer = OTHER
#_Name = bob
#_AllowedIPs = 10.0.0.3/32
`
	d, err := Parse(text, WithClock(fixedClock))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Update(context.Background(), "alice", &fakeKeys{}); err != nil {
		t.Fatal(err)
	}
	want := strings.NewReplacer(
		"PresharedKey = OLDPSK", "PresharedKey = psk01",
		"PublicKey = OLD\n", "PublicKey = pub-priv01\n",
		"#_Peer = OLD\n", "#_Peer = pub-priv01\n",
	).Replace(text)
	if d.Text() != want {
		fmt.Println(d.Text())
		t.Fatal("unexpected update result")
	}

	// bob has no PresharedKey line yet
	if _, err := d.Update(context.Background(), "bob", &fakeKeys{n: 5}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(d.Text(), "PublicKey = pub-priv06\nPresharedKey = psk06\n#_Peer = pub-priv06\n") {
		fmt.Println(d.Text())
		t.Fatal("preshared key not inserted")
	}
	bob, _ := d.Registry().FindByName("bob")
	if bob.PresharedKey != "psk06" {
		t.Fatalf("unexpected bob %+v", bob)
	}
}

func TestDeleteDropsWholeBlock(t *testing.T) {
	text := testServerDoc + `
[Peer]
PublicKey = OLD
AllowedIPs = 10.0.0.2/32
# hand written note
PresharedKey = OLDPSK
#_GenKeyTime = 2024-01-01T00:00:00Z
#_Peer = OLD
#_Name = alice
#_AllowedIPs = 10.0.0.2/32

[Peer]
PublicKey = BOB
PresharedKey = BOBPSK
AllowedIPs = 10.0.0.3/32
#_GenKeyTime = 2024-01-02T00:00:00Z
#_Peer = BOB
#_Name = bob
#_AllowedIPs = 10.0.0.3/32
`
	d, err := Parse(text)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Delete("alice"); err != nil {
		t.Fatal(err)
	}
	want := testServerDoc + `
[Peer]
PublicKey = BOB
PresharedKey = BOBPSK
AllowedIPs = 10.0.0.3/32
#_GenKeyTime = 2024-01-02T00:00:00Z
#_Peer = BOB
#_Name = bob
#_AllowedIPs = 10.0.0.3/32
`
	if d.Text() != want {
		fmt.Println(d.Text())
		t.Fatal("lines of the deleted block leaked")
	}
	if d.Registry().Len() != 1 || d.Registry().Peers()[0].PublicKey != "BOB" {
		t.Fatalf("unexpected registry %v", d.Registry().Peers())
	}
}

func TestUpdateDeleteNotFound(t *testing.T) {
	d, err := Parse(testServerDoc)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Update(context.Background(), "ghost", &fakeKeys{}); !errors.Is(err, models.ErrPeerNotFound) {
		t.Fatalf("expected ErrPeerNotFound, got %v", err)
	}
	if _, err := d.Delete("ghost"); !errors.Is(err, models.ErrPeerNotFound) {
		t.Fatalf("expected ErrPeerNotFound, got %v", err)
	}
}

func TestAllocationScenario(t *testing.T) {
	path := writeDoc(t, testServerDoc)
	keys := &fakeKeys{}

	// every step is its own run, the registry comes back from the file
	run := func(fn func(d *Document) error) {
		t.Helper()
		d, err := Open(path, WithClock(fixedClock))
		if err != nil {
			t.Fatal(err)
		}
		defer d.Close()
		if err := fn(d); err != nil {
			t.Fatal(err)
		}
	}
	addr := func(d *Document, name string) string {
		p, err := d.Registry().FindByName(name)
		if err != nil {
			t.Fatal(err)
		}
		return p.AllowedIPs.String()
	}

	run(func(d *Document) error {
		_, err := d.Add(context.Background(), "alice", keys)
		return err
	})
	run(func(d *Document) error {
		_, err := d.Add(context.Background(), "bob", keys)
		return err
	})
	run(func(d *Document) error {
		if got := addr(d, "alice"); got != "10.0.0.2/32" {
			t.Errorf("alice got %s", got)
		}
		if got := addr(d, "bob"); got != "10.0.0.3/32" {
			t.Errorf("bob got %s", got)
		}
		_, err := d.Delete("alice")
		return err
	})
	run(func(d *Document) error {
		if d.Registry().Len() != 1 || addr(d, "bob") != "10.0.0.3/32" {
			t.Errorf("expected only bob at 10.0.0.3/32, got %v", d.Registry().Peers())
		}
		_, err := d.Add(context.Background(), "alice", keys)
		return err
	})
	run(func(d *Document) error {
		if got := addr(d, "alice"); got != "10.0.0.4/32" {
			t.Errorf("re-added alice got %s", got)
		}
		return nil
	})
}

func TestOpenLocked(t *testing.T) {
	path := writeDoc(t, testServerDoc)
	openDoc(t, path)
	if _, err := Open(path); !errors.Is(err, models.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}

func TestOpenMalformed(t *testing.T) {
	path := writeDoc(t, testServerDoc+"\n[Peer]\nPublicKey = X\n")
	if _, err := Open(path); !errors.Is(err, models.ErrMalformedDocument) {
		t.Fatalf("expected ErrMalformedDocument, got %v", err)
	}
	// lock released on failure
	if _, err := Open(path); errors.Is(err, models.ErrLocked) {
		t.Fatal("lock kept after failed open")
	}
}

func TestCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wg0.conf")
	if err := Create(path, testServerDoc); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if readDoc(t, path) != testServerDoc {
		t.Fatal("document mismatch")
	}
	if err := Create(path, testServerDoc); !errors.Is(err, models.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	other := filepath.Join(t.TempDir(), "wg1.conf")
	if err := Create(other, "[Peer]\nPublicKey = X\n"); !errors.Is(err, models.ErrMalformedDocument) {
		t.Fatalf("expected ErrMalformedDocument, got %v", err)
	}
}

func TestKindDetection(t *testing.T) {
	d := openDoc(t, writeDoc(t, testServerDoc))
	if d.Kind() != models.KindAWG {
		t.Fatalf("expected AWG, got %s", d.Kind())
	}
}

const testContiguousPeers = `[Interface]
Address = 10.0.0.1/24
#_GenKeyTime = 2023-01-01T00:00:00
#_Peer = X
#_Name = x
#_AllowedIPs = 10.0.0.2/32
#_GenKeyTime = 2023-02-02T00:00:00
#_Peer = Y
#_Name = y
#_AllowedIPs = 10.0.0.3/32
`

func TestParseContiguousDirectivePeers(t *testing.T) {
	d, err := Parse(testContiguousPeers)
	if err != nil {
		t.Fatal(err)
	}
	x, _ := d.Registry().FindByName("x")
	y, _ := d.Registry().FindByName("y")
	if x.GenKeyTime != "2023-01-01T00:00:00" || y.GenKeyTime != "2023-02-02T00:00:00" {
		t.Fatalf("generation times assigned to the wrong peer: x=%q y=%q", x.GenKeyTime, y.GenKeyTime)
	}
	if _, ok := d.Meta()["GenKeyTime"]; ok {
		t.Error("peer generation time leaked into server meta")
	}
}

func TestUpdateContiguousDirectivePeer(t *testing.T) {
	d, err := Parse(testContiguousPeers, WithClock(fixedClock))
	if err != nil {
		t.Fatal(err)
	}
	p, err := d.Update(context.Background(), "x", &fakeKeys{})
	if err != nil {
		t.Fatal(err)
	}
	want := strings.NewReplacer(
		"#_GenKeyTime = 2023-01-01T00:00:00", "#_GenKeyTime = 2024-06-01T12:00:00Z",
		"#_Peer = X", "#_Peer = pub-priv01",
	).Replace(testContiguousPeers)
	if d.Text() != want {
		t.Fatalf("unexpected update result:\n%s", d.Text())
	}
	// no [Peer] section to hold a preshared key
	if p.PresharedKey != "" || p.PrivateKey != "priv01" {
		t.Fatalf("unexpected updated peer %+v", p)
	}
	y, _ := d.Registry().FindByName("y")
	if y.GenKeyTime != "2023-02-02T00:00:00" {
		t.Fatalf("neighbour peer changed: %+v", y)
	}
}

func TestDeleteContiguousDirectivePeer(t *testing.T) {
	d, err := Parse(testContiguousPeers)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Delete("x"); err != nil {
		t.Fatal(err)
	}
	want := `[Interface]
Address = 10.0.0.1/24
#_GenKeyTime = 2023-02-02T00:00:00
#_Peer = Y
#_Name = y
#_AllowedIPs = 10.0.0.3/32
`
	if d.Text() != want {
		t.Fatalf("unexpected text after delete:\n%s", d.Text())
	}
	y, err := d.Registry().FindByName("y")
	if err != nil || y.GenKeyTime != "2023-02-02T00:00:00" {
		t.Fatalf("neighbour peer damaged: %+v, %v", y, err)
	}
}

func TestStanzaSecondGenKeyTimeStartsNextPeer(t *testing.T) {
	text := testServerDoc + testAliceBlock + `#_GenKeyTime = 2023-02-02T00:00:00
#_Peer = LEGACY
#_Name = bob
#_AllowedIPs = 10.0.0.3/32
`
	d, err := Parse(text)
	if err != nil {
		t.Fatal(err)
	}
	alice, _ := d.Registry().FindByName("alice")
	bob, _ := d.Registry().FindByName("bob")
	if alice.GenKeyTime != "2024-06-01T12:00:00Z" || bob.GenKeyTime != "2023-02-02T00:00:00" {
		t.Fatalf("unexpected times alice=%q bob=%q", alice.GenKeyTime, bob.GenKeyTime)
	}
	if _, err := d.Delete("alice"); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(d.Text(), testServerDoc+"#_GenKeyTime = 2023-02-02T00:00:00\n#_Peer = LEGACY\n") {
		t.Fatalf("unexpected text after delete:\n%s", d.Text())
	}
}

func TestOpenWithKind(t *testing.T) {
	path := writeDoc(t, testServerDoc)
	d, err := Open(path, WithKind(models.KindWG))
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	if d.Kind() != models.KindWG {
		t.Fatalf("expected kind override, got %v", d.Kind())
	}
}
