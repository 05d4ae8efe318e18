package dbusclient

import (
	"context"
	"testing"

	"wg-confkeeper/models"
)

func TestServiceName(t *testing.T) {
	cases := []struct {
		kind models.Kind
		path string
		want string
	}{
		{models.KindAWG, "/etc/amnezia/amneziawg/awg0.conf", "awg-quick@awg0.service"},
		{models.KindWG, "wg1.conf", "wg-quick@wg1.service"},
	}
	for _, c := range cases {
		if got := ServiceName(c.kind, c.path); got != c.want {
			t.Errorf("ServiceName(%v, %q) = %q, want %q", c.kind, c.path, got, c.want)
		}
	}
}

func TestDisabledManagerOnlySimulates(t *testing.T) {
	m := New(false)
	if err := m.EnableService(context.Background(), "wg-quick@wg0.service"); err != nil {
		t.Fatal(err)
	}
	if err := m.RestartService(context.Background(), "wg-quick@wg0.service"); err != nil {
		t.Fatal(err)
	}
	if m.conn != nil {
		t.Fatal("disabled manager must not connect")
	}
}
