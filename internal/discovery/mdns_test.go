// ABOUTME: Tests for mDNS discovery
// ABOUTME: Manager defaults and advertisement lifecycle
package discovery

import (
	"context"
	"slices"
	"testing"
	"time"
)

func TestNewManager(t *testing.T) {
	mgr := NewManager(Config{
		ServiceName: "Test Bridge",
		Port:        8929,
	})

	if mgr == nil {
		t.Fatal("expected manager to be created")
	}
	if mgr.config.ServiceName != "Test Bridge" {
		t.Errorf("service name = %q", mgr.config.ServiceName)
	}
	if !slices.Equal(mgr.config.Info, []string{"path=/"}) {
		t.Errorf("info = %v, want default path record", mgr.config.Info)
	}
}

func TestNewManagerKeepsInfo(t *testing.T) {
	mgr := NewManager(Config{ServiceName: "b", Port: 1, Info: []string{"version=1"}})
	if !slices.Equal(mgr.config.Info, []string{"version=1"}) {
		t.Errorf("info = %v", mgr.config.Info)
	}
}

func TestAdvertiseStopsOnCancel(t *testing.T) {
	if testing.Short() {
		t.Skip("binds multicast sockets")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewManager(Config{ServiceName: "test-bridge", Port: 8929}).Advertise(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		// Hosts without multicast fail to bind; either way Advertise returns.
		_ = err
	case <-time.After(5 * time.Second):
		t.Fatal("Advertise did not return")
	}
}
