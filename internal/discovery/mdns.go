// ABOUTME: mDNS advertisement and lookup for the local bridge
// ABOUTME: Lets control surfaces on the LAN find the HTTP API
package discovery

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/hashicorp/mdns"
)

// ServiceType is the DNS-SD type the bridge registers under.
const ServiceType = "_discord-bridge._tcp"

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int
	// Info is published as TXT records.
	Info []string
}

// Manager handles mDNS operations
type Manager struct {
	config Config
}

// ServerInfo describes a discovered bridge
type ServerInfo struct {
	Name string
	Host string
	Port int
	Info []string
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	if len(config.Info) == 0 {
		config.Info = []string{"path=/"}
	}
	return &Manager{config: config}
}

// Advertise publishes the bridge until ctx is cancelled.
func (m *Manager) Advertise(ctx context.Context) error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		m.config.Info,
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	log.Printf("discovery: advertising %s on port %d (type: %s)", m.config.ServiceName, m.config.Port, ServiceType)

	<-ctx.Done()
	return server.Shutdown()
}

// Browse queries the network once and returns every bridge that answered
// within timeout.
func Browse(ctx context.Context, timeout time.Duration) ([]ServerInfo, error) {
	entries := make(chan *mdns.ServiceEntry, 16)
	var found []ServerInfo
	done := make(chan struct{})

	go func() {
		defer close(done)
		for entry := range entries {
			info := ServerInfo{
				Name: entry.Name,
				Port: entry.Port,
				Info: entry.InfoFields,
			}
			if entry.AddrV4 != nil {
				info.Host = entry.AddrV4.String()
			} else if entry.AddrV6 != nil {
				info.Host = entry.AddrV6.String()
			}
			log.Printf("discovery: found %s at %s:%d", info.Name, info.Host, info.Port)
			found = append(found, info)
		}
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Timeout = timeout
	params.Entries = entries
	params.DisableIPv6 = true

	err := mdns.QueryContext(ctx, params)
	close(entries)
	<-done
	if err != nil && ctx.Err() == nil {
		return found, fmt.Errorf("mdns query: %w", err)
	}
	return found, nil
}

// getLocalIPs returns local IP addresses
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
