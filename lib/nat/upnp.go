// Package nat maps a UDP listen port through a UPnP-capable gateway,
// so a peer behind NAT can still be greeted from the public internet.
package nat

import (
	"fmt"
	"net"
	"time"

	"github.com/huin/goupnp/dcps/internetgateway2"
)

// leaseDuration is how long a port mapping is requested for before it
// needs renewing. Most IGDs accept a shorter lease than this and cap
// it silently, so Mapping renews well before it could expire.
const leaseDuration = 1 * time.Hour

// portMapper is the subset of the three internetgateway2 connection
// client types (WANIPConnection1/2, WANPPPConnection1) that mapping
// actually needs, so a single Mapping can hold whichever one a
// gateway speaks.
type portMapper interface {
	AddPortMapping(NewRemoteHost string, NewExternalPort uint16, NewProtocol string, NewInternalPort uint16, NewInternalClient string, NewEnabled bool, NewPortMappingDescription string, NewLeaseDuration uint32) error
	DeletePortMapping(NewRemoteHost string, NewExternalPort uint16, NewProtocol string) error
	GetExternalIPAddress() (string, error)
}

// Mapping holds a UDP port forwarded through a discovered gateway. It
// renews itself on a timer and can be torn down with Close.
type Mapping struct {
	client       portMapper
	internalPort uint16
	externalPort uint16
	stop         chan struct{}
}

// Map discovers a UPnP internet gateway on the local network and asks
// it to forward externalPort/UDP to internalPort on this host. The
// returned Mapping renews itself every half leaseDuration until Close
// is called.
func Map(internalPort, externalPort uint16, description string) (*Mapping, error) {
	client, internalClient, err := discover()
	if err != nil {
		return nil, err
	}

	if err := client.AddPortMapping("", externalPort, "UDP", internalPort, internalClient, true, description, uint32(leaseDuration.Seconds())); err != nil {
		return nil, fmt.Errorf("nat: AddPortMapping: %w", err)
	}

	m := &Mapping{
		client:       client,
		internalPort: internalPort,
		externalPort: externalPort,
		stop:         make(chan struct{}),
	}
	go m.renewLoop(internalClient, description)
	return m, nil
}

// ExternalIP asks the gateway backing this mapping for the public
// address traffic to externalPort arrives from.
func (m *Mapping) ExternalIP() (net.IP, error) {
	s, err := m.client.GetExternalIPAddress()
	if err != nil {
		return nil, fmt.Errorf("nat: GetExternalIPAddress: %w", err)
	}
	ip := net.ParseIP(s)
	if ip == nil {
		return nil, fmt.Errorf("nat: gateway returned an unparseable address %q", s)
	}
	return ip, nil
}

// Close removes the port mapping and stops the renewal loop.
func (m *Mapping) Close() error {
	close(m.stop)
	return m.client.DeletePortMapping("", m.externalPort, "UDP")
}

func (m *Mapping) renewLoop(internalClient, description string) {
	ticker := time.NewTicker(leaseDuration / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = m.client.AddPortMapping("", m.externalPort, "UDP", m.internalPort, internalClient, true, description, uint32(leaseDuration.Seconds()))
		case <-m.stop:
			return
		}
	}
}

// discover tries every IGD service generation goupnp knows about, in
// the order most home routers are likely to speak them, and returns
// the first one that answers along with the LAN address it sees us on.
func discover() (portMapper, string, error) {
	if clients, _, err := internetgateway2.NewWANIPConnection2Clients(); err == nil && len(clients) > 0 {
		return clients[0], localAddrFor(clients[0].Location.Host), nil
	}
	if clients, _, err := internetgateway2.NewWANIPConnection1Clients(); err == nil && len(clients) > 0 {
		return clients[0], localAddrFor(clients[0].Location.Host), nil
	}
	if clients, _, err := internetgateway2.NewWANPPPConnection1Clients(); err == nil && len(clients) > 0 {
		return clients[0], localAddrFor(clients[0].Location.Host), nil
	}
	return nil, "", fmt.Errorf("nat: no UPnP internet gateway responded")
}

// localAddrFor dials gatewayHost to learn which local interface
// address routes to it, without actually sending any application data.
func localAddrFor(gatewayHost string) string {
	conn, err := net.Dial("udp", net.JoinHostPort(gatewayHost, "1900"))
	if err != nil {
		return ""
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}
