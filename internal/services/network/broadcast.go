// Package network resolves the broadcast address Art-Net frames are sent to.
package network

import (
	"fmt"
	"net"
	"strings"
)

// GlobalBroadcast is used when no interface broadcast can be found.
const GlobalBroadcast = "255.255.255.255"

// Target is a broadcast address reachable through one interface.
type Target struct {
	Interface string
	Address   string
	Broadcast string
	Wired     bool
}

func (t Target) String() string {
	kind := "wifi"
	if t.Wired {
		kind = "wired"
	}
	return fmt.Sprintf("%s (%s, %s) -> %s", t.Interface, kind, t.Address, t.Broadcast)
}

// ifaceAddrs is one interface and its addresses, split out so tests can
// supply fake interfaces.
type ifaceAddrs struct {
	name  string
	flags net.Flags
	addrs []net.Addr
}

var listInterfaces = func() ([]ifaceAddrs, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to list network interfaces: %w", err)
	}
	out := make([]ifaceAddrs, 0, len(ifaces))
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		out = append(out, ifaceAddrs{name: iface.Name, flags: iface.Flags, addrs: addrs})
	}
	return out, nil
}

// Targets returns the IPv4 broadcast addresses of every up, non-loopback
// interface, wired interfaces first.
func Targets() ([]Target, error) {
	ifaces, err := listInterfaces()
	if err != nil {
		return nil, err
	}

	var wired, other []Target
	for _, iface := range ifaces {
		if iface.flags&net.FlagUp == 0 || iface.flags&net.FlagLoopback != 0 {
			continue
		}
		for _, addr := range iface.addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			broadcast := calculateBroadcast(ip4, ipNet.Mask)
			// point-to-point links have no usable broadcast
			if broadcast == nil || broadcast.Equal(ip4) {
				continue
			}
			t := Target{
				Interface: iface.name,
				Address:   ip4.String(),
				Broadcast: broadcast.String(),
				Wired:     isWired(iface.name),
			}
			if t.Wired {
				wired = append(wired, t)
			} else {
				other = append(other, t)
			}
		}
	}
	return append(wired, other...), nil
}

// ResolveBroadcast turns the configured Art-Net destination into an IPv4
// address. It accepts an address, an interface name, or "auto" for the
// first interface Targets reports.
func ResolveBroadcast(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return GlobalBroadcast, nil
	}
	if ip := net.ParseIP(value); ip != nil {
		if ip.To4() == nil {
			return "", fmt.Errorf("art-net needs an IPv4 address, got %s", value)
		}
		return ip.To4().String(), nil
	}

	targets, err := Targets()
	if err != nil {
		return "", err
	}
	if strings.EqualFold(value, "auto") {
		if len(targets) == 0 {
			return GlobalBroadcast, nil
		}
		return targets[0].Broadcast, nil
	}
	for _, t := range targets {
		if t.Interface == value {
			return t.Broadcast, nil
		}
	}
	return "", fmt.Errorf("no IPv4 broadcast address on interface %q", value)
}

func isWired(name string) bool {
	name = strings.ToLower(name)
	if strings.HasPrefix(name, "wl") || strings.Contains(name, "wifi") {
		return false
	}
	return strings.HasPrefix(name, "eth") || strings.HasPrefix(name, "en")
}

// calculateBroadcast computes the broadcast address from IP and netmask
func calculateBroadcast(ip net.IP, mask net.IPMask) net.IP {
	ip4 := ip.To4()
	if ip4 == nil || mask == nil {
		return nil
	}
	if len(mask) == 16 {
		mask = mask[12:16]
	}
	if len(mask) != 4 {
		return nil
	}

	broadcast := make(net.IP, 4)
	for i := 0; i < 4; i++ {
		broadcast[i] = ip4[i] | ^mask[i]
	}
	return broadcast
}
