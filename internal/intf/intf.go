// Package intf provides a read-only table of local network interfaces,
// indexed by both name and ifindex, used to resolve the CLI's -i/--interface
// argument and to render interface names in mclst's display output.
package intf

import (
	"fmt"
	"net"

	"github.com/pimclib/pimc-toolkit/internal/ipaddr"
)

// Info describes one local network interface.
type Info struct {
	Name    string
	Index   int
	IPv4    ipaddr.Address
	HasIPv4 bool
}

// Table is a read-only, load-once index of local interfaces.
type Table struct {
	byName  map[string]Info
	byIndex map[int]Info
}

// Load enumerates the host's network interfaces and their IPv4 addresses.
func Load() (*Table, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("intf: enumerating interfaces: %w", err)
	}

	t := &Table{
		byName:  make(map[string]Info, len(ifaces)),
		byIndex: make(map[int]Info, len(ifaces)),
	}
	for _, ifi := range ifaces {
		info := Info{Name: ifi.Name, Index: ifi.Index}
		addrs, err := ifi.Addrs()
		if err == nil {
			for _, a := range addrs {
				var ip net.IP
				switch v := a.(type) {
				case *net.IPNet:
					ip = v.IP
				case *net.IPAddr:
					ip = v.IP
				}
				if addr, err := ipaddr.FromNetIP(ip); err == nil {
					info.IPv4 = addr
					info.HasIPv4 = true
					break
				}
			}
		}
		t.byName[info.Name] = info
		t.byIndex[info.Index] = info
	}
	return t, nil
}

// ByName looks up an interface by name.
func (t *Table) ByName(name string) (Info, bool) {
	info, ok := t.byName[name]
	return info, ok
}

// ByIndex looks up an interface by ifindex.
func (t *Table) ByIndex(index int) (Info, bool) {
	info, ok := t.byIndex[index]
	return info, ok
}

// Resolve finds an interface given either its name or the textual form of
// an IPv4 address assigned to it, matching the CLI's -i/--interface
// contract (spec.md §6).
func (t *Table) Resolve(nameOrAddr string) (Info, error) {
	if info, ok := t.ByName(nameOrAddr); ok {
		return info, nil
	}
	if addr, err := ipaddr.FromNetIP(net.ParseIP(nameOrAddr)); err == nil {
		for _, info := range t.byName {
			if info.HasIPv4 && info.IPv4 == addr {
				return info, nil
			}
		}
	}
	return Info{}, fmt.Errorf("intf: no interface matches %q", nameOrAddr)
}
