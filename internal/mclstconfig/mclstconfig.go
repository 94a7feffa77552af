// Package mclstconfig validates and resolves mclst's CLI flags into a
// target group/port plus a validated flag set, separating that logic from
// cmd/mclst/main.go the way internal/pimconfig separates YAML
// parsing/validation from cmd/pimc/main.go.
package mclstconfig

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/pimclib/pimc-toolkit/internal/ipaddr"
)

// Flags holds the raw value of every flag mclst accepts (spec.md §6):
// -i/--interface, -S/--source, -t/--timeout, -X/--hex-ascii, -s/--sender,
// --ttl, -c/--count, --no-colors, --show-config, -v/--version, plus the
// --verbose/--metrics-addr ambient-stack additions (SPEC_FULL.md §6).
// cmd/mclst/main.go binds these fields directly to pflag.
type Flags struct {
	Interface   string
	Source      string
	TimeoutSec  int
	HexASCII    bool
	Sender      bool
	TTL         int
	Count       uint64
	NoColors    bool
	ShowConfig  bool
	ShowVersion bool
	Verbose     bool
	MetricsAddr string
}

// Resolved is the validated, parsed form of a positional target plus Flags,
// ready to be combined with an internal/intf.Info to build an mclst.Config.
type Resolved struct {
	Group    ipaddr.Address
	Port     uint16
	Wildcard bool
	Source   ipaddr.Address
	Flags    Flags
}

// Load parses target and validates it against f per spec.md §6: the group
// must be a multicast address; a wildcard port requires non-sender and
// -s/--sender requires an explicit port; -t/--timeout must be in [1,600];
// --ttl must be in [1,255]; -i/--interface is required. It returns the
// first violation encountered.
func Load(target string, f Flags) (Resolved, error) {
	group, port, wildcard, err := ParseTarget(target)
	if err != nil {
		return Resolved{}, err
	}
	if !group.IsMulticast() {
		return Resolved{}, fmt.Errorf("mclst: %s is not a multicast address", group)
	}
	if f.Sender && wildcard {
		return Resolved{}, fmt.Errorf("mclst: a wildcard port requires non-sender; -s/--sender requires an explicit port")
	}
	if f.TimeoutSec < 1 || f.TimeoutSec > 600 {
		return Resolved{}, fmt.Errorf("mclst: -t/--timeout must be in [1, 600], got %d", f.TimeoutSec)
	}
	if f.TTL < 1 || f.TTL > 255 {
		return Resolved{}, fmt.Errorf("mclst: --ttl must be in [1, 255], got %d", f.TTL)
	}
	if f.Interface == "" {
		return Resolved{}, fmt.Errorf("mclst: -i/--interface is required")
	}

	var source ipaddr.Address
	if f.Source != "" {
		addr, err := ipaddr.FromNetIP(net.ParseIP(f.Source))
		if err != nil {
			return Resolved{}, fmt.Errorf("mclst: invalid -S/--source address %q: %w", f.Source, err)
		}
		source = addr
	}

	return Resolved{Group: group, Port: port, Wildcard: wildcard, Source: source, Flags: f}, nil
}

// ParseTarget splits group[:port] (spec.md §6). A missing port selects the
// wildcard-destination-port IP-raw receive variant (spec.md §4.6).
func ParseTarget(s string) (group ipaddr.Address, port uint16, wildcard bool, err error) {
	host, portStr, found := strings.Cut(s, ":")
	if !found {
		addr, err := ipaddr.FromNetIP(net.ParseIP(host))
		if err != nil {
			return 0, 0, false, fmt.Errorf("mclst: invalid group address %q", host)
		}
		return addr, 0, true, nil
	}

	addr, err := ipaddr.FromNetIP(net.ParseIP(host))
	if err != nil {
		return 0, 0, false, fmt.Errorf("mclst: invalid group address %q", host)
	}
	p, err := strconv.Atoi(portStr)
	if err != nil || p < 1 || p > 65535 {
		return 0, 0, false, fmt.Errorf("mclst: invalid port %q", portStr)
	}
	return addr, uint16(p), false, nil
}
