// Package planner turns a validated PIM-SM configuration into the ordered
// Join/Prune update plan pimc replays on every refresh, and derives the
// symmetric inverse plan used to withdraw state on shutdown.
package planner

import (
	"fmt"

	"github.com/pimclib/pimc-toolkit/internal/ipaddr"
)

// Protocol parameters for IPv4 (spec.md §4.2).
const (
	MaxPruneSGrptLen = 180
	MaxMessageBytes  = 1400

	fixedBodyBytes = 10 // encoded-unicast upstream(6) + reserved(1) + numGroups(1) + holdtime(2)
	groupHeadBytes = 8  // encoded-group
	countsBytes    = 4  // numJoined(2) + numPruned(2)
	sourceBytes    = 8  // encoded-source
)

// MaxSourcesPerGroup is the number of sources a single group record can
// carry before it must be split across successive updates.
var MaxSourcesPerGroup = (MaxMessageBytes - fixedBodyBytes - groupHeadBytes - countsBytes) / sourceBytes

// RPTConfig describes the shared-tree portion of a group's configuration:
// Join(*,G) to rp, with an optional set of sources pruned off the RPT.
type RPTConfig struct {
	RP     ipaddr.Address
	Prunes []ipaddr.Address
}

// GroupConfig is the declarative join/prune configuration for one
// multicast group.
type GroupConfig struct {
	Group ipaddr.Address
	RPT   *RPTConfig // nil if there's no (*,G) join for this group
	SPT   []ipaddr.Address
}

// Validate checks the invariants spec.md §3 places on a GroupConfig: rp is
// unicast, prunes/SPT sources are disjoint and each appears at most once,
// the prune set respects MaxPruneSGrptLen, the group address is multicast,
// and at least one of RPT or SPT is present.
func (g GroupConfig) Validate() error {
	if !g.Group.IsMulticast() {
		return fmt.Errorf("group %s is not a multicast address", g.Group)
	}
	if g.RPT == nil && len(g.SPT) == 0 {
		return fmt.Errorf("group %s: at least one of Join* (RPT) or Join (SPT) is required", g.Group)
	}
	if g.RPT != nil {
		if !g.RPT.RP.IsUnicast() {
			return fmt.Errorf("group %s: RP %s is not a usable unicast address", g.Group, g.RPT.RP)
		}
		if len(g.RPT.Prunes) > MaxPruneSGrptLen {
			return fmt.Errorf("group %s: %d pruned sources exceeds the %d limit", g.Group, len(g.RPT.Prunes), MaxPruneSGrptLen)
		}
	}

	seen := make(map[ipaddr.Address]string, len(g.SPT)+len(prunesOf(g)))
	if g.RPT != nil {
		for _, s := range g.RPT.Prunes {
			if prev, dup := seen[s]; dup {
				return fmt.Errorf("group %s: source %s already declared as %s", g.Group, s, prev)
			}
			seen[s] = "a pruned source"
		}
	}
	for _, s := range g.SPT {
		if prev, dup := seen[s]; dup {
			return fmt.Errorf("group %s: source %s already declared as %s", g.Group, s, prev)
		}
		seen[s] = "an SPT-joined source"
	}
	return nil
}

func prunesOf(g GroupConfig) []ipaddr.Address {
	if g.RPT == nil {
		return nil
	}
	return g.RPT.Prunes
}

// JPConfig is an ordered sequence of GroupConfigs with unique group
// addresses, first-declaration order preserved.
type JPConfig struct {
	Groups []GroupConfig
}

// Validate checks every group and rejects duplicate group declarations.
func (c JPConfig) Validate() error {
	seen := make(map[ipaddr.Address]bool, len(c.Groups))
	for _, g := range c.Groups {
		if seen[g.Group] {
			return fmt.Errorf("group %s declared more than once", g.Group)
		}
		seen[g.Group] = true
		if err := g.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// PIMSMConfig holds the PIM-SM session parameters for the single
// configured upstream neighbor (spec.md §3).
type PIMSMConfig struct {
	Neighbor      ipaddr.Address
	IntfAddr      ipaddr.Address
	HelloPeriod   int
	HelloHoldtime uint16
	JPPeriod      int
	JPHoldtime    uint16
	DRPriority    uint32
	GenerationID  uint32
}

// Validate checks that Neighbor and IntfAddr are unicast.
func (c PIMSMConfig) Validate() error {
	if !c.Neighbor.IsUnicast() {
		return fmt.Errorf("PIM-SM neighbor %s is not a usable unicast address", c.Neighbor)
	}
	if !c.IntfAddr.IsUnicast() {
		return fmt.Errorf("PIM-SM intfAddr %s is not a usable unicast address", c.IntfAddr)
	}
	return nil
}
