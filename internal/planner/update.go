package planner

import "github.com/pimclib/pimc-toolkit/internal/ipaddr"

// SourceFlags are the semantic flags spec.md's data model attaches to a
// joined or pruned source; internal/pktbuild maps these onto the wire
// flags byte (spec.md §4.1).
type SourceFlags struct {
	WC  bool // WildCard: this entry stands for the RP on the shared tree
	RPT bool // Rendezvous-Point Tree: this entry is scoped to the shared tree
	S   bool // Sparse: always set for PIM-SM entries
}

var (
	rpFlags       = SourceFlags{WC: true, RPT: true, S: true}
	rptPruneFlags = SourceFlags{RPT: true, S: true}
	sptJoinFlags  = SourceFlags{S: true}
)

// SourceEntry is a single joined or pruned source within a GroupUpdate.
type SourceEntry struct {
	Addr  ipaddr.Address
	Flags SourceFlags
}

// GroupUpdate is one group's record within an Update.
type GroupUpdate struct {
	Group  ipaddr.Address
	Joined []SourceEntry
	Pruned []SourceEntry
}

func (g GroupUpdate) sourceCount() int { return len(g.Joined) + len(g.Pruned) }

// wireBytes returns the encoded size of this group's record, including its
// 8-byte group header and 4-byte join/prune counts.
func (g GroupUpdate) wireBytes() int {
	return groupHeadBytes + countsBytes + sourceBytes*g.sourceCount()
}

// Update is a single on-wire Join/Prune message body targeting one
// upstream neighbor (spec.md §3).
type Update struct {
	Upstream ipaddr.Address
	Holdtime uint16
	Groups   []GroupUpdate
}

// WireBytes returns the serialized length of u per spec.md's Testable
// Property 3: 10 + Σ_g (8 + 4 + 8·(|joined_g|+|pruned_g|)).
func (u Update) WireBytes() int {
	n := fixedBodyBytes
	for _, g := range u.Groups {
		n += g.wireBytes()
	}
	return n
}

// naturalRecord builds a GroupConfig's full group record: an RP entry (if
// RPT is configured), then RPT-pruned sources, then SPT-joined sources,
// following the ordering spec.md §4.2 step 2 specifies.
func naturalRecord(g GroupConfig) GroupUpdate {
	gu := GroupUpdate{Group: g.Group}
	if g.RPT != nil {
		gu.Joined = append(gu.Joined, SourceEntry{Addr: g.RPT.RP, Flags: rpFlags})
		for _, s := range g.RPT.Prunes {
			gu.Pruned = append(gu.Pruned, SourceEntry{Addr: s, Flags: rptPruneFlags})
		}
	}
	for _, s := range g.SPT {
		gu.Joined = append(gu.Joined, SourceEntry{Addr: s, Flags: sptJoinFlags})
	}
	return gu
}

// splitRecord divides a group record whose sources don't fit a single
// message into consecutive chunks, each carrying the same group address
// and at most MaxSourcesPerGroup sources, without reordering. The RP entry
// (if any) is the first joined source and so lands only in the first
// chunk, as required.
func splitRecord(gu GroupUpdate) []GroupUpdate {
	var chunks []GroupUpdate
	joined, pruned := gu.Joined, gu.Pruned

	for len(joined) > 0 || len(pruned) > 0 {
		chunk := GroupUpdate{Group: gu.Group}
		budget := MaxSourcesPerGroup
		take := budget
		if take > len(joined) {
			take = len(joined)
		}
		chunk.Joined, joined = joined[:take], joined[take:]
		budget -= take

		take = budget
		if take > len(pruned) {
			take = len(pruned)
		}
		chunk.Pruned, pruned = pruned[:take], pruned[take:]

		chunks = append(chunks, chunk)
	}
	if len(chunks) == 0 {
		chunks = append(chunks, GroupUpdate{Group: gu.Group})
	}
	return chunks
}

// BuildUpdates transforms a validated JPConfig + PIMSMConfig into the
// ordered list of Updates emitted on every refresh (spec.md §4.2). Callers
// are expected to have already called JPConfig.Validate.
func BuildUpdates(cfg JPConfig, sm PIMSMConfig) []Update {
	var updates []Update
	var current Update
	haveCurrent := false

	seal := func() {
		if haveCurrent && len(current.Groups) > 0 {
			updates = append(updates, current)
		}
		current = Update{Upstream: sm.Neighbor, Holdtime: sm.JPHoldtime}
		haveCurrent = true
	}
	seal()

	for _, gc := range cfg.Groups {
		rec := naturalRecord(gc)

		if fixedBodyBytes+rec.wireBytes() > MaxMessageBytes {
			for _, chunk := range splitRecord(rec) {
				if current.WireBytes()+chunk.wireBytes() > MaxMessageBytes {
					seal()
				}
				current.Groups = append(current.Groups, chunk)
			}
			continue
		}

		if current.WireBytes()+rec.wireBytes() > MaxMessageBytes {
			seal()
		}
		current.Groups = append(current.Groups, rec)
	}
	seal()
	return updates
}

// Inverse derives the InverseUpdate for u by swapping the semantic role of
// every (*,G) and (S,G) entry: Joins become Prunes and vice versa, per
// source, per group, with ordering and holdtime preserved (spec.md §3,
// §4.2 "Inverse plan").
func Inverse(u Update) Update {
	inv := Update{Upstream: u.Upstream, Holdtime: u.Holdtime}
	for _, g := range u.Groups {
		ig := GroupUpdate{Group: g.Group}
		for _, s := range g.Joined {
			ig.Pruned = append(ig.Pruned, s)
		}
		for _, s := range g.Pruned {
			ig.Joined = append(ig.Joined, s)
		}
		inv.Groups = append(inv.Groups, ig)
	}
	return inv
}

// InverseAll maps Inverse over every Update in updates, preserving order.
func InverseAll(updates []Update) []Update {
	inv := make([]Update, len(updates))
	for i, u := range updates {
		inv[i] = Inverse(u)
	}
	return inv
}
