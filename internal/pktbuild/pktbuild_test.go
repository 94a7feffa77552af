package pktbuild_test

import (
	"testing"

	"github.com/google/gopacket"
	"github.com/pimclib/pimc-toolkit/internal/ipaddr"
	"github.com/pimclib/pimc-toolkit/internal/pim"
	"github.com/pimclib/pimc-toolkit/internal/pktbuild"
	"github.com/pimclib/pimc-toolkit/internal/planner"
)

// Property 6: PIM checksum of any produced packet verifies to zero when
// computed over the full payload.
func verifyChecksum(t *testing.T, pkt []byte) {
	t.Helper()
	if got := pim.Checksum(pkt); got != 0 {
		t.Errorf("checksum over full payload = %#x, want 0", got)
	}
}

func TestHelloPacketChecksumsAndDecodes(t *testing.T) {
	pkt, err := pktbuild.HelloPacket(105, 1, 3614426332)
	if err != nil {
		t.Fatalf("HelloPacket: %v", err)
	}
	verifyChecksum(t, pkt)

	p := gopacket.NewPacket(pkt, pim.PIMMessageType, gopacket.Default)
	if p.ErrorLayer() != nil {
		t.Fatalf("decoding Hello packet: %v", p.ErrorLayer().Error())
	}
	hello, ok := p.Layer(pim.HelloMessageType).(*pim.HelloMessage)
	if !ok {
		t.Fatalf("no HelloMessage layer decoded")
	}
	if hello.Holdtime != 105 || hello.DRPriority != 1 || hello.GenerationID != 3614426332 {
		t.Errorf("decoded Hello = %+v, want Holdtime=105 DRPriority=1 GenerationID=3614426332", hello)
	}
}

func TestGoodbyeHelloHasZeroHoldtime(t *testing.T) {
	pkt, err := pktbuild.GoodbyeHello(1, 42)
	if err != nil {
		t.Fatalf("GoodbyeHello: %v", err)
	}
	verifyChecksum(t, pkt)

	p := gopacket.NewPacket(pkt, pim.PIMMessageType, gopacket.Default)
	hello, ok := p.Layer(pim.HelloMessageType).(*pim.HelloMessage)
	if !ok {
		t.Fatalf("no HelloMessage layer decoded")
	}
	if hello.Holdtime != 0 {
		t.Errorf("goodbye Hello Holdtime = %d, want 0", hello.Holdtime)
	}
}

func TestUpdatePacketRoundtrips(t *testing.T) {
	u := planner.Update{
		Upstream: ipaddr.FromOctets(10, 0, 0, 13),
		Holdtime: 210,
		Groups: []planner.GroupUpdate{
			{
				Group: ipaddr.FromOctets(239, 123, 123, 123),
				Joined: []planner.SourceEntry{
					{Addr: ipaddr.FromOctets(1, 1, 1, 1), Flags: planner.SourceFlags{WC: true, RPT: true, S: true}},
				},
			},
		},
	}
	pkt, err := pktbuild.UpdatePacket(u)
	if err != nil {
		t.Fatalf("UpdatePacket: %v", err)
	}
	verifyChecksum(t, pkt)

	p := gopacket.NewPacket(pkt, pim.PIMMessageType, gopacket.Default)
	if p.ErrorLayer() != nil {
		t.Fatalf("decoding Join/Prune packet: %v", p.ErrorLayer().Error())
	}
	jp, ok := p.Layer(pim.JoinPruneMessageType).(*pim.JoinPruneMessage)
	if !ok {
		t.Fatalf("no JoinPruneMessage layer decoded")
	}
	if len(jp.Groups) != 1 || jp.Groups[0].NumJoinedSources != 1 || jp.Groups[0].NumPrunedSources != 0 {
		t.Errorf("decoded Join/Prune = %+v", jp)
	}
}
