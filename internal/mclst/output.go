package mclst

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/pimclib/pimc-toolkit/internal/ipaddr"
)

// timestampLayout prints local packet and timeout timestamps at microsecond
// precision. Callers round to the microsecond first (half-up, carrying into
// the seconds), since time.Format alone would truncate.
const timestampLayout = "15:04:05.000000"

// Display renders mclst's receive/send events, adapted from
// original_source/apps/mclst/OutputHandler.hpp's fmt-based formatters. It
// uses github.com/olekukonko/tablewriter for the flow-statistics table in
// place of the original's hand-rolled column-width computation.
type Display struct {
	ShowPayload bool
	Wildcard    bool
	DPort       uint16
}

// ShowReceivedPacket prints one line for pi, plus an optional beacon line
// and an optional hex/ASCII payload dump.
func (d *Display) ShowReceivedPacket(pi PacketInfo) {
	ttl := "N/A"
	if pi.TTL >= 0 {
		ttl = fmt.Sprintf("%d", pi.TTL)
	}
	fmt.Printf(
		"%s if#%d, %s:%d->%s:%d, TTL %s, UDP size %d\n",
		pi.Timestamp.Round(time.Microsecond).Format(timestampLayout), pi.IfIndex,
		pi.Source, pi.SPort, pi.Group, pi.DPort, ttl, len(pi.Payload),
	)

	if pi.IsBeacon {
		remoteTs := time.Unix(0, int64(pi.Beacon.TimeNs))
		deltaNs := pi.Timestamp.UnixNano() - int64(pi.Beacon.TimeNs)
		fmt.Printf(
			"%15s mclst pkt #%d, %s, delta %dns, %s\n",
			"", pi.Beacon.Seq, remoteTs.Format("2006-01-02 15:04:05.000000000"),
			deltaNs, pi.Beacon.Data,
		)
	}

	if d.ShowPayload {
		fmt.Println(hexASCII(pi.Payload))
	}
}

// ShowTimeout prints mclst's single-line keep-alive timeout notice.
func (d *Display) ShowTimeout(ts time.Time) {
	fmt.Printf("%s timeout\n", ts.Round(time.Microsecond).Format(timestampLayout))
}

// ShowWarning prints a warning line to stderr.
func (d *Display) ShowWarning(msg string) {
	fmt.Fprintf(os.Stderr, "warning: %s\n", msg)
}

// ShowRxStats renders the final flow-statistics table in insertion order,
// or a "no traffic" line when stats is empty.
func (d *Display) ShowRxStats(group ipaddr.Address, stats *RxStats, duration time.Duration) {
	fmt.Println()
	target := fmt.Sprintf("%s:%d", group, d.DPort)
	if d.Wildcard {
		target = fmt.Sprintf("%s:*", group)
	}

	if stats.Empty() {
		fmt.Printf("No traffic received for %s in %.2f sec\n", target, duration.Seconds())
		return
	}

	fmt.Printf("Traffic received for %s in %.2f sec\n\n", target, duration.Seconds())

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Source", "DPort", "Pkts", "Bytes", "APS", "Rate"})
	table.SetAutoFormatHeaders(false)
	table.SetBorder(false)

	stats.ForEach(func(fv FlowView) {
		table.Append([]string{
			fmt.Sprintf("%s:%d", fv.ID.Source(), fv.ID.SPort()),
			fmt.Sprintf("%d", fv.ID.DPort()),
			fmt.Sprintf("%d", fv.Stats.Pkts),
			fmt.Sprintf("%d", fv.Stats.Bytes),
			fmt.Sprintf("%.2f", fv.Stats.AvgPacketSize()),
			formatRate(fv.Stats.Bytes, duration),
		})
	})
	table.Render()
}

// ShowTxStats prints the beacon sender's final sent-count line.
func (d *Display) ShowTxStats(count uint64) {
	fmt.Printf("Sent %d packets\n", count)
}

// formatRate renders bytes sent over duration as an auto-scaled bit rate,
// matching original_source/apps/mclst/OutputHandler.hpp's FlowStatsView
// thresholds.
func formatRate(bytes uint64, duration time.Duration) string {
	secs := duration.Seconds()
	if secs <= 0 {
		return "0.00bps"
	}
	bps := float64(bytes*8) / secs
	switch {
	case bps < 1000:
		return fmt.Sprintf("%.2fbps", bps)
	case bps < 1_000_000:
		return fmt.Sprintf("%.2fKbps", bps/1_000)
	case bps < 1_000_000_000:
		return fmt.Sprintf("%.2fMbps", bps/1_000_000)
	default:
		return fmt.Sprintf("%.2fGbps", bps/1_000_000_000)
	}
}

// hexASCII renders b as 16-byte rows of hex octets followed by their
// printable-ASCII representation, for the -X/--hex-ascii flag.
func hexASCII(b []byte) string {
	var sb strings.Builder
	for off := 0; off < len(b); off += 16 {
		end := off + 16
		if end > len(b) {
			end = len(b)
		}
		row := b[off:end]

		fmt.Fprintf(&sb, "%04x  ", off)
		for i := 0; i < 16; i++ {
			if i < len(row) {
				fmt.Fprintf(&sb, "%02x ", row[i])
			} else {
				sb.WriteString("   ")
			}
			if i == 7 {
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(" |")
		for _, c := range row {
			if c >= 0x20 && c < 0x7f {
				sb.WriteByte(c)
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteString("|\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
