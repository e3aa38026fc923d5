// Package render prints the dashboard views as terminal tables.
// Rendering is a pure function of the view data.
package render

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/hervehildenbrand/ddos-radar/pkg/engine"
	"github.com/hervehildenbrand/ddos-radar/pkg/models"
	"github.com/hervehildenbrand/ddos-radar/pkg/poller"
	"github.com/olekukonko/tablewriter"
)

// RelativeTime formats ts relative to now ("42s ago", "5m ago", "3h ago",
// "2d ago"). Unparseable timestamps are returned unchanged.
func RelativeTime(ts models.Timestamp, now time.Time) string {
	t, ok := ts.Time()
	if !ok {
		return string(ts)
	}
	d := now.Sub(t)
	switch {
	case d < time.Second:
		return "just now"
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d/time.Second))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d/time.Hour))
	default:
		return fmt.Sprintf("%dd ago", int(d/(24*time.Hour)))
	}
}

// Bytes formats a byte count with binary units; nil prints as "-".
func Bytes(n *int64) string {
	if n == nil {
		return "-"
	}
	const unit = 1024
	v := *n
	if v < unit {
		return fmt.Sprintf("%d B", v)
	}
	div, exp := int64(unit), 0
	for m := v / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(v)/float64(div), "KMGTPE"[exp])
}

func count(n *int64) string {
	if n == nil {
		return "-"
	}
	return strconv.FormatInt(*n, 10)
}

func seconds(f *float64) string {
	if f == nil {
		return "-"
	}
	return strconv.FormatFloat(*f, 'f', 2, 64) + "s"
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}

// Traffic prints the classified traffic view.
func Traffic(w io.Writer, p engine.TrafficProjection, now time.Time) {
	fmt.Fprintf(w, "Traffic: %d of %d entries (search=%q status=%s)\n",
		len(p.Entries), p.Total, p.Filter.Search, p.Filter.Status)

	table := newTable(w, "ID", "Source IP", "Seen", "Attack", "Packets", "Bytes", "Duration", "Status")
	for _, e := range p.Entries {
		attack := "-"
		if e.Details.Type != "" {
			attack = e.Attack.Title
		}
		table.Append([]string{
			strconv.FormatInt(e.ID, 10),
			e.SourceIP,
			RelativeTime(e.Timestamp, now),
			attack,
			count(e.Details.TotalPackets),
			Bytes(e.Details.TotalBytes),
			seconds(e.Details.FlowDurationSeconds),
			e.Status.Label(),
		})
	}
	table.Render()
}

// Blacklist prints the blocked addresses.
func Blacklist(w io.Writer, entries []models.BlacklistEntry, now time.Time) {
	table := newTable(w, "IP Address", "Reason", "Blocked")
	for _, e := range entries {
		table.Append([]string{e.IPAddress, e.Reason, RelativeTime(e.Timestamp, now)})
	}
	table.Render()
}

// Notifications prints the attack log with delivery state.
func Notifications(w io.Writer, entries []engine.AnnotatedAttack, now time.Time) {
	table := newTable(w, "ID", "Source IP", "Attack", "When", "Email", "Call")
	for _, e := range entries {
		table.Append([]string{
			strconv.FormatInt(e.ID, 10),
			e.SourceIP,
			e.Attack.Title,
			RelativeTime(e.Timestamp, now),
			deliveryLabel(e.EmailStatus, e.EmailSent),
			deliveryLabel(e.CallStatus, e.CallMade && models.Delivered(e.CallStatus)),
		})
	}
	table.Render()
}

func deliveryLabel(status string, ok bool) string {
	switch {
	case status == "":
		return "-"
	case ok:
		return "OK (" + status + ")"
	default:
		return strings.ToUpper(status)
	}
}

// Summary prints the dashboard counters and the most recent attacks.
func Summary(w io.Writer, s engine.Summary, now time.Time) {
	fmt.Fprintf(w, "Detected attacks: %d  Blocked IPs: %d  Active threats: %d\n",
		s.Stats.TotalDetectedAttacks, s.Stats.BlockedIPs, s.Stats.ActiveThreats)
	if len(s.Degraded) > 0 {
		fmt.Fprintf(w, "Degraded: %s\n", strings.Join(s.Degraded, ", "))
	}

	if len(s.Distribution) > 0 {
		table := newTable(w, "Attack Type", "Count")
		for _, d := range s.Distribution {
			table.Append([]string{d.Name, strconv.FormatFloat(d.Value, 'f', -1, 64)})
		}
		table.Render()
	}

	table := newTable(w, "Recent Attack", "Source IP", "When")
	for _, a := range s.Recent {
		table.Append([]string{a.Attack.Title, a.SourceIP, RelativeTime(a.Timestamp, now)})
	}
	table.Render()
}

// Health prints one row per resource.
func Health(w io.Writer, statuses []poller.Status, now time.Time) {
	table := newTable(w, "Resource", "State", "Fetched", "Failures", "Error")
	for _, s := range statuses {
		fetched := "never"
		if !s.FetchedAt.IsZero() {
			fetched = RelativeTime(models.Timestamp(s.FetchedAt.UTC().Format(time.RFC3339Nano)), now)
		}
		state := string(s.State)
		if s.Degraded {
			state += " (degraded)"
		}
		errText := ""
		if s.Err != nil {
			errText = s.Err.Error()
		}
		table.Append([]string{s.Resource, state, fetched, strconv.Itoa(s.Failures), errText})
	}
	table.Render()
}
