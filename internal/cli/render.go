package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/roach88/placesync/internal/projection"
	"github.com/roach88/placesync/internal/store"
)

const (
	placementRow = "%-4s %-10s %-14s %-8s %-13s %s\n"
	historyRow   = "%-5s %-9s %-11s %-17s %-30s %s\n"
)

// RenderSnapshot writes snap as a header block followed by one row per
// placement in ascending order.
func RenderSnapshot(w io.Writer, snap *projection.Snapshot) error {
	converged := "never"
	if !snap.LastConvergedAt.IsZero() {
		converged = formatTime(snap.LastConvergedAt)
	}

	header := [][2]string{
		{"Project:", dash(snap.ProjectDirectory)},
		{"Revision:", strconv.FormatUint(snap.Revision, 10)},
		{"Trigger:", dash(string(snap.LastTriggerSource))},
		{"Unresolved:", strconv.Itoa(snap.UnresolvedCount)},
		{"Converged:", converged},
		{"Updated:", formatTime(snap.UpdatedAt)},
	}
	for _, kv := range header {
		if _, err := fmt.Fprintf(w, "%-12s%s\n", kv[0], kv[1]); err != nil {
			return err
		}
	}
	fmt.Fprintln(w)

	numbers := snap.Numbers()
	if len(numbers) == 0 {
		_, err := fmt.Fprintln(w, "(no placements)")
		return err
	}

	fmt.Fprintf(w, placementRow, "NUM", "STATUS", "SOURCE", "VERSION", "ASSET", "PATH")
	for _, n := range numbers {
		p := snap.Placements[n]
		version := "-"
		if p.Version > 0 {
			version = strconv.Itoa(p.Version)
		}
		_, err := fmt.Fprintf(w, placementRow,
			strconv.Itoa(n), p.Status, p.Origin, version, dash(p.AssetID), dash(p.Path))
		if err != nil {
			return err
		}
	}
	return nil
}

// RenderHistory writes journal entries as a table, newest first as given.
func RenderHistory(w io.Writer, entries []store.Entry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "(no history)")
		return err
	}

	fmt.Fprintf(w, historyRow, "ID", "REVISION", "UNRESOLVED", "TRIGGER", "RECORDED", "PROJECT")
	for _, e := range entries {
		_, err := fmt.Fprintf(w, historyRow,
			strconv.FormatInt(e.ID, 10),
			strconv.FormatUint(e.Snapshot.Revision, 10),
			strconv.Itoa(e.Snapshot.UnresolvedCount),
			dash(string(e.Snapshot.LastTriggerSource)),
			formatTime(e.RecordedAt),
			e.Snapshot.ProjectDirectory)
		if err != nil {
			return err
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
