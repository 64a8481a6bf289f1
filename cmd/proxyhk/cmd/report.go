package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gookit/color"
	"github.com/mattn/go-runewidth"

	"github.com/dbsmedya/proxyhk/internal/housekeeper"
)

// renderTable writes rows as left aligned columns separated by two spaces.
// Widths are measured in terminal cells so colored or wide text lines up.
func renderTable(w io.Writer, header []string, rows [][]string) {
	widths := make([]int, len(header))
	measure := func(row []string) {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], runewidth.StringWidth(color.ClearCode(cell)))
			}
		}
	}
	measure(header)
	for _, row := range rows {
		measure(row)
	}

	line := func(row []string) {
		cells := make([]string, len(row))
		for i, cell := range row {
			pad := widths[i] - runewidth.StringWidth(color.ClearCode(cell))
			if i == len(row)-1 {
				pad = 0
			}
			cells[i] = cell + strings.Repeat(" ", max(pad, 0))
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(cells, "  "), " "))
	}

	line(header)
	sep := make([]string, len(header))
	for i, width := range widths {
		sep[i] = strings.Repeat("-", width)
	}
	line(sep)
	for _, row := range rows {
		line(row)
	}
}

func formatClock(unix int64) string {
	return time.Unix(unix, 0).UTC().Format(time.RFC3339)
}

func reportRow(r *housekeeper.TableReport, withCount bool) []string {
	row := []string{r.Table.TableName, r.Table.IDFieldName}

	if !r.HasWatermark {
		row = append(row, "-", "-", "-")
	} else if r.Empty {
		row = append(row, fmt.Sprint(r.NextID), "-", "-")
	} else {
		row = append(row, fmt.Sprint(r.NextID), fmt.Sprint(r.Snapshot.MaxID), formatClock(r.Snapshot.MinClock))
	}

	if withCount {
		switch {
		case r.Skipped() != "":
			row = append(row, color.Yellow.Sprint("skip: "+r.Skipped()))
		default:
			row = append(row, fmt.Sprint(r.Eligible))
		}
	}
	return row
}

func printTableReports(w io.Writer, reports []*housekeeper.TableReport, withCount bool) {
	header := []string{"TABLE", "WATERMARK", "NEXTID", "MAXID", "OLDEST"}
	if withCount {
		header = append(header, "ELIGIBLE")
	}

	rows := make([][]string, 0, len(reports))
	for _, r := range reports {
		rows = append(rows, reportRow(r, withCount))
	}
	renderTable(w, header, rows)
}

func printRunResult(w io.Writer, r *housekeeper.RunResult) {
	fmt.Fprintf(w, "\n=== Housekeeping Complete ===\n")
	fmt.Fprintf(w, "Cycle: %s\n", r.CycleID)
	fmt.Fprintf(w, "Period: %ds\n", r.PeriodSeconds)
	fmt.Fprintf(w, "Duration: %s\n", r.Duration)

	if r.Err != nil {
		fmt.Fprintf(w, "%s\n", color.Red.Sprintf("Failed: %v", r.Err))
		return
	}

	rows := make([][]string, 0, r.PerTable.Len()+len(r.Failed))
	for el := r.PerTable.Front(); el != nil; el = el.Next() {
		rows = append(rows, []string{el.Key, fmt.Sprint(el.Value), color.Green.Sprint("ok")})
	}
	for _, table := range r.Failed {
		rows = append(rows, []string{table, "-", color.Red.Sprint("failed")})
	}
	renderTable(w, []string{"TABLE", "DELETED", "STATUS"}, rows)

	fmt.Fprintf(w, "Records Deleted: %d\n", r.RecordsDeleted)
}
