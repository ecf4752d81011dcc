package cli

import (
	"fmt"
	"os"

	"github.com/falachefe/consultant/internal/metrics"
	"github.com/jedib0t/go-pretty/v6/table"
)

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	return tw
}

func rowOf(values ...any) table.Row {
	return table.Row(values)
}

// printMetrics displays the collector snapshot for this process.
func printMetrics(s metrics.Snapshot) {
	fmt.Println(defaultTheme.statusStyle().Render("Runtime Statistics (this process)"))
	fmt.Printf("Uptime: %.1f seconds\n\n", s.UptimeSeconds)

	ops := s.Operations()
	if len(ops) > 0 {
		tw := newTable()
		tw.AppendHeader(rowOf("Operation", "Calls", "Failures", "Avg ms", "Min ms", "Max ms", "Tokens In", "Tokens Out"))
		for _, op := range ops {
			tw.AppendRow(rowOf(
				op.Name, op.Count, op.Failures,
				fmt.Sprintf("%.1f", op.AvgTimeMs), op.MinTimeMs, op.MaxTimeMs,
				tokens(op.TotalInputTokens), tokens(op.TotalOutputTokens),
			))
		}
		tw.Render()
	}

	if names := s.CounterNames(); len(names) > 0 {
		fmt.Println()
		tw := newTable()
		tw.AppendHeader(rowOf("Counter", "Value"))
		for _, name := range names {
			tw.AppendRow(rowOf(name, s.Counters[name]))
		}
		tw.Render()
	}
}

func tokens(v *int64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}
