package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wippyai/wasm-gc/collector"
)

var (
	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4")).
			Padding(0, 1)
)

type statRow struct {
	label string
	value string
}

func statRows(st collector.Stats) []statRow {
	last := st.LastCycle
	rows := []statRow{
		{"heap objects", fmt.Sprint(st.HeapObjects)},
		{"heap bytes", fmt.Sprint(st.HeapAlloc)},
		{"total allocated", fmt.Sprint(st.TotalAlloc)},
		{"mallocs", fmt.Sprint(st.Mallocs)},
		{"frees", fmt.Sprint(st.Frees)},
		{"since last gc", fmt.Sprintf("%d bytes", st.BytesSinceGC)},
		{"cycles", fmt.Sprint(st.NumGC)},
		{"pause total", st.PauseTotal.String()},
	}
	if st.NumGC > 0 {
		rows = append(rows,
			statRow{"last cycle", fmt.Sprintf("#%d (%s)", last.Seq, last.Trigger)},
			statRow{"  roots", fmt.Sprint(last.Roots)},
			statRow{"  marked", fmt.Sprint(last.Marked)},
			statRow{"  freed", fmt.Sprintf("%d (%d bytes)", last.Freed, last.FreedBytes)},
			statRow{"  stack words", fmt.Sprint(last.StackWords)},
			statRow{"  duration", last.Duration.String()},
		)
	}
	return rows
}

// renderStats formats st as a boxed two-column table. A width of 0 means
// the output is not a terminal and is rendered without styling.
func renderStats(st collector.Stats, width int) string {
	rows := statRows(st)
	pad := 0
	for _, r := range rows {
		pad = max(pad, len(r.label))
	}

	var b strings.Builder
	for i, r := range rows {
		label := fmt.Sprintf("%-*s", pad, r.label)
		if width > 0 {
			b.WriteString(labelStyle.Render(label) + "  " + valueStyle.Render(r.value))
		} else {
			b.WriteString(label + "  " + r.value)
		}
		if i < len(rows)-1 {
			b.WriteByte('\n')
		}
	}
	if width == 0 {
		return b.String() + "\n"
	}
	return boxStyle.MaxWidth(width).Render(b.String()) + "\n"
}

func printMetrics(reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			name := mf.GetName()
			if len(labels) > 0 {
				name += "{" + strings.Join(labels, ",") + "}"
			}
			switch {
			case m.GetCounter() != nil:
				fmt.Printf("%s %g\n", name, m.GetCounter().GetValue())
			case m.GetGauge() != nil:
				fmt.Printf("%s %g\n", name, m.GetGauge().GetValue())
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				fmt.Printf("%s count=%d sum=%gs\n", name, h.GetSampleCount(), h.GetSampleSum())
			}
		}
	}
	return nil
}
