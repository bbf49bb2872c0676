package fleet

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"skyfleet/internal/core/domain"
)

// PrintReport writes the end-of-run latency summary in a human-readable
// table, one block per measurement category.
func (o *Orchestrator) PrintReport(w io.Writer) {
	stats := o.FleetStats()
	statuses := o.AgentStatuses()

	connected := 0
	for _, st := range statuses {
		if st.Connected {
			connected++
		}
	}

	fmt.Fprintln(w, "==== fleet latency report ====")
	fmt.Fprintf(w, "agents: %d (connected at shutdown: %d)\n", len(statuses), connected)

	if len(stats) == 0 {
		fmt.Fprintln(w, "no latency samples collected")
		return
	}

	categories := make([]string, 0, len(stats))
	for cat := range stats {
		categories = append(categories, string(cat))
	}
	sort.Strings(categories)

	for _, cat := range categories {
		report := stats[domain.LatencyCategory(cat)]
		fmt.Fprintf(w, "\n[%s] samples=%d agents=%d\n", cat, report.TotalSamples, report.AgentCount)
		fmt.Fprintf(w, "  mean=%.2fms median=%.2fms p95=%.2fms p99=%.2fms\n",
			report.MeanMs, report.MedianMs, report.P95Ms, report.P99Ms)
		if report.BestAgent.AgentID != "" {
			fmt.Fprintf(w, "  best=%s (%.2fms avg) worst=%s (%.2fms avg)\n",
				report.BestAgent.AgentID, report.BestAgent.AvgMs,
				report.WorstAgent.AgentID, report.WorstAgent.AvgMs)
		}
	}
}

// ExportSamples dumps every raw latency sample to path as JSON, keyed by
// agent then category. Intended for offline analysis after a run.
func (o *Orchestrator) ExportSamples(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create samples file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(o.AllSamples()); err != nil {
		return fmt.Errorf("encode samples: %w", err)
	}

	o.logger.Infow("exported latency samples", "path", path)
	return nil
}
