package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gosuri/uitable"

	"voice-assistant/provisioner/internal/deps"
	"voice-assistant/provisioner/internal/orchestrator"
)

const shortDigest = 12

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(w, `{"status":"error","error":%q}`+"\n", err.Error())
	}
}

func printError(w io.Writer, err error) {
	printJSON(w, map[string]string{"status": orchestrator.StatusError, "error": err.Error()})
}

// firstError returns the error of the first failed phase.
func firstError(result *orchestrator.BootstrapResult) string {
	for _, p := range result.Phases {
		if p.Status == orchestrator.StatusError {
			return p.Name + ": " + p.Error
		}
	}
	return "unknown failure"
}

func formatModels(w io.Writer, models []orchestrator.ModelInfo, now time.Time) {
	if len(models) == 0 {
		fmt.Fprintln(w, "No models pulled yet.")
		return
	}

	table := uitable.New()
	table.MaxColWidth = 60
	table.RightAlign(1)
	table.AddRow("NAME", "SIZE", "MODIFIED", "DIGEST")
	for _, m := range models {
		digest := m.Digest
		if len(digest) > shortDigest {
			digest = digest[:shortDigest]
		}
		modified := "-"
		if !m.ModifiedAt.IsZero() {
			modified = humanize.RelTime(m.ModifiedAt, now, "ago", "from now")
		}
		table.AddRow(m.Name, humanize.Bytes(uint64(m.Size)), modified, digest)
	}
	fmt.Fprintln(w, table)
}

func formatProbes(w io.Writer, probes map[string]orchestrator.ProbeResult) {
	names := make([]string, 0, len(probes))
	for name := range probes {
		names = append(names, name)
	}
	sort.Strings(names)

	table := uitable.New()
	table.MaxColWidth = 80
	table.Wrap = true
	table.AddRow("DEPENDENCY", "TARGET", "STATUS", "LATENCY", "ERROR")
	for _, name := range names {
		p := probes[name]
		status := "ok"
		if !p.OK {
			status = "FAIL"
		}
		table.AddRow(name, p.Name, status, fmt.Sprintf("%dms", p.LatencyMs), p.Error)
	}
	fmt.Fprintln(w, table)
}

func formatAudit(w io.Writer, a *deps.Audit) {
	table := uitable.New()
	table.MaxColWidth = 100
	table.Wrap = true
	table.AddRow("Imports found:", fmt.Sprint(len(a.Imports)))
	table.AddRow("Installed:", fmt.Sprint(len(a.Installed)))
	table.AddRow("Used:", joinOrDash(a.Used))
	table.AddRow("Dev tools:", joinOrDash(a.Dev))
	table.AddRow("Unused:", joinOrDash(a.Unused))
	fmt.Fprintln(w, table)
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

// allProbesOK reports whether every probe passed.
func allProbesOK(probes map[string]orchestrator.ProbeResult) bool {
	for _, p := range probes {
		if !p.OK {
			return false
		}
	}
	return true
}
