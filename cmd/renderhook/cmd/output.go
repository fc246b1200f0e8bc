package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/psantana5/renderhook/pkg/models"
	"github.com/psantana5/renderhook/pkg/prerender"
	"gopkg.in/yaml.v3"
)

type resolveOutput struct {
	Report   *prerender.Report `json:"report" yaml:"report"`
	Snapshot *models.Snapshot  `json:"snapshot" yaml:"snapshot"`
}

// encode writes v as json or yaml
func encode(w io.Writer, format string, v interface{}) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(v)
	case "yaml":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		defer encoder.Close()
		return encoder.Encode(v)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

func printResolve(w io.Writer, format string, report *prerender.Report, snap *models.Snapshot) error {
	if format != "table" {
		return encode(w, format, resolveOutput{Report: report, Snapshot: snap})
	}

	if report.Skipped {
		fmt.Fprintf(w, "Pass %s skipped: marker flag not present\n", report.PassID)
		return nil
	}

	fmt.Fprintf(w, "Pass %s (engine %s)\n\n", report.PassID, report.Engine)

	table := tablewriter.NewWriter(w)
	table.Header("Step", "Result", "Duration")
	table.Append([]string{"devices", deviceSummary(report), duration(report, prerender.StepDevices)})
	table.Append([]string{"compositor", compositorSummary(report), duration(report, prerender.StepCompositor)})
	table.Append([]string{"persistent data", yesNo(report.PersistentData), duration(report, prerender.StepPersistentData)})
	if err := table.Render(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	if err := printDevices(w, snap.Devices); err != nil {
		return err
	}
	fmt.Fprintln(w)
	return printNodes(w, snap.Nodes)
}

func deviceSummary(report *prerender.Report) string {
	sel := report.Devices
	if sel == nil {
		return "not run"
	}
	if sel.Skip {
		return "skipped: " + sel.Reason
	}
	kinds := make([]string, 0, len(sel.Enabled()))
	for _, d := range sel.Enabled() {
		kinds = append(kinds, string(d.Kind))
	}
	summary := fmt.Sprintf("%s (%s)", strings.Join(kinds, ", "), sel.Reason)
	if n := len(sel.Rejections); n > 0 {
		summary += fmt.Sprintf(", %d rejected", n)
	}
	return summary
}

func compositorSummary(report *prerender.Report) string {
	res := report.Compositor
	switch {
	case res == nil:
		return "not run"
	case res.Skipped:
		return "disabled"
	}
	summary := fmt.Sprintf("%s on %d node(s)", res.Dir, len(res.Updated))
	if n := len(res.Rejections); n > 0 {
		summary += fmt.Sprintf(", %d rejected", n)
	}
	return summary
}

func duration(report *prerender.Report, step string) string {
	d, ok := report.Durations[step]
	if !ok {
		return "-"
	}
	return d.Round(time.Microsecond).String()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func printDevices(w io.Writer, devices []models.ComputeDevice) error {
	first, hasFirst := models.FirstAccelerator(devices)

	table := tablewriter.NewWriter(w)
	table.Header("#", "ID", "Name", "Kind", "Enabled", "Note")
	for i, d := range devices {
		var notes []string
		if hasFirst && d.ID == first.ID {
			notes = append(notes, "first accelerator")
		}
		if d.Locked {
			notes = append(notes, "locked")
		}
		table.Append([]string{
			fmt.Sprintf("%d", i),
			d.ID,
			d.Name,
			string(d.Kind),
			yesNo(d.Enabled),
			strings.Join(notes, ", "),
		})
	}
	return table.Render()
}

func printNodes(w io.Writer, nodes []models.OutputNode) error {
	table := tablewriter.NewWriter(w)
	table.Header("ID", "Name", "Kind", "Base Path")
	for _, n := range nodes {
		path := n.BasePath
		if n.ReadOnly {
			path += " (read-only)"
		}
		table.Append([]string{n.ID, n.Name, n.Kind, path})
	}
	return table.Render()
}
