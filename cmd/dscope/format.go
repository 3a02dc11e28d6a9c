package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/jward/dscope"
)

var (
	highColor   = color.New(color.FgRed, color.Bold)
	mediumColor = color.New(color.FgYellow, color.Bold)
	lowColor    = color.New(color.FgGreen)
	headColor   = color.New(color.Bold)
)

// severityLabel renders "[HIGH]" and friends in their severity color.
func severityLabel(s dscope.Severity) string {
	label := "[" + strings.ToUpper(string(s)) + "]"
	switch s {
	case "high":
		return highColor.Sprint(label)
	case "medium":
		return mediumColor.Sprint(label)
	case "low":
		return lowColor.Sprint(label)
	default:
		return label
	}
}

// formatEventsText formats event handlers as aligned columns.
func formatEventsText(w io.Writer, events []dscope.EventHandler) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tLINE\tTYPE\tEVENT")
	for _, e := range events {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", e.File, e.Line, e.Trigger, e.Event)
	}
	tw.Flush()
}

// formatCallsText formats call edges as aligned columns.
func formatCallsText(w io.Writer, calls []dscope.CallEdge) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tLINE\tTYPE\tTARGET")
	for _, c := range calls {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", c.File, c.Line, c.Kind, c.Target)
	}
	tw.Flush()
}

// formatContainersText formats script containers as aligned columns.
func formatContainersText(w io.Writer, defs []dscope.ScriptContainer) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTYPE\tFILE\tLINE")
	for _, d := range defs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", d.Name, d.Type, d.File, d.Line)
	}
	tw.Flush()
}

func formatKeyUsageText(w io.Writer, u CLIKeyUsage) {
	fmt.Fprintf(w, "Key: %s\n", headColor.Sprint(u.Key))
	fmt.Fprintf(w, "Readers: %s\n", joinOrNone(u.Readers))
	fmt.Fprintf(w, "Writers: %s\n", joinOrNone(u.Writers))
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tLINE\tMODE\tCONTEXT")
	for _, a := range u.Accesses {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", a.File, a.Line, modeString(a.Mode), a.Context)
	}
	tw.Flush()
}

// formatWarningsText lists warnings with up to three examples each.
func formatWarningsText(w io.Writer, ws []dscope.Warning) {
	if len(ws) == 0 {
		fmt.Fprintln(w, "No warnings.")
		return
	}
	for i, warn := range ws {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s %s\n", severityLabel(warn.Severity), warn.Kind)
		fmt.Fprintf(w, "  %s\n", warn.Message)
		if warn.Reason != "" {
			fmt.Fprintf(w, "  %s\n", warn.Reason)
		}
		for _, ex := range warn.Examples[:min(3, len(warn.Examples))] {
			fmt.Fprintf(w, "    - %s\n", ex)
		}
	}
}

func formatCountsText(w io.Writer, c dscope.Counts) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Files:\t%d\n", c.Files)
	fmt.Fprintf(tw, "Event handlers:\t%d\n", c.Events)
	fmt.Fprintf(tw, "Key accesses:\t%d\n", c.DataKeys)
	fmt.Fprintf(tw, "Calls:\t%d\n", c.Calls)
	fmt.Fprintf(tw, "Containers:\t%d\n", c.Containers)
	fmt.Fprintf(tw, "Notes:\t%d\n", c.Notes)
	fmt.Fprintf(tw, "Warnings:\t%d\n", c.Warnings)
	tw.Flush()
}

// formatReachText prints each reached script indented by its depth.
func formatReachText(w io.Writer, r CLIReach) {
	for _, n := range r.Nodes {
		indent := strings.Repeat("  ", n.Depth)
		fmt.Fprintf(w, "%s%s", indent, n.Name)
		if len(n.Files) > 0 {
			fmt.Fprintf(w, "  <- %s", strings.Join(n.Files, ", "))
		}
		fmt.Fprintln(w)
	}
}

func formatAnalyzeText(w io.Writer, r CLIAnalyzeResult) {
	fmt.Fprintln(w, headColor.Sprint("Statistics"))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "  Files scanned:\t%d\n", r.FileCount)
	fmt.Fprintf(tw, "  Files skipped:\t%d\n", r.Skipped)
	fmt.Fprintf(tw, "  Event handlers:\t%d\n", r.Summary.Events)
	fmt.Fprintf(tw, "  Key accesses:\t%d (%d keys)\n", r.Summary.DataKeys, r.Summary.UniqueKeys)
	fmt.Fprintf(tw, "  Calls:\t%d\n", r.Summary.Calls)
	fmt.Fprintf(tw, "  Containers:\t%d\n", r.Summary.Containers)
	tw.Flush()

	if len(r.Summary.TopEvents) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, headColor.Sprint("Most common events"))
		for _, t := range r.Summary.TopEvents {
			fmt.Fprintf(w, "  %s: %d\n", t.Name, t.Count)
		}
	}
	if len(r.Summary.TopTargets) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, headColor.Sprint("Most called scripts"))
		for _, t := range r.Summary.TopTargets {
			fmt.Fprintf(w, "  %s: %d calls\n", t.Name, t.Count)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, headColor.Sprint("Warnings"))
	formatWarningsText(w, r.Warnings)

	if r.Analysis != "" || r.WarningsFile != "" || r.Database != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, headColor.Sprint("Output"))
		for _, p := range []string{r.Analysis, r.WarningsFile, r.Database} {
			if p != "" {
				fmt.Fprintf(w, "  %s\n", p)
			}
		}
	}
}

// outputResultText dispatches to the text formatter for the result type.
func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case []dscope.EventHandler:
		formatEventsText(w, v)
	case []dscope.CallEdge:
		formatCallsText(w, v)
	case []dscope.ScriptContainer:
		formatContainersText(w, v)
	case []dscope.Warning:
		formatWarningsText(w, v)
	case CLIKeyUsage:
		formatKeyUsageText(w, v)
	case dscope.Counts:
		formatCountsText(w, v)
	case CLIReach:
		formatReachText(w, v)
	case CLIAnalyzeResult:
		formatAnalyzeText(w, v)
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}

func modeString(m dscope.Mode) string {
	switch {
	case m.Read && m.Write:
		return "rw"
	case m.Read:
		return "r"
	case m.Write:
		return "w"
	default:
		return "-"
	}
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
