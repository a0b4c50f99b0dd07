package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/buoysim/internal/export"
	"github.com/san-kum/buoysim/internal/mission"
	"github.com/san-kum/buoysim/internal/storage"
	"github.com/san-kum/buoysim/internal/telemetry"
	"github.com/san-kum/buoysim/internal/tui"
)

var (
	plotColumns []string
	exportPath  string
	svgPath     string
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func printSummary(w io.Writer, res mission.Result, names []string, wall time.Duration) {
	fmt.Fprintln(w, tui.Title.Render("mission summary"))
	row := func(label, value string) {
		fmt.Fprintln(w, tui.MetricLabel.Render(label)+tui.MetricValue.Render(value))
	}
	row("simulated", fmt.Sprintf("%.1f s (%d ticks)", res.Final.Elapsed, res.Final.Tick))
	row("wall clock", wall.Round(time.Millisecond).String())
	row("final depth", fmt.Sprintf("%.2f m", res.Final.Depth))
	row("reached", fmt.Sprintf("%t", res.Reached))
	row("commands", fmt.Sprintf("%d", res.Commands))
	for _, name := range names {
		row(name, fmt.Sprintf("%.4f", res.Metrics[name]))
	}
}

func printSweep(w io.Writer, targets []float64, results []mission.Result) {
	t := newTable(w)
	fmt.Fprintln(t, "TARGET\tREACHED\tMAX DEPTH\tTIME TO TARGET\tMAX DESCENT\tCOMPLIANCE\tSIMULATED")
	for i, r := range results {
		fmt.Fprintf(t, "%.1f\t%t\t%.2f\t%.1f\t%.3f\t%.3f\t%.1f\n",
			targets[i], r.Reached,
			r.Metrics["max_depth"], r.Metrics["time_to_target"],
			r.Metrics["max_descent_speed"], r.Metrics["rate_compliance"],
			r.Final.Elapsed)
	}
	t.Flush()
}

// loadTable reads a recorder file, or an archived run's telemetry when ref
// is not a file.
func loadTable(ref string) (*telemetry.Table, error) {
	if _, err := os.Stat(ref); err == nil {
		return telemetry.ReadFile(ref)
	}
	return storage.New(dataDir).LoadTelemetry(ref)
}

func plotRun(cmd *cobra.Command, args []string) error {
	table, err := loadTable(args[0])
	if err != nil {
		return err
	}
	if len(table.Rows) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", args[0])
	fmt.Printf("recorder version: %s\n", table.Version)
	fmt.Printf("started: %s\n", table.Start.Format(time.RFC3339))
	fmt.Printf("samples: %d\n\n", len(table.Rows))

	for _, name := range plotColumns {
		data, ok := table.Column(name)
		if !ok {
			fmt.Fprintf(os.Stderr, "no column %q (have %v)\n", name, table.Columns)
			continue
		}
		if name == "depth" {
			// drawn downwards like the dive itself
			for i := range data {
				data[i] = -data[i]
			}
		}

		graph := asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(name),
		)
		fmt.Println(graph)
		fmt.Println()
	}

	if svgPath != "" {
		svg, err := export.ProfileSVG(table, 800, 400)
		if err != nil {
			return err
		}
		if err := os.WriteFile(svgPath, []byte(svg), 0644); err != nil {
			return err
		}
		fmt.Printf("profile written to %s\n", svgPath)
	}
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	runs, err := storage.New(dataDir).List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := newTable(os.Stdout)
	fmt.Fprintln(w, "ID\tTIME\tTARGET\tREACHED\tMAX DEPTH\tSIMULATED\tENGINES\tMETRIC")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%.1f m\t%t\t%.2f m\t%.1fs\t%d\t%s\n",
			run.ID,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.TargetDepth,
			run.Reached,
			run.Metrics["max_depth"],
			run.Elapsed,
			run.CommandedEngines,
			run.SpeedMetric,
		)
	}
	return w.Flush()
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	if exportPath == "" {
		return st.ExportJSON(os.Stdout, args[0])
	}

	f, err := os.Create(exportPath)
	if err != nil {
		return err
	}
	if err := st.ExportJSON(f, args[0]); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Printf("exported %s to %s\n", args[0], exportPath)
	return nil
}
