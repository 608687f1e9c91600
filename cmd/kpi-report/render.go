package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/miradorstack/kpi-recon/internal/models"
)

const tableTime = "2006-01-02 15:04"

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func renderDefinitions(w io.Writer, defs []models.KPIDefinition) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "KPI ID\tNAME\tLEAD TIME")
	for _, def := range defs {
		lead := "-"
		if def.LeadTimeSeconds != nil {
			lead = (time.Duration(*def.LeadTimeSeconds) * time.Second).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", def.KPIID, def.Name, lead)
	}
	return tw.Flush()
}

func renderReport(w io.Writer, report models.Report) error {
	fmt.Fprintf(w, "run %s generated %s\n", report.RunID, report.GeneratedAt.Format(time.RFC3339))
	for _, kpi := range report.KPIs {
		fmt.Fprintf(w, "\n== %s (%s) ==\n", displayName(kpi), kpi.KPIID)
		if kpi.Error != "" {
			fmt.Fprintf(w, "error: %s\n", kpi.Error)
			continue
		}
		fmt.Fprintf(w, "instants=%d excluded_no_lead_time=%d historical=%d aggregates=%d compared=%d\n",
			kpi.Instants, kpi.ExcludedNoLead, kpi.HistoricalRecords, kpi.Aggregates, len(kpi.Rows))
		if len(kpi.Rows) == 0 {
			fmt.Fprintln(w, "no comparable records")
			continue
		}

		tw := newTable(w)
		fmt.Fprintln(tw, "FORECAST FOR\tPROGRESSIVE\tFORECAST\tACTUAL\tABS DELTA\tERROR %")
		for _, row := range kpi.Rows {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n",
				row.ForecastedTimestamp.Format(tableTime),
				row.Progressive,
				formatFloat(row.ForecastValue),
				formatFloat(row.ActualValue),
				formatFloat(row.AbsDelta),
				formatPercentage(row.ErrorPerc),
			)
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		tw = newTable(w)
		fmt.Fprintln(tw, "WINDOW\tRANGE\tAVG FORECAST\tAVG ACTUAL\tAVG ERROR %")
		fmt.Fprintf(tw, "overall\t-\t%s\n", formatStats(kpi.Overall))
		writePeak(tw, "morning peak", kpi.Morning)
		writePeak(tw, "afternoon peak", kpi.Afternoon)
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(report.Skipped) > 0 {
		fmt.Fprintf(w, "\n%d input records skipped\n", len(report.Skipped))
		tw := newTable(w)
		fmt.Fprintln(tw, "KPI ID\tSTAGE\tREASON")
		for _, issue := range report.Skipped {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", issue.KPIID, issue.Stage, issue.Reason)
		}
		return tw.Flush()
	}
	return nil
}

func renderSeries(w io.Writer, series models.ChartSeries) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "TIME\tFORECAST\tACTUAL\tABS DELTA\tERROR %")
	for i, ts := range series.Timestamps {
		errPerc := "n/a"
		if series.ErrorPerc[i] != nil {
			errPerc = formatFloat(*series.ErrorPerc[i])
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			ts.Format(tableTime),
			formatFloat(series.Forecast[i]),
			formatFloat(series.Actual[i]),
			formatFloat(series.AbsDelta[i]),
			errPerc,
		)
	}
	return tw.Flush()
}

func writePeak(w io.Writer, label string, peak models.PeakResult) {
	if peak.NoData || peak.Window == nil {
		reason := peak.Reason
		if reason == "" {
			reason = "no data available"
		}
		fmt.Fprintf(w, "%s\t%s\t\t\t\n", label, reason)
		return
	}
	fmt.Fprintf(w, "%s\t%s\t%s\n", label, peak.Window.Range, formatStats(peak.Window.Stats))
}

func formatStats(stats models.WindowStats) string {
	return formatOptional(stats.AvgForecasted) + "\t" + formatOptional(stats.AvgActual) + "\t" + formatOptional(stats.AvgError)
}

func formatOptional(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return formatFloat(*v)
}

func formatPercentage(p models.Percentage) string {
	if !p.Defined {
		return "n/a"
	}
	return formatFloat(p.Value)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func displayName(kpi models.KPIReport) string {
	if kpi.Name != "" {
		return kpi.Name
	}
	return string(kpi.KPIID)
}
