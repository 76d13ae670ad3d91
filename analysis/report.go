package analysis

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// WriteTable writes one summary table as aligned text columns
func WriteTable(w io.Writer, t *Table) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "%s\ttruth\tmean\t2.5%%\t97.5%%\tcovered\t\n", t.Name)
	for _, r := range t.Rows {
		fmt.Fprintf(tw, "%s\t%.3f\t%.3f\t%.3f\t%.3f\t%v\t\n", r.Name, r.Truth, r.Mean, r.Lower, r.Upper, r.Covers(r.Truth))
	}
	return tw.Flush()
}

func writeScore(w io.Writer, name string, es *ErrorSuite) {
	if es == nil {
		return
	}
	fmt.Fprintf(w, "%-18s n=%-4d MeanAE:%7.3f MaxAE:%7.3f RMSE:%7.3f Cover:%6.3f MeanCover:%6.3f Width:%7.3f\n",
		name, es.Rows, es.MeanAbsError, es.MaxAbsError, es.RMSE, es.Coverage, es.MeanCoverage, es.MeanWidth)
}

// WriteText writes a human readable report. Per-row tables are included
// only when full is set.
func (r *Report) WriteText(w io.Writer, full bool) error {
	fmt.Fprintf(w, "Seed:        %d\n", r.Seed)
	fmt.Fprintf(w, "Data:        %d individuals x %d subgroups (%d known)\n", r.I, r.K, r.Known)
	fmt.Fprintf(w, "Pruned:      %d %s\n", len(r.Removed), r.Prune)
	fmt.Fprintf(w, "Elapsed:     %v\n", r.Elapsed)

	if d := r.Diagnostics; d != nil {
		fmt.Fprintf(w, "Max R-hat:   %.3f (%s)\n", d.MaxRhat, d.WorstRhat)
		fmt.Fprintf(w, "Min ESS:     %.1f\n", d.MinESS)
		fmt.Fprintf(w, "Divergences: %d\n", d.Divergences)
	}
	fmt.Fprintln(w)

	writeScore(w, "individuals", r.Scores.Individuals)
	writeScore(w, "subgroups", r.Scores.Subgroups)
	writeScore(w, "unknown subgroups", r.Scores.Unknown)
	writeScore(w, "dispersion", r.Scores.Dispersion)

	if r.Summary == nil {
		return nil
	}

	fmt.Fprintln(w)
	if err := WriteTable(w, r.Summary.Hyper); err != nil {
		return err
	}
	if !full {
		return nil
	}

	for _, t := range []*Table{r.Summary.Individuals, r.Summary.Degree, r.Summary.Subgroups, r.Summary.Dispersion} {
		fmt.Fprintln(w)
		if err := WriteTable(w, t); err != nil {
			return err
		}
	}
	return nil
}
