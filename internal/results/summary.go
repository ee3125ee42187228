package results

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"gonum.org/v1/gonum/stat"

	"github.com/iso3dfd-st7/autotune/pkg/models"
)

// Summary writes a human readable report of a trial: its parameters, the
// best configuration and the trajectory table
func Summary(w io.Writer, id string, res *models.Result) error {
	if res == nil {
		return fmt.Errorf("result is nil")
	}

	fmt.Fprintf(w, "=== Result for trial %s ===\n", id)
	fmt.Fprintln(w, "Parameters:")
	keys := make([]string, 0, len(res.Params))
	for k := range res.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "\t%s\t%v\n", k, res.Params[k])
	}
	fmt.Fprintf(w, "Executed in %.2f s\n", res.Runtime.Seconds())
	fmt.Fprintf(w, "Best result: %g MPoints/s with [%s]\n", res.BestScore, res.Best)
	if res.ConvergenceReason != "" {
		fmt.Fprintf(w, "Stopped after %d iterations: %s\n", res.Iterations, res.ConvergenceReason)
	}

	if scores := res.Scores(); len(scores) > 0 {
		mean, std := stat.MeanStdDev(scores, nil)
		if len(scores) < 2 {
			std = 0
		}
		fmt.Fprintf(w, "Trajectory score: mean %.3f, std %.3f\n", mean, std)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "\tOlevel\tsimd\tNbTh\tn1_thrd_block\tn2_thrd_block\tn3_thrd_block\tE\t")
	for i, step := range res.Trajectory {
		c := step.Config
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\t%d\t%g\t\n", i, c.OptLevel, c.SIMD, c.Threads, c.Block1, c.Block2, c.Block3, step.Score)
	}
	return tw.Flush()
}
