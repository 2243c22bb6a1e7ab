package trace

import (
	"fmt"
	"io"
	"text/tabwriter"

	"bitbucket.org/Davydov/mcmckernel/coercion"
	"bitbucket.org/Davydov/mcmckernel/operator"
)

// Report writes an operator analysis table.
func Report(w io.Writer, ops []operator.Operator) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "Operator\tTuning\tWeight\tCount\tAccepted\tAcceptance\tSuggestion")
	for _, op := range ops {
		s := op.Stats()
		tuning := "-"
		suggestion := ""
		if c, ok := op.(coercion.Coercable); ok {
			tuning = fmt.Sprintf("%.4g", c.RawParameter())
			suggestion = coercion.Suggest(c)
		}
		fmt.Fprintf(tw, "%s\t%s\t%g\t%d\t%d\t%.4f\t%s\n", s.Name, tuning, s.Weight,
			s.Accepted+s.Rejected, s.Accepted, s.AcceptanceProbability(), suggestion)
	}
	return tw.Flush()
}
